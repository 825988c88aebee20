package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/groupchoice/pkg/metrics"
)

// unmatchedRoute labels requests that hit no registered route so probing
// random URLs cannot grow the label set.
const unmatchedRoute = "unmatched"

// Metrics observes request latency per route pattern. Paths listed in skip,
// such as the scrape endpoint, are not observed.
func Metrics(skip ...string) gin.HandlerFunc {
	ignored := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		ignored[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := ignored[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
