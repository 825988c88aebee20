package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/groupchoice/pkg/metrics"
)

func newMetricsRouter(skip ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics(skip...))
	r.GET("/surveys/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Code
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := newMetricsRouter()
	before := testutil.CollectAndCount(metrics.APILatency)

	require.Equal(t, http.StatusOK, hit(r, "/surveys/abc"))
	require.Equal(t, http.StatusOK, hit(r, "/surveys/def"))

	// Both requests land in the same series.
	require.Equal(t, before+1, testutil.CollectAndCount(metrics.APILatency))
}

func TestMetricsMiddlewareCollapsesUnknownRoutes(t *testing.T) {
	r := newMetricsRouter()
	before := testutil.CollectAndCount(metrics.APILatency)

	require.Equal(t, http.StatusNotFound, hit(r, "/random/one"))
	require.Equal(t, http.StatusNotFound, hit(r, "/random/two"))

	require.Equal(t, before+1, testutil.CollectAndCount(metrics.APILatency))
}

func TestMetricsMiddlewareSkipsListedPaths(t *testing.T) {
	r := newMetricsRouter("/metrics")

	before := testutil.CollectAndCount(metrics.APILatency)
	require.Equal(t, http.StatusOK, hit(r, "/metrics"))
	require.Equal(t, before, testutil.CollectAndCount(metrics.APILatency))
}
