package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/groupchoice/pkg/logger"
)

func TestLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(logger.Replace(zap.New(core)))

	r := gin.New()
	r.Use(Logger())
	r.GET("/ping", func(c *gin.Context) {
		c.Set(CtxUserIDKey, "user-1")
		c.String(http.StatusOK, c.GetString(CtxRequestIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Body.String())
	require.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, w.Body.String(), fields["request_id"])
	require.Equal(t, "/ping", fields["path"])
	require.EqualValues(t, http.StatusOK, fields["status"])
	require.Equal(t, "user-1", fields["user_id"])
}

func TestLoggerMiddlewareRequestIDHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Logger())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxRequestIDKey))
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "upstream id kept", incoming: "upstream-42", keep: true},
		{name: "oversized id replaced", incoming: strings.Repeat("x", 65), keep: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set(RequestIDHeader, tc.incoming)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if tc.keep {
				require.Equal(t, tc.incoming, w.Body.String())
			} else {
				require.NotEqual(t, tc.incoming, w.Body.String())
				require.Len(t, w.Body.String(), 36)
			}
		})
	}
}
