package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/groupchoice/internal/services"
	"github.com/charlesng35/groupchoice/pkg/response"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain error passes through", services.ErrSurveyClosed, http.StatusConflict, "SURVEY_CLOSED"},
		{"wrapped domain error", fmt.Errorf("respond: %w", services.ErrTokenAlreadyUsed), http.StatusConflict, "TOKEN_ALREADY_USED"},
		{"storage failure is masked", fmt.Errorf("select: connection refused"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{"deadline maps to timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tc.err)

			require.Equal(t, tc.status, w.Code)
			var payload response.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
			require.Equal(t, tc.code, payload.Error.Code)
			require.NotContains(t, w.Body.String(), "connection refused")
		})
	}
}
