package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/charlesng35/groupchoice/pkg/logger"
	"github.com/charlesng35/groupchoice/pkg/response"
)

// Recovery converts panics into the internal error envelope and logs them
// with the request id and stack. http.ErrAbortHandler is re-raised so the
// server drops the connection as net/http intends.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			logger.WithModule("http").Error("panic recovered",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString(CtxRequestIDKey)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			if !c.Writer.Written() {
				response.Error(c, apperrors.ErrInternalServer)
			}
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the error envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.ErrNotFound.WithMessage("route %s not found", c.Request.URL.Path))
}
