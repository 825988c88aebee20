package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/charlesng35/groupchoice/pkg/logger"
	"github.com/charlesng35/groupchoice/pkg/response"
)

// respondError renders err through the response envelope. Server faults are
// logged with their internal cause, which never reaches the client.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	if appErr.IsServerError() {
		_ = c.Error(err)
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
		if !errors.Is(appErr, apperrors.ErrTimeout) {
			appErr = apperrors.ErrInternalServer
		}
	}
	response.Error(c, appErr)
}
