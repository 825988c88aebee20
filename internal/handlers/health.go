package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/charlesng35/groupchoice/pkg/response"
)

var errDatabaseUnavailable = apperrors.New("DATABASE_UNAVAILABLE", "Database is unavailable", http.StatusServiceUnavailable)

// Health reports readiness, including a database ping when db is set.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
			defer cancel()

			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				response.Error(c, errDatabaseUnavailable)
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
