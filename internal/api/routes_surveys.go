package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/groupchoice/internal/handlers"
)

func registerSurveyRoutes(api *gin.RouterGroup, handler *handlers.SurveyHandler, requireAuth, optionalAuth gin.HandlerFunc) {
	surveys := api.Group("/surveys")
	{
		surveys.GET("", requireAuth, handler.List)
		surveys.POST("", requireAuth, handler.Create)
		surveys.GET("/:id", optionalAuth, handler.Get)
		surveys.PATCH("/:id", requireAuth, handler.Update)
		surveys.DELETE("/:id", requireAuth, handler.Delete)

		// Invitation token holders vote and check status without an account.
		surveys.POST("/:id/respond", optionalAuth, handler.Respond)
		surveys.GET("/:id/response-status", optionalAuth, handler.ResponseStatus)
		surveys.GET("/:id/results", optionalAuth, handler.Results)

		surveys.GET("/:id/responses", requireAuth, handler.Responses)
		surveys.GET("/:id/invitations", requireAuth, handler.Invitations)
		surveys.POST("/:id/invitations/:invitationID/reissue", requireAuth, handler.ReissueInvitation)
		surveys.POST("/:id/toggle-results", requireAuth, handler.ToggleResults)
		surveys.GET("/:id/activity", requireAuth, handler.Activity)
	}
}
