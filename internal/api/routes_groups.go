package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/groupchoice/internal/handlers"
)

func registerGroupRoutes(api *gin.RouterGroup, handler *handlers.GroupHandler, requireAuth gin.HandlerFunc) {
	groups := api.Group("/groups", requireAuth)
	{
		groups.GET("", handler.List)
		groups.POST("", handler.Create)
		groups.GET("/:id", handler.Get)
		groups.PATCH("/:id", handler.Update)
		groups.DELETE("/:id", handler.Delete)
		groups.GET("/:id/members", handler.ListMembers)
		groups.POST("/:id/members", handler.AddMember)
		groups.DELETE("/:id/members/:email", handler.RemoveMember)
	}
}
