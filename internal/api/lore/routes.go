package lore

import (
	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/middleware"
	"github.com/aimd54/lorekeeper/internal/config"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/server"
)

// RegisterRoutes mounts the lore API under /api. Health, the creature list and
// single creature or testimony reads are public; everything else requires a
// verified bearer token.
func RegisterRoutes(r gin.IRouter, h *Handler, authn *middleware.Authenticator) {
	api := r.Group("/api")
	api.GET("/health", server.Health(config.ServiceLore))
	api.GET("/creatures", h.ListCreatures)
	api.GET("/creatures/:id", h.GetCreature)
	api.GET("/testimonies/:id", h.GetTestimony)

	secured := api.Group("", authn.Require())
	moderators := middleware.RequireRole(models.RoleExpert, models.RoleAdmin)
	admins := middleware.RequireRole(models.RoleAdmin)

	creaturesGroup := secured.Group("/creatures")
	{
		creaturesGroup.GET("/:id/testimonies", h.ListCreatureTestimonies)
		creaturesGroup.POST("", moderators, middleware.Authenticated(h.CreateCreature))
		creaturesGroup.PUT("/:id", middleware.Authenticated(h.UpdateCreature))
		creaturesGroup.DELETE("/:id", middleware.Authenticated(h.DeleteCreature))
	}

	testimonies := secured.Group("/testimonies")
	{
		testimonies.POST("", middleware.Authenticated(h.CreateTestimony))
		testimonies.GET("/me", middleware.Authenticated(h.MyTestimonies))
		testimonies.PUT("/:id/validate", middleware.Authenticated(h.ValidateTestimony))
		testimonies.PUT("/:id/reject", middleware.Authenticated(h.RejectTestimony))
		testimonies.DELETE("/:id", middleware.Authenticated(h.DeleteTestimony))
		testimonies.POST("/:id/restore", middleware.Authenticated(h.RestoreTestimony))
	}

	logs := secured.Group("/moderation-logs", admins)
	{
		logs.GET("", h.ListModerationLogs)
		logs.GET("/stats", h.ModerationLogStats)
		logs.GET("/user/:userId", h.ListModerationLogsByUser)
		logs.GET("/target/:targetId", h.ListModerationLogsByTarget)
	}
}
