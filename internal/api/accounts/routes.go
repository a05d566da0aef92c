package accounts

import (
	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/middleware"
	"github.com/aimd54/lorekeeper/internal/models"
)

// RegisterRoutes mounts the identity API at the root of r.
func RegisterRoutes(r gin.IRouter, h *Handler, authn *middleware.Authenticator) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/me", authn.Require(), middleware.Authenticated(h.Me))
	}

	admin := r.Group("/admin", authn.Require(), middleware.RequireRole(models.RoleAdmin))
	admin.GET("/users", h.ListUsers)

	users := r.Group("/users")
	{
		users.GET("/:id", authn.Require(), h.GetUser)
		users.PATCH("/:id/role", authn.Require(), middleware.RequireRole(models.RoleAdmin), middleware.Authenticated(h.UpdateRole))
		users.DELETE("/:id", authn.Require(), middleware.RequireRole(models.RoleAdmin), middleware.Authenticated(h.DeleteUser))
		users.PATCH("/:id/reputation", h.ApplyReputation)
	}
}
