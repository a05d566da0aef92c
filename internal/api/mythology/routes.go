package mythology

import (
	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/middleware"
)

// RegisterRoutes mounts the mythology API. The caller's token is checked for
// presence only and forwarded to the lore service, which verifies it.
func RegisterRoutes(r gin.IRouter, h *Handler) {
	group := r.Group("/mythology", middleware.RequireBearer())
	{
		group.GET("/stats", middleware.WithToken(h.Stats))
		group.GET("/classification", middleware.WithToken(h.Classification))
		group.GET("/classification/families", middleware.WithToken(h.Families))
	}
}
