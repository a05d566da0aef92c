package lore

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/service/creatures"
)

// ListCreatures returns one page of the catalog.
// GET /api/creatures?page=1&limit=10&sort=-legendScore&search=drag&authorId=5.
func (h *Handler) ListCreatures(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid page parameter")
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, "invalid limit parameter")
		return
	}

	res, err := h.creatures.List(c.Request.Context(), creatures.ListInput{
		Page:     page,
		Limit:    limit,
		Sort:     c.Query("sort"),
		Search:   c.Query("search"),
		AuthorID: c.Query("authorId"),
	})
	if err != nil {
		h.handleError(c, err, "Failed to list creatures")
		return
	}

	response.Paginated(c, res.Creatures, response.NewPagination(res.Page, res.Limit, res.Total))
}

// GetCreature returns one creature.
// GET /api/creatures/:id.
func (h *Handler) GetCreature(c *gin.Context) {
	creature, err := h.creatures.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err, "Failed to get creature")
		return
	}

	response.OK(c, "", creature)
}

// CreateCreature adds a creature to the catalog.
// POST /api/creatures.
func (h *Handler) CreateCreature(c *gin.Context, p auth.Principal) {
	var req creatures.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	creature, err := h.creatures.Create(c.Request.Context(), req, p)
	if err != nil {
		h.handleError(c, err, "Failed to create creature")
		return
	}

	response.Created(c, "Creature created successfully", creature)
}

// UpdateCreature renames a creature or changes its origin.
// PUT /api/creatures/:id.
func (h *Handler) UpdateCreature(c *gin.Context, p auth.Principal) {
	var req creatures.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	creature, err := h.creatures.Update(c.Request.Context(), c.Param("id"), req, p)
	if err != nil {
		h.handleError(c, err, "Failed to update creature")
		return
	}

	response.OK(c, "Creature updated successfully", creature)
}

// DeleteCreature removes a creature.
// DELETE /api/creatures/:id.
func (h *Handler) DeleteCreature(c *gin.Context, p auth.Principal) {
	if err := h.creatures.Delete(c.Request.Context(), c.Param("id"), p); err != nil {
		h.handleError(c, err, "Failed to delete creature")
		return
	}

	response.OK(c, "Creature deleted successfully", nil)
}

// ListCreatureTestimonies returns a creature's live testimonies.
// GET /api/creatures/:id/testimonies?status=VALIDATED.
func (h *Handler) ListCreatureTestimonies(c *gin.Context) {
	status := models.TestimonyStatus(c.Query("status"))
	testimonies, err := h.testimonies.ListByCreature(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.handleError(c, err, "Failed to list testimonies")
		return
	}
	if testimonies == nil {
		testimonies = []models.Testimony{}
	}

	response.OK(c, "", testimonies)
}

// queryInt parses an optional integer query parameter. Absent means zero.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
