package lore

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/service/moderation"
)

type createTestimonyRequest struct {
	CreatureID  string `json:"creatureId"`
	Description string `json:"description"`
}

// CreateTestimony submits a PENDING testimony.
// POST /api/testimonies.
func (h *Handler) CreateTestimony(c *gin.Context, p auth.Principal) {
	var req createTestimonyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	testimony, err := h.testimonies.Create(c.Request.Context(), req.CreatureID, req.Description, p)
	if err != nil {
		h.handleError(c, err, "Failed to create testimony")
		return
	}

	response.Created(c, "Testimony submitted successfully", testimony)
}

// MyTestimonies returns the caller's live testimonies.
// GET /api/testimonies/me.
func (h *Handler) MyTestimonies(c *gin.Context, p auth.Principal) {
	testimonies, err := h.testimonies.ListByAuthor(c.Request.Context(), p.ID)
	if err != nil {
		h.handleError(c, err, "Failed to list testimonies")
		return
	}
	if testimonies == nil {
		testimonies = []models.Testimony{}
	}

	response.OK(c, "", testimonies)
}

// GetTestimony returns one live testimony.
// GET /api/testimonies/:id.
func (h *Handler) GetTestimony(c *gin.Context) {
	testimony, err := h.testimonies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err, "Failed to get testimony")
		return
	}

	response.OK(c, "", testimony)
}

type decision func(ctx context.Context, id string, actor auth.Principal) (*moderation.Result, error)

// moderate runs a moderation decision and answers with the updated testimony.
// Side-effect failures never change the status code.
func (h *Handler) moderate(c *gin.Context, p auth.Principal, action models.ModerationAction, run decision, done string) {
	id := c.Param("id")
	res, err := run(c.Request.Context(), id, p)
	if err != nil {
		h.handleError(c, err, "Failed to moderate testimony")
		return
	}

	if failed := res.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Name
		}
		h.log.Warn().
			Str("testimony_id", id).
			Str("action", string(action)).
			Strs("effects", names).
			Msg("Moderation committed with failed side effects")
	}

	response.OK(c, done, res.Testimony)
}

// ValidateTestimony marks a pending testimony as validated.
// PUT /api/testimonies/:id/validate.
func (h *Handler) ValidateTestimony(c *gin.Context, p auth.Principal) {
	h.moderate(c, p, models.ActionValidate, h.testimonies.Validate, "Testimony validated successfully")
}

// RejectTestimony marks a pending testimony as rejected.
// PUT /api/testimonies/:id/reject.
func (h *Handler) RejectTestimony(c *gin.Context, p auth.Principal) {
	h.moderate(c, p, models.ActionReject, h.testimonies.Reject, "Testimony rejected successfully")
}

// DeleteTestimony soft-deletes a testimony.
// DELETE /api/testimonies/:id.
func (h *Handler) DeleteTestimony(c *gin.Context, p auth.Principal) {
	h.moderate(c, p, models.ActionDelete, h.testimonies.SoftDelete, "Testimony deleted successfully")
}

// RestoreTestimony brings back a soft-deleted testimony.
// POST /api/testimonies/:id/restore.
func (h *Handler) RestoreTestimony(c *gin.Context, p auth.Principal) {
	h.moderate(c, p, models.ActionRestore, h.testimonies.Restore, "Testimony restored successfully")
}
