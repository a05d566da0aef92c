package lore

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/repository"
)

const (
	dateLayout       = "2006-01-02"
	maxModerationLog = 1000
)

// ListModerationLogs returns audit entries matching the query filters, newest first.
// GET /api/moderation-logs?userId=5&action=VALIDATE&targetId=...&startDate=2024-01-01&endDate=2024-01-31.
func (h *Handler) ListModerationLogs(c *gin.Context) {
	filter, err := parseLogFilter(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err, "Failed to list moderation logs")
		return
	}

	response.OK(c, "", entries)
}

// ListModerationLogsByUser returns the actions taken by one moderator.
// GET /api/moderation-logs/user/:userId.
func (h *Handler) ListModerationLogsByUser(c *gin.Context) {
	entries, err := h.audit.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.handleError(c, err, "Failed to list moderation logs")
		return
	}

	response.OK(c, "", entries)
}

// ListModerationLogsByTarget returns the moderation history of one testimony.
// GET /api/moderation-logs/target/:targetId.
func (h *Handler) ListModerationLogsByTarget(c *gin.Context) {
	entries, err := h.audit.ListByTarget(c.Request.Context(), c.Param("targetId"))
	if err != nil {
		h.handleError(c, err, "Failed to list moderation logs")
		return
	}

	response.OK(c, "", entries)
}

// ModerationLogStats returns entry counts per action.
// GET /api/moderation-logs/stats.
func (h *Handler) ModerationLogStats(c *gin.Context) {
	counts, err := h.audit.Stats(c.Request.Context())
	if err != nil {
		h.handleError(c, err, "Failed to compute moderation log stats")
		return
	}

	var total int64
	for _, ac := range counts {
		total += ac.Count
	}

	response.OK(c, "", gin.H{
		"total":    total,
		"byAction": counts,
	})
}

func parseLogFilter(c *gin.Context) (repository.ModerationLogFilter, error) {
	filter := repository.ModerationLogFilter{
		UserID:     c.Query("userId"),
		Action:     models.ModerationAction(c.Query("action")),
		TargetID:   c.Query("targetId"),
		TargetType: c.Query("targetType"),
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return filter, fmt.Errorf("invalid action: %s (valid: VALIDATE, REJECT, DELETE, RESTORE)", filter.Action)
	}

	if raw := c.Query("startDate"); raw != "" {
		start, _, err := parseTime(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid startDate: %s", raw)
		}
		filter.Start = &start
	}
	if raw := c.Query("endDate"); raw != "" {
		end, dateOnly, err := parseTime(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid endDate: %s", raw)
		}
		if dateOnly {
			// A bare date includes the whole day.
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		filter.End = &end
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return filter, fmt.Errorf("endDate must not be before startDate")
	}

	limit, err := queryInt(c, "limit")
	if err != nil || limit < 0 {
		return filter, fmt.Errorf("invalid limit parameter: %s", c.Query("limit"))
	}
	if limit == 0 || limit > maxModerationLog {
		limit = maxModerationLog
	}
	filter.Limit = limit

	return filter, nil
}

// parseTime accepts RFC 3339 timestamps or bare dates.
func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
