// Package accounts provides the identity service's REST handlers: registration,
// login, the caller's profile, user administration and the service-to-service
// reputation endpoint.
package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/auth"
	identityclient "github.com/aimd54/lorekeeper/internal/client/identity"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/internal/service/identity"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// IdentityService is the account logic the handlers drive.
type IdentityService interface {
	Register(ctx context.Context, in identity.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	ListUsers(ctx context.Context, role models.Role) ([]models.User, error)
	UpdateRole(ctx context.Context, id uint, role models.Role, requesterID uint) (*models.User, error)
	DeleteUser(ctx context.Context, id, requesterID uint) error
	ApplyReputationChange(ctx context.Context, id uint, delta int) (*models.User, error)
}

// Handler handles identity API requests.
type Handler struct {
	identity      IdentityService
	internalToken string
	log           *logger.Logger
}

// NewHandler creates a new accounts handler.
func NewHandler(identitySvc *identity.Service, internalToken string, log *logger.Logger) *Handler {
	return &Handler{identity: identitySvc, internalToken: internalToken, log: log}
}

// NewHandlerWithInterfaces creates a new accounts handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(identitySvc IdentityService, internalToken string, log *logger.Logger) *Handler {
	return &Handler{identity: identitySvc, internalToken: internalToken, log: log}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type roleRequest struct {
	Role models.Role `json:"role"`
}

type reputationRequest struct {
	ReputationChange *int `json:"reputationChange"`
}

// Register creates a USER account.
// POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req identity.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.identity.Register(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err, "Failed to register user")
		return
	}

	response.Created(c, "User registered successfully", user)
}

// Login exchanges credentials for a bearer token.
// POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.handleError(c, err, "Failed to log in")
		return
	}

	response.OK(c, "Login successful", session)
}

// Me returns the caller's current user record.
// GET /auth/me.
func (h *Handler) Me(c *gin.Context, p auth.Principal) {
	id, err := strconv.ParseUint(p.ID, 10, 32)
	if err != nil {
		h.errorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	user, err := h.identity.GetUser(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			h.errorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		h.handleError(c, err, "Failed to load profile")
		return
	}

	response.OK(c, "", user)
}

// ListUsers returns all users, optionally filtered by role.
// GET /admin/users?role=EXPERT.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.identity.ListUsers(c.Request.Context(), models.Role(c.Query("role")))
	if err != nil {
		h.handleError(c, err, "Failed to list users")
		return
	}

	response.OK(c, "", users)
}

// GetUser returns one user.
// GET /users/:id.
func (h *Handler) GetUser(c *gin.Context) {
	id, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.identity.GetUser(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err, "Failed to get user")
		return
	}

	response.OK(c, "", user)
}

// UpdateRole changes a user's role.
// PATCH /users/:id/role.
func (h *Handler) UpdateRole(c *gin.Context, p auth.Principal) {
	id, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	requester, err := requesterID(p)
	if err != nil {
		h.errorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.identity.UpdateRole(c.Request.Context(), id, req.Role, requester)
	if err != nil {
		h.handleError(c, err, "Failed to update role")
		return
	}

	response.OK(c, "Role updated successfully", user)
}

// DeleteUser removes a user.
// DELETE /users/:id.
func (h *Handler) DeleteUser(c *gin.Context, p auth.Principal) {
	id, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	requester, err := requesterID(p)
	if err != nil {
		h.errorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	if err := h.identity.DeleteUser(c.Request.Context(), id, requester); err != nil {
		h.handleError(c, err, "Failed to delete user")
		return
	}

	response.OK(c, "User deleted successfully", nil)
}

// ApplyReputation adds a bounded delta to a user's reputation. It is called by
// the lore service and guarded by the shared internal token when one is configured.
// PATCH /users/:id/reputation.
func (h *Handler) ApplyReputation(c *gin.Context) {
	if h.internalToken != "" {
		got := c.GetHeader(identityclient.InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.internalToken)) != 1 {
			h.errorResponse(c, http.StatusUnauthorized, "Invalid internal token")
			return
		}
	}

	id, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req reputationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReputationChange == nil {
		h.errorResponse(c, http.StatusBadRequest, "reputationChange is required")
		return
	}

	user, err := h.identity.ApplyReputationChange(c.Request.Context(), id, *req.ReputationChange)
	if err != nil {
		h.handleError(c, err, "Failed to update reputation")
		return
	}

	response.OK(c, "Reputation updated successfully", user)
}

// handleError maps service errors to HTTP statuses.
func (h *Handler) handleError(c *gin.Context, err error, fallback string) {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		h.errorResponse(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, identity.ErrInvalidCredentials):
		h.errorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrSelfRoleChange), errors.Is(err, identity.ErrSelfDelete):
		h.errorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrUserNotFound):
		h.errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrEmailTaken), errors.Is(err, identity.ErrUsernameTaken):
		h.errorResponse(c, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		h.errorResponse(c, http.StatusInternalServerError, fallback)
	}
}

// parseUserID extracts and validates the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %s", idStr)
	}
	return uint(id), nil
}

func requesterID(p auth.Principal) (uint, error) {
	id, err := strconv.ParseUint(p.ID, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	response.Error(c, statusCode, message)
}
