// Package identity is the lore service's HTTP client for the identity service.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// MaxReputationDelta bounds the magnitude of a single reputation change.
const MaxReputationDelta = 100

// InternalTokenHeader carries the shared service secret on reputation calls.
const InternalTokenHeader = "X-Internal-Token"

// DefaultTimeout is applied when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Client errors.
var (
	ErrUnavailable     = errors.New("identity service unavailable")
	ErrTimeout         = errors.New("identity service timeout")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrDeltaOutOfRange = fmt.Errorf("reputation change must be between -%d and %d", MaxReputationDelta, MaxReputationDelta)
)

// RemoteError is any other non-2xx answer from the identity service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("identity service returned %d: %s", e.Status, e.Message)
}

// Client calls the identity service.
type Client struct {
	baseURL       string
	internalToken string
	httpClient    *http.Client
	log           *logger.Logger
}

// NewClient creates an identity client with a fixed per-request timeout.
func NewClient(baseURL string, timeout time.Duration, internalToken string, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		internalToken: internalToken,
		httpClient:    &http.Client{Timeout: timeout},
		log:           log,
	}
}

type userPayload struct {
	ID         uint        `json:"id"`
	Email      string      `json:"email"`
	Username   string      `json:"username"`
	Role       models.Role `json:"role"`
	Reputation int         `json:"reputation"`
}

// VerifyToken asks the identity service who owns token.
func (c *Client) VerifyToken(ctx context.Context, token string) (*auth.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var user userPayload
	if err := c.do(req, "verify_token", &user); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// A token whose user was deleted is no longer valid.
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return &auth.Principal{
		ID:         strconv.FormatUint(uint64(user.ID), 10),
		Email:      user.Email,
		Username:   user.Username,
		Role:       user.Role,
		Reputation: user.Reputation,
	}, nil
}

// ApplyReputationDelta adds delta to the user's reputation.
func (c *Client) ApplyReputationDelta(ctx context.Context, userID string, delta int) error {
	if delta < -MaxReputationDelta || delta > MaxReputationDelta {
		return ErrDeltaOutOfRange
	}

	payload, err := json.Marshal(map[string]int{"reputationChange": delta})
	if err != nil {
		return fmt.Errorf("failed to marshal reputation change: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s/reputation", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.internalToken != "" {
		req.Header.Set(InternalTokenHeader, c.internalToken)
	}

	var user userPayload
	if err := c.do(req, "apply_reputation", &user); err != nil {
		return err
	}

	c.log.Debug().
		Str("user_id", userID).
		Int("delta", delta).
		Int("reputation", user.Reputation).
		Str("role", string(user.Role)).
		Msg("Applied reputation change")

	return nil
}

// Health reports whether the identity service answers its health check.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) do(req *http.Request, operation string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := classifyTransportError(err)
		metrics.RecordIdentityClientRequest(operation, resultLabel(classified))
		return classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.RecordIdentityClientRequest(operation, "error")
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env response.RawEnvelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := classifyStatus(resp.StatusCode, env.Message)
		metrics.RecordIdentityClientRequest(operation, resultLabel(statusErr))
		return statusErr
	}

	if decodeErr != nil {
		metrics.RecordIdentityClientRequest(operation, "error")
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			metrics.RecordIdentityClientRequest(operation, "error")
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	metrics.RecordIdentityClientRequest(operation, "success")
	return nil
}

func classifyStatus(status int, message string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidToken
	case http.StatusNotFound:
		return ErrUserNotFound
	}
	if message == "" {
		message = "identity service request failed"
	}
	return &RemoteError{Status: status, Message: message}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidToken):
		return "unauthorized"
	case errors.Is(err, ErrUserNotFound):
		return "not_found"
	}
	return "error"
}
