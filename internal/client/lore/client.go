// Package lore is the mythology service's HTTP client for the lore service.
package lore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

// DefaultTimeout is applied when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// MaxPageSize is the largest page the lore service serves.
const MaxPageSize = 100

// Client errors.
var (
	ErrUnavailable  = errors.New("lore service unavailable")
	ErrTimeout      = errors.New("lore service timeout")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// RemoteError is any other non-2xx answer from the lore service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("lore service returned %d: %s", e.Status, e.Message)
}

// Client reads creatures and testimonies from the lore service on behalf of a caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a lore client.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// GetAllCreatures walks every page of the creature list at the maximum page size.
func (c *Client) GetAllCreatures(ctx context.Context, token string) ([]models.Creature, error) {
	creatures := []models.Creature{}
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", strconv.Itoa(MaxPageSize))

		var batch []models.Creature
		pagination, err := c.get(ctx, "/api/creatures?"+q.Encode(), token, "list_creatures", &batch)
		if err != nil {
			return nil, err
		}
		creatures = append(creatures, batch...)

		if pagination == nil || page >= pagination.TotalPages || len(batch) == 0 {
			return creatures, nil
		}
	}
}

// GetTestimoniesByCreature returns the live testimonies of a creature.
// A creature that no longer exists yields an empty list.
func (c *Client) GetTestimoniesByCreature(ctx context.Context, token, creatureID string) ([]models.Testimony, error) {
	var testimonies []models.Testimony
	path := fmt.Sprintf("/api/creatures/%s/testimonies", url.PathEscape(creatureID))
	_, err := c.get(ctx, path, token, "list_testimonies", &testimonies)
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
		return []models.Testimony{}, nil
	}
	if err != nil {
		return nil, err
	}
	if testimonies == nil {
		testimonies = []models.Testimony{}
	}
	return testimonies, nil
}

// get decodes the data of a successful answer into out and returns the
// pagination block when the answer carries one.
func (c *Client) get(ctx context.Context, path, token, operation string, out interface{}) (*response.Pagination, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := classifyTransportError(err)
		result := "unavailable"
		if errors.Is(classified, ErrTimeout) {
			result = "timeout"
		}
		metrics.RecordLoreClientRequest(operation, result)
		c.log.Warn().Err(err).Str("operation", operation).Msg("Lore service request failed")
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.RecordLoreClientRequest(operation, "error")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env response.RawEnvelope
	decodeErr := json.Unmarshal(body, &env)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.RecordLoreClientRequest(operation, "unauthorized")
		return nil, ErrInvalidToken
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		metrics.RecordLoreClientRequest(operation, "error")
		msg := env.Message
		if msg == "" {
			msg = "lore service request failed"
		}
		return nil, &RemoteError{Status: resp.StatusCode, Message: msg}
	case decodeErr != nil:
		metrics.RecordLoreClientRequest(operation, "error")
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			metrics.RecordLoreClientRequest(operation, "error")
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	metrics.RecordLoreClientRequest(operation, "success")
	return env.Pagination, nil
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
