// Package middleware contains the gin middleware shared by the three services.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/lorekeeper/internal/api/response"
	"github.com/aimd54/lorekeeper/internal/auth"
	"github.com/aimd54/lorekeeper/internal/cache"
	"github.com/aimd54/lorekeeper/internal/client/identity"
	"github.com/aimd54/lorekeeper/internal/metrics"
	"github.com/aimd54/lorekeeper/internal/models"
	"github.com/aimd54/lorekeeper/pkg/logger"
)

const (
	principalKey = "principal"
	tokenKey     = "bearerToken"
)

// TokenVerifier resolves a bearer token to a principal.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*auth.Principal, error)
}

// Authenticator verifies bearer tokens, optionally through a token cache.
type Authenticator struct {
	verifier TokenVerifier
	cache    *cache.TokenCache
	log      *logger.Logger
}

// NewAuthenticator creates an authenticator. tokens may be nil to disable caching.
func NewAuthenticator(verifier TokenVerifier, tokens *cache.TokenCache, log *logger.Logger) *Authenticator {
	return &Authenticator{verifier: verifier, cache: tokens, log: log}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// Require rejects requests without a valid bearer token and records the principal.
func (a *Authenticator) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Authentication token is missing or malformed")
			return
		}

		p, err := a.resolve(c.Request.Context(), token)
		if err != nil {
			status, msg := verifyErrorStatus(err)
			if status >= http.StatusInternalServerError {
				a.log.Error().Err(err).Msg("Failed to verify token")
			}
			response.Error(c, status, msg)
			return
		}

		c.Set(principalKey, *p)
		c.Set(tokenKey, token)
		c.Set("userID", p.ID)
		c.Next()
	}
}

func (a *Authenticator) resolve(ctx context.Context, token string) (*auth.Principal, error) {
	if a.cache != nil {
		p, err := a.cache.Get(ctx, token)
		switch {
		case err == nil:
			metrics.RecordTokenCacheLookup("hit")
			return p, nil
		case cache.IsMiss(err):
			metrics.RecordTokenCacheLookup("miss")
		default:
			metrics.RecordTokenCacheLookup("error")
			a.log.Warn().Err(err).Msg("Token cache lookup failed")
		}
	}

	p, err := a.verifier.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Put(ctx, token, p); err != nil {
			a.log.Warn().Err(err).Msg("Failed to cache verified token")
		}
	}
	return p, nil
}

func verifyErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrUserNotFound):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, identity.ErrTimeout):
		return http.StatusGatewayTimeout, "Identity service timed out"
	case errors.Is(err, identity.ErrUnavailable):
		return http.StatusServiceUnavailable, "Identity service unavailable"
	default:
		return http.StatusInternalServerError, "Failed to verify token"
	}
}

// RequireBearer only checks that a bearer token is present. Verification is
// left to the downstream service the token is forwarded to.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Authentication token is missing or malformed")
			return
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

// RequireRole rejects principals that hold none of roles. It must run after Require.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !p.HasRole(roles...) {
			response.Error(c, http.StatusForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// Authenticated adapts a handler that takes the verified principal as a parameter.
func Authenticated(fn func(c *gin.Context, p auth.Principal)) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := principalFrom(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		fn(c, p)
	}
}

// WithToken adapts a handler that takes the caller's raw bearer token as a parameter.
func WithToken(fn func(c *gin.Context, token string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(tokenKey)
		token, _ := v.(string)
		if !ok || token == "" {
			response.Error(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		fn(c, token)
	}
}

func principalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
