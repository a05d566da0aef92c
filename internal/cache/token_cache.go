package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/lorekeeper/internal/auth"
)

// Store is the subset of Cache used by TokenCache.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// TokenCache remembers principals for recently verified bearer tokens.
// Keys are hashes so raw tokens never reach Redis.
type TokenCache struct {
	store Store
	ttl   time.Duration
}

// NewTokenCache creates a token cache with the given entry lifetime.
func NewTokenCache(store Store, ttl time.Duration) *TokenCache {
	return &TokenCache{store: store, ttl: ttl}
}

// TokenKey returns the cache key for token.
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "token:" + hex.EncodeToString(sum[:])
}

// Get returns the cached principal for token, or ErrMiss.
func (c *TokenCache) Get(ctx context.Context, token string) (*auth.Principal, error) {
	raw, err := c.store.Get(ctx, TokenKey(token))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrMiss
	}

	var p auth.Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// Drop undecodable entries so the next lookup refetches.
		_ = c.store.Del(ctx, TokenKey(token))
		return nil, ErrMiss
	}
	return &p, nil
}

// Put caches the principal for token.
func (c *TokenCache) Put(ctx context.Context, token string, p *auth.Principal) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal principal: %w", err)
	}
	return c.store.Set(ctx, TokenKey(token), string(payload), c.ttl)
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
