// Package tokencache stores short-lived access tokens shared between worker and API processes.
package tokencache

import (
	"context"
	"sync"
	"time"
)

// Token is a bearer credential with an absolute expiry.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be presented at now. Callers decide how much
// headroom they need by shifting now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Cache is a keyed token store. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Token, error)
	Set(ctx context.Context, key string, token Token) error
	Delete(ctx context.Context, key string) error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemoryCache constructs an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tokens: make(map[string]Token)}
}

// Get implements Cache. Expired entries are still returned; validity is the caller's call.
func (c *MemoryCache) Get(_ context.Context, key string) (*Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, ok := c.tokens[key]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, token Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, key)
	return nil
}
