package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when the key is absent or its TTL has passed
var ErrMiss = errors.New("cache miss")

// Cache is a key/value store with TTL and pattern-based bulk deletion.
// Backends: process-local map (single instance, tests) and Redis
// (multi-instance deployments that need a shared bound on staleness).
type Cache interface {
	// Get returns the stored value or ErrMiss
	Get(ctx context.Context, key string) (string, error)

	// Set stores value for ttl. A non-positive ttl keeps the entry
	// until deleted.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes the key, absent key is not an error
	Delete(ctx context.Context, key string) error

	// DeleteByPattern removes all keys matching a glob-style pattern
	// (e.g. "permissions:*") and returns how many were removed
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}
