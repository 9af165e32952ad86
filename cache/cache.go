// Package cache fronts the search path with a short-lived result cache.
// Entries are opaque bytes keyed by a digest of the normalized query.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get returns the cached bytes and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
