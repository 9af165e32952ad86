// Package blobstore holds raw and processed resume documents. Keys are
// assigned by the caller; per-key reads are strongly consistent on both
// backends.
package blobstore

import (
	"context"
)

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns fault.ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// RawKey and ProcessedKey derive the blob keys for a record identifier.
func RawKey(id string) string       { return "raw/" + id }
func ProcessedKey(id string) string { return "processed/" + id }
