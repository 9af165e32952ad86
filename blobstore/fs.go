package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/talentsift/talentsift/fault"
)

// FSStore keeps blobs under a local directory. Used in development and
// tests; production runs the S3 backend.
type FSStore struct {
	root   string
	logger *slog.Logger
}

func NewFSStore(root string, logger *slog.Logger) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FSStore{root: root, logger: logger}, nil
}

func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fault.Invalid("blob key %q escapes store root", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fault.Transient(err, "blob put")
	}
	// Write-then-rename so a crashed writer never leaves a partial blob.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fault.Transient(err, "blob put")
	}
	if err := os.Rename(tmp, p); err != nil {
		return fault.Transient(err, "blob put")
	}
	s.logger.Debug("blob stored", slog.String("key", key), slog.Int("size", len(data)))
	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %q: %w", key, fault.ErrNotFound)
	}
	if err != nil {
		return nil, fault.Transient(err, "blob get")
	}
	return data, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fault.Transient(err, "blob delete")
	}
	return nil
}
