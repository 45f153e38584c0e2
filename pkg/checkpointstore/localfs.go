// Copyright 2025 Hyperlane

package checkpointstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFS is a Backend that stores each blob as a file under a base
// directory. Intended for local development and tests; production
// deployments back the Store with GCS instead (see gcs.go).
type LocalFS struct {
	baseDir string
}

// NewLocalFS creates the base directory if needed and returns a Backend
// rooted there.
func NewLocalFS(baseDir string) (*LocalFS, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpointstore: create base dir: %w", err)
	}
	return &LocalFS{baseDir: baseDir}, nil
}

func (l *LocalFS) path(key string) string {
	return filepath.Join(l.baseDir, key)
}

// Get implements Backend.
func (l *LocalFS) Get(_ context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return raw, nil
}

// Put implements Backend.
func (l *LocalFS) Put(_ context.Context, key string, value []byte) error {
	return os.WriteFile(l.path(key), value, 0o644)
}

// Location implements Locator.
func (l *LocalFS) Location() string {
	return "file://" + l.baseDir
}
