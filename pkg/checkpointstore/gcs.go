// Copyright 2025 Hyperlane
//
// GCS-backed Backend. Grounded on the original Rust implementation's
// gcs_storage.rs (rust/hyperlane-base/src/types/gcs_storage.rs), which
// wraps the same "object not found vs transport error" distinction this
// package's Backend requires, and on the teacher's cloud-client wiring
// style (pkg/firestore/client.go: an enabled flag, a *log.Logger, and a
// project/bucket pair resolved from config).

package checkpointstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	googleapi "google.golang.org/api/googleapi"
)

// GCS is a Backend storing blobs as objects in a single GCS bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	logger *log.Logger
}

// NewGCS creates a GCS-backed Backend. client is expected to already be
// authenticated (e.g. via storage.NewClient(ctx) using ambient
// credentials); this package does not own credential loading.
func NewGCS(client *storage.Client, bucket, prefix string, logger *log.Logger) *GCS {
	if logger == nil {
		logger = log.New(log.Writer(), "[checkpointstore/gcs] ", log.LstdFlags)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (g *GCS) objectName(key string) string {
	if g.prefix == "" {
		return key
	}
	return g.prefix + "/" + key
}

// Get implements Backend.
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	obj := g.client.Bucket(g.bucket).Object(g.objectName(key))
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrBlobNotFound
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("checkpointstore/gcs: open reader for %s: %w", key, err)
	}
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("checkpointstore/gcs: read %s: %w", key, err)
	}
	return raw, nil
}

// Put implements Backend.
func (g *GCS) Put(ctx context.Context, key string, value []byte) error {
	obj := g.client.Bucket(g.bucket).Object(g.objectName(key))
	writer := obj.NewWriter(ctx)
	if _, err := writer.Write(value); err != nil {
		_ = writer.Close()
		return fmt.Errorf("checkpointstore/gcs: write %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("checkpointstore/gcs: finalize %s: %w", key, err)
	}
	return nil
}

// Location implements Locator.
func (g *GCS) Location() string {
	if g.prefix == "" {
		return fmt.Sprintf("gs://%s", g.bucket)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, g.prefix)
}

// listAllKeys is a debugging/admin helper, not part of the Backend
// contract, that enumerates every object under the store's prefix.
func (g *GCS) listAllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			g.logger.Printf("WARN list objects: %v", err)
			return keys, err
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
