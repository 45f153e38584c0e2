// Copyright 2025 Hyperlane
//
// Checkpoint Store (C3): persistence of signed checkpoints behind a
// pluggable blob backend, per spec section 4.3 and the blob key schema in
// section 6.4. Grounded on the teacher's storage-client shape (pkg/firestore
// client.go's Config/enabled/logger pattern) adapted to a generic blob
// Backend rather than a single cloud vendor's SDK, since spec section 1
// explicitly treats "checkpoint blob storage backends (S3/GCS/local
// filesystem)" as external collaborators behind this contract.
package checkpointstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// ErrBlobNotFound is returned by a Backend when a key does not exist. It is
// distinct from any transport/IO error a backend may also return, matching
// the "not found vs transport error" requirement of spec 4.3.
var ErrBlobNotFound = errors.New("checkpointstore: blob not found")

// Backend is the minimal capability a checkpoint blob store must provide.
// Implementations: local filesystem and GCS (see localfs.go, gcs.go); there
// is no S3 backend.
type Backend interface {
	// Get returns the bytes stored at key, or ErrBlobNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes bytes at key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error
}

// Store implements the C3 contract over a Backend, using the blob key
// schema from spec section 6.4:
//
//	index.json                      -> latest index pointer
//	checkpoint_{index}_with_id.json -> one checkpoint
//	announcement.json               -> validator's signed announcement
type Store struct {
	backend Backend
}

// New wraps a Backend as a Store.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

const (
	latestIndexKey    = "index.json"
	announcementKey   = "announcement.json"
	checkpointKeyFmt  = "checkpoint_%d_with_id.json"
)

func checkpointKey(index uint32) string {
	return fmt.Sprintf(checkpointKeyFmt, index)
}

// checkpointBlob is the canonical JSON envelope for a stored checkpoint,
// per spec section 6.4.
type checkpointBlob struct {
	Value               types.CheckpointWithMessageId `json:"value"`
	Signature           types.Signature                `json:"signature"`
	SerializedSignature string                         `json:"serialized_signature"`
}

// LatestIndex returns the highest index written, or nil if none has been
// written yet. A backend reporting "not found" for the index pointer MUST
// surface as (nil, nil), never as an error (spec 4.3).
func (s *Store) LatestIndex(ctx context.Context) (*uint32, error) {
	raw, err := s.backend.Get(ctx, latestIndexKey)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpointstore: latest index: %w", err)
	}
	var index uint32
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("checkpointstore: decode latest index: %w", err)
	}
	return &index, nil
}

// WriteCheckpoint persists a signed checkpoint and advances the latest-index
// pointer if this index is higher than what is currently stored. Writing is
// idempotent: overwriting an existing index is allowed (spec 4.3).
func (s *Store) WriteCheckpoint(ctx context.Context, signed types.SignedCheckpointWithMessageId) error {
	blob := checkpointBlob{
		Value:               signed.Value,
		Signature:           signed.Signature,
		SerializedSignature: fmt.Sprintf("0x%x", signed.Signature[:]),
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("checkpointstore: encode checkpoint: %w", err)
	}
	if err := s.backend.Put(ctx, checkpointKey(signed.Value.Index), raw); err != nil {
		return fmt.Errorf("checkpointstore: write checkpoint %d: %w", signed.Value.Index, err)
	}

	latest, err := s.LatestIndex(ctx)
	if err != nil {
		return err
	}
	if latest == nil || signed.Value.Index > *latest {
		indexRaw, err := json.Marshal(signed.Value.Index)
		if err != nil {
			return fmt.Errorf("checkpointstore: encode latest index: %w", err)
		}
		if err := s.backend.Put(ctx, latestIndexKey, indexRaw); err != nil {
			return fmt.Errorf("checkpointstore: advance latest index: %w", err)
		}
	}
	return nil
}

// FetchCheckpoint returns the checkpoint stored at index, or (nil, nil) if
// absent.
func (s *Store) FetchCheckpoint(ctx context.Context, index uint32) (*types.SignedCheckpointWithMessageId, error) {
	raw, err := s.backend.Get(ctx, checkpointKey(index))
	if errors.Is(err, ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpointstore: fetch checkpoint %d: %w", index, err)
	}
	var blob checkpointBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("checkpointstore: decode checkpoint %d: %w", index, err)
	}
	return &types.SignedCheckpointWithMessageId{Value: blob.Value, Signature: blob.Signature}, nil
}

// WriteAnnouncement persists the validator's signed storage-location
// announcement.
func (s *Store) WriteAnnouncement(ctx context.Context, ann types.SignedAnnouncement) error {
	raw, err := json.Marshal(ann)
	if err != nil {
		return fmt.Errorf("checkpointstore: encode announcement: %w", err)
	}
	if err := s.backend.Put(ctx, announcementKey, raw); err != nil {
		return fmt.Errorf("checkpointstore: write announcement: %w", err)
	}
	return nil
}

// AnnouncementLocation returns the string the validator publishes on-chain
// to point at this store (e.g. a local path or bucket URL). Backends
// implement this by also satisfying Locator; backends that cannot (e.g. a
// pure in-memory test double) return an empty string.
func (s *Store) AnnouncementLocation() string {
	if loc, ok := s.backend.(Locator); ok {
		return loc.Location()
	}
	return ""
}

// Locator is implemented by backends that have a stable external address
// (a bucket URI, a directory path) suitable for validator announcements.
type Locator interface {
	Location() string
}
