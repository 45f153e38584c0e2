// Copyright 2025 Hyperlane
//
// Message Store (C4) typed operations over a KV backend, per spec
// section 4.4.
package msgstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// Store implements the C4 contract.
type Store struct {
	kv KV
}

// New wraps a KV backend as a Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

type storedMessage struct {
	Message types.Message  `json:"message"`
	Meta    types.LogMeta  `json:"meta"`
}

func messageKey(nonce uint32) string    { return fmt.Sprintf("message:%d", nonce) }
func blockKey(nonce uint32) string      { return fmt.Sprintf("block:%d", nonce) }
func retryKey(id types.H256) string     { return fmt.Sprintf("retry:%s", id) }
func processedKey(nonce uint32) string  { return fmt.Sprintf("processed:%d", nonce) }
func watermarkKey(scope string) string  { return fmt.Sprintf("watermark:%s", scope) }

// StoreMessage persists a dispatched message and its log metadata, keyed by
// nonce. It returns true iff this nonce had not previously been stored.
func (s *Store) StoreMessage(ctx context.Context, msg types.Message, meta types.LogMeta) (bool, error) {
	key := messageKey(msg.Nonce)
	_, existed, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("msgstore: check existing message %d: %w", msg.Nonce, err)
	}

	raw, err := json.Marshal(storedMessage{Message: msg, Meta: meta})
	if err != nil {
		return false, fmt.Errorf("msgstore: encode message %d: %w", msg.Nonce, err)
	}
	if err := s.kv.Put(ctx, key, raw); err != nil {
		return false, fmt.Errorf("msgstore: store message %d: %w", msg.Nonce, err)
	}
	if err := s.kv.Put(ctx, blockKey(msg.Nonce), encodeUint32(uint32(meta.BlockNumber))); err != nil {
		return false, fmt.Errorf("msgstore: store dispatch block for %d: %w", msg.Nonce, err)
	}
	return !existed, nil
}

// RetrieveMessageByNonce returns the message stored at nonce, if any.
func (s *Store) RetrieveMessageByNonce(ctx context.Context, nonce uint32) (*types.Message, error) {
	raw, ok, err := s.kv.Get(ctx, messageKey(nonce))
	if err != nil {
		return nil, fmt.Errorf("msgstore: retrieve message %d: %w", nonce, err)
	}
	if !ok {
		return nil, nil
	}
	var stored storedMessage
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("msgstore: decode message %d: %w", nonce, err)
	}
	return &stored.Message, nil
}

// RetrieveDispatchedBlockNumber returns the block a nonce was dispatched in,
// if known.
func (s *Store) RetrieveDispatchedBlockNumber(ctx context.Context, nonce uint32) (*uint32, error) {
	raw, ok, err := s.kv.Get(ctx, blockKey(nonce))
	if err != nil {
		return nil, fmt.Errorf("msgstore: retrieve dispatch block %d: %w", nonce, err)
	}
	if !ok {
		return nil, nil
	}
	v := decodeUint32(raw)
	return &v, nil
}

// StorePendingMessageRetryCount persists the retry counter for a pending
// message, keyed by message ID.
func (s *Store) StorePendingMessageRetryCount(ctx context.Context, id types.H256, count uint32) error {
	if err := s.kv.Put(ctx, retryKey(id), encodeUint32(count)); err != nil {
		return fmt.Errorf("msgstore: store retry count for %s: %w", id, err)
	}
	return nil
}

// RetrievePendingMessageRetryCount returns the retry counter for a message,
// if one has been recorded.
func (s *Store) RetrievePendingMessageRetryCount(ctx context.Context, id types.H256) (*uint32, error) {
	raw, ok, err := s.kv.Get(ctx, retryKey(id))
	if err != nil {
		return nil, fmt.Errorf("msgstore: retrieve retry count for %s: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	v := decodeUint32(raw)
	return &v, nil
}

// MarkNonceAsProcessed records that a nonce has completed delivery.
func (s *Store) MarkNonceAsProcessed(ctx context.Context, nonce uint32) error {
	if err := s.kv.Put(ctx, processedKey(nonce), []byte{1}); err != nil {
		return fmt.Errorf("msgstore: mark nonce %d processed: %w", nonce, err)
	}
	return nil
}

// IsNonceProcessed reports whether a nonce has previously been marked
// processed.
func (s *Store) IsNonceProcessed(ctx context.Context, nonce uint32) (bool, error) {
	_, ok, err := s.kv.Get(ctx, processedKey(nonce))
	if err != nil {
		return false, fmt.Errorf("msgstore: check nonce %d processed: %w", nonce, err)
	}
	return ok, nil
}

// StoreHighWatermark persists the watermarked cursor's resume point for a
// named stream (e.g. a gas-payment indexer's domain).
func (s *Store) StoreHighWatermark(ctx context.Context, scope string, block uint32) error {
	if err := s.kv.Put(ctx, watermarkKey(scope), encodeUint32(block)); err != nil {
		return fmt.Errorf("msgstore: store watermark %s: %w", scope, err)
	}
	return nil
}

// RetrieveHighWatermark returns the stored resume point for scope, if any.
func (s *Store) RetrieveHighWatermark(ctx context.Context, scope string) (*uint32, error) {
	raw, ok, err := s.kv.Get(ctx, watermarkKey(scope))
	if err != nil {
		return nil, fmt.Errorf("msgstore: retrieve watermark %s: %w", scope, err)
	}
	if !ok {
		return nil, nil
	}
	v := decodeUint32(raw)
	return &v, nil
}

func encodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

func decodeUint32(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}
