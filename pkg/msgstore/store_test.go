// Copyright 2025 Hyperlane

package msgstore

import (
	"context"
	"testing"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

func TestStoreMessageReturnsTrueOnlyWhenNew(t *testing.T) {
	store := New(NewMemoryKV())
	ctx := context.Background()
	msg := types.Message{Nonce: 42, Origin: 1, Destination: 2}
	meta := types.LogMeta{BlockNumber: 100}

	isNew, err := store.StoreMessage(ctx, msg, meta)
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if !isNew {
		t.Fatal("expected first store to report new")
	}

	isNew, err = store.StoreMessage(ctx, msg, meta)
	if err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if isNew {
		t.Fatal("expected second store of same nonce to report not-new")
	}
}

func TestRetrieveMessageByNonce(t *testing.T) {
	store := New(NewMemoryKV())
	ctx := context.Background()
	msg := types.Message{Nonce: 7, Origin: 1, Destination: 2, Body: []byte("hi")}
	if _, err := store.StoreMessage(ctx, msg, types.LogMeta{BlockNumber: 55}); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	got, err := store.RetrieveMessageByNonce(ctx, 7)
	if err != nil {
		t.Fatalf("RetrieveMessageByNonce: %v", err)
	}
	if got == nil || got.Nonce != 7 {
		t.Fatalf("got %+v", got)
	}

	block, err := store.RetrieveDispatchedBlockNumber(ctx, 7)
	if err != nil {
		t.Fatalf("RetrieveDispatchedBlockNumber: %v", err)
	}
	if block == nil || *block != 55 {
		t.Fatalf("block = %v, want 55", block)
	}

	missing, err := store.RetrieveMessageByNonce(ctx, 999)
	if err != nil {
		t.Fatalf("RetrieveMessageByNonce: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown nonce")
	}
}

func TestPendingRetryCountRoundTrip(t *testing.T) {
	store := New(NewMemoryKV())
	ctx := context.Background()
	id := types.BytesToH256([]byte{1, 2, 3})

	count, err := store.RetrievePendingMessageRetryCount(ctx, id)
	if err != nil {
		t.Fatalf("RetrievePendingMessageRetryCount: %v", err)
	}
	if count != nil {
		t.Fatal("expected nil before any retry recorded")
	}

	if err := store.StorePendingMessageRetryCount(ctx, id, 3); err != nil {
		t.Fatalf("StorePendingMessageRetryCount: %v", err)
	}
	count, err = store.RetrievePendingMessageRetryCount(ctx, id)
	if err != nil {
		t.Fatalf("RetrievePendingMessageRetryCount: %v", err)
	}
	if count == nil || *count != 3 {
		t.Fatalf("count = %v, want 3", count)
	}
}

func TestMarkNonceAsProcessed(t *testing.T) {
	store := New(NewMemoryKV())
	ctx := context.Background()

	processed, err := store.IsNonceProcessed(ctx, 1)
	if err != nil {
		t.Fatalf("IsNonceProcessed: %v", err)
	}
	if processed {
		t.Fatal("expected false before marking")
	}

	if err := store.MarkNonceAsProcessed(ctx, 1); err != nil {
		t.Fatalf("MarkNonceAsProcessed: %v", err)
	}
	processed, err = store.IsNonceProcessed(ctx, 1)
	if err != nil {
		t.Fatalf("IsNonceProcessed: %v", err)
	}
	if !processed {
		t.Fatal("expected true after marking")
	}
}

func TestHighWatermarkRoundTrip(t *testing.T) {
	store := New(NewMemoryKV())
	ctx := context.Background()

	watermark, err := store.RetrieveHighWatermark(ctx, "ethereum-igp")
	if err != nil {
		t.Fatalf("RetrieveHighWatermark: %v", err)
	}
	if watermark != nil {
		t.Fatal("expected nil before any watermark stored")
	}

	if err := store.StoreHighWatermark(ctx, "ethereum-igp", 12345); err != nil {
		t.Fatalf("StoreHighWatermark: %v", err)
	}
	watermark, err = store.RetrieveHighWatermark(ctx, "ethereum-igp")
	if err != nil {
		t.Fatalf("RetrieveHighWatermark: %v", err)
	}
	if watermark == nil || *watermark != 12345 {
		t.Fatalf("watermark = %v, want 12345", watermark)
	}
}
