// Copyright 2025 Hyperlane
//
// Watermarked cursor (C6), per spec section 4.6: used for event streams
// with no native sequence number (e.g. interchain gas payments), where
// progress is tracked purely by block height and persisted as
// high_watermark = max(start_block, next_block - chunk_size) so a restart
// re-scans the last chunk rather than risking a missed log at the boundary.
package contractsync

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// WatermarkedCursor ingests a non-sequence event stream in block order,
// persisting its resume point under scope in the message store.
type WatermarkedCursor[T any] struct {
	Scope   string
	State   SyncState
	Indexer indexer.Indexer[T]
	Store   *msgstore.Store
	Limiter *RateLimiter
}

// NewWatermarkedCursor builds a WatermarkedCursor, resuming from a
// previously persisted watermark if one exists.
func NewWatermarkedCursor[T any](ctx context.Context, scope string, state SyncState, idx indexer.Indexer[T], store *msgstore.Store) (*WatermarkedCursor[T], error) {
	wm, err := store.RetrieveHighWatermark(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("contractsync: retrieve watermark %s: %w", scope, err)
	}
	if wm != nil {
		state.NextBlock = uint64(*wm)
	}
	return &WatermarkedCursor[T]{Scope: scope, State: state, Indexer: idx, Store: store, Limiter: NewRateLimiter()}, nil
}

// Update fetches and ingests the next block range, then persists the new
// watermark.
func (c *WatermarkedCursor[T]) Update(ctx context.Context, onIngest func(types.Indexed[T], types.LogMeta) error) (Outcome, time.Duration, error) {
	tip, err := c.Indexer.GetFinalizedBlockNumber(ctx)
	if err != nil {
		return OutcomeNotReady, 0, fmt.Errorf("contractsync: watermark finalized block number: %w", err)
	}
	if c.State.NextBlock >= tip {
		return OutcomeNotReady, c.Limiter.NextSleep(c.State.NextBlock, c.State.ChunkSize, tip), nil
	}

	to := c.State.NextBlock + c.State.ChunkSize
	if to > tip {
		to = tip
	}
	r := indexer.Blocks(c.State.NextBlock, to)

	indexedLogs, metas, err := c.Indexer.FetchLogsInRange(ctx, r)
	if err != nil {
		return OutcomeNotReady, 0, fmt.Errorf("contractsync: watermark fetch logs in range: %w", err)
	}
	for i, il := range indexedLogs {
		if onIngest != nil {
			if err := onIngest(il, metas[i]); err != nil {
				return OutcomeNotReady, 0, fmt.Errorf("contractsync: watermark ingest callback: %w", err)
			}
		}
	}

	c.State.NextBlock = to
	watermark := c.State.StartBlock
	if c.State.NextBlock > c.State.ChunkSize && c.State.NextBlock-c.State.ChunkSize > watermark {
		watermark = c.State.NextBlock - c.State.ChunkSize
	}
	if err := c.Store.StoreHighWatermark(ctx, c.Scope, uint32(watermark)); err != nil {
		return OutcomeNotReady, 0, fmt.Errorf("contractsync: store watermark %s: %w", c.Scope, err)
	}

	return OutcomeAdvanced, c.Limiter.NextSleep(c.State.NextBlock, c.State.ChunkSize, tip), nil
}
