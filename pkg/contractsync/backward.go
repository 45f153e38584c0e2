// Copyright 2025 Hyperlane
//
// Backward cursor (C6), per spec section 4.6: walks a range downward from a
// relayer's configured start point toward nonce (or block) zero, backfilling
// history the forward cursor will never revisit. Per spec section 9's
// documented limitation, once it reaches zero it syncs permanently and never
// reactivates, even if a reorg were to insert earlier history.
package contractsync

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// BackwardCursor ingests history older than the point a ForwardCursor (or
// the operator's configured index-from setting) started at.
type BackwardCursor struct {
	State   SyncState
	Indexer indexer.SequenceAwareIndexer[types.Message]
	Store   *msgstore.Store
	Limiter *RateLimiter
	synced  bool
}

// NewBackwardCursor builds a BackwardCursor positioned just below the
// forward cursor's starting point.
func NewBackwardCursor(state SyncState, idx indexer.SequenceAwareIndexer[types.Message], store *msgstore.Store) *BackwardCursor {
	if state.MaxSequenceRange == 0 {
		state.MaxSequenceRange = DefaultMaxSequenceRange
	}
	return &BackwardCursor{State: state, Indexer: idx, Store: store, Limiter: NewRateLimiter()}
}

// Synced reports whether the cursor has reached nonce/block zero. Once
// true, Update is a no-op forever.
func (c *BackwardCursor) Synced() bool { return c.synced }

// Update fetches and ingests the next (older) range, then checks for
// termination at zero.
func (c *BackwardCursor) Update(ctx context.Context, onIngest func(types.Indexed[types.Message], types.LogMeta) error) (Outcome, time.Duration, error) {
	if c.synced {
		return OutcomeSynced, tipStallSleep, nil
	}

	r, reachesZero := c.nextRange()
	indexedLogs, metas, err := c.Indexer.FetchLogsInRange(ctx, r)
	if err != nil {
		return OutcomeNotReady, 0, fmt.Errorf("contractsync: backward fetch logs in range: %w", err)
	}

	for i, il := range indexedLogs {
		if onIngest != nil {
			if err := onIngest(il, metas[i]); err != nil {
				return OutcomeNotReady, 0, fmt.Errorf("contractsync: backward ingest callback: %w", err)
			}
		}
	}

	if r.Mode == indexer.ModeSequences {
		c.State.NextSequence = uint32(r.From)
	} else {
		c.State.NextBlock = r.From
	}

	if reachesZero {
		c.synced = true
		return OutcomeSynced, 0, nil
	}
	return OutcomeAdvanced, catchUpSleep, nil
}

// nextRange computes the next (lower) range to fetch, and whether its lower
// bound is zero (meaning this is the final range before synced).
func (c *BackwardCursor) nextRange() (indexer.Range, bool) {
	if c.State.Mode == indexer.ModeSequences {
		high := c.State.NextSequence
		var low uint32
		if high > uint32(c.State.MaxSequenceRange) {
			low = high - uint32(c.State.MaxSequenceRange)
		}
		return indexer.Sequences(uint64(low), uint64(high)), low == 0
	}
	high := c.State.NextBlock
	var low uint64
	if high > c.State.ChunkSize {
		low = high - c.State.ChunkSize
	}
	return indexer.Blocks(low, high), low == 0
}
