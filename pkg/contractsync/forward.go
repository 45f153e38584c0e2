// Copyright 2025 Hyperlane
//
// Forward sequence-aware cursor (C6), per spec section 4.6: walks dispatch
// nonces upward, detecting gaps left by an indexer that dropped logs and
// rewinding rather than advancing past them.
package contractsync

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// ForwardCursor ingests Mailbox Dispatch events in strictly increasing
// nonce order.
type ForwardCursor struct {
	State   SyncState
	Indexer indexer.SequenceAwareIndexer[types.Message]
	Store   *msgstore.Store
	Limiter *RateLimiter
	ETA     *ETACalculator
}

// NewForwardCursor builds a ForwardCursor, defaulting MaxSequenceRange if
// unset.
func NewForwardCursor(state SyncState, idx indexer.SequenceAwareIndexer[types.Message], store *msgstore.Store) *ForwardCursor {
	if state.MaxSequenceRange == 0 {
		state.MaxSequenceRange = DefaultMaxSequenceRange
	}
	return &ForwardCursor{State: state, Indexer: idx, Store: store, Limiter: NewRateLimiter(), ETA: NewETACalculator()}
}

// Update runs one iteration of the cursor: fast-forward over already-stored
// nonces, then fetch and ingest the next range if the chain has moved.
func (c *ForwardCursor) Update(ctx context.Context, onIngest func(types.Indexed[types.Message], types.LogMeta) error) (Outcome, time.Duration, error) {
	if err := c.fastForward(ctx); err != nil {
		return OutcomeNotReady, 0, err
	}

	onChainCount, tip, err := c.Indexer.LatestSequenceCountAndTip(ctx)
	if err != nil {
		return OutcomeNotReady, 0, fmt.Errorf("contractsync: latest sequence count and tip: %w", err)
	}
	if onChainCount == nil || c.State.NextSequence == *onChainCount {
		c.State.NextBlock = tip
		return OutcomeNotReady, c.Limiter.NextSleep(c.State.NextBlock, c.State.ChunkSize, tip), nil
	}

	r := c.nextRange(tip, *onChainCount)
	indexedLogs, metas, err := c.Indexer.FetchLogsInRange(ctx, r)
	if err != nil {
		return OutcomeNotReady, 0, fmt.Errorf("contractsync: fetch logs in range: %w", err)
	}

	outcome, err := c.applyUpdate(ctx, r, indexedLogs, metas, onIngest)
	if err != nil {
		return OutcomeNotReady, 0, err
	}
	if outcome == OutcomeAdvanced {
		blocksProcessed := r.To - r.From + 1
		c.ETA.Record(blocksProcessed)
	}
	return outcome, c.Limiter.NextSleep(c.State.NextBlock, c.State.ChunkSize, tip), nil
}

func (c *ForwardCursor) fastForward(ctx context.Context) error {
	for {
		msg, err := c.Store.RetrieveMessageByNonce(ctx, c.State.NextSequence)
		if err != nil {
			return fmt.Errorf("contractsync: fast forward lookup: %w", err)
		}
		if msg == nil {
			return nil
		}
		block, err := c.Store.RetrieveDispatchedBlockNumber(ctx, c.State.NextSequence)
		if err != nil {
			return fmt.Errorf("contractsync: fast forward block lookup: %w", err)
		}
		if block != nil {
			c.State.NextBlock = uint64(*block)
		}
		c.State.NextSequence++
	}
}

func (c *ForwardCursor) nextRange(tip uint64, onChainCount uint32) indexer.Range {
	if c.State.Mode == indexer.ModeSequences {
		to := c.State.NextSequence + uint32(c.State.MaxSequenceRange)
		if to > onChainCount {
			to = onChainCount
		}
		return indexer.Sequences(uint64(c.State.NextSequence), uint64(to))
	}
	to := c.State.NextBlock + c.State.ChunkSize
	if to > tip {
		to = tip
	}
	return indexer.Blocks(c.State.NextBlock, to)
}

func (c *ForwardCursor) applyUpdate(
	ctx context.Context,
	r indexer.Range,
	indexedLogs []types.Indexed[types.Message],
	metas []types.LogMeta,
	onIngest func(types.Indexed[types.Message], types.LogMeta) error,
) (Outcome, error) {
	containsNext := false
	var highest uint32
	for i, il := range indexedLogs {
		if il.Sequence == c.State.NextSequence {
			containsNext = true
		}
		if il.Sequence >= highest {
			highest = il.Sequence
		}
		if onIngest != nil {
			if err := onIngest(il, metas[i]); err != nil {
				return OutcomeNotReady, fmt.Errorf("contractsync: ingest callback: %w", err)
			}
		}
	}

	if !containsNext {
		return c.rewind(ctx)
	}

	if r.Mode == indexer.ModeBlocks {
		c.State.NextBlock = r.To
	}
	c.State.NextSequence = highest + 1
	return OutcomeAdvanced, nil
}

// rewind implements spec section 4.6 step 4's gap handling: rewind
// next_block to the dispatch block of next_sequence-1, or start_block if
// unknown, and do not advance next_sequence.
func (c *ForwardCursor) rewind(ctx context.Context) (Outcome, error) {
	if c.State.NextSequence == 0 {
		c.State.NextBlock = c.State.StartBlock
		return OutcomeRewound, nil
	}
	block, err := c.Store.RetrieveDispatchedBlockNumber(ctx, c.State.NextSequence-1)
	if err != nil {
		return OutcomeNotReady, fmt.Errorf("contractsync: rewind lookup: %w", err)
	}
	if block == nil {
		c.State.NextBlock = c.State.StartBlock
	} else {
		c.State.NextBlock = uint64(*block)
	}
	return OutcomeRewound, nil
}
