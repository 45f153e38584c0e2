// Copyright 2025 Hyperlane

package contractsync

import (
	"context"
	"testing"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

type fakeSeqIndexer struct {
	count  *uint32
	tip    uint64
	logs   []types.Indexed[types.Message]
	metas  []types.LogMeta
	ranges []indexer.Range
}

func (f *fakeSeqIndexer) FetchLogsInRange(ctx context.Context, r indexer.Range) ([]types.Indexed[types.Message], []types.LogMeta, error) {
	f.ranges = append(f.ranges, r)
	return f.logs, f.metas, nil
}

func (f *fakeSeqIndexer) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) { return f.tip, nil }

func (f *fakeSeqIndexer) LatestSequenceCountAndTip(ctx context.Context) (*uint32, uint64, error) {
	return f.count, f.tip, nil
}

func u32(v uint32) *uint32 { return &v }

func TestForwardCursorNotReadyWhenCaughtUp(t *testing.T) {
	idx := &fakeSeqIndexer{count: u32(3), tip: 100}
	store := msgstore.New(msgstore.NewMemoryKV())
	c := NewForwardCursor(SyncState{NextSequence: 3, Mode: indexer.ModeSequences}, idx, store)

	outcome, _, err := c.Update(context.Background(), nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if outcome != OutcomeNotReady {
		t.Fatalf("outcome = %v, want NotReady", outcome)
	}
}

func TestForwardCursorAdvancesOnContiguousLogs(t *testing.T) {
	idx := &fakeSeqIndexer{
		count: u32(3),
		tip:   100,
		logs: []types.Indexed[types.Message]{
			{Sequence: 0, Value: types.Message{Nonce: 0}},
			{Sequence: 1, Value: types.Message{Nonce: 1}},
			{Sequence: 2, Value: types.Message{Nonce: 2}},
		},
		metas: []types.LogMeta{{}, {}, {}},
	}
	store := msgstore.New(msgstore.NewMemoryKV())
	c := NewForwardCursor(SyncState{NextSequence: 0, Mode: indexer.ModeSequences}, idx, store)

	var ingested []uint32
	outcome, _, err := c.Update(context.Background(), func(il types.Indexed[types.Message], _ types.LogMeta) error {
		ingested = append(ingested, il.Sequence)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if outcome != OutcomeAdvanced {
		t.Fatalf("outcome = %v, want Advanced", outcome)
	}
	if c.State.NextSequence != 3 {
		t.Fatalf("NextSequence = %d, want 3", c.State.NextSequence)
	}
	if len(ingested) != 3 {
		t.Fatalf("ingested = %v", ingested)
	}
}

func TestForwardCursorRewindsOnGap(t *testing.T) {
	idx := &fakeSeqIndexer{
		count: u32(5),
		tip:   100,
		logs: []types.Indexed[types.Message]{
			{Sequence: 2, Value: types.Message{Nonce: 2}},
		},
		metas: []types.LogMeta{{}},
	}
	store := msgstore.New(msgstore.NewMemoryKV())
	c := NewForwardCursor(SyncState{NextSequence: 1, StartBlock: 7, Mode: indexer.ModeSequences}, idx, store)

	outcome, _, err := c.Update(context.Background(), nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if outcome != OutcomeRewound {
		t.Fatalf("outcome = %v, want Rewound", outcome)
	}
	if c.State.NextSequence != 1 {
		t.Fatalf("NextSequence should be unchanged on rewind, got %d", c.State.NextSequence)
	}
	if c.State.NextBlock != 7 {
		t.Fatalf("NextBlock = %d, want rewound to start block 7", c.State.NextBlock)
	}
}

func TestForwardCursorFastForwardsOverStoredNonces(t *testing.T) {
	store := msgstore.New(msgstore.NewMemoryKV())
	ctx := context.Background()
	if _, err := store.StoreMessage(ctx, types.Message{Nonce: 0}, types.LogMeta{BlockNumber: 10}); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}
	if _, err := store.StoreMessage(ctx, types.Message{Nonce: 1}, types.LogMeta{BlockNumber: 15}); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	idx := &fakeSeqIndexer{count: u32(2), tip: 100}
	c := NewForwardCursor(SyncState{NextSequence: 0, Mode: indexer.ModeSequences}, idx, store)

	outcome, _, err := c.Update(ctx, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if outcome != OutcomeNotReady {
		t.Fatalf("outcome = %v, want NotReady after fast-forward catches up", outcome)
	}
	if c.State.NextSequence != 2 {
		t.Fatalf("NextSequence = %d, want 2 after fast-forward", c.State.NextSequence)
	}
	if c.State.NextBlock != 100 {
		t.Fatalf("NextBlock = %d, want 100 (the tip)", c.State.NextBlock)
	}
}
