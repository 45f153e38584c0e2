// Copyright 2025 Hyperlane
//
// Indexer Adapter (C5): per-(chain, event-type) log fetching contract, per
// spec section 4.5. Grounded on the teacher's generics-based
// Indexed[T]/pkg/types log wrapper (types/logmeta.go) and the chain-client
// polling shape used across the pack for "fetch logs in a range" adapters.
package indexer

import (
	"context"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// Mode selects how a chain natively indexes: by block range or by a
// monotonically increasing sequence number (e.g. a mailbox dispatch count).
type Mode int

const (
	ModeBlocks Mode = iota
	ModeSequences
)

// Range names a span to fetch, interpreted according to Mode.
type Range struct {
	Mode Mode
	From uint64
	To   uint64
}

// Blocks builds a block-mode Range.
func Blocks(from, to uint64) Range { return Range{Mode: ModeBlocks, From: from, To: to} }

// Sequences builds a sequence-mode Range.
func Sequences(from, to uint64) Range { return Range{Mode: ModeSequences, From: from, To: to} }

// Indexer is the minimal adapter every (chain, event-type) pair exposes.
// Fetch makes no completeness guarantee: a provider may drop logs, which is
// why pkg/contractsync re-verifies nonce contiguity rather than trusting
// the indexer blindly.
type Indexer[T any] interface {
	FetchLogsInRange(ctx context.Context, r Range) ([]types.Indexed[T], []types.LogMeta, error)
	GetFinalizedBlockNumber(ctx context.Context) (uint64, error)
}

// SequenceAwareIndexer additionally exposes the on-chain count of a native
// sequence (e.g. mailbox dispatch count) alongside the current tip, so a
// forward cursor can detect how far behind it is without a separate call.
type SequenceAwareIndexer[T any] interface {
	Indexer[T]
	LatestSequenceCountAndTip(ctx context.Context) (*uint32, uint64, error)
}
