// Copyright 2025 Hyperlane

package contractsync

import (
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
)

// DefaultMaxSequenceRange is the default upper bound on a sequence-mode
// range's width, within spec section 4.6's 20-100 band.
const DefaultMaxSequenceRange = 50

// SyncState is the position shared by all three cursor variants, per spec
// section 4.6.
type SyncState struct {
	ChunkSize        uint64
	StartBlock       uint64
	NextBlock        uint64
	NextSequence     uint32
	Mode             indexer.Mode
	MaxSequenceRange uint64
}

// Outcome reports what an Update call decided.
type Outcome int

const (
	// OutcomeNotReady means the cursor is caught up to the on-chain state
	// it last observed; nothing to ingest.
	OutcomeNotReady Outcome = iota
	// OutcomeAdvanced means new logs were ingested and the cursor moved
	// forward.
	OutcomeAdvanced
	// OutcomeRewound means a gap was detected and the cursor rewound
	// without advancing, per spec section 4.6 step 4.
	OutcomeRewound
	// OutcomeSynced (backward cursor only) means nonce 0 or block 0 was
	// reached; the cursor never reactivates (spec section 9 open question).
	OutcomeSynced
)
