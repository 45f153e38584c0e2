// Copyright 2025 Hyperlane
//
// Multisig Quorum Aggregator (C7): per spec section 4.7, finds the highest
// checkpoint index with quorum signature weight across a validator set and
// assembles a MultisigSignedCheckpoint. Grounded on the weighted-threshold
// aggregation shape used by the teacher's attestation collection (summing
// unique validator weights against a threshold) generalized from a single
// fixed round to a per-index quorum search over a checkpoint store.
package quorum

import (
	"context"
	"log"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/signer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// addressFromH256 recovers the rightmost 20 bytes of a validator's H256
// identity as its Ethereum address, matching how addresses are zero-padded
// into H256 slots elsewhere in the wire format.
func addressFromH256(h types.H256) common.Address {
	var addr common.Address
	copy(addr[:], h[12:])
	return addr
}

// ValidatorClient is the subset of checkpointstore.Store each validator
// exposes to the aggregator: its own latest published index and the ability
// to fetch a specific one.
type ValidatorClient interface {
	LatestIndex(ctx context.Context) (*uint32, error)
	FetchCheckpoint(ctx context.Context, index uint32) (*types.SignedCheckpointWithMessageId, error)
}

// Member is one validator's weight and client handle, ordered by the ISM's
// declared validator index (ism-index ascending, per step 5).
type Member struct {
	Address  types.H256
	Weight   uint64
	IsmIndex int
	Client   ValidatorClient
}

// Aggregator runs the quorum search over a fixed validator set.
type Aggregator struct {
	members   []Member
	threshold uint64
	logger    *log.Logger
}

// NewAggregator builds an Aggregator for a validator set and threshold
// weight.
func NewAggregator(members []Member, threshold uint64, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(log.Writer(), "[quorum] ", log.LstdFlags)
	}
	return &Aggregator{members: members, threshold: threshold, logger: logger}
}

type latestIndexResult struct {
	member Member
	index  uint32
}

// FindQuorum implements the 5-step algorithm of spec 4.7. lo and hi bound
// the acceptable index range (typically the pending message's required
// index and the mailbox's current count). It returns nil, nil when no
// quorum is available — NoQuorum is not an error.
func (a *Aggregator) FindQuorum(ctx context.Context, lo, hi uint32) (*types.MultisigSignedCheckpoint, error) {
	results := a.queryLatestIndexes(ctx)
	if len(results) == 0 {
		return nil, nil
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index > results[j].index })

	highestQuorumIndex, ok := a.highestQuorumIndex(results)
	if !ok || highestQuorumIndex < lo {
		return nil, nil
	}

	start := highestQuorumIndex
	if hi < start {
		start = hi
	}

	for i := start; ; i-- {
		if checkpoint := a.tryAssembleAtIndex(ctx, i); checkpoint != nil {
			return checkpoint, nil
		}
		if i == lo {
			break
		}
	}
	return nil, nil
}

// queryLatestIndexes queries every validator's latest_index, omitting those
// returning None (step 1).
func (a *Aggregator) queryLatestIndexes(ctx context.Context) []latestIndexResult {
	results := make([]latestIndexResult, 0, len(a.members))
	for _, m := range a.members {
		index, err := m.Client.LatestIndex(ctx)
		if err != nil {
			a.logger.Printf("validator %s: latest_index error: %v", m.Address, err)
			continue
		}
		if index == nil {
			continue
		}
		results = append(results, latestIndexResult{member: m, index: *index})
	}
	return results
}

// highestQuorumIndex walks the index-descending list accumulating unique
// validator weight, returning the first index at which weight crosses the
// threshold (step 2-3).
func (a *Aggregator) highestQuorumIndex(sortedDesc []latestIndexResult) (uint32, bool) {
	seen := make(map[types.H256]bool)
	var cumulative uint64
	for _, r := range sortedDesc {
		if seen[r.member.Address] {
			continue
		}
		seen[r.member.Address] = true
		cumulative += r.member.Weight
		if cumulative >= a.threshold {
			return r.index, true
		}
	}
	return 0, false
}

// tryAssembleAtIndex fetches the checkpoint at index from every validator,
// collects signatures for whichever root a quorum of weight agrees on, and
// returns the assembled MultisigSignedCheckpoint, or nil if no quorum forms
// at this index (step 5).
func (a *Aggregator) tryAssembleAtIndex(ctx context.Context, index uint32) *types.MultisigSignedCheckpoint {
	type signed struct {
		member     Member
		checkpoint types.CheckpointWithMessageId
		signature  types.Signature
	}

	byRoot := make(map[types.H256][]signed)
	byRootCheckpoint := make(map[types.H256]types.CheckpointWithMessageId)

	membersByWeight := append([]Member(nil), a.members...)
	sort.Slice(membersByWeight, func(i, j int) bool { return membersByWeight[i].Weight > membersByWeight[j].Weight })

	for _, m := range membersByWeight {
		sc, err := m.Client.FetchCheckpoint(ctx, index)
		if err != nil {
			a.logger.Printf("validator %s: fetch_checkpoint(%d) error: %v", m.Address, index, err)
			continue
		}
		if sc == nil || sc.Value.Index != index {
			continue
		}
		if err := signer.Verify(addressFromH256(m.Address), sc.Value.SigningHash(), sc.Signature); err != nil {
			a.logger.Printf("validator %s: signature does not recover: %v", m.Address, err)
			continue
		}
		root := sc.Value.Root
		byRoot[root] = append(byRoot[root], signed{member: m, checkpoint: sc.Value, signature: sc.Signature})
		byRootCheckpoint[root] = sc.Value
	}

	for root, sigs := range byRoot {
		var cumulative uint64
		seen := make(map[types.H256]bool)
		for _, s := range sigs {
			if seen[s.member.Address] {
				continue
			}
			seen[s.member.Address] = true
			cumulative += s.member.Weight
		}
		if cumulative < a.threshold {
			continue
		}

		sort.Slice(sigs, func(i, j int) bool { return sigs[i].member.IsmIndex < sigs[j].member.IsmIndex })
		signatures := make([]types.Signature, 0, len(sigs))
		for _, s := range sigs {
			signatures = append(signatures, s.signature)
		}
		return &types.MultisigSignedCheckpoint{Checkpoint: byRootCheckpoint[root], Signatures: signatures}
	}
	return nil
}
