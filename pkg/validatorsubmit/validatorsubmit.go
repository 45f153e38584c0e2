// Copyright 2025 Hyperlane
//
// Validator Submitter (C11): walks the origin chain's dispatch log in
// nonce order, rebuilds the Merkle tree leaf-by-leaf, and signs and
// publishes a checkpoint for every new tree index, per spec section 4.11.
// Grounded on the teacher's submission-loop shape (a backfill pass that
// catches a persisted cursor up to a target, and a live loop that re-polls
// the chain), generalized from anchor submission to checkpoint signing.
package validatorsubmit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/checkpointstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/merkle"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/signer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// leafWaitInterval is how long the backfill loop sleeps when the next
// nonce's leaf is not yet present in the message store.
const leafWaitInterval = 100 * time.Millisecond

// signPublishInterval is the pause between signing and publishing
// successive checkpoints, per spec section 4.11.
const signPublishInterval = 100 * time.Millisecond

// ErrTreeMismatch is returned by Backfill when, after ingesting every leaf
// up to the target, the rebuilt tree's root or index does not match the
// on-chain target checkpoint. This is a correctness bug severe enough to
// warrant a loud failure rather than a retry.
var ErrTreeMismatch = errors.New("validatorsubmit: rebuilt tree does not match target checkpoint")

// ChainCheckpoint is the latest checkpoint observed on-chain, at the
// operator's configured reorg-period lag.
type ChainCheckpoint struct {
	Index                 uint32
	Root                  types.H256
	Count                 uint64
	MerkleTreeHookAddress types.H256
	MailboxDomain         types.Domain
}

// ChainReader is the subset of the origin provider the submitter needs:
// the latest reorg-safe checkpoint.
type ChainReader interface {
	LatestCheckpoint(ctx context.Context) (ChainCheckpoint, error)
}

// Submitter drives the backfill and live loops.
type Submitter struct {
	Store      *msgstore.Store
	Checkpoint *checkpointstore.Store
	Chain      ChainReader
	Signer     signer.Signer
	Logger     *log.Logger

	tree *merkle.Tree
}

// New builds a Submitter with a fresh empty tree, per spec section 4.11
// ("walk the tree from empty").
func New(store *msgstore.Store, cp *checkpointstore.Store, chain ChainReader, s signer.Signer, logger *log.Logger) *Submitter {
	if logger == nil {
		logger = log.New(log.Writer(), "[validatorsubmit] ", log.LstdFlags)
	}
	return &Submitter{Store: store, Checkpoint: cp, Chain: chain, Signer: s, Logger: logger, tree: merkle.NewTree()}
}

// Backfill ingests every leaf from the origin store in nonce order up to
// target.Count, asserts the rebuilt tree matches target, then signs and
// publishes every intermediate checkpoint not already present.
func (s *Submitter) Backfill(ctx context.Context, target ChainCheckpoint) error {
	var pending []types.CheckpointWithMessageId
	for s.tree.Count() < target.Count {
		nonce := uint32(s.tree.Count())
		msg, err := s.waitForLeaf(ctx, nonce)
		if err != nil {
			return err
		}
		if err := s.tree.Append(msg.ID()); err != nil {
			return fmt.Errorf("validatorsubmit: append leaf %d: %w", nonce, err)
		}

		pending = append(pending, types.CheckpointWithMessageId{
			Checkpoint: types.Checkpoint{
				MerkleTreeHookAddress: target.MerkleTreeHookAddress,
				MailboxDomain:         target.MailboxDomain,
				Root:                  s.tree.Root(),
				Index:                 uint32(s.tree.Count() - 1),
			},
			MessageID: msg.ID(),
		})
	}

	if s.tree.Count() != target.Count || s.tree.Root() != target.Root {
		return fmt.Errorf("%w: have (count=%d root=%x), target (count=%d root=%x)",
			ErrTreeMismatch, s.tree.Count(), s.tree.Root(), target.Count, target.Root)
	}
	for _, cp := range pending {
		if err := s.signAndPublish(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Submitter) waitForLeaf(ctx context.Context, nonce uint32) (types.Message, error) {
	for {
		msg, err := s.Store.RetrieveMessageByNonce(ctx, nonce)
		if err != nil {
			return types.Message{}, fmt.Errorf("validatorsubmit: retrieve nonce %d: %w", nonce, err)
		}
		if msg != nil {
			return *msg, nil
		}
		select {
		case <-ctx.Done():
			return types.Message{}, ctx.Err()
		case <-time.After(leafWaitInterval):
		}
	}
}

// signAndPublish signs cp and writes it to the checkpoint store, skipping
// publication if that index is already present (idempotent publishing, per
// spec section 4.11).
func (s *Submitter) signAndPublish(ctx context.Context, cp types.CheckpointWithMessageId) error {
	existing, err := s.Checkpoint.FetchCheckpoint(ctx, cp.Index)
	if err != nil {
		return fmt.Errorf("validatorsubmit: check existing checkpoint %d: %w", cp.Index, err)
	}
	if existing != nil {
		return nil
	}

	sig, err := s.Signer.Sign(cp.SigningHash())
	if err != nil {
		return fmt.Errorf("validatorsubmit: sign checkpoint %d: %w", cp.Index, err)
	}
	if err := s.Checkpoint.WriteCheckpoint(ctx, types.SignedCheckpointWithMessageId{Value: cp, Signature: sig}); err != nil {
		return fmt.Errorf("validatorsubmit: publish checkpoint %d: %w", cp.Index, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(signPublishInterval):
	}
	return nil
}

// Live repeats: fetch the chain's latest reorg-safe checkpoint; if the
// provider is still behind the tree's current count, wait; otherwise
// backfill up to it. Runs until ctx is cancelled.
func (s *Submitter) Live(ctx context.Context, interval time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		target, err := s.Chain.LatestCheckpoint(ctx)
		if err != nil {
			return fmt.Errorf("validatorsubmit: latest checkpoint: %w", err)
		}

		if target.Index+1 < uint32(s.tree.Count()) {
			s.Logger.Printf("provider behind tree (checkpoint index %d, tree count %d), waiting", target.Index, s.tree.Count())
		} else {
			if err := s.Backfill(ctx, target); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
