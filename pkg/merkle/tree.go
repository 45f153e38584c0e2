// Copyright 2025 Hyperlane
//
// Incremental Merkle Accumulator (C1)
//
// A fixed-depth, append-only binary tree of 32-byte hashes. Mirrors the
// on-chain Merkle Tree Hook's incremental-tree algorithm (the same one used
// by the eth2 deposit contract) so that a root computed here always equals
// the root the origin chain's hook contract would report after observing
// the same leaves in the same order (invariant 3).
//
// Thread-safety follows the ownership rule in spec section 3: a Tree is
// owned by a single submitter task and never observed externally, so the
// exported methods are not internally synchronized. Callers that need
// concurrent access must add their own locking.
package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// Depth is the fixed tree depth. 2^Depth leaves is the maximum tree size,
// far beyond any real message volume.
const Depth = 32

// MaxLeaves is the largest leaf count the tree can hold.
const MaxLeaves = 1 << Depth

// ErrIndexOutOfRange is returned by Proof when index >= the tree's current
// leaf count.
var ErrIndexOutOfRange = errors.New("merkle: index out of range")

// ErrTreeFull is returned by Append once MaxLeaves leaves have been
// inserted.
var ErrTreeFull = errors.New("merkle: tree is full")

// zeroHashes[i] is the root of an empty subtree of depth i. zeroHashes[0]
// is the all-zero 32-byte value (the "empty leaf"); zeroHashes[i] =
// keccak256(zeroHashes[i-1] || zeroHashes[i-1]).
var zeroHashes [Depth + 1]types.H256

func init() {
	// zeroHashes[0] stays the zero value.
	for i := 1; i <= Depth; i++ {
		zeroHashes[i] = hashPair(zeroHashes[i-1], zeroHashes[i-1])
	}
}

// ZeroRoot is the root of an empty tree (0 leaves), precomputed as
// zeroHashes[Depth].
func ZeroRoot() types.H256 {
	return zeroHashes[Depth]
}

func hashPair(left, right types.H256) types.H256 {
	buf := make([]byte, 0, types.HashLength*2)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return types.H256(crypto.Keccak256Hash(buf))
}

// Tree is a 32-level incremental append-only Merkle tree.
type Tree struct {
	count  uint64
	branch [Depth]types.H256

	// leaves retains every inserted leaf in order so that Proof can
	// reconstruct arbitrary inclusion paths (spec 4.1: "using observed
	// leaves <= current and zero-hashes above the populated frontier").
	// The frontier (branch/count) alone is not enough for proof
	// generation because it only remembers the rightmost node at each
	// level, not every historical sibling.
	leaves []types.H256
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Count returns the number of leaves appended so far.
func (t *Tree) Count() uint64 {
	return t.count
}

// Append inserts a new leaf at the next available index (= current Count).
// Per invariant 3, callers must insert leaves in dispatch nonce order.
func (t *Tree) Append(leaf types.H256) error {
	if t.count >= MaxLeaves {
		return ErrTreeFull
	}
	size := t.count + 1
	node := leaf
	for i := 0; i < Depth; i++ {
		if (size>>uint(i))&1 == 1 {
			t.branch[i] = node
			t.leaves = append(t.leaves, leaf)
			t.count++
			return nil
		}
		node = hashPair(t.branch[i], node)
	}
	// size had no zero bit within Depth levels: only possible once the
	// tree is already at MaxLeaves, guarded against above.
	return ErrTreeFull
}

// Root computes the tree's current root by folding the frontier against
// precomputed zero-hashes, per spec 4.1. A tree with zero leaves returns
// ZeroRoot().
func (t *Tree) Root() types.H256 {
	node := zeroHashes[0]
	size := t.count
	for i := 0; i < Depth; i++ {
		if (size>>uint(i))&1 == 1 {
			node = hashPair(t.branch[i], node)
		} else {
			node = hashPair(node, zeroHashes[i])
		}
	}
	return node
}

// Proof is a 32-hash Merkle inclusion proof: the sibling at each of the 32
// levels, ordered from the leaf level upward.
type Proof struct {
	Leaf  types.H256
	Index uint32
	Path  [Depth]types.H256
}

// Proof reconstructs the inclusion proof for the leaf at index. It fails
// with ErrIndexOutOfRange if index >= Count().
func (t *Tree) Proof(index uint32) (Proof, error) {
	if uint64(index) >= t.count {
		return Proof{}, fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfRange, index, t.count)
	}
	p := Proof{Leaf: t.leaves[index], Index: index}
	for level := 0; level < Depth; level++ {
		siblingIndex := (uint64(index) >> uint(level)) ^ 1
		p.Path[level] = t.subtreeHash(level, siblingIndex)
	}
	return p, nil
}

// subtreeHash returns the root of the subtree of depth `level` covering
// leaves [index*2^level, (index+1)*2^level), substituting zeroHashes[level]
// once that range lies entirely beyond the observed leaves.
func (t *Tree) subtreeHash(level int, index uint64) types.H256 {
	start := index << uint(level)
	if start >= uint64(len(t.leaves)) {
		return zeroHashes[level]
	}
	if level == 0 {
		return t.leaves[start]
	}
	left := t.subtreeHash(level-1, index*2)
	right := t.subtreeHash(level-1, index*2+1)
	return hashPair(left, right)
}

// VerifyProof checks a proof against a claimed root, recomputing the path
// from leaf to root using the proof's sibling hashes and the claimed
// leaf's index to choose left/right ordering at each level.
func VerifyProof(proof Proof, root types.H256) bool {
	node := proof.Leaf
	index := proof.Index
	for level := 0; level < Depth; level++ {
		sibling := proof.Path[level]
		if (index>>uint(level))&1 == 1 {
			node = hashPair(sibling, node)
		} else {
			node = hashPair(node, sibling)
		}
	}
	return node == root
}
