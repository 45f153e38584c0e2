// Copyright 2025 Hyperlane
//
// Checkpoint types and the checkpoint signing digest, per spec sections
// 3 and 6.2.

package types

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
)

// hyperlaneDomainTag is appended to the merkle-hook/domain pair before
// hashing, matching the on-chain Mailbox's domain separation string.
const hyperlaneDomainTag = "HYPERLANE"

// Checkpoint is a (root, index) pair of an origin chain's merkle tree at
// some height, plus context identifying the tree (spec section 3).
type Checkpoint struct {
	MerkleTreeHookAddress H256
	MailboxDomain         Domain
	Root                  H256
	Index                 uint32
}

// CheckpointWithMessageId extends a Checkpoint with the message id at that
// index, the value validators actually sign.
type CheckpointWithMessageId struct {
	Checkpoint
	MessageID H256
}

// domainHash computes keccak256(merkle_hook_address || be32(mailbox_domain) || "HYPERLANE").
func domainHash(hookAddress H256, mailboxDomain Domain) H256 {
	buf := make([]byte, 0, HashLength+4+len(hyperlaneDomainTag))
	buf = append(buf, hookAddress[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(mailboxDomain))
	buf = append(buf, []byte(hyperlaneDomainTag)...)
	return H256(crypto.Keccak256Hash(buf))
}

// SigningHash computes the checkpoint's signing digest per spec 6.2:
//
//	domain_hash = keccak256(merkle_hook_address || be32(mailbox_domain) || "HYPERLANE")
//	sig_digest  = keccak256(domain_hash || root || be32(index) || message_id)
//
// This is the value EIP-191-wrapped and signed by validators (see the
// signer package), and the value recovered against during verification.
func (c CheckpointWithMessageId) SigningHash() H256 {
	dh := domainHash(c.MerkleTreeHookAddress, c.MailboxDomain)
	buf := make([]byte, 0, HashLength*3+4)
	buf = append(buf, dh[:]...)
	buf = append(buf, c.Root[:]...)
	buf = binary.BigEndian.AppendUint32(buf, c.Index)
	buf = append(buf, c.MessageID[:]...)
	return H256(crypto.Keccak256Hash(buf))
}

// SignatureSize is the length in bytes of a 65-byte recoverable ECDSA
// signature: r (32) || s (32) || v (1), v in {27, 28}.
const SignatureSize = 65

// Signature is a 65-byte recoverable secp256k1 signature.
type Signature [SignatureSize]byte

// SignedCheckpointWithMessageId pairs a checkpoint with a single
// validator's signature over it.
type SignedCheckpointWithMessageId struct {
	Value     CheckpointWithMessageId
	Signature Signature
}

// ValidatorWithWeight is one entry of a weighted validator set (spec
// section 3). Unweighted sets are represented with Weight=1 and a
// threshold equal to the validator count. Weight is uint64 rather than the
// spec's u128: Go has no native 128-bit integer, and no validator set this
// module resolves carries a weight anywhere near uint64's range (see
// DESIGN.md).
type ValidatorWithWeight struct {
	Address H256
	Weight  uint64
}

// MultisigSignedCheckpoint is one checkpoint plus an ordered list of
// validator signatures over it. Ordering must match the on-chain
// validator set ordering (invariant 4).
type MultisigSignedCheckpoint struct {
	Checkpoint CheckpointWithMessageId
	Signatures []Signature
}

// SignedAnnouncement is a validator's signed storage-location
// announcement, published alongside its checkpoints (spec section 4.3).
type SignedAnnouncement struct {
	ValidatorAddress H256
	StorageLocation  string
	Signature        Signature
}
