// Copyright 2025 Hyperlane
//
// Signer (C2): domain-separated digest signing and address recovery.
// Grounded on the teacher's pkg/ethereum client, which already wraps
// go-ethereum/crypto for ECDSA key handling (HexToECDSA, PubkeyToAddress);
// this package generalizes that into the capability interface spec section
// 4.2 describes, so a local key, a remote HSM, or a KMS client can all
// implement it.

package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// eip191Prefix is prepended to a 32-byte digest before the final hash, per
// spec section 6.2.
const eip191Prefix = "\x19Ethereum Signed Message:\n32"

// Signer is the signing capability every validator and relayer submission
// path depends on. Implementations may be a local private key, a remote
// HSM, or a KMS client; the core treats all of them identically (spec
// section 1: signer implementations are external collaborators).
type Signer interface {
	// Sign signs an EIP-191-wrapped digest and returns a 65-byte
	// recoverable signature (r || s || v, v in {27, 28}).
	Sign(digest types.H256) (types.Signature, error)
	// EthAddress returns the 20-byte address corresponding to this
	// signer's public key.
	EthAddress() common.Address
}

// EIP191Hash wraps a signing-hash digest the way Sign/Verify expect:
// keccak256("\x19Ethereum Signed Message:\n32" || digest).
func EIP191Hash(digest types.H256) types.H256 {
	buf := make([]byte, 0, len(eip191Prefix)+types.HashLength)
	buf = append(buf, []byte(eip191Prefix)...)
	buf = append(buf, digest[:]...)
	return types.H256(crypto.Keccak256Hash(buf))
}

// Local is a Signer backed by an in-process ECDSA private key.
type Local struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocal wraps an existing private key as a Signer.
func NewLocal(key *ecdsa.PrivateKey) *Local {
	return &Local{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewLocalFromHex parses a hex-encoded private key (with or without a 0x
// prefix handling left to the caller, matching crypto.HexToECDSA).
func NewLocalFromHex(hexKey string) (*Local, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return NewLocal(key), nil
}

// Sign implements Signer.
func (l *Local) Sign(digest types.H256) (types.Signature, error) {
	wrapped := EIP191Hash(digest)
	sig, err := crypto.Sign(wrapped[:], l.key)
	if err != nil {
		return types.Signature{}, fmt.Errorf("signer: sign: %w", err)
	}
	var out types.Signature
	copy(out[:], sig)
	// go-ethereum's crypto.Sign returns v in {0,1}; the wire/recoverable
	// format used across the protocol is v in {27,28}.
	out[types.SignatureSize-1] += 27
	return out, nil
}

// EthAddress implements Signer.
func (l *Local) EthAddress() common.Address {
	return l.address
}

// Recover recovers the signer address from an EIP-191-wrapped digest and a
// 65-byte recoverable signature.
func Recover(digest types.H256, sig types.Signature) (common.Address, error) {
	wrapped := EIP191Hash(digest)
	raw := make([]byte, types.SignatureSize)
	copy(raw, sig[:])
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	pub, err := crypto.SigToPub(wrapped[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("signer: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignEthTx signs an Ethereum transaction for submission by pkg/provider's
// EVM backend, using the London signer scheme (EIP-1559 aware, falls back
// to legacy for non-dynamic-fee transactions).
func (l *Local) SignEthTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	signed, err := ethtypes.SignTx(tx, ethtypes.NewLondonSigner(chainID), l.key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign eth tx: %w", err)
	}
	return signed, nil
}

// Verify checks that sig recovers to expected for the given digest.
func Verify(expected common.Address, digest types.H256, sig types.Signature) error {
	got, err := Recover(digest, sig)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("signer: recovered address %s does not match expected %s", got, expected)
	}
	return nil
}
