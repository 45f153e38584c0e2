// Copyright 2025 Hyperlane
//
// Hyperlane Message - canonical wire encoding and identity
// Per spec section 6.1: bit-exact packed encoding, id = keccak256(encoding)

package types

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain is a 32-bit numeric identifier of a chain/environment.
type Domain uint32

// HashLength is the length in bytes of a keccak256 digest, an address field,
// or a message id.
const HashLength = 32

// H256 is a 32-byte hash (a message id, a merkle root, ...).
type H256 [HashLength]byte

// Bytes returns a copy of the underlying bytes.
func (h H256) Bytes() []byte {
	out := make([]byte, HashLength)
	copy(out, h[:])
	return out
}

func (h H256) String() string {
	return fmt.Sprintf("0x%x", h[:])
}

// BytesToH256 left-pads (or truncates from the left) b into a 32-byte H256.
func BytesToH256(b []byte) H256 {
	var h H256
	if len(b) >= HashLength {
		copy(h[:], b[len(b)-HashLength:])
	} else {
		copy(h[HashLength-len(b):], b)
	}
	return h
}

// wireHeaderLength is the fixed portion of the encoding before the body,
// per spec 6.1: 1 + 4 + 4 + 32 + 4 + 32 = 77 bytes.
const wireHeaderLength = 77

// CurrentVersion is the current Hyperlane message version. Version 0 is
// still accepted by DecodeMessage for backward compatibility with legacy chains.
const CurrentVersion uint8 = 3

// ErrMessageTooShort is returned by DecodeMessage when the input is shorter than
// the fixed wire header.
var ErrMessageTooShort = errors.New("hyperlane message: encoding shorter than fixed header")

// Message is the canonical Hyperlane interchain message.
type Message struct {
	Version     uint8
	Nonce       uint32
	Origin      Domain
	Sender      H256
	Destination Domain
	Recipient   H256
	Body        []byte
}

// Encode packs the message into its canonical big-endian wire form, per
// spec section 6.1. The layout is bit-exact; callers must not alter field
// order or widths.
func (m Message) Encode() []byte {
	out := make([]byte, wireHeaderLength+len(m.Body))
	out[0] = m.Version
	binary.BigEndian.PutUint32(out[1:5], m.Nonce)
	binary.BigEndian.PutUint32(out[5:9], uint32(m.Origin))
	copy(out[9:41], m.Sender[:])
	binary.BigEndian.PutUint32(out[41:45], uint32(m.Destination))
	copy(out[45:77], m.Recipient[:])
	copy(out[77:], m.Body)
	return out
}

// DecodeMessage parses the canonical wire form produced by Encode. Legacy
// version-0 messages are parsed identically; version is not otherwise
// validated here (callers that require a specific version check it
// themselves).
func DecodeMessage(raw []byte) (Message, error) {
	if len(raw) < wireHeaderLength {
		return Message{}, fmt.Errorf("%w: got %d bytes, need at least %d", ErrMessageTooShort, len(raw), wireHeaderLength)
	}
	m := Message{
		Version:     raw[0],
		Nonce:       binary.BigEndian.Uint32(raw[1:5]),
		Origin:      Domain(binary.BigEndian.Uint32(raw[5:9])),
		Destination: Domain(binary.BigEndian.Uint32(raw[41:45])),
	}
	copy(m.Sender[:], raw[9:41])
	copy(m.Recipient[:], raw[45:77])
	if len(raw) > wireHeaderLength {
		m.Body = append([]byte(nil), raw[wireHeaderLength:]...)
	}
	return m, nil
}

// ID returns the message's identity: keccak256 of its canonical encoding.
// Per invariant 1, two messages with identical bytes are treated as the
// same message; collision is treated as equality.
func (m Message) ID() H256 {
	return H256(crypto.Keccak256Hash(m.Encode()))
}

// RecipientAddress interprets Recipient as a 20-byte EVM address (the
// low-order 20 bytes of the left-padded 32-byte field), for providers whose
// ChainKind is Ethereum.
func (m Message) RecipientAddress() common.Address {
	return common.BytesToAddress(m.Recipient[:])
}

// SenderAddress interprets Sender the same way as RecipientAddress.
func (m Message) SenderAddress() common.Address {
	return common.BytesToAddress(m.Sender[:])
}
