// Copyright 2025 Hyperlane

package types

// LogMeta is attached to every indexed log (spec section 3). It lets
// downstream consumers recover which block/transaction produced an
// indexed item without re-querying the provider.
type LogMeta struct {
	Address          H256
	BlockNumber      uint64
	BlockHash        H256
	TransactionID    H256
	TransactionIndex uint64
	LogIndex         uint64
}

// Indexed wraps a decoded log value together with its sequence number
// within the origin stream, when the stream is sequence-aware (e.g. a
// dispatch nonce or a gas-payment sequence). Sequence is unused (zero) for
// streams indexed only by block.
type Indexed[T any] struct {
	Sequence uint32
	Value    T
}

// InterchainGasPayment is a single payment made against a message id,
// observed from a gas-paymaster's logs.
type InterchainGasPayment struct {
	MessageID   H256
	Destination Domain
	GasAmount   uint64
	PaymentWei  uint64
}

// MerkleTreeInsertion is a single leaf-insertion event observed from a
// merkle tree hook's logs: the message id inserted and its resulting
// index in the tree.
type MerkleTreeInsertion struct {
	MessageID H256
	Index     uint32
}
