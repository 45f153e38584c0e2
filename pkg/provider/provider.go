// Copyright 2025 Hyperlane
//
// Provider Abstraction (C15): the capability every chain backend exposes to
// the rest of the system, per spec section 4.15. Chain-kind dispatch is
// tagged rather than inherited (spec section 9's design note), matching the
// ChainKind enum in pkg/types/domain.go; concrete backends (EVM today) live
// alongside this contract.
package provider

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// Block is the subset of block data callers need.
type Block struct {
	Hash      types.H256
	Number    uint64
	Timestamp uint64
}

// Transaction is the subset of transaction data callers need.
type Transaction struct {
	Hash   types.H256
	Sender common.Address
}

// TxOutcome reports the result of a submitted process() call.
type TxOutcome struct {
	TransactionID types.H256
	Executed      bool
	GasUsed       uint64
	GasPrice      uint64
}

// Provider is the capability set spec section 4.15 requires of every chain
// backend.
type Provider interface {
	GetBlockByHash(ctx context.Context, hash types.H256) (*Block, error)
	GetTxnByHash(ctx context.Context, hash types.H256) (*Transaction, error)
	IsContract(ctx context.Context, addr common.Address) (bool, error)
	GetFinalizedBlockNumber(ctx context.Context) (uint64, error)

	// Process delivers message to its destination mailbox with the given
	// ISM metadata and gas cap.
	Process(ctx context.Context, message types.Message, metadata []byte, gasLimit uint64) (TxOutcome, error)
	// ProcessEstimateCosts estimates the gas a Process call would consume,
	// without submitting a transaction.
	ProcessEstimateCosts(ctx context.Context, message types.Message, metadata []byte) (uint64, error)

	// Delivered reports whether the destination mailbox has already
	// processed a message id.
	Delivered(ctx context.Context, messageID types.H256) (bool, error)
}

// Kind returns the ChainKind a Provider backs, for dispatch sites that need
// chain-specific behavior spec section 9 calls out (EIP-1559 vs legacy gas
// pricing, transaction assembly).
type Kind interface {
	ChainKind() types.ChainKind
}
