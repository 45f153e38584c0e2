// Copyright 2025 Hyperlane
//
// EVM Provider: the chain backend for Ethereum-kind domains. Grounded on
// the teacher's ethclient wiring (pkg/ethereum/client.go, since deleted —
// see DESIGN.md) for connection setup and gas pricing, generalized from a
// single hardcoded contract call to the full Provider capability set.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/signer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

var (
	deliveredSelector = crypto.Keccak256([]byte("delivered(bytes32)"))[:4]
	processSelector   = crypto.Keccak256([]byte("process(bytes,bytes)"))[:4]
)

// EVMProvider implements Provider against an Ethereum-kind mailbox.
type EVMProvider struct {
	client   *ethclient.Client
	signer   *signer.Local
	mailbox  common.Address
	chainID  *big.Int
	gasLimit uint64
}

// NewEVMProvider builds an EVMProvider. gasLimitCap, if nonzero, is an
// upper bound enforced on every Process call in addition to whatever cap
// the caller passes (spec 4.10 step 8's transaction_gas_limit).
func NewEVMProvider(client *ethclient.Client, local *signer.Local, mailbox common.Address, chainID *big.Int, gasLimitCap uint64) *EVMProvider {
	return &EVMProvider{client: client, signer: local, mailbox: mailbox, chainID: chainID, gasLimit: gasLimitCap}
}

func (p *EVMProvider) ChainKind() types.ChainKind { return types.ChainKindEthereum }

func (p *EVMProvider) GetBlockByHash(ctx context.Context, hash types.H256) (*Block, error) {
	block, err := p.client.BlockByHash(ctx, common.Hash(hash))
	if err != nil {
		return nil, fmt.Errorf("provider: get block by hash: %w", err)
	}
	return &Block{
		Hash:      types.H256(block.Hash()),
		Number:    block.NumberU64(),
		Timestamp: block.Time(),
	}, nil
}

func (p *EVMProvider) GetTxnByHash(ctx context.Context, hash types.H256) (*Transaction, error) {
	tx, _, err := p.client.TransactionByHash(ctx, common.Hash(hash))
	if err != nil {
		return nil, fmt.Errorf("provider: get txn by hash: %w", err)
	}
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(p.chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("provider: recover sender: %w", err)
	}
	return &Transaction{Hash: types.H256(tx.Hash()), Sender: sender}, nil
}

func (p *EVMProvider) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	code, err := p.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("provider: code at %s: %w", addr, err)
	}
	return len(code) > 0, nil
}

func (p *EVMProvider) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) {
	n, err := p.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("provider: block number: %w", err)
	}
	return n, nil
}

func (p *EVMProvider) Delivered(ctx context.Context, messageID types.H256) (bool, error) {
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	boolType, _ := abi.NewType("bool", "", nil)
	args := abi.Arguments{{Type: bytes32Type}}
	packed, err := args.Pack(messageID)
	if err != nil {
		return false, fmt.Errorf("provider: pack delivered args: %w", err)
	}
	data := append(append([]byte{}, deliveredSelector...), packed...)

	result, err := p.client.CallContract(ctx, ethereum.CallMsg{To: &p.mailbox, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("provider: call delivered: %w", err)
	}
	out, err := abi.Arguments{{Type: boolType}}.Unpack(result)
	if err != nil || len(out) != 1 {
		return false, fmt.Errorf("provider: unpack delivered result: %w", err)
	}
	delivered, _ := out[0].(bool)
	return delivered, nil
}

func (p *EVMProvider) processCallData(message types.Message, metadata []byte) ([]byte, error) {
	bytesType, _ := abi.NewType("bytes", "", nil)
	args := abi.Arguments{{Type: bytesType}, {Type: bytesType}}
	packed, err := args.Pack(metadata, message.Encode())
	if err != nil {
		return nil, fmt.Errorf("pack process args: %w", err)
	}
	return append(append([]byte{}, processSelector...), packed...), nil
}

func (p *EVMProvider) ProcessEstimateCosts(ctx context.Context, message types.Message, metadata []byte) (uint64, error) {
	data, err := p.processCallData(message, metadata)
	if err != nil {
		return 0, fmt.Errorf("provider: %w", err)
	}
	estimate, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From: p.signer.EthAddress(),
		To:   &p.mailbox,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("provider: estimate process gas: %w", err)
	}
	return estimate, nil
}

// Process implements Provider. It assembles, signs, and submits an
// EIP-1559 transaction calling the mailbox's process(metadata, message),
// and waits for the receipt to determine tx_outcome.executed.
func (p *EVMProvider) Process(ctx context.Context, message types.Message, metadata []byte, gasLimit uint64) (TxOutcome, error) {
	if p.gasLimit != 0 && gasLimit > p.gasLimit {
		gasLimit = p.gasLimit
	}

	data, err := p.processCallData(message, metadata)
	if err != nil {
		return TxOutcome{}, fmt.Errorf("provider: %w", err)
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.signer.EthAddress())
	if err != nil {
		return TxOutcome{}, fmt.Errorf("provider: pending nonce: %w", err)
	}
	tipCap, err := p.client.SuggestGasTipCap(ctx)
	if err != nil {
		return TxOutcome{}, fmt.Errorf("provider: suggest tip cap: %w", err)
	}
	feeCap, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return TxOutcome{}, fmt.Errorf("provider: suggest gas price: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &p.mailbox,
		Data:      data,
	})

	signedTx, err := p.signer.SignEthTx(tx, p.chainID)
	if err != nil {
		return TxOutcome{}, fmt.Errorf("provider: sign process tx: %w", err)
	}
	if err := p.client.SendTransaction(ctx, signedTx); err != nil {
		return TxOutcome{}, fmt.Errorf("provider: send process tx: %w", err)
	}

	receipt, err := p.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return TxOutcome{}, fmt.Errorf("provider: wait for process receipt: %w", err)
	}

	return TxOutcome{
		TransactionID: types.H256(signedTx.Hash()),
		Executed:      receipt.Status == ethtypes.ReceiptStatusSuccessful,
		GasUsed:       receipt.GasUsed,
		GasPrice:      feeCap.Uint64(),
	}, nil
}

// waitForReceipt polls for a transaction receipt, matching the teacher's
// retry-with-sleep convention for confirmation waits.
func (p *EVMProvider) waitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	for {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
