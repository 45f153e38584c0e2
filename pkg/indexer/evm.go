// Copyright 2025 Hyperlane
//
// EVM-backed indexers for the Mailbox Dispatch and InterchainGasPaymaster
// events. Grounded on the teacher's EventWatcher.pollEvents
// (pkg/anchor/event_watcher.go): build an ethereum.FilterQuery over a block
// range and a contract address, call FilterLogs, and decode each log —
// generalized from the teacher's single hardcoded event set to one
// Indexer[T] per event type.
package indexer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

var (
	dispatchEventSignature    = []byte("Dispatch(address,uint32,bytes32,bytes)")
	dispatchTopic             = crypto.Keccak256Hash(dispatchEventSignature)
	gasPaymentEventSignature  = []byte("GasPayment(bytes32,uint32,uint256,uint256)")
	gasPaymentTopic           = crypto.Keccak256Hash(gasPaymentEventSignature)
)

// EVMDispatchIndexer indexes Mailbox Dispatch events, which carry the
// wire-encoded Hyperlane message in the log's non-indexed data and the
// dispatch's position in the indexed `nonce` the mailbox assigns.
type EVMDispatchIndexer struct {
	client  *ethclient.Client
	mailbox common.Address
}

// NewEVMDispatchIndexer builds a dispatch indexer for one mailbox contract.
func NewEVMDispatchIndexer(client *ethclient.Client, mailbox common.Address) *EVMDispatchIndexer {
	return &EVMDispatchIndexer{client: client, mailbox: mailbox}
}

func (idx *EVMDispatchIndexer) FetchLogsInRange(ctx context.Context, r Range) ([]types.Indexed[types.Message], []types.LogMeta, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{idx.mailbox},
		Topics:    [][]common.Hash{{dispatchTopic}},
	}
	logs, err := idx.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("indexer: filter dispatch logs: %w", err)
	}

	indexed := make([]types.Indexed[types.Message], 0, len(logs))
	metas := make([]types.LogMeta, 0, len(logs))
	for _, l := range logs {
		msg, err := decodeDispatchLog(l)
		if err != nil {
			return nil, nil, fmt.Errorf("indexer: decode dispatch log at block %d: %w", l.BlockNumber, err)
		}
		indexed = append(indexed, types.Indexed[types.Message]{Sequence: msg.Nonce, Value: msg})
		metas = append(metas, logMetaFromLog(l))
	}
	return indexed, metas, nil
}

func (idx *EVMDispatchIndexer) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) {
	n, err := idx.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("indexer: block number: %w", err)
	}
	return n, nil
}

// LatestSequenceCountAndTip returns the mailbox's current dispatch count via
// the `count()` view, alongside the chain tip, satisfying
// SequenceAwareIndexer.
func (idx *EVMDispatchIndexer) LatestSequenceCountAndTip(ctx context.Context) (*uint32, uint64, error) {
	tip, err := idx.GetFinalizedBlockNumber(ctx)
	if err != nil {
		return nil, 0, err
	}
	count, err := idx.mailboxCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return &count, tip, nil
}

// mailboxCount calls the mailbox's count() view function. The call data is
// the 4-byte selector for "count()"; decoding its uint32 result does not
// require the full contract ABI.
func (idx *EVMDispatchIndexer) mailboxCount(ctx context.Context) (uint32, error) {
	selector := crypto.Keccak256([]byte("count()"))[:4]
	result, err := idx.client.CallContract(ctx, ethereum.CallMsg{
		To:   &idx.mailbox,
		Data: selector,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("indexer: call mailbox count: %w", err)
	}
	if len(result) < 32 {
		return 0, fmt.Errorf("indexer: short count() result: %d bytes", len(result))
	}
	return uint32(new(big.Int).SetBytes(result[:32]).Uint64()), nil
}

func decodeDispatchLog(l ethtypes.Log) (types.Message, error) {
	uint32Type, _ := abi.NewType("uint32", "", nil)
	bytesType, _ := abi.NewType("bytes", "", nil)
	args := abi.Arguments{{Type: uint32Type}, {Type: bytesType}}
	values, err := args.Unpack(l.Data)
	if err != nil {
		return types.Message{}, fmt.Errorf("unpack dispatch data: %w", err)
	}
	if len(values) != 2 {
		return types.Message{}, fmt.Errorf("unexpected dispatch arg count %d", len(values))
	}
	raw, ok := values[1].([]byte)
	if !ok {
		return types.Message{}, fmt.Errorf("dispatch message field is not bytes")
	}
	return types.DecodeMessage(raw)
}

// EVMGasPaymentIndexer indexes InterchainGasPaymaster GasPayment events; it
// is watermarked rather than sequence-aware (spec 4.6), since gas payments
// are not emitted in a dense, contiguous counter like dispatch nonces.
type EVMGasPaymentIndexer struct {
	client *ethclient.Client
	igp    common.Address
}

// NewEVMGasPaymentIndexer builds a gas-payment indexer for one IGP contract.
func NewEVMGasPaymentIndexer(client *ethclient.Client, igp common.Address) *EVMGasPaymentIndexer {
	return &EVMGasPaymentIndexer{client: client, igp: igp}
}

func (idx *EVMGasPaymentIndexer) FetchLogsInRange(ctx context.Context, r Range) ([]types.Indexed[types.InterchainGasPayment], []types.LogMeta, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{idx.igp},
		Topics:    [][]common.Hash{{gasPaymentTopic}},
	}
	logs, err := idx.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("indexer: filter gas payment logs: %w", err)
	}

	indexed := make([]types.Indexed[types.InterchainGasPayment], 0, len(logs))
	metas := make([]types.LogMeta, 0, len(logs))
	for i, l := range logs {
		payment, err := decodeGasPaymentLog(l)
		if err != nil {
			return nil, nil, fmt.Errorf("indexer: decode gas payment log at block %d: %w", l.BlockNumber, err)
		}
		indexed = append(indexed, types.Indexed[types.InterchainGasPayment]{Sequence: uint32(i), Value: payment})
		metas = append(metas, logMetaFromLog(l))
	}
	return indexed, metas, nil
}

func (idx *EVMGasPaymentIndexer) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) {
	n, err := idx.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("indexer: block number: %w", err)
	}
	return n, nil
}

func decodeGasPaymentLog(l ethtypes.Log) (types.InterchainGasPayment, error) {
	if len(l.Topics) < 2 {
		return types.InterchainGasPayment{}, fmt.Errorf("gas payment log missing message id topic")
	}
	messageID := types.H256(l.Topics[1])

	uint256Type, _ := abi.NewType("uint256", "", nil)
	args := abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
	values, err := args.Unpack(l.Data)
	if err != nil {
		return types.InterchainGasPayment{}, fmt.Errorf("unpack gas payment data: %w", err)
	}
	gasAmount, ok := values[0].(*big.Int)
	if !ok {
		return types.InterchainGasPayment{}, fmt.Errorf("gas amount field is not a uint256")
	}
	paymentWei, ok := values[1].(*big.Int)
	if !ok {
		return types.InterchainGasPayment{}, fmt.Errorf("payment field is not a uint256")
	}

	return types.InterchainGasPayment{
		MessageID:  messageID,
		GasAmount:  gasAmount.Uint64(),
		PaymentWei: paymentWei.Uint64(),
	}, nil
}

func logMetaFromLog(l ethtypes.Log) types.LogMeta {
	return types.LogMeta{
		Address:         types.H256(l.Address.Hash()),
		BlockNumber:     l.BlockNumber,
		BlockHash:       types.H256(l.BlockHash),
		TransactionID:   types.H256(l.TxHash),
		TransactionIndex: uint64(l.TxIndex),
		LogIndex:        uint64(l.Index),
	}
}
