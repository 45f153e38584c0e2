// Copyright 2025 Hyperlane
//
// EVMChainReader: the concrete ChainReader the validator binary wires in,
// reading the merkle tree hook's count() and root() views at a
// reorg-period lag behind the chain tip. Grounded on the same raw-selector
// eth_call pattern pkg/indexer/evm.go uses for the mailbox's count().
package validatorsubmit

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

var (
	hookCountSelector = crypto.Keccak256([]byte("count()"))[:4]
	hookRootSelector  = crypto.Keccak256([]byte("root()"))[:4]
)

// EVMChainReader implements ChainReader against a live merkle tree hook
// contract, lagging every read by reorgPeriod blocks behind the chain tip
// so a reorg cannot invalidate a checkpoint already signed over.
type EVMChainReader struct {
	client         *ethclient.Client
	merkleTreeHook common.Address
	domain         types.Domain
	reorgPeriod    uint64
}

// NewEVMChainReader builds an EVMChainReader.
func NewEVMChainReader(client *ethclient.Client, merkleTreeHook common.Address, domain types.Domain, reorgPeriod uint64) *EVMChainReader {
	return &EVMChainReader{client: client, merkleTreeHook: merkleTreeHook, domain: domain, reorgPeriod: reorgPeriod}
}

func (r *EVMChainReader) LatestCheckpoint(ctx context.Context) (ChainCheckpoint, error) {
	tip, err := r.client.BlockNumber(ctx)
	if err != nil {
		return ChainCheckpoint{}, fmt.Errorf("validatorsubmit: block number: %w", err)
	}
	var at *big.Int
	if tip > r.reorgPeriod {
		at = new(big.Int).SetUint64(tip - r.reorgPeriod)
	} else {
		at = big.NewInt(0)
	}

	count, err := r.callUint32(ctx, hookCountSelector, at)
	if err != nil {
		return ChainCheckpoint{}, fmt.Errorf("validatorsubmit: hook count: %w", err)
	}
	if count == 0 {
		return ChainCheckpoint{}, fmt.Errorf("validatorsubmit: hook has no leaves yet")
	}
	root, err := r.callBytes32(ctx, hookRootSelector, at)
	if err != nil {
		return ChainCheckpoint{}, fmt.Errorf("validatorsubmit: hook root: %w", err)
	}

	return ChainCheckpoint{
		Index:                 count - 1,
		Root:                  root,
		Count:                 uint64(count),
		MerkleTreeHookAddress: addressToH256(r.merkleTreeHook),
		MailboxDomain:         r.domain,
	}, nil
}

func (r *EVMChainReader) callUint32(ctx context.Context, selector []byte, atBlock *big.Int) (uint32, error) {
	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.merkleTreeHook, Data: selector}, atBlock)
	if err != nil {
		return 0, err
	}
	if len(result) < 32 {
		return 0, fmt.Errorf("short result: %d bytes", len(result))
	}
	return uint32(new(big.Int).SetBytes(result[:32]).Uint64()), nil
}

func (r *EVMChainReader) callBytes32(ctx context.Context, selector []byte, atBlock *big.Int) (types.H256, error) {
	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &r.merkleTreeHook, Data: selector}, atBlock)
	if err != nil {
		return types.H256{}, err
	}
	if len(result) < 32 {
		return types.H256{}, fmt.Errorf("short result: %d bytes", len(result))
	}
	var h types.H256
	copy(h[:], result[:32])
	return h, nil
}

func addressToH256(a common.Address) types.H256 {
	var h types.H256
	copy(h[12:], a.Bytes())
	return h
}
