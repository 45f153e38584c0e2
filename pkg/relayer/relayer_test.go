// Copyright 2025 Hyperlane

package relayer

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/gaspolicy"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/provider"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

type fakeProvider struct {
	delivered map[types.H256]bool
}

func (f *fakeProvider) GetBlockByHash(context.Context, types.H256) (*provider.Block, error) { return nil, nil }
func (f *fakeProvider) GetTxnByHash(context.Context, types.H256) (*provider.Transaction, error) {
	return nil, nil
}
func (f *fakeProvider) IsContract(context.Context, common.Address) (bool, error) { return true, nil }
func (f *fakeProvider) GetFinalizedBlockNumber(context.Context) (uint64, error)  { return 0, nil }
func (f *fakeProvider) Delivered(_ context.Context, id types.H256) (bool, error) {
	return f.delivered[id], nil
}
func (f *fakeProvider) ProcessEstimateCosts(context.Context, types.Message, []byte) (uint64, error) {
	return 21000, nil
}
func (f *fakeProvider) Process(_ context.Context, msg types.Message, _ []byte, _ uint64) (provider.TxOutcome, error) {
	f.delivered[msg.ID()] = true
	return provider.TxOutcome{Executed: true}, nil
}

type fakeBuilder struct{}

func (fakeBuilder) Build(context.Context, common.Address, types.Message, uint32, uint32) ([]byte, error) {
	return []byte("md"), nil
}

type permissiveOracle struct{}

func (permissiveOracle) NativeTokenPriceUSD(context.Context, types.Domain) (float64, error) {
	return 1, nil
}
func (permissiveOracle) GasPriceUSD(context.Context, types.Domain, uint64) (float64, error) {
	return 1, nil
}

func TestSeedPendingMessageLoadsPersistedRetryCount(t *testing.T) {
	ctx := context.Background()
	store := msgstore.New(msgstore.NewMemoryKV())
	msg := types.Message{Nonce: 0, Origin: 1, Destination: 2, Recipient: types.H256{0xaa}}

	if err := store.StorePendingMessageRetryCount(ctx, msg.ID(), 13); err != nil {
		t.Fatalf("StorePendingMessageRetryCount: %v", err)
	}

	before := time.Now()
	pm, err := seedPendingMessage(ctx, store, msg)
	if err != nil {
		t.Fatalf("seedPendingMessage: %v", err)
	}
	if pm.Retries != 13 {
		t.Fatalf("Retries = %d, want 13", pm.Retries)
	}
	if !pm.NextAttemptAfter.After(before) {
		t.Fatalf("NextAttemptAfter = %v, want after %v", pm.NextAttemptAfter, before)
	}
}

func TestOrchestratorDeliversMessageEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	originStore := msgstore.New(msgstore.NewMemoryKV())
	if _, err := originStore.StoreMessage(ctx, types.Message{
		Nonce: 0, Origin: 1, Destination: 2, Recipient: types.H256{0xaa}, Body: []byte("hi"),
	}, types.LogMeta{}); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	destProvider := &fakeProvider{delivered: make(map[types.H256]bool)}
	enforcer, err := gaspolicy.NewEnforcer(nil, permissiveOracle{}, nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}

	orch, err := New(1, map[types.Domain]*ChainRuntime{
		1: {Domain: 1, MessageStore: originStore},
		2: {Domain: 2, Provider: destProvider, IsmBuilder: fakeBuilder{}, GasEnforcer: enforcer, MessageStore: originStore},
	}, nil, nil, log.New(log.Writer(), "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	orch.PollPeriod = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
