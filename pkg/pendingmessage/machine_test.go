// Copyright 2025 Hyperlane

package pendingmessage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/gaspolicy"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/provider"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

type fakeProvider struct {
	delivered bool
	isContract bool
	executed  bool
}

func (f *fakeProvider) GetBlockByHash(context.Context, types.H256) (*provider.Block, error) { return nil, nil }
func (f *fakeProvider) GetTxnByHash(context.Context, types.H256) (*provider.Transaction, error) {
	return nil, nil
}
func (f *fakeProvider) IsContract(context.Context, common.Address) (bool, error) { return f.isContract, nil }
func (f *fakeProvider) GetFinalizedBlockNumber(context.Context) (uint64, error)  { return 0, nil }
func (f *fakeProvider) Delivered(context.Context, types.H256) (bool, error)      { return f.delivered, nil }
func (f *fakeProvider) ProcessEstimateCosts(context.Context, types.Message, []byte) (uint64, error) {
	return 21000, nil
}
func (f *fakeProvider) Process(context.Context, types.Message, []byte, uint64) (provider.TxOutcome, error) {
	return provider.TxOutcome{Executed: f.executed}, nil
}

type fakeBuilder struct {
	metadata []byte
}

func (f *fakeBuilder) Build(context.Context, common.Address, types.Message, uint32, uint32) ([]byte, error) {
	return f.metadata, nil
}

type fakeEnforcer struct {
	limit *uint64
}

func (f *fakeEnforcer) Evaluate(context.Context, gaspolicy.Request) (*uint64, error) {
	return f.limit, nil
}

func limitPtr(v uint64) *uint64 { return &v }

func TestPrepareJumpsToSubmittedWhenAlreadyDelivered(t *testing.T) {
	m := NewMachine(&fakeProvider{delivered: true}, &fakeBuilder{}, &fakeEnforcer{}, nil)
	pm := &PendingMessage{Message: types.Message{Nonce: 1}}

	ok, err := m.Prepare(context.Background(), pm, 1, 1)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !ok || pm.State != StateSubmitted {
		t.Fatalf("expected jump to Submitted, got ok=%v state=%v", ok, pm.State)
	}
}

func TestPrepareDropsWhenRecipientNotContract(t *testing.T) {
	m := NewMachine(&fakeProvider{isContract: false}, &fakeBuilder{}, &fakeEnforcer{}, nil)
	pm := &PendingMessage{Message: types.Message{Nonce: 1}}

	ok, err := m.Prepare(context.Background(), pm, 1, 1)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !ok || pm.State != StateDropped {
		t.Fatalf("expected Dropped, got ok=%v state=%v", ok, pm.State)
	}
}

func TestPrepareReprepairsWhenMetadataUnavailable(t *testing.T) {
	m := NewMachine(&fakeProvider{isContract: true}, &fakeBuilder{metadata: nil}, &fakeEnforcer{}, nil)
	pm := &PendingMessage{Message: types.Message{Nonce: 1}}

	_, err := m.Prepare(context.Background(), pm, 1, 1)
	var classified *ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != KindReprepare {
		t.Fatalf("expected Reprepare error, got %v", err)
	}
}

func TestPrepareReprepairsWhenGasEnforcerDenies(t *testing.T) {
	m := NewMachine(&fakeProvider{isContract: true}, &fakeBuilder{metadata: []byte("md")}, &fakeEnforcer{limit: nil}, nil)
	pm := &PendingMessage{Message: types.Message{Nonce: 1}}

	_, err := m.Prepare(context.Background(), pm, 1, 1)
	var classified *ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != KindReprepare {
		t.Fatalf("expected Reprepare error, got %v", err)
	}
}

func TestPrepareSucceedsAndStoresSubmissionData(t *testing.T) {
	m := NewMachine(&fakeProvider{isContract: true}, &fakeBuilder{metadata: []byte("md")}, &fakeEnforcer{limit: limitPtr(50000)}, nil)
	pm := &PendingMessage{Message: types.Message{Nonce: 1}}

	ok, err := m.Prepare(context.Background(), pm, 1, 1)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !ok || pm.State != StatePrepared {
		t.Fatalf("expected Prepared, got ok=%v state=%v", ok, pm.State)
	}
	if pm.SubmissionData == nil || pm.SubmissionData.GasLimit != 50000 {
		t.Fatalf("SubmissionData = %+v", pm.SubmissionData)
	}
}

func TestSubmitSuccessAdvancesToSubmitted(t *testing.T) {
	store := msgstore.New(msgstore.NewMemoryKV())
	m := NewMachine(&fakeProvider{executed: true}, &fakeBuilder{}, &fakeEnforcer{}, store)
	pm := &PendingMessage{
		Message:        types.Message{Nonce: 1},
		State:          StatePrepared,
		SubmissionData: &SubmissionData{Metadata: []byte("md"), GasLimit: 1000},
	}

	ok, err := m.Submit(context.Background(), pm)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !ok || pm.State != StateSubmitted {
		t.Fatalf("expected Submitted, got ok=%v state=%v", ok, pm.State)
	}
}

func TestSubmitReprepairsOnRevert(t *testing.T) {
	m := NewMachine(&fakeProvider{executed: false}, &fakeBuilder{}, &fakeEnforcer{}, nil)
	pm := &PendingMessage{
		Message:        types.Message{Nonce: 1},
		State:          StatePrepared,
		SubmissionData: &SubmissionData{Metadata: []byte("md"), GasLimit: 1000},
	}

	_, err := m.Submit(context.Background(), pm)
	var classified *ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != KindReprepare {
		t.Fatalf("expected Reprepare error, got %v", err)
	}
}

func TestConfirmCommitsOnDelivered(t *testing.T) {
	store := msgstore.New(msgstore.NewMemoryKV())
	m := NewMachine(&fakeProvider{delivered: true}, &fakeBuilder{}, &fakeEnforcer{}, store)
	pm := &PendingMessage{Message: types.Message{Nonce: 9}, State: StateSubmitted}

	ok, err := m.Confirm(context.Background(), pm)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !ok || pm.State != StateConfirmed {
		t.Fatalf("expected Confirmed, got ok=%v state=%v", ok, pm.State)
	}
	processed, err := store.IsNonceProcessed(context.Background(), 9)
	if err != nil {
		t.Fatalf("IsNonceProcessed: %v", err)
	}
	if !processed {
		t.Fatal("expected nonce marked processed")
	}
}

func TestConfirmReprepairsWhenNotYetDelivered(t *testing.T) {
	m := NewMachine(&fakeProvider{delivered: false}, &fakeBuilder{}, &fakeEnforcer{}, nil)
	pm := &PendingMessage{Message: types.Message{Nonce: 9}, State: StateSubmitted}

	_, err := m.Confirm(context.Background(), pm)
	var classified *ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != KindReprepare {
		t.Fatalf("expected Reprepare error, got %v", err)
	}
	if pm.Retries != 1 {
		t.Fatalf("Retries = %d, want 1", pm.Retries)
	}
}

func TestPrepareFailureSchedulesBackoffAndPersistsRetryCount(t *testing.T) {
	store := msgstore.New(msgstore.NewMemoryKV())
	m := NewMachine(&fakeProvider{isContract: true}, &fakeBuilder{metadata: nil}, &fakeEnforcer{}, store)
	pm := &PendingMessage{Message: types.Message{Nonce: 1}}

	before := time.Now()
	_, err := m.Prepare(context.Background(), pm, 1, 1)
	var classified *ClassifiedError
	if !errors.As(err, &classified) || classified.Kind != KindReprepare {
		t.Fatalf("expected Reprepare error, got %v", err)
	}
	if pm.Retries != 1 {
		t.Fatalf("Retries = %d, want 1", pm.Retries)
	}
	if !pm.NextAttemptAfter.After(before) {
		t.Fatalf("NextAttemptAfter = %v, want after %v", pm.NextAttemptAfter, before)
	}

	persisted, err := store.RetrievePendingMessageRetryCount(context.Background(), pm.Message.ID())
	if err != nil {
		t.Fatalf("RetrievePendingMessageRetryCount: %v", err)
	}
	if persisted == nil || *persisted != 1 {
		t.Fatalf("persisted retry count = %v, want 1", persisted)
	}
}

func TestConfirmReturnsNotReadyBeforeDeadline(t *testing.T) {
	m := NewMachine(&fakeProvider{}, &fakeBuilder{}, &fakeEnforcer{}, nil)
	pm := &PendingMessage{Message: types.Message{Nonce: 9}, State: StateSubmitted, NextAttemptAfter: time.Now().Add(time.Hour)}

	ok, err := m.Confirm(context.Background(), pm)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if ok {
		t.Fatal("expected NotReady (false, nil) before deadline")
	}
}
