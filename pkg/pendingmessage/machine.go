// Copyright 2025 Hyperlane
//
// Pending-Message State Machine (C10): prepare/submit/confirm lifecycle,
// per spec section 4.10. Grounded on the teacher's stage-gated processing
// pipeline shape (pkg/execution, since deleted — see DESIGN.md): a struct
// carrying accumulated state through named stages, each stage's failure
// classified and fed back into a persisted retry counter.
package pendingmessage

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/gaspolicy"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/matchlist"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/provider"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// State is a pending message's position in its delivery lifecycle.
type State int

const (
	StateUnprepared State = iota
	StatePrepared
	StateSubmitted
	StateConfirmed
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StatePrepared:
		return "prepared"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// DefaultConfirmDelay matches spec section 4.10's production default.
const DefaultConfirmDelay = 10 * time.Minute

// SubmissionData is what prepare() hands off to submit().
type SubmissionData struct {
	Metadata []byte
	GasLimit uint64
}

// PendingMessage is the mutable record the state machine advances.
type PendingMessage struct {
	Message          types.Message
	Recipient        common.Address
	State            State
	NextAttemptAfter time.Time
	Retries          uint32
	SubmissionData   *SubmissionData
}

// IsmMetadataBuilder is the capability pkg/ismmetadata.Builder provides.
type IsmMetadataBuilder interface {
	Build(ctx context.Context, recipient common.Address, message types.Message, messageIndex, hi uint32) ([]byte, error)
}

// GasEnforcer is the capability pkg/gaspolicy.Enforcer provides.
type GasEnforcer interface {
	Evaluate(ctx context.Context, req gaspolicy.Request) (*uint64, error)
}

// Machine wires the C10 lifecycle to its collaborators.
type Machine struct {
	Provider     provider.Provider
	Builder      IsmMetadataBuilder
	Enforcer     GasEnforcer
	Store        *msgstore.Store
	ConfirmDelay time.Duration
	GasLimitCap  uint64
	now          func() time.Time
}

// NewMachine builds a Machine with the production confirm delay.
func NewMachine(p provider.Provider, builder IsmMetadataBuilder, enforcer GasEnforcer, store *msgstore.Store) *Machine {
	return &Machine{Provider: p, Builder: builder, Enforcer: enforcer, Store: store, ConfirmDelay: DefaultConfirmDelay, now: time.Now}
}

func (m *Machine) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// recordRetry increments the persisted retry counter and, when
// scheduleBackoff is set, schedules the next attempt per the backoff curve.
// Persisting the counter here is what lets a restarted process resume the
// backoff schedule it was on rather than hot-looping from retry zero.
func (m *Machine) recordRetry(ctx context.Context, pm *PendingMessage, scheduleBackoff bool) error {
	pm.Retries++
	if scheduleBackoff {
		pm.NextAttemptAfter = m.clock().Add(Backoff(pm.Retries))
	}
	if m.Store != nil {
		if err := m.Store.StorePendingMessageRetryCount(ctx, pm.Message.ID(), pm.Retries); err != nil {
			return fmt.Errorf("pendingmessage: persist retry count: %w", err)
		}
	}
	return nil
}

// reprepare records a failed attempt with its backoff schedule and returns
// it classified as KindReprepare, or as KindCritical if persisting the
// retry count itself failed.
func (m *Machine) reprepare(ctx context.Context, pm *PendingMessage, err error) (bool, error) {
	if perr := m.recordRetry(ctx, pm, true); perr != nil {
		return false, Critical(perr)
	}
	return false, Reprepare(err)
}

// notReady records a confirm-time provider failure without rescheduling
// the backoff (the caller should retry again shortly), classified as
// KindNotReady, or as KindCritical if persisting the retry count failed.
func (m *Machine) notReady(ctx context.Context, pm *PendingMessage, err error) (bool, error) {
	if perr := m.recordRetry(ctx, pm, false); perr != nil {
		return false, Critical(perr)
	}
	return false, NotReady(err)
}

// Prepare implements the prepare() stage of spec 4.10.
func (m *Machine) Prepare(ctx context.Context, pm *PendingMessage, messageIndex, hi uint32) (bool, error) {
	if m.clock().Before(pm.NextAttemptAfter) {
		return false, nil // NotReady
	}

	id := pm.Message.ID()
	delivered, err := m.Provider.Delivered(ctx, id)
	if err != nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: query delivered: %w", err))
	}
	if delivered {
		pm.State = StateSubmitted
		pm.NextAttemptAfter = m.clock().Add(m.ConfirmDelay)
		return true, nil
	}

	isContract, err := m.Provider.IsContract(ctx, pm.Recipient)
	if err != nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: is_contract: %w", err))
	}
	if !isContract {
		pm.State = StateDropped
		return true, nil
	}

	metadata, err := m.Builder.Build(ctx, pm.Recipient, pm.Message, messageIndex, hi)
	if err != nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: build ism metadata: %w", err))
	}
	if metadata == nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: ism metadata unavailable"))
	}

	estimatedGas, err := m.Provider.ProcessEstimateCosts(ctx, pm.Message, metadata)
	if err != nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: estimate process cost: %w", err))
	}

	candidate := matchlist.Candidate{
		Origin:      pm.Message.Origin,
		Sender:      pm.Message.Sender,
		Destination: pm.Message.Destination,
		Recipient:   pm.Message.Recipient,
	}
	gasLimit, err := m.Enforcer.Evaluate(ctx, gaspolicy.Request{
		Message:           pm.Message,
		Candidate:         candidate,
		EstimatedGasLimit: estimatedGas,
	})
	if err != nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: gas enforcement: %w", err))
	}
	if gasLimit == nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: gas payment not yet sufficient"))
	}
	if m.GasLimitCap != 0 && *gasLimit > m.GasLimitCap {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: gas limit %d exceeds cap %d", *gasLimit, m.GasLimitCap))
	}

	pm.SubmissionData = &SubmissionData{Metadata: metadata, GasLimit: *gasLimit}
	pm.State = StatePrepared
	return true, nil
}

// Submit implements the submit() stage of spec 4.10.
func (m *Machine) Submit(ctx context.Context, pm *PendingMessage) (bool, error) {
	if pm.State == StateSubmitted {
		return true, nil
	}
	if pm.SubmissionData == nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: submit called with no submission data"))
	}

	outcome, err := m.Provider.Process(ctx, pm.Message, pm.SubmissionData.Metadata, pm.SubmissionData.GasLimit)
	if err != nil {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: process: %w", err))
	}
	if !outcome.Executed {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: process reverted"))
	}

	pm.State = StateSubmitted
	pm.Retries = 0
	pm.NextAttemptAfter = m.clock().Add(m.ConfirmDelay)

	if m.Store != nil {
		if err := m.Store.StorePendingMessageRetryCount(ctx, pm.Message.ID(), 0); err != nil {
			return false, Critical(fmt.Errorf("pendingmessage: persist reset retry count: %w", err))
		}
	}
	return true, nil
}

// Confirm implements the confirm() stage of spec 4.10.
func (m *Machine) Confirm(ctx context.Context, pm *PendingMessage) (bool, error) {
	if m.clock().Before(pm.NextAttemptAfter) {
		return false, nil // NotReady
	}

	delivered, err := m.Provider.Delivered(ctx, pm.Message.ID())
	if err != nil {
		return m.notReady(ctx, pm, fmt.Errorf("pendingmessage: query delivered during confirm: %w", err))
	}
	if !delivered {
		return m.reprepare(ctx, pm, fmt.Errorf("pendingmessage: not yet delivered"))
	}

	// Commit point: once this returns without error the message is never
	// retried, even after restart, short of wiping the store.
	if m.Store != nil {
		if err := m.Store.MarkNonceAsProcessed(ctx, pm.Message.Nonce); err != nil {
			return false, Critical(fmt.Errorf("pendingmessage: record message process success: %w", err))
		}
	}
	pm.State = StateConfirmed
	return true, nil
}
