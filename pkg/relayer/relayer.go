// Copyright 2025 Hyperlane
//
// Relayer Orchestrator (C12): wires the contract-sync cursors, message
// store, ISM metadata builder, gas-payment enforcer, op-queue, and pending-
// message state machine together per origin/destination pair, per spec
// section 4.12. Grounded on the teacher's supervisor shape (a set of
// long-lived tasks joined with first-of-any-exit shutdown semantics),
// rebuilt here over golang.org/x/sync/errgroup per spec section 5's
// cancellation model instead of the teacher's bespoke channel plumbing.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/config"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/contractsync"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/indexer"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/matchlist"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/msgstore"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/opqueue"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/pendingmessage"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/provider"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// ChainRuntime bundles the per-chain collaborators the orchestrator needs.
// Origin chains populate DispatchIndexer/GasPaymentIndexer; destination
// chains populate IsmBuilder/GasEnforcer. A chain used as both supplies
// all four. IsmBuilder and GasEnforcer are expressed as the narrow
// interfaces pkg/pendingmessage depends on (rather than the concrete
// pkg/ismmetadata.Builder / pkg/gaspolicy.Enforcer types) so tests can
// substitute fakes without constructing a full ISM resolver or price
// oracle.
type ChainRuntime struct {
	Domain            types.Domain
	Provider          provider.Provider
	DispatchIndexer   indexer.SequenceAwareIndexer[types.Message]
	GasPaymentIndexer indexer.Indexer[types.InterchainGasPayment]
	IsmBuilder        pendingmessage.IsmMetadataBuilder
	GasEnforcer       pendingmessage.GasEnforcer
	MessageStore      *msgstore.Store
	ChunkSize         uint64
}

// Orchestrator runs the full relayer pipeline for one origin chain against
// every other configured chain as a destination.
type Orchestrator struct {
	Origin     types.Domain
	Chains     map[types.Domain]*ChainRuntime
	Whitelist  config.MatchingList
	Blacklist  config.MatchingList
	GasLimit   uint64
	PollPeriod time.Duration
	Logger     *log.Logger

	queues map[types.Domain]*opqueue.Queue
}

// New builds an Orchestrator. chains must include an entry keyed by
// origin.
func New(origin types.Domain, chains map[types.Domain]*ChainRuntime, whitelist, blacklist config.MatchingList, logger *log.Logger) (*Orchestrator, error) {
	if _, ok := chains[origin]; !ok {
		return nil, fmt.Errorf("relayer: origin domain %d not present in chains", origin)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[relayer] ", log.LstdFlags)
	}
	queues := make(map[types.Domain]*opqueue.Queue, len(chains))
	for domain := range chains {
		if domain == origin {
			continue
		}
		queues[domain] = opqueue.New(256)
	}
	return &Orchestrator{
		Origin:     origin,
		Chains:     chains,
		Whitelist:  whitelist,
		Blacklist:  blacklist,
		PollPeriod: 5 * time.Second,
		Logger:     logger,
		queues:     queues,
	}, nil
}

// Run spawns the dispatch/gas-payment sync tasks, the message processor,
// and one submitter task per destination, joining them with first-of-any
// shutdown semantics per spec section 5: when any task exits, the rest are
// cancelled and the first non-nil result is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	origin := o.Chains[o.Origin]

	g.Go(func() error { return o.runDispatchSync(gctx, origin) })
	if origin.GasPaymentIndexer != nil {
		g.Go(func() error { return o.runGasPaymentSync(gctx, origin) })
	}
	g.Go(func() error { return o.runMessageProcessor(gctx, origin) })

	for domain, chain := range o.Chains {
		if domain == o.Origin {
			continue
		}
		chain := chain
		domain := domain
		g.Go(func() error { return o.runSubmitter(gctx, domain, chain) })
	}

	return g.Wait()
}

// runDispatchSync drives a forward sequence-aware cursor over the origin's
// dispatch indexer, persisting every ingested message into C4, per spec
// section 4.12 step 2(a).
func (o *Orchestrator) runDispatchSync(ctx context.Context, origin *ChainRuntime) error {
	if origin.DispatchIndexer == nil {
		return o.idle(ctx)
	}
	chunk := origin.ChunkSize
	if chunk == 0 {
		chunk = 1000
	}
	cursor := contractsync.NewForwardCursor(
		contractsync.SyncState{ChunkSize: chunk, Mode: indexer.ModeSequences},
		origin.DispatchIndexer,
		origin.MessageStore,
	)
	onIngest := func(il types.Indexed[types.Message], meta types.LogMeta) error {
		_, err := origin.MessageStore.StoreMessage(ctx, il.Value, meta)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, sleep, err := cursor.Update(ctx, onIngest)
		if err != nil {
			return fmt.Errorf("relayer: dispatch sync: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// runGasPaymentSync drives a watermarked cursor over the origin's gas
// payment indexer, per spec section 4.12 step 2(b). Payments are not
// currently threaded into the gas enforcer's ledger here; that wiring
// point is the enforcer's RecordOutcome/ledger, left to the concrete
// PriceOracle/ledger implementation a deployment chooses.
func (o *Orchestrator) runGasPaymentSync(ctx context.Context, origin *ChainRuntime) error {
	chunk := origin.ChunkSize
	if chunk == 0 {
		chunk = 1000
	}
	cursor, err := contractsync.NewWatermarkedCursor[types.InterchainGasPayment](
		ctx, fmt.Sprintf("gaspayment:%d", origin.Domain),
		contractsync.SyncState{ChunkSize: chunk},
		origin.GasPaymentIndexer,
		origin.MessageStore,
	)
	if err != nil {
		return fmt.Errorf("relayer: gas payment sync init: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, sleep, err := cursor.Update(ctx, nil)
		if err != nil {
			return fmt.Errorf("relayer: gas payment sync: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (o *Orchestrator) idle(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// runMessageProcessor reads the origin's message store in nonce order,
// applies the whitelist/blacklist, and pushes eligible messages onto each
// destination's op-queue, per spec section 4.12 step 2(c).
func (o *Orchestrator) runMessageProcessor(ctx context.Context, origin *ChainRuntime) error {
	var nextNonce uint32
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := origin.MessageStore.RetrieveMessageByNonce(ctx, nextNonce)
		if err != nil {
			return fmt.Errorf("relayer: retrieve message %d: %w", nextNonce, err)
		}
		if msg == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		candidate := matchlist.Candidate{
			Origin:      msg.Origin,
			Sender:      msg.Sender,
			Destination: msg.Destination,
			Recipient:   msg.Recipient,
		}
		if matchlist.Allowed(o.Whitelist, o.Blacklist, candidate) {
			if queue, ok := o.queues[msg.Destination]; ok {
				queue.Push(&opqueue.Op{
					MessageID:   msg.ID(),
					Nonce:       msg.Nonce,
					Destination: msg.Destination,
					Context:     "relay",
				})
			} else {
				o.Logger.Printf("no configured route for destination domain %d, dropping message %d", msg.Destination, msg.Nonce)
			}
		} else {
			o.Logger.Printf("message %d filtered by matching list", msg.Nonce)
		}

		nextNonce++
	}
}

// runSubmitter drains destination's op-queue: pop, then run
// prepare/submit/confirm, reinserting between stages with the stage's
// scheduled backoff, per spec section 4.12 step 3.
func (o *Orchestrator) runSubmitter(ctx context.Context, destination types.Domain, chain *ChainRuntime) error {
	machine := pendingmessage.NewMachine(chain.Provider, chain.IsmBuilder, chain.GasEnforcer, o.Chains[o.Origin].MessageStore)
	machine.GasLimitCap = o.GasLimit
	queue := o.queues[destination]
	pending := make(map[types.H256]*pendingmessage.PendingMessage)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		op := queue.Pop()
		if op == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		pm, ok := pending[op.MessageID]
		if !ok {
			msg, err := o.Chains[o.Origin].MessageStore.RetrieveMessageByNonce(ctx, op.Nonce)
			if err != nil {
				return fmt.Errorf("relayer: retrieve message for submitter %d: %w", op.Nonce, err)
			}
			if msg == nil {
				continue
			}
			pm, err = seedPendingMessage(ctx, o.Chains[o.Origin].MessageStore, *msg)
			if err != nil {
				return fmt.Errorf("relayer: seed pending message %d: %w", op.Nonce, err)
			}
			pending[op.MessageID] = pm
		}

		if err := o.advance(ctx, machine, pm, op); err != nil {
			var classified *pendingmessage.ClassifiedError
			if errors.As(err, &classified) && classified.Kind == pendingmessage.KindCritical {
				return fmt.Errorf("relayer: critical failure processing message %d: %w", op.Nonce, err)
			}
			o.Logger.Printf("message %d: %v", op.Nonce, err)
		}

		if pm.State == pendingmessage.StateConfirmed || pm.State == pendingmessage.StateDropped {
			delete(pending, op.MessageID)
			continue
		}

		op.NextAttemptAfter = &pm.NextAttemptAfter
		queue.Push(op)
	}
}

// seedPendingMessage builds the PendingMessage a submitter tracks a message
// with, loading any retry count persisted by a prior process (e.g. before a
// restart) so the message resumes its backoff schedule rather than
// hot-looping from retry zero, per spec section 4.10's persisted-retry-count
// requirement and invariant 7.
func seedPendingMessage(ctx context.Context, store *msgstore.Store, msg types.Message) (*pendingmessage.PendingMessage, error) {
	pm := &pendingmessage.PendingMessage{Message: msg, Recipient: msg.RecipientAddress()}

	retries, err := store.RetrievePendingMessageRetryCount(ctx, msg.ID())
	if err != nil {
		return nil, fmt.Errorf("retrieve retry count: %w", err)
	}
	if retries != nil && *retries > 0 {
		pm.Retries = *retries
		pm.NextAttemptAfter = time.Now().Add(pendingmessage.Backoff(*retries))
	}
	return pm, nil
}

func (o *Orchestrator) advance(ctx context.Context, machine *pendingmessage.Machine, pm *pendingmessage.PendingMessage, op *opqueue.Op) error {
	switch pm.State {
	case pendingmessage.StateUnprepared:
		_, err := machine.Prepare(ctx, pm, op.Nonce, op.Nonce)
		return err
	case pendingmessage.StatePrepared:
		_, err := machine.Submit(ctx, pm)
		return err
	case pendingmessage.StateSubmitted:
		_, err := machine.Confirm(ctx, pm)
		return err
	default:
		return nil
	}
}
