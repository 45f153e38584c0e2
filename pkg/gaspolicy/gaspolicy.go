// Copyright 2025 Hyperlane
//
// Gas-Payment Enforcer (C13): per spec section 4.13, decides whether a
// message's cumulative interchain gas payment justifies submission.
// Grounded on the teacher's credit-checking pattern (an ordered list of
// policies evaluated against a request, the first matching one winning)
// generalized from a single allow/deny decision to the three-way
// none/minimum/meets-estimated-cost policy set and an Option<gas_limit>
// result.
package gaspolicy

import (
	"context"
	"fmt"
	"log"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/config"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/matchlist"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

// Request bundles everything a Policy needs to decide.
type Request struct {
	Message              types.Message
	Candidate            matchlist.Candidate
	CumulativePaymentWei uint64
	EstimatedGasLimit    uint64
	EstimatedGasPriceWei uint64
}

// PriceOracle supplies the native token price used by MeetsEstimatedCost.
// Implementations wrap a quote source (e.g. CoinGecko) keyed by the
// enforcement policy's CoingeckoAPIKey.
type PriceOracle interface {
	NativeTokenPriceUSD(ctx context.Context, domain types.Domain) (float64, error)
	GasPriceUSD(ctx context.Context, domain types.Domain, gasPriceWei uint64) (float64, error)
}

// Policy evaluates a Request and returns the gas limit to submit with, or
// nil if the message is not yet sufficiently paid for.
type Policy interface {
	Evaluate(ctx context.Context, req Request) (*uint64, error)
}

// NonePolicy always permits submission, using the estimated gas limit as the
// cap.
type NonePolicy struct{}

func (NonePolicy) Evaluate(_ context.Context, req Request) (*uint64, error) {
	limit := req.EstimatedGasLimit
	return &limit, nil
}

// MinimumPolicy permits submission once the cumulative payment reaches a
// fixed threshold.
type MinimumPolicy struct {
	PaymentWei uint64
}

func (p MinimumPolicy) Evaluate(_ context.Context, req Request) (*uint64, error) {
	if req.CumulativePaymentWei < p.PaymentWei {
		return nil, nil
	}
	limit := req.EstimatedGasLimit
	return &limit, nil
}

// MeetsEstimatedCostPolicy permits submission once the payment's USD value,
// at current native token price, covers the estimated gas cost in USD.
type MeetsEstimatedCostPolicy struct {
	Oracle PriceOracle
}

func (p MeetsEstimatedCostPolicy) Evaluate(ctx context.Context, req Request) (*uint64, error) {
	paidUSD, err := p.Oracle.GasPriceUSD(ctx, req.Message.Origin, req.CumulativePaymentWei)
	if err != nil {
		return nil, fmt.Errorf("gaspolicy: price paid amount: %w", err)
	}
	costUSD, err := p.Oracle.GasPriceUSD(ctx, req.Message.Destination, req.EstimatedGasLimit*req.EstimatedGasPriceWei)
	if err != nil {
		return nil, fmt.Errorf("gaspolicy: price estimated cost: %w", err)
	}
	if paidUSD < costUSD {
		return nil, nil
	}
	limit := req.EstimatedGasLimit
	return &limit, nil
}

// Outcome records the result of a submission attempt, fed back to the
// Enforcer for auditability (spec 4.13).
type Outcome struct {
	MessageID types.H256
	Success   bool
	GasUsed   uint64
	Revert    string
}

// Enforcer evaluates messages against an ordered list of (matching list,
// policy) entries, the first whose matching list matches a message
// governing it, per the config's gasPaymentEnforcement ordering.
type Enforcer struct {
	entries []entry
	logger  *log.Logger
}

type entry struct {
	matching config.MatchingList
	policy   Policy
}

// NewEnforcer builds an Enforcer from the config's ordered policy list. A
// nil matching list on an entry matches every message, so it is typically
// reserved for the last entry as a catch-all.
func NewEnforcer(policies []config.GasPaymentEnforcementPolicy, oracle PriceOracle, logger *log.Logger) (*Enforcer, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[gaspolicy] ", log.LstdFlags)
	}
	entries := make([]entry, 0, len(policies))
	for i, p := range policies {
		policy, err := buildPolicy(p, oracle)
		if err != nil {
			return nil, fmt.Errorf("gaspolicy: entry %d: %w", i, err)
		}
		entries = append(entries, entry{matching: p.MatchingList, policy: policy})
	}
	return &Enforcer{entries: entries, logger: logger}, nil
}

func buildPolicy(p config.GasPaymentEnforcementPolicy, oracle PriceOracle) (Policy, error) {
	switch p.Policy {
	case "none", "":
		return NonePolicy{}, nil
	case "minimum":
		return MinimumPolicy{PaymentWei: p.MinimumPayment}, nil
	case "onChainFeeQuoting":
		if oracle == nil {
			return nil, fmt.Errorf("onChainFeeQuoting policy requires a PriceOracle")
		}
		return MeetsEstimatedCostPolicy{Oracle: oracle}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", p.Policy)
	}
}

// Evaluate finds the first entry whose matching list matches req and
// delegates to its policy. A request matching no entry is denied.
func (e *Enforcer) Evaluate(ctx context.Context, req Request) (*uint64, error) {
	for _, en := range e.entries {
		if en.matching == nil || matchlist.MatchWhitelist(en.matching, req.Candidate) {
			return en.policy.Evaluate(ctx, req)
		}
	}
	return nil, nil
}

// RecordOutcome logs a submission's result for auditability. A future
// Recorder interface could fan this out to a persistent audit sink; for now
// the enforcer's logger is the sink, matching the teacher's audit-by-log
// convention for credit decisions.
func (e *Enforcer) RecordOutcome(outcome Outcome) {
	if outcome.Success {
		e.logger.Printf("message %s submitted: gas_used=%d", outcome.MessageID, outcome.GasUsed)
		return
	}
	e.logger.Printf("message %s reverted: %s", outcome.MessageID, outcome.Revert)
}
