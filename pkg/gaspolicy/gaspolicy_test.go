// Copyright 2025 Hyperlane

package gaspolicy

import (
	"context"
	"testing"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/config"
	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

func TestNonePolicyAlwaysPermits(t *testing.T) {
	enforcer, err := NewEnforcer([]config.GasPaymentEnforcementPolicy{{Policy: "none"}}, nil, nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	limit, err := enforcer.Evaluate(context.Background(), Request{EstimatedGasLimit: 100000})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if limit == nil || *limit != 100000 {
		t.Fatalf("limit = %v, want 100000", limit)
	}
}

func TestMinimumPolicyDeniesBelowThreshold(t *testing.T) {
	enforcer, err := NewEnforcer([]config.GasPaymentEnforcementPolicy{
		{Policy: "minimum", MinimumPayment: 1000},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	limit, err := enforcer.Evaluate(context.Background(), Request{CumulativePaymentWei: 500, EstimatedGasLimit: 100000})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if limit != nil {
		t.Fatalf("expected denial below threshold, got limit %v", *limit)
	}
}

func TestMinimumPolicyPermitsAtThreshold(t *testing.T) {
	enforcer, err := NewEnforcer([]config.GasPaymentEnforcementPolicy{
		{Policy: "minimum", MinimumPayment: 1000},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	limit, err := enforcer.Evaluate(context.Background(), Request{CumulativePaymentWei: 1000, EstimatedGasLimit: 100000})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if limit == nil {
		t.Fatal("expected permission at threshold")
	}
}

type stubOracle struct {
	paidUSD float64
	costUSD float64
}

func (s stubOracle) NativeTokenPriceUSD(context.Context, types.Domain) (float64, error) {
	return 1, nil
}

func (s stubOracle) GasPriceUSD(_ context.Context, domain types.Domain, _ uint64) (float64, error) {
	if domain == 1 {
		return s.paidUSD, nil
	}
	return s.costUSD, nil
}

func TestMeetsEstimatedCostPolicy(t *testing.T) {
	enforcer, err := NewEnforcer([]config.GasPaymentEnforcementPolicy{
		{Policy: "onChainFeeQuoting"},
	}, stubOracle{paidUSD: 5, costUSD: 3}, nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	msg := types.Message{Origin: 1, Destination: 2}
	limit, err := enforcer.Evaluate(context.Background(), Request{Message: msg, EstimatedGasLimit: 100000})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if limit == nil {
		t.Fatal("expected permission when paid >= cost")
	}

	denyEnforcer, err := NewEnforcer([]config.GasPaymentEnforcementPolicy{
		{Policy: "onChainFeeQuoting"},
	}, stubOracle{paidUSD: 1, costUSD: 3}, nil)
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	limit, err = denyEnforcer.Evaluate(context.Background(), Request{Message: msg, EstimatedGasLimit: 100000})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if limit != nil {
		t.Fatal("expected denial when paid < cost")
	}
}

func TestUnknownPolicyRejectedAtConstruction(t *testing.T) {
	_, err := NewEnforcer([]config.GasPaymentEnforcementPolicy{{Policy: "bogus"}}, nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
