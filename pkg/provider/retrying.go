// Copyright 2025 Hyperlane
//
// Retrying wraps a Provider with exponential backoff, per spec section 5:
// base 50 ms, doubling, max 6 attempts, except for methods explicitly
// excluded from retry. Grounded on original_source's retrying.rs
// (rust/hyperlane-base/src/types/retrying.rs, see original_source/_INDEX.md),
// translated into the teacher's for-loop-with-sleep retry idiom rather than
// its combinator style.
package provider

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperlane-xyz/hyperlane-core-go/pkg/types"
)

const (
	retryBaseDelay = 50 * time.Millisecond
	maxAttempts    = 6
)

// Retrying wraps a Provider, retrying read methods with exponential
// backoff. Raw-tx submission, gas estimation, and process() are
// non-retriable per spec section 5: a caller must not resubmit a
// transaction blindly, since a failed attempt may still land on-chain.
type Retrying struct {
	inner Provider
}

// NewRetrying wraps inner.
func NewRetrying(inner Provider) *Retrying {
	return &Retrying{inner: inner}
}

func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, lastErr
}

func (r *Retrying) GetBlockByHash(ctx context.Context, hash types.H256) (*Block, error) {
	return withRetry(ctx, func() (*Block, error) { return r.inner.GetBlockByHash(ctx, hash) })
}

func (r *Retrying) GetTxnByHash(ctx context.Context, hash types.H256) (*Transaction, error) {
	return withRetry(ctx, func() (*Transaction, error) { return r.inner.GetTxnByHash(ctx, hash) })
}

func (r *Retrying) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	return withRetry(ctx, func() (bool, error) { return r.inner.IsContract(ctx, addr) })
}

func (r *Retrying) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) {
	return withRetry(ctx, func() (uint64, error) { return r.inner.GetFinalizedBlockNumber(ctx) })
}

func (r *Retrying) Delivered(ctx context.Context, messageID types.H256) (bool, error) {
	return withRetry(ctx, func() (bool, error) { return r.inner.Delivered(ctx, messageID) })
}

// ProcessEstimateCosts is not retried: a transient RPC failure during
// estimation should surface immediately rather than risk masking a revert
// behind a retried "success".
func (r *Retrying) ProcessEstimateCosts(ctx context.Context, message types.Message, metadata []byte) (uint64, error) {
	return r.inner.ProcessEstimateCosts(ctx, message, metadata)
}

// Process is not retried: resubmitting a process() call risks a double
// spend of gas on a transaction that may have already landed.
func (r *Retrying) Process(ctx context.Context, message types.Message, metadata []byte, gasLimit uint64) (TxOutcome, error) {
	return r.inner.Process(ctx, message, metadata, gasLimit)
}
