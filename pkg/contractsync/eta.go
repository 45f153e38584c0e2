// Copyright 2025 Hyperlane
//
// ETA calculator (spec section 4.6.1): a sliding-window moving average of
// blocks_per_second over a 120 s window, used only for reporting, never for
// correctness.
package contractsync

import "time"

const etaWindow = 120 * time.Second

type sample struct {
	at     time.Time
	blocks uint64
}

// ETACalculator maintains a sliding window of (time, blocks processed)
// samples and reports a blocks-per-second rate and remaining-time estimate.
type ETACalculator struct {
	samples []sample
	now     func() time.Time
}

// NewETACalculator builds an empty ETACalculator.
func NewETACalculator() *ETACalculator {
	return &ETACalculator{now: time.Now}
}

// Record adds a sample of blocks processed at the current time and evicts
// samples older than the window.
func (e *ETACalculator) Record(blocksProcessed uint64) {
	now := e.now()
	e.samples = append(e.samples, sample{at: now, blocks: blocksProcessed})
	cutoff := now.Add(-etaWindow)
	i := 0
	for i < len(e.samples) && e.samples[i].at.Before(cutoff) {
		i++
	}
	e.samples = e.samples[i:]
}

// Rate returns the moving-average blocks-per-second over the window, or 0
// if fewer than two samples are available.
func (e *ETACalculator) Rate() float64 {
	if len(e.samples) < 2 {
		return 0
	}
	first, last := e.samples[0], e.samples[len(e.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	var total uint64
	for _, s := range e.samples {
		total += s.blocks
	}
	return float64(total) / elapsed
}

// ETA estimates the time remaining to process remainingBlocks at the
// current rate. Returns 0 if the rate is unknown.
func (e *ETACalculator) ETA(remainingBlocks uint64) time.Duration {
	rate := e.Rate()
	if rate <= 0 {
		return 0
	}
	seconds := float64(remainingBlocks) / rate
	return time.Duration(seconds * float64(time.Second))
}
