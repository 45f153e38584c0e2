// Copyright 2025 Hyperlane
//
// Rate limiter shared by all three cursor variants. NextSleep paces
// catch-up at 100 ms between ranges while the cursor is more than one chunk
// behind the tip, and returns 10 s once it is within one chunk, whether or
// not the tip has advanced. ShouldRefreshTip gates a 30 s tip-refresh
// cadence with golang.org/x/time/rate; the cursors in this package do not
// call it and query the tip on every Update.
package contractsync

import (
	"time"

	"golang.org/x/time/rate"
)

const (
	catchUpSleep     = 100 * time.Millisecond
	tipRefreshPeriod = 30 * time.Second
	tipStallSleep    = 10 * time.Second
)

// RateLimiter tracks when the tip was last refreshed so a cursor running
// near the chain head doesn't hot-poll it.
type RateLimiter struct {
	tipRefresh *rate.Limiter
	lastTip    uint64
}

// NewRateLimiter builds a RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{tipRefresh: rate.NewLimiter(rate.Every(tipRefreshPeriod), 1)}
}

// NextSleep returns how long to sleep before the next range, given the
// cursor's current position, chunk size, and the last known tip.
func (r *RateLimiter) NextSleep(nextBlock, chunk, tip uint64) time.Duration {
	if nextBlock+chunk < tip {
		return catchUpSleep
	}
	return tipStallSleep
}

// ShouldRefreshTip reports whether the tip-refresh limiter has a token
// available, when the cursor is within one chunk of the tip (the catch-up
// path refreshes the tip on every range instead). A true result consumes
// the token; the next one isn't available until tipRefreshPeriod later.
func (r *RateLimiter) ShouldRefreshTip() bool {
	return r.tipRefresh.Allow()
}

// RecordTip remembers the most recently observed tip.
func (r *RateLimiter) RecordTip(tip uint64) {
	r.lastTip = tip
}

// LastTip returns the most recently recorded tip.
func (r *RateLimiter) LastTip() uint64 { return r.lastTip }
