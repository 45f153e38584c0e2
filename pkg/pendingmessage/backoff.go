// Copyright 2025 Hyperlane
//
// Backoff schedule for the pending-message state machine, per spec
// section 4.10.
package pendingmessage

import "time"

// Backoff returns the delay before the next attempt given the number of
// retries already recorded, per the stepped/linear schedule of spec
// section 4.10.
func Backoff(retries uint32) time.Duration {
	switch {
	case retries < 1:
		return 0
	case retries < 12:
		return 10 * time.Second
	case retries < 24:
		return time.Duration(retries-11) * 90 * time.Second
	case retries < 36:
		return 30 * time.Minute
	case retries < 48:
		return 60 * time.Minute
	default:
		return 3 * time.Hour
	}
}
