// Copyright 2025 Hyperlane

package pendingmessage

import (
	"testing"
	"time"
)

func TestBackoffSchedule(t *testing.T) {
	cases := []struct {
		retries uint32
		want    time.Duration
	}{
		{0, 0},
		{1, 10 * time.Second},
		{11, 10 * time.Second},
		{12, 90 * time.Second},
		{13, 2 * 90 * time.Second},
		{23, 12 * 90 * time.Second},
		{24, 30 * time.Minute},
		{35, 30 * time.Minute},
		{36, 60 * time.Minute},
		{47, 60 * time.Minute},
		{48, 3 * time.Hour},
		{1000, 3 * time.Hour},
	}
	for _, c := range cases {
		if got := Backoff(c.retries); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.retries, got, c.want)
		}
	}
}
