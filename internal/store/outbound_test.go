package store

import (
	"testing"
	"time"
)

func TestBackoffDuration(t *testing.T) {
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 16 * time.Minute},
		{6, 16 * time.Minute}, // capped
		{100, 16 * time.Minute},
	}
	for _, c := range cases {
		if got := backoffDuration(c.attempts); got != c.want {
			t.Errorf("backoffDuration(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}
