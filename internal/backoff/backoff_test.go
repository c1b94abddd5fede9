package backoff

import (
	"testing"
	"time"
)

func TestJitter_ExponentialGrowth(t *testing.T) {
	base := 50 * time.Millisecond
	cap := 2 * time.Second

	for _, tc := range []struct {
		attempt int
		maxCap  time.Duration
	}{
		{0, 50 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1600 * time.Millisecond},
		{6, 2 * time.Second},  // capped
		{12, 2 * time.Second}, // capped
	} {
		for range 1000 {
			d := Jitter(tc.attempt, base, cap)
			if d > tc.maxCap {
				t.Errorf("Jitter(%d) = %v, exceeds expected cap %v", tc.attempt, d, tc.maxCap)
			}
		}
	}
}

func TestJitter_MinimumFloor(t *testing.T) {
	const floor = 10 * time.Millisecond
	base := 50 * time.Millisecond
	cap := 2 * time.Second

	for range 1000 {
		d := Jitter(0, base, cap)
		if d < floor {
			t.Fatalf("attempt 0: got %v, want >= %v", d, floor)
		}
	}
}

func TestJitter_OverflowGuard(t *testing.T) {
	base := time.Hour
	cap := 30 * time.Second

	for range 1000 {
		d := Jitter(60, base, cap)
		if d < 0 || d >= cap {
			t.Fatalf("attempt 60: got %v, want [0, %v)", d, cap)
		}
	}
}
