package transport

import (
	"testing"
	"time"
)

func TestBackoffGrowth(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial:    10 * time.Millisecond,
		Max:        80 * time.Millisecond,
		Multiplier: 2,
		Jitter:     -1, // deterministic
	})

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		80 * time.Millisecond, // capped
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() call %d = %v, want %v", i+1, got, w)
		}
	}
	if got := b.Attempts(); got != len(want) {
		t.Errorf("Attempts() = %d, want %d", got, len(want))
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial: 10 * time.Millisecond,
		Max:     time.Second,
		Jitter:  -1,
	})

	b.Next()
	b.Next()
	b.Reset()

	if got := b.Attempts(); got != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", got)
	}
	if got := b.Next(); got != 10*time.Millisecond {
		t.Errorf("Next() after Reset = %v, want initial 10ms", got)
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoffWithConfig(BackoffConfig{
		Initial: 100 * time.Millisecond,
		Max:     100 * time.Millisecond,
		Jitter:  0.5,
	})

	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := b.Next()
		if got < base || got > base+base/2 {
			t.Fatalf("jittered delay %v outside [%v, %v]", got, base, base+base/2)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff()
	first := b.Next()
	if first < DefaultInitialBackoff {
		t.Errorf("first delay %v below initial %v", first, DefaultInitialBackoff)
	}
	if max := time.Duration(float64(DefaultInitialBackoff) * (1 + DefaultJitterFactor)); first > max {
		t.Errorf("first delay %v above jitter bound %v", first, max)
	}
}
