package humanize

import (
	"context"
	"testing"
	"time"
)

func TestRandomDuration(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := RandomDuration(100, 300)
		if d < 100*time.Millisecond || d > 300*time.Millisecond {
			t.Fatalf("RandomDuration(100, 300) = %v, out of range", d)
		}
	}
}

func TestRandomDurationDegenerateRange(t *testing.T) {
	if d := RandomDuration(200, 200); d != 200*time.Millisecond {
		t.Errorf("Expected fixed 200ms, got %v", d)
	}
	if d := RandomDuration(300, 100); d != 300*time.Millisecond {
		t.Errorf("Inverted range should return min, got %v", d)
	}
}

func TestSleepWithContext(t *testing.T) {
	if !SleepWithContext(context.Background(), 10*time.Millisecond) {
		t.Error("Uncanceled sleep should complete")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if SleepWithContext(ctx, 10*time.Second) {
		t.Error("Canceled sleep should report interruption")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Canceled sleep should return promptly, took %v", elapsed)
	}
}

func TestSleepWithJitter(t *testing.T) {
	// Jitter clamps keep the duration non-negative even with extreme input.
	if !SleepWithJitter(context.Background(), time.Millisecond, 5.0) {
		t.Error("Jittered sleep should complete")
	}
	if !SleepWithJitter(context.Background(), time.Millisecond, -1.0) {
		t.Error("Negative jitter percent should be treated as zero")
	}
}

func TestTimingDefaults(t *testing.T) {
	timing := NewTiming()

	for i := 0; i < 50; i++ {
		if d := timing.SettleDelay(); d < 500*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("SettleDelay() = %v, out of range", d)
		}
		if d := timing.ScrollDwell(); d < 800*time.Millisecond || d > 2*time.Second {
			t.Fatalf("ScrollDwell() = %v, out of range", d)
		}
	}
}

func TestTimingWithConfig(t *testing.T) {
	timing := NewTimingWithConfig(TimingConfig{
		SettleDelayMinMs: 1,
		SettleDelayMaxMs: 2,
		ScrollDwellMinMs: 3,
		ScrollDwellMaxMs: 4,
	})
	if d := timing.SettleDelay(); d > 2*time.Millisecond {
		t.Errorf("Custom settle delay out of range: %v", d)
	}
	if d := timing.ScrollDwell(); d < 3*time.Millisecond || d > 4*time.Millisecond {
		t.Errorf("Custom scroll dwell out of range: %v", d)
	}
}
