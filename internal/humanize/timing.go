// Package humanize provides human-like pacing for browser interactions.
// Profile pages aggressively fingerprint automation; jittered delays and
// smooth scrolling keep the scraper inside normal behavioral bounds.
package humanize

import (
	"context"
	"math/rand"
	"time"
)

// TimingConfig contains configuration for humanized timing behavior.
type TimingConfig struct {
	// Delay before interacting with a freshly loaded page (milliseconds)
	SettleDelayMinMs int
	SettleDelayMaxMs int

	// Dwell time between scroll rounds (milliseconds)
	ScrollDwellMinMs int
	ScrollDwellMaxMs int
}

// DefaultTimingConfig returns sensible defaults for human-like timing.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		SettleDelayMinMs: 500,
		SettleDelayMaxMs: 1200,
		ScrollDwellMinMs: 800,
		ScrollDwellMaxMs: 2000,
	}
}

// Timing provides humanized timing utilities.
type Timing struct {
	config TimingConfig
}

// NewTiming creates a new timing utility with default config.
func NewTiming() *Timing {
	return &Timing{config: DefaultTimingConfig()}
}

// NewTimingWithConfig creates a new timing utility with custom config.
func NewTimingWithConfig(config TimingConfig) *Timing {
	return &Timing{config: config}
}

// SettleDelay returns a random pause to take after page load, before any
// interaction.
func (t *Timing) SettleDelay() time.Duration {
	return RandomDuration(t.config.SettleDelayMinMs, t.config.SettleDelayMaxMs)
}

// ScrollDwell returns a random reading pause between scroll rounds.
func (t *Timing) ScrollDwell() time.Duration {
	return RandomDuration(t.config.ScrollDwellMinMs, t.config.ScrollDwellMaxMs)
}

// RandomDuration returns a random duration between min and max milliseconds.
func RandomDuration(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + rand.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// SleepWithContext sleeps for the specified duration or until the context is
// canceled. Returns true if the sleep completed normally.
// Uses time.NewTimer instead of time.After to prevent timer leak.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// SleepWithJitter sleeps for the given duration plus/minus a random jitter.
// jitterPercent is the maximum jitter as a percentage (0.0 to 1.0).
// For example, SleepWithJitter(ctx, 1*time.Second, 0.2) sleeps for 0.8s-1.2s.
func SleepWithJitter(ctx context.Context, base time.Duration, jitterPercent float64) bool {
	if jitterPercent < 0 {
		jitterPercent = 0
	}
	if jitterPercent > 1 {
		jitterPercent = 1
	}

	jitterRange := float64(base) * jitterPercent
	jitter := (rand.Float64()*2 - 1) * jitterRange

	duration := time.Duration(float64(base) + jitter)
	if duration < 0 {
		duration = 0
	}

	return SleepWithContext(ctx, duration)
}

// RandomWait waits for a random duration between min and max milliseconds.
func RandomWait(ctx context.Context, minMs, maxMs int) bool {
	return SleepWithContext(ctx, RandomDuration(minMs, maxMs))
}
