package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Pacer enforces a fixed pause between successive calls to an external
// service, optionally adding jitter. Unlike a ticker it measures the pause
// from the moment Wait is called, so slow calls never eat into it.
type Pacer struct {
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	rnd      func() float64
}

// NewPacer creates a pacer that sleeps for interval on every Wait.
// Jitter is a fraction of the interval in [0, 1] added on top of it.
// If interval is <= 0, the pacer does not block.
func NewPacer(interval time.Duration, jitter float64) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Pacer{
		interval: interval,
		jitter:   jitter,
		rnd:      rand.Float64,
	}
}

// Interval returns the configured base pause.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Wait blocks for the configured pause or until the context is canceled.
// A nil Pacer never blocks.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return ctx.Err()
	}

	d := p.interval
	if p.jitter > 0 {
		d += time.Duration(float64(p.interval) * p.jitter * p.rnd())
	}
	return Sleep(ctx, d)
}

// Sleep pauses for d, returning early with the context error if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff computes linearly growing retry delays with bounded jitter:
// Base + attempt*Step + [0, Jitter). Jitter is capped at Step so the
// sequence of delays never decreases from one attempt to the next.
type Backoff struct {
	Base   time.Duration
	Step   time.Duration
	Jitter time.Duration

	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64
}

// Delay returns the pause to observe after the given number of failed
// attempts (1 after the first failure).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	step := b.Step
	if step < 0 {
		step = 0
	}
	d := b.Base + time.Duration(attempt)*step
	if d < 0 {
		d = 0
	}

	jitter := b.Jitter
	if jitter > step {
		jitter = step
	}
	if jitter > 0 {
		rnd := b.Rand
		if rnd == nil {
			rnd = rand.Float64
		}
		d += time.Duration(float64(jitter) * rnd())
	}
	return d
}
