// Package pacing slows bulk request streams down, either at a fixed
// interval or adaptively when the backend starts failing.
package pacing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Pacer gates the start of individual operations in a bulk run.
// Implementations must be safe for concurrent use by fan-out workers.
type Pacer interface {
	// Wait blocks until the next operation may start, or the context ends.
	Wait(ctx context.Context)

	// Observe records the outcome of a completed operation.
	Observe(success bool)
}

// None returns a pacer that never waits.
func None() Pacer { return nonePacer{} }

type nonePacer struct{}

func (nonePacer) Wait(context.Context) {}
func (nonePacer) Observe(bool)         {}

// Interval spaces operation starts by a fixed duration. Used for fleet
// spawning when a creation interval is requested.
type Interval struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewInterval creates a fixed-interval pacer.
func NewInterval(interval time.Duration) *Interval {
	return &Interval{interval: interval}
}

// Wait implements Pacer.
func (p *Interval) Wait(ctx context.Context) {
	p.mu.Lock()
	now := time.Now()
	if p.next.Before(now) {
		p.next = now
	}
	wait := p.next.Sub(now)
	p.next = p.next.Add(p.interval)
	p.mu.Unlock()

	if wait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

// Observe implements Pacer.
func (p *Interval) Observe(bool) {}

// Adaptive throttles when the recent failure ratio crosses a threshold,
// pausing each operation start while the backend is struggling.
type Adaptive struct {
	mu        sync.Mutex
	window    []bool
	size      int
	threshold float64
	pause     time.Duration
}

// NewAdaptive creates an adaptive pacer over a sliding window of the last
// windowSize outcomes. When the failure ratio reaches threshold, every
// Wait pauses for the given duration.
func NewAdaptive(windowSize int, threshold float64, pause time.Duration) *Adaptive {
	if windowSize <= 0 {
		windowSize = 50
	}
	if pause <= 0 {
		pause = 500 * time.Millisecond
	}
	return &Adaptive{
		size:      windowSize,
		threshold: threshold,
		pause:     pause,
	}
}

// Wait implements Pacer.
func (a *Adaptive) Wait(ctx context.Context) {
	if !a.throttled() {
		return
	}

	log.Debug().
		Float64("failure_ratio", a.failureRatio()).
		Dur("pause", a.pause).
		Msg("Throttling bulk operation")

	select {
	case <-ctx.Done():
	case <-time.After(a.pause):
	}
}

// Observe implements Pacer.
func (a *Adaptive) Observe(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = append(a.window, success)
	if len(a.window) > a.size {
		a.window = a.window[len(a.window)-a.size:]
	}
}

func (a *Adaptive) throttled() bool {
	return a.failureRatio() >= a.threshold
}

func (a *Adaptive) failureRatio() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.window) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range a.window {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(a.window))
}
