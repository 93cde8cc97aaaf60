package timectrl

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimClock is an interface for reading simulation time, so components can
// depend on a clock abstraction rather than the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Elapsed returns the simulation time advanced since the start.
	Elapsed() time.Duration
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces each tick against the wall clock.
	RealTime Mode = iota
	// Accelerated advances as quickly as listeners return.
	Accelerated
)

// Step is delivered to listeners after every tick.
type Step struct {
	// Index counts ticks from 1 since the last Reset.
	Index   int
	Time    time.Time
	Elapsed time.Duration
	Tick    time.Duration
}

// Listener observes a tick. A non-nil error stops the run.
type Listener func(ctx context.Context, s Step) error

// TimeController drives simulation time in fixed ticks and notifies
// registered listeners in registration order. Runs are synchronous so a
// simulation driven by the controller is deterministic.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time.
	currentTime time.Time
	steps       int

	listeners []Listener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulation time advanced since the start. Implements
// SimClock.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime)
}

// Steps returns the number of ticks taken since the last Reset.
func (tc *TimeController) Steps() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.steps
}

// SetTime moves the clock without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn Listener) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Reset rewinds the clock to StartTime. Listeners stay registered.
func (tc *TimeController) Reset() {
	tc.mu.Lock()
	tc.currentTime = tc.StartTime
	tc.steps = 0
	tc.mu.Unlock()
}

// Run advances n ticks from the current time, calling every listener after
// each tick. It stops early when ctx is cancelled or a listener fails.
func (tc *TimeController) Run(ctx context.Context, n int) error {
	if tc.Tick <= 0 {
		return fmt.Errorf("timectrl: non-positive tick %v", tc.Tick)
	}
	tc.mu.RLock()
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.RUnlock()

	var ticker *time.Ticker
	if tc.Mode == RealTime {
		ticker = time.NewTicker(tc.Tick)
		defer ticker.Stop()
	}

	for i := 0; i < n; i++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		tc.mu.Lock()
		tc.currentTime = tc.currentTime.Add(tc.Tick)
		tc.steps++
		step := Step{
			Index:   tc.steps,
			Time:    tc.currentTime,
			Elapsed: tc.currentTime.Sub(tc.StartTime),
			Tick:    tc.Tick,
		}
		tc.mu.Unlock()

		for _, fn := range listeners {
			if err := fn(ctx, step); err != nil {
				return fmt.Errorf("step %d: %w", step.Index, err)
			}
		}
	}
	return nil
}

// Start runs the controller for the given duration in a separate goroutine.
// The returned channel receives the run's error, or nil, and is then closed.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan error {
	done := make(chan error, 1)
	n := 0
	if tc.Tick > 0 {
		n = int(duration / tc.Tick)
	}
	go func() {
		defer close(done)
		done <- tc.Run(ctx, n)
	}()
	return done
}
