// Package tick provides the single suspension point of the control loop.
// Every loop iteration ends in exactly one Clock.Sleep, which lets tests
// replace wall time with a Fake clock and single-step ticks deterministically.
package tick

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by the control loop.
type Clock interface {
	Now() time.Time
	// Sleep suspends for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the wall-clock implementation.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
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

// Fake is a virtual clock: Sleep returns immediately after advancing Now.
// OnSleep, if set, runs after every advance and is where tests inject
// button presses or encoder movement at a given tick.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	OnSleep func(n int, now time.Time)
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps++
	n, now, hook := f.sleeps, f.now, f.OnSleep
	f.mu.Unlock()
	if hook != nil {
		hook(n, now)
	}
	return ctx.Err()
}

// Advance moves the clock forward without counting a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Sleeps returns the number of Sleep calls so far.
func (f *Fake) Sleeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sleeps
}
