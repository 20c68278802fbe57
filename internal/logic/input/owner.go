// Package input mediates every read of the button panel. The Owner claims
// the panel from the platform and guarantees that a configured number of
// Exit clicks always releases it and terminates the program, whatever the
// application does with the other buttons.
package input

import (
	"context"
	"sync"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/button"
)

// DefaultExitClicks is the escape threshold at program start.
const DefaultExitClicks = 1

// Owner wraps a button source. It is polled from the control loop's
// goroutine; the read-only accessors may be called from status views.
type Owner struct {
	src      button.Source
	platform button.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	ownershipClaimed bool
	dispatch         button.Dispatcher
	threshold        int
	clicks           int
	escaped          bool
	last             button.Reading
	prev             button.Reading
}

// New creates an owner over src. Until Claim, press edges go to platform,
// the host's default button handling. The owner's context is derived from
// parent and is cancelled on escape.
func New(parent context.Context, src button.Source, platform button.Dispatcher) *Owner {
	if platform == nil {
		platform = button.LogDispatch{}
	}
	ctx, cancel := context.WithCancel(parent)
	return &Owner{
		src:       src,
		platform:  platform,
		ctx:       ctx,
		cancel:    cancel,
		dispatch:  platform,
		threshold: DefaultExitClicks,
	}
}

// Claim takes the panel away from the platform. Idempotent.
func (o *Owner) Claim() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ownershipClaimed || o.escaped {
		return
	}
	o.ownershipClaimed = true
	o.dispatch = button.NoDispatch
	debug.Info("Buttons claimed, %d exit click(s) to quit", o.threshold)
}

// Claimed reports whether the program currently owns the panel.
func (o *Owner) Claimed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ownershipClaimed
}

// SetExitClickThreshold sets the number of Exit clicks that end the program
// and resets the click count. Values below 1 are clamped to 1.
func (o *Owner) SetExitClickThreshold(n int) {
	if n < 1 {
		debug.Info("Invalid exit click threshold %d, using 1", n)
		n = 1
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.threshold = n
	o.clicks = 0
}

// ExitClickThreshold returns T.
func (o *Owner) ExitClickThreshold() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.threshold
}

// ExitClicks returns the Exit clicks counted since the threshold was last set.
func (o *Owner) ExitClicks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clicks
}

// PollCurrent reads the panel once and runs the escape watcher. It never
// blocks.
func (o *Owner) PollCurrent() button.Reading {
	r, _ := o.poll()
	return r
}

// PollPress polls like PollCurrent and returns the reading only when it is a
// new press compared with the previous poll, None otherwise. All loops share
// the owner's previous reading, so a held button is one press program-wide.
func (o *Owner) PollPress() button.Reading {
	r, edge := o.poll()
	if !edge {
		return button.None
	}
	return r
}

func (o *Owner) poll() (button.Reading, bool) {
	r := button.Sanitize(o.src.Current())

	o.mu.Lock()
	prev := o.prev
	o.prev, o.last = r, r
	edge := r != button.None && r != prev
	dispatch := o.dispatch

	escape := false
	if edge && r == button.Exit {
		o.clicks++
		debug.Verbose("Exit click %d/%d", o.clicks, o.threshold)
		if o.clicks == o.threshold && !o.escaped {
			o.escaped = true
			o.ownershipClaimed = false
			o.dispatch = o.platform
			escape = true
		}
	}
	clicks := o.clicks
	o.mu.Unlock()

	if edge {
		dispatch.Dispatch(r)
	}
	if escape {
		debug.Escape(clicks)
		o.cancel()
	}
	return r, edge
}

// Last returns the reading of the most recent poll.
func (o *Owner) Last() button.Reading {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Context is cancelled when the escape sequence completes or the parent ends.
func (o *Owner) Context() context.Context { return o.ctx }

// Done is shorthand for Context().Done().
func (o *Owner) Done() <-chan struct{} { return o.ctx.Done() }

// Escaped reports whether the escape sequence has completed.
func (o *Owner) Escaped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.escaped
}

// Close releases the owner's context.
func (o *Owner) Close() { o.cancel() }
