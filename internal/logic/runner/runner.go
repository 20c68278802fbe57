// Package runner is the program's main loop: wait for a press, dispatch it
// to the oscillation controller, repeat until the input owner escapes.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/button"
	"github.com/cjeanneret/SweepGo/internal/logic/input"
	"github.com/cjeanneret/SweepGo/internal/logic/oscillation"
	"github.com/cjeanneret/SweepGo/internal/logic/tick"
)

// Counts are the presses seen by the main loop, per button. Presses consumed
// inside a sweep are not counted here.
type Counts struct {
	Left  int `json:"left"`
	Right int `json:"right"`
	Enter int `json:"enter"`
	Exit  int `json:"exit"`
	// Idle counts loop iterations without a press.
	Idle int `json:"idle"`
}

// Runner ties the input owner to the controller.
type Runner struct {
	in     *input.Owner
	ctrl   *oscillation.Controller
	clock  tick.Clock
	notify oscillation.Notifier
	period time.Duration

	mu     sync.Mutex
	counts Counts
}

// New creates a runner. period is the polling tick.
func New(in *input.Owner, ctrl *oscillation.Controller, clock tick.Clock, notify oscillation.Notifier, period time.Duration) *Runner {
	if period <= 0 {
		period = oscillation.DefaultTick
	}
	return &Runner{in: in, ctrl: ctrl, clock: clock, notify: notify, period: period}
}

// Counts returns a copy of the press counters.
func (r *Runner) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

// Run blocks until the exit-click escape (returns nil) or until ctx ends
// (returns ctx's error). Motor faults are logged and the loop goes on.
func (r *Runner) Run(ctx context.Context) error {
	// The loop context is a child of the owner's, so an escape cancels it
	// within the poll that counted the last click.
	loop, cancel := context.WithCancel(r.in.Context())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	r.notify.Waiting()
	debug.Info("Waiting for buttons (Left: start, Right: pause, %d x Exit: quit)", r.in.ExitClickThreshold())

	for {
		b, err := r.waitPress(loop)
		if err != nil {
			return r.exit(ctx, err)
		}
		debug.Button(b.String())
		r.count(b)

		switch b {
		case button.Left:
			if err := r.ctrl.Start(loop); err != nil {
				if oscillation.IsEscape(err) {
					return r.exit(ctx, err)
				}
				debug.Error(err)
			}
		case button.Right:
			r.ctrl.Stop()
		}
	}
}

// waitPress polls once per tick until a new press.
func (r *Runner) waitPress(ctx context.Context) (button.Reading, error) {
	for {
		if b := r.in.PollPress(); b != button.None {
			return b, nil
		}
		r.mu.Lock()
		r.counts.Idle++
		r.mu.Unlock()
		if err := r.clock.Sleep(ctx, r.period); err != nil {
			return button.None, err
		}
	}
}

func (r *Runner) count(b button.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch b {
	case button.Left:
		r.counts.Left++
	case button.Right:
		r.counts.Right++
	case button.Enter:
		r.counts.Enter++
	case button.Exit:
		r.counts.Exit++
	}
}

// exit maps the end of the loop to Run's result: an escape is a normal end.
func (r *Runner) exit(ctx context.Context, err error) error {
	if r.in.Escaped() {
		debug.Info("Exit clicks reached, stopping")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
