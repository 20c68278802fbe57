// Package oscillation runs the bounded back-and-forth motor sweep.
// A sweep is started by Left, aborted by Right, and polls the input owner on
// every tick so the exit-click escape stays reachable.
package oscillation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/button"
	"github.com/cjeanneret/SweepGo/internal/hw/motor"
	"github.com/cjeanneret/SweepGo/internal/logic/input"
	"github.com/cjeanneret/SweepGo/internal/logic/tick"
)

// State of the controller.
type State int

const (
	Idle State = iota
	Active
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	case Paused:
		return "Paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Phase inside Active.
type Phase int

const (
	NoPhase Phase = iota
	Forward
	Settle
	Reverse
)

func (p Phase) String() string {
	switch p {
	case NoPhase:
		return "-"
	case Forward:
		return "Forward"
	case Settle:
		return "Settle"
	case Reverse:
		return "Reverse"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Default sweep parameters.
const (
	DefaultPower      = 25
	DefaultSweepTicks = 1080
	DefaultSettle     = 500 * time.Millisecond
	DefaultTick       = 5 * time.Millisecond
)

// Config of one controller.
type Config struct {
	Port       motor.Port
	Power      int           // drive percent for the forward phase, negated in reverse
	SweepTicks int           // encoder target of each phase
	Settle     time.Duration // motor-off pause between forward and reverse; negative disables
	Tick       time.Duration // loop period
	MaxCycles  int           // full cycles before pausing on its own; 0 runs until aborted
}

func (c Config) withDefaults() Config {
	if c.Power == 0 {
		c.Power = DefaultPower
	}
	c.Power = motor.Clamp(c.Power)
	if c.Power < 0 {
		c.Power = -c.Power
	}
	if c.SweepTicks <= 0 {
		c.SweepTicks = DefaultSweepTicks
	}
	switch {
	case c.Settle == 0:
		c.Settle = DefaultSettle
	case c.Settle < 0:
		c.Settle = 0
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.MaxCycles < 0 {
		c.MaxCycles = 0
	}
	return c
}

// Snapshot is a copy of the controller status for views.
type Snapshot struct {
	State    string `json:"state"`
	Phase    string `json:"phase"`
	Cycle    int    `json:"cycle"`
	Position int    `json:"position"`
	Drive    int    `json:"drive"`
}

// Controller owns one motor port while a sweep runs. Start, Stop and
// RunSweep must be called from the control loop's goroutine; Snapshot may
// be called from anywhere.
type Controller struct {
	cfg    Config
	motors motor.Driver
	in     *input.Owner
	clock  tick.Clock
	notify Notifier

	mu       sync.Mutex
	state    State
	phase    Phase
	cycle    int
	position int
	drive    int
}

// New creates an Idle controller.
func New(motors motor.Driver, in *input.Owner, clock tick.Clock, notify Notifier, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	debug.Verbose("Oscillation: port %s, power %d%%, %d ticks, settle %v, tick %v, max cycles %d",
		cfg.Port, cfg.Power, cfg.SweepTicks, cfg.Settle, cfg.Tick, cfg.MaxCycles)
	return &Controller{
		cfg:    cfg,
		motors: motors,
		in:     in,
		clock:  clock,
		notify: notify,
	}
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:    c.state.String(),
		Phase:    c.phase.String(),
		Cycle:    c.cycle,
		Position: c.position,
		Drive:    c.drive,
	}
}

// Start enters Active and runs the sweep until it is aborted, completes
// MaxCycles, or ctx ends. Calling Start while Active does nothing.
//
// A Right press returns nil with the controller Paused. A cancelled ctx
// returns the context error with the motor stopped. A motor fault pauses the
// controller and returns the fault.
func (c *Controller) Start(ctx context.Context) error {
	if !c.transition(Active) {
		return nil
	}
	c.notify.Running()

	err := c.RunSweep(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	debug.Error(err)
	c.Stop()
	return err
}

// Stop pauses the controller: motor off, state Paused, pause notification.
func (c *Controller) Stop() {
	c.halt()
	c.transition(Paused)
	c.notify.Paused()
}

// RunSweep runs forward, settle and reverse phases in a loop.
func (c *Controller) RunSweep(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		c.mu.Lock()
		c.cycle = cycle
		c.mu.Unlock()

		aborted, err := c.runPhase(ctx, Forward, c.cfg.Power)
		if err != nil {
			return err
		}
		if !aborted {
			aborted, err = c.settle(ctx)
			if err != nil {
				return err
			}
		}
		if !aborted {
			aborted, err = c.runPhase(ctx, Reverse, -c.cfg.Power)
			if err != nil {
				return err
			}
		}
		if aborted {
			debug.Live("Sweep aborted in cycle %d", cycle)
			c.Stop()
			return nil
		}
		if c.cfg.MaxCycles > 0 && cycle >= c.cfg.MaxCycles {
			debug.Live("Sweep completed %d cycle(s)", cycle)
			c.Stop()
			return nil
		}
	}
}

// runPhase drives toward ±SweepTicks from a zeroed encoder. It reports
// whether a Right press aborted the phase. The motor is off on return.
func (c *Controller) runPhase(ctx context.Context, phase Phase, power int) (bool, error) {
	c.setPhase(phase)
	if err := c.motors.ResetPosition(c.cfg.Port); err != nil {
		c.halt()
		return false, fmt.Errorf("reset encoder %s: %w", c.cfg.Port, err)
	}
	c.mu.Lock()
	c.position = 0
	c.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			c.halt()
			return false, err
		}
		pos, err := c.motors.Position(c.cfg.Port)
		if err != nil {
			c.halt()
			return false, fmt.Errorf("read encoder %s: %w", c.cfg.Port, err)
		}
		c.mu.Lock()
		c.position = pos
		c.mu.Unlock()
		if debug.IsEnabled(debug.LevelTrace) {
			debug.Trace("%s position %d/%d", phase, pos, c.cfg.SweepTicks)
		}

		if reached(pos, power, c.cfg.SweepTicks) {
			c.halt()
			debug.Verbose("%s phase reached %d ticks", phase, pos)
			return false, nil
		}

		c.setDrive(power)
		if c.in.PollPress() == button.Right {
			c.halt()
			debug.Button(button.Right.String())
			return true, nil
		}
		if err := c.clock.Sleep(ctx, c.cfg.Tick); err != nil {
			c.halt()
			return false, err
		}
	}
}

func reached(pos, power, target int) bool {
	if power >= 0 {
		return pos >= target
	}
	return pos <= -target
}

// settle keeps the motor off for the settle interval while polling input.
// A Right press is remembered and reported once the interval is over.
func (c *Controller) settle(ctx context.Context) (bool, error) {
	c.setPhase(Settle)
	c.halt()

	pending := false
	deadline := c.clock.Now().Add(c.cfg.Settle)
	for {
		if c.in.PollPress() == button.Right && !pending {
			pending = true
			debug.Button(button.Right.String())
		}
		left := deadline.Sub(c.clock.Now())
		if left <= 0 {
			return pending, ctx.Err()
		}
		if err := c.clock.Sleep(ctx, min(left, c.cfg.Tick)); err != nil {
			return false, err
		}
	}
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	cycle := c.cycle
	c.mu.Unlock()
	debug.Phase(p.String(), cycle)
	if p != Settle {
		c.notify.Phase(p, cycle)
	}
}

// setDrive writes the motor. Write errors are logged; the loop carries on.
func (c *Controller) setDrive(percent int) {
	c.mu.Lock()
	changed := c.drive != percent
	c.drive = percent
	c.mu.Unlock()
	if changed {
		debug.Drive(c.cfg.Port.String(), percent)
	}
	if err := c.motors.SetDrive(c.cfg.Port, percent); err != nil {
		debug.Error(fmt.Errorf("drive %s: %w", c.cfg.Port, err))
	}
}

// halt zeroes the drive. The drive counts as zero even if the write failed.
func (c *Controller) halt() {
	c.setDrive(0)
}

// transition moves to s and reports whether the state changed. Entering
// Active from Active is refused.
func (c *Controller) transition(s State) bool {
	c.mu.Lock()
	from := c.state
	if from == Active && s == Active {
		c.mu.Unlock()
		return false
	}
	c.state = s
	if s != Active {
		c.phase = NoPhase
	} else {
		c.cycle = 0
	}
	c.mu.Unlock()
	debug.State(from.String(), s.String())
	return true
}

// IsEscape reports whether err is the cancellation that ends a sweep when
// the input owner escapes or the program stops.
func IsEscape(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
