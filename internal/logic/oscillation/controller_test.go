package oscillation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/button"
	"github.com/cjeanneret/SweepGo/internal/hw/display"
	"github.com/cjeanneret/SweepGo/internal/hw/motor"
	"github.com/cjeanneret/SweepGo/internal/logic/input"
	"github.com/cjeanneret/SweepGo/internal/logic/tick"
)

// event is one call seen by the recording driver.
type event struct {
	at    time.Time
	op    string // "drive" or "reset"
	drive int
}

// recDriver wraps the simulator and records every drive and reset.
type recDriver struct {
	*motor.Sim
	clock *tick.Fake

	mu      sync.Mutex
	events  []event
	failPos error
}

func (r *recDriver) SetDrive(p motor.Port, percent int) error {
	r.mu.Lock()
	r.events = append(r.events, event{at: r.clock.Now(), op: "drive", drive: percent})
	r.mu.Unlock()
	return r.Sim.SetDrive(p, percent)
}

func (r *recDriver) ResetPosition(p motor.Port) error {
	r.mu.Lock()
	r.events = append(r.events, event{at: r.clock.Now(), op: "reset"})
	r.mu.Unlock()
	return r.Sim.ResetPosition(p)
}

func (r *recDriver) Position(p motor.Port) (int, error) {
	if r.failPos != nil {
		return 0, r.failPos
	}
	return r.Sim.Position(p)
}

func (r *recDriver) Events() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

// panel is a button source the test presses from the clock hook.
type panel struct {
	mu sync.Mutex
	r  button.Reading
}

func (p *panel) Set(r button.Reading) {
	p.mu.Lock()
	p.r = r
	p.mu.Unlock()
}

func (p *panel) Current() button.Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.r
}

// pauseProbe records the drive seen when "Paused" is displayed.
type pauseProbe struct {
	display.Screen
	drv         *recDriver
	pausedDrive []int
}

func (d *pauseProbe) ShowText(line int, s string) error {
	if s == "Paused" {
		d.pausedDrive = append(d.pausedDrive, d.drv.Drive(motor.A))
	}
	return d.Screen.ShowText(line, s)
}

type rig struct {
	clock  *tick.Fake
	drv    *recDriver
	panel  *panel
	owner  *input.Owner
	screen *pauseProbe
	ctrl   *Controller
}

// 40000 ticks/s at 25% is 50 ticks per 5 ms tick: 22 ticks per phase.
func newRig(t *testing.T, maxCycles int) *rig {
	t.Helper()
	clock := tick.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	drv := &recDriver{Sim: motor.NewSim(40000, clock.Now), clock: clock}
	p := &panel{}
	owner := input.New(context.Background(), p, button.NoDispatch)
	owner.Claim()
	screen := &pauseProbe{drv: drv}
	ctrl := New(drv, owner, clock, Notifier{Display: screen, Sound: display.SoundLog{}}, Config{
		Port:      motor.A,
		MaxCycles: maxCycles,
	})
	t.Cleanup(owner.Close)
	return &rig{clock: clock, drv: drv, panel: p, owner: owner, screen: screen, ctrl: ctrl}
}

func (r *rig) position() int {
	pos, _ := r.drv.Position(motor.A)
	return pos
}

func TestController_DefaultConfig(t *testing.T) {
	cfg := Config{Power: -150, MaxCycles: -1}.withDefaults()
	if cfg.Power != 100 || cfg.SweepTicks != DefaultSweepTicks || cfg.Settle != DefaultSettle {
		t.Errorf("withDefaults = %+v", cfg)
	}
	if cfg.MaxCycles != 0 || cfg.Tick != DefaultTick {
		t.Errorf("withDefaults = %+v", cfg)
	}
	if got := (Config{}).withDefaults(); got.Power != DefaultPower {
		t.Errorf("default power = %d, want %d", got.Power, DefaultPower)
	}
	if got := (Config{Settle: -1}).withDefaults(); got.Settle != 0 {
		t.Errorf("negative settle = %v, want 0", got.Settle)
	}
}

func TestController_RightAt500PausesBeforePhaseB(t *testing.T) {
	r := newRig(t, 0)
	r.clock.OnSleep = func(n int, now time.Time) {
		if r.position() >= 500 {
			r.panel.Set(button.Right)
		}
	}

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.ctrl.State() != Paused {
		t.Fatalf("state = %v, want Paused", r.ctrl.State())
	}
	if d := r.drv.Drive(motor.A); d != 0 {
		t.Errorf("drive = %d after abort, want 0", d)
	}
	pos := r.ctrl.Snapshot().Position
	if pos < 500 || pos >= DefaultSweepTicks {
		t.Errorf("aborted at %d, want 500 <= pos < %d", pos, DefaultSweepTicks)
	}
	for _, e := range r.drv.Events() {
		if e.op == "drive" && e.drive < 0 {
			t.Fatal("phase B started after abort")
		}
	}
	if len(r.screen.pausedDrive) != 1 || r.screen.pausedDrive[0] != 0 {
		t.Errorf("drive when Paused shown = %v, want [0]", r.screen.pausedDrive)
	}
}

func TestController_CompletionSettlesThenReverses(t *testing.T) {
	r := newRig(t, 1)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var resets int
	var lastForward, firstReverse time.Time
	for _, e := range r.drv.Events() {
		switch {
		case e.op == "reset":
			resets++
		case e.drive > 0:
			lastForward = e.at
		case e.drive < 0 && firstReverse.IsZero():
			firstReverse = e.at
		}
	}
	if resets != 2 {
		t.Errorf("encoder resets = %d, want 2 (one per phase)", resets)
	}
	if firstReverse.IsZero() {
		t.Fatal("phase B never ran")
	}
	if gap := firstReverse.Sub(lastForward); gap < DefaultSettle {
		t.Errorf("gap between phases = %v, want >= %v", gap, DefaultSettle)
	}
	if pos := r.position(); pos > -DefaultSweepTicks {
		t.Errorf("reverse phase ended at %d, want <= %d", pos, -DefaultSweepTicks)
	}
	if r.ctrl.State() != Paused {
		t.Errorf("state = %v after MaxCycles, want Paused", r.ctrl.State())
	}
	if r.drv.Drive(motor.A) != 0 {
		t.Error("motor left energized after completion")
	}
}

func TestController_RightDuringSettleSkipsPhaseB(t *testing.T) {
	r := newRig(t, 0)
	r.clock.OnSleep = func(n int, now time.Time) {
		if r.ctrl.Snapshot().Phase == Settle.String() {
			r.panel.Set(button.Right)
		}
	}
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.ctrl.State() != Paused {
		t.Fatalf("state = %v, want Paused", r.ctrl.State())
	}
	for _, e := range r.drv.Events() {
		if e.op == "drive" && e.drive < 0 {
			t.Fatal("phase B must not start after a pending abort")
		}
	}
	// The settle interval still runs to the end.
	if elapsed := r.clock.Now().Sub(r.drv.Events()[0].at); elapsed < DefaultSettle {
		t.Errorf("elapsed %v, settle cut short", elapsed)
	}
}

func TestController_StartFromIdleResetsBeforeDrive(t *testing.T) {
	r := newRig(t, 1)
	r.drv.Nudge(motor.A, 333) // encoder left over from before the program
	if r.ctrl.State() != Idle {
		t.Fatalf("state = %v, want Idle", r.ctrl.State())
	}

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := r.drv.Events()
	if len(evs) < 2 || evs[0].op != "reset" {
		t.Fatalf("first call from Idle = %+v, want encoder reset", evs)
	}
	if evs[1].op != "drive" || evs[1].drive != DefaultPower {
		t.Errorf("second call = %+v, want drive %d", evs[1], DefaultPower)
	}
}

func TestController_RestartFromPausedResetsEncoder(t *testing.T) {
	r := newRig(t, 1)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.drv.Nudge(motor.A, 777) // residual position
	_ = r.drv.Sim.SetDrive(motor.A, 60)
	before := len(r.drv.Events())

	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := r.drv.Events()[before:]
	if len(evs) == 0 || evs[0].op != "reset" {
		t.Fatalf("first call after restart = %+v, want encoder reset", evs)
	}
	if evs[1].op != "drive" || evs[1].drive != DefaultPower {
		t.Errorf("second call = %+v, want drive %d", evs[1], DefaultPower)
	}
}

func TestController_EscapeMidSweep(t *testing.T) {
	r := newRig(t, 0)
	r.owner.SetExitClickThreshold(1)
	r.clock.OnSleep = func(n int, now time.Time) {
		if n == 10 {
			r.panel.Set(button.Exit)
		}
	}

	err := r.ctrl.Start(r.owner.Context())
	if !errors.Is(err, context.Canceled) || !IsEscape(err) {
		t.Fatalf("Start = %v, want context.Canceled", err)
	}
	if !r.owner.Escaped() {
		t.Error("owner should have escaped")
	}
	if r.drv.Drive(motor.A) != 0 {
		t.Error("escape must stop the motor")
	}
	if r.ctrl.State() != Active {
		t.Errorf("state = %v, escape leaves controller state alone", r.ctrl.State())
	}
}

func TestController_StartWhileActiveIsNoop(t *testing.T) {
	r := newRig(t, 0)
	nested := errors.New("unset")
	r.clock.OnSleep = func(n int, now time.Time) {
		if n == 3 {
			nested = r.ctrl.Start(context.Background())
			r.panel.Set(button.Right)
		}
	}
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if nested != nil {
		t.Errorf("nested Start = %v, want nil no-op", nested)
	}
}

func TestController_StopFromIdle(t *testing.T) {
	r := newRig(t, 0)
	r.ctrl.Stop()
	if r.ctrl.State() != Paused {
		t.Errorf("state = %v, want Paused", r.ctrl.State())
	}
	if got := r.screen.Lines()[0]; got != "Paused" {
		t.Errorf("display = %q, want Paused", got)
	}
}

func TestController_EncoderFaultPauses(t *testing.T) {
	r := newRig(t, 0)
	r.drv.failPos = fmt.Errorf("encoder unplugged")
	err := r.ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("expected encoder error")
	}
	if r.ctrl.State() != Paused || r.drv.Drive(motor.A) != 0 {
		t.Errorf("fault should leave Paused with motor off, got %v drive %d", r.ctrl.State(), r.drv.Drive(motor.A))
	}
}

func TestController_ContinuousUntilAbort(t *testing.T) {
	r := newRig(t, 0)
	r.clock.OnSleep = func(n int, now time.Time) {
		s := r.ctrl.Snapshot()
		if s.Cycle == 3 && s.Phase == Reverse.String() {
			r.panel.Set(button.Right)
		}
	}
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := r.ctrl.Snapshot()
	if snap.State != "Paused" || snap.Cycle != 3 {
		t.Errorf("snapshot = %+v, want Paused in cycle 3", snap)
	}
}

func TestController_TracesPositionAtTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	debug.SetOutput(&buf)
	debug.Init(debug.LevelTrace)
	t.Cleanup(func() {
		debug.Init(debug.LevelOff)
		debug.SetOutput(os.Stdout)
	})

	r := newRig(t, 1)
	if err := r.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Forward position 0/1080", "Reverse position 0/1080"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace missing %q", want)
		}
	}
}
