package motor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/SweepGo/internal/debug"
)

// DefaultTicksPerSecond approximates an unloaded brick motor at full power.
const DefaultTicksPerSecond = 1000

// Sim is a simulated motor set: the encoder integrates drive over time.
// It backs mock mode and the controller tests.
type Sim struct {
	mu   sync.Mutex
	now  func() time.Time
	tps  float64
	axes map[Port]*simAxis
}

type simAxis struct {
	drive int
	pos   float64
	last  time.Time
}

// NewSim creates a simulator. ticksPerSecond is the speed at 100% drive.
func NewSim(ticksPerSecond float64, now func() time.Time) *Sim {
	if ticksPerSecond <= 0 {
		ticksPerSecond = DefaultTicksPerSecond
	}
	if now == nil {
		now = time.Now
	}
	debug.Info("Using SIMULATED motors (%.0f ticks/s at full power)", ticksPerSecond)
	return &Sim{
		now:  now,
		tps:  ticksPerSecond,
		axes: make(map[Port]*simAxis),
	}
}

// axis integrates motion up to now and returns the axis. Caller holds mu.
func (s *Sim) axis(p Port) *simAxis {
	now := s.now()
	a, ok := s.axes[p]
	if !ok {
		a = &simAxis{last: now}
		s.axes[p] = a
		return a
	}
	dt := now.Sub(a.last).Seconds()
	if dt > 0 {
		a.pos += float64(a.drive) / 100 * s.tps * dt
	}
	a.last = now
	return a
}

func (s *Sim) SetDrive(p Port, percent int) error {
	if p < A || p > C {
		return fmt.Errorf("sim: invalid port %v", p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.axis(p)
	if a.drive != Clamp(percent) {
		debug.Drive(p.String(), Clamp(percent))
	}
	a.drive = Clamp(percent)
	return nil
}

func (s *Sim) Position(p Port) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.axis(p)
	// Truncate toward zero like an encoder that has not yet seen the next edge.
	return int(math.Trunc(a.pos)), nil
}

func (s *Sim) ResetPosition(p Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axis(p).pos = 0
	return nil
}

// Drive returns the current drive of p.
func (s *Sim) Drive(p Port) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.axes[p]; ok {
		return a.drive
	}
	return 0
}

// Nudge moves the encoder of p by ticks, as if the shaft had been turned by hand.
func (s *Sim) Nudge(p Port, ticks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axis(p).pos += float64(ticks)
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.axes {
		s.axis(p).drive = 0
	}
	return nil
}
