package motor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/gpio"
)

// HBridgePins wires one port to a DRV8833/L298-style H-bridge and a
// quadrature encoder.
type HBridgePins struct {
	PWM  int // hardware PWM pin (speed)
	Dir  int // direction pin, High = forward
	EncA int
	EncB int
}

// HBridge drives DC motors through GPIO and counts encoder edges.
type HBridge struct {
	gpio gpio.Driver

	mu   sync.Mutex
	axes map[Port]*hbAxis
}

type hbAxis struct {
	pins     HBridgePins
	state    uint8 // last A<<1|B
	count    int
	drive    int
	dir      gpio.Level
	dirKnown bool
}

// quadrature maps prev<<2|next encoder states to a count increment.
var quadrature = [16]int{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// NewHBridge configures the pins of every port in ports.
func NewHBridge(g gpio.Driver, ports map[Port]HBridgePins) (*HBridge, error) {
	h := &HBridge{gpio: g, axes: make(map[Port]*hbAxis)}
	for p, pins := range ports {
		if err := g.SetupPin(pins.PWM, gpio.PWM); err != nil {
			return nil, fmt.Errorf("port %v pwm pin: %w", p, err)
		}
		if err := g.SetupPin(pins.Dir, gpio.Output); err != nil {
			return nil, fmt.Errorf("port %v dir pin: %w", p, err)
		}
		for _, pin := range []int{pins.EncA, pins.EncB} {
			if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
				return nil, fmt.Errorf("port %v encoder pin: %w", p, err)
			}
		}
		a := &hbAxis{pins: pins}
		a.state = h.readState(a)
		h.axes[p] = a
		debug.Verbose("H-bridge port %v: pwm=%d dir=%d enc=%d/%d", p, pins.PWM, pins.Dir, pins.EncA, pins.EncB)
	}
	return h, nil
}

func (h *HBridge) lookup(p Port) (*hbAxis, error) {
	a, ok := h.axes[p]
	if !ok {
		return nil, fmt.Errorf("hbridge: port %v not wired", p)
	}
	return a, nil
}

func (h *HBridge) SetDrive(p Port, percent int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, err := h.lookup(p)
	if err != nil {
		return err
	}
	percent = Clamp(percent)
	dir := gpio.High
	duty := percent
	if percent < 0 {
		dir = gpio.Low
		duty = -percent
	}
	// Drop power before flipping direction so the bridge never shoots through.
	if percent != 0 && (!a.dirKnown || a.dir != dir) {
		if err := h.gpio.SetPWM(a.pins.PWM, 0); err != nil {
			return err
		}
		if err := h.gpio.WritePin(a.pins.Dir, dir); err != nil {
			return err
		}
		a.dir, a.dirKnown = dir, true
	}
	if err := h.gpio.SetPWM(a.pins.PWM, duty); err != nil {
		return err
	}
	a.drive = percent
	debug.Drive(p.String(), percent)
	return nil
}

func (h *HBridge) readState(a *hbAxis) uint8 {
	var s uint8
	if lvl, err := h.gpio.ReadPin(a.pins.EncA); err == nil && lvl == gpio.High {
		s |= 2
	}
	if lvl, err := h.gpio.ReadPin(a.pins.EncB); err == nil && lvl == gpio.High {
		s |= 1
	}
	return s
}

// sample reads the encoder pins once and accumulates. Caller holds mu.
func (h *HBridge) sample(a *hbAxis) {
	next := h.readState(a)
	a.count += quadrature[a.state<<2|next]
	a.state = next
}

// Sample polls every encoder once.
func (h *HBridge) Sample() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.axes {
		h.sample(a)
	}
}

// RunSampler polls the encoders every interval until ctx is done. Without
// it the encoder is only sampled when Position is called, which misses
// edges once the shaft turns faster than the control loop ticks.
func (h *HBridge) RunSampler(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Sample()
		}
	}
}

func (h *HBridge) Position(p Port) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, err := h.lookup(p)
	if err != nil {
		return 0, err
	}
	h.sample(a)
	return a.count, nil
}

func (h *HBridge) ResetPosition(p Port) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, err := h.lookup(p)
	if err != nil {
		return err
	}
	a.state = h.readState(a)
	a.count = 0
	return nil
}

// Close stops every motor; the GPIO driver is closed by its owner.
func (h *HBridge) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for p, a := range h.axes {
		if err := h.gpio.SetPWM(a.pins.PWM, 0); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop port %v: %w", p, err)
		}
		a.drive = 0
	}
	return firstErr
}
