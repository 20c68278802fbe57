package button

import (
	"fmt"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/gpio"
)

// Pins maps each button to a BCM pin. Buttons short the pin to ground.
type Pins struct {
	Left  int
	Right int
	Enter int
	Exit  int
}

// GPIOPanel reads four push buttons wired to GPIO inputs with pull-ups.
type GPIOPanel struct {
	gpio gpio.Driver
	pins Pins
}

// NewGPIOPanel configures the four pins as pulled-up inputs.
func NewGPIOPanel(g gpio.Driver, pins Pins) (*GPIOPanel, error) {
	for _, pin := range []int{pins.Left, pins.Right, pins.Enter, pins.Exit} {
		if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
			return nil, fmt.Errorf("setup button pin %d: %w", pin, err)
		}
	}
	return &GPIOPanel{gpio: g, pins: pins}, nil
}

// Current returns the decoded reading. A pin that cannot be read counts as
// released.
func (p *GPIOPanel) Current() Reading {
	return Decode(Pressed{
		Left:  p.down(p.pins.Left),
		Right: p.down(p.pins.Right),
		Enter: p.down(p.pins.Enter),
		Exit:  p.down(p.pins.Exit),
	})
}

func (p *GPIOPanel) down(pin int) bool {
	lvl, err := p.gpio.ReadPin(pin)
	if err != nil {
		debug.Trace("button pin %d unreadable: %v", pin, err)
		return false
	}
	return lvl == gpio.Low
}
