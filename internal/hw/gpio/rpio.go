package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmFrequency is the PWM clock; with pwmCycle it gives a 20 kHz carrier,
// above the audible range of small DC motors.
const (
	pwmFrequency = 2_000_000
	pwmCycle     = 100
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
// It is safe for concurrent use (the encoder sampler runs beside the loop).
type RPiDriver struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
	pwm  bool
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
// Hardware PWM additionally needs /dev/mem (root).
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setupPin(pin, mode)
}

func (r *RPiDriver) setupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case InputPullUp:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	case PWM:
		p.Pwm()
		p.Freq(pwmFrequency)
		p.DutyCycle(0, pwmCycle)
		if !r.pwm {
			rpio.StartPwm()
			r.pwm = true
		}
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.setupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.setupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) SetPWM(pin int, dutyPercent int) error {
	debug.GPIO("SetPWM", pin, dutyPercent)
	r.mu.Lock()
	defer r.mu.Unlock()

	if dutyPercent < 0 || dutyPercent > 100 {
		return fmt.Errorf("duty cycle must be 0-100, got %d", dutyPercent)
	}
	p, ok := r.pins[pin]
	if !ok {
		if err := r.setupPin(pin, PWM); err != nil {
			return err
		}
		p = r.pins[pin]
	}
	p.DutyCycle(uint32(dutyPercent), pwmCycle)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pwm {
		rpio.StopPwm()
	}
	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
