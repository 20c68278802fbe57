package motor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/cjeanneret/SweepGo/internal/debug"
)

// STS servos report 4096 raw steps per revolution.
const (
	servoRawPerRev = 4096
	servoRawMax    = servoRawPerRev - 1
)

// ServoConfig describes a Feetech STS servo standing in for a brick motor.
type ServoConfig struct {
	Port       string        // serial device, e.g. /dev/ttyACM0
	ID         int           // servo bus ID
	Home       int           // raw position the sweep starts from
	RawPerTick float64       // raw servo steps per encoder tick
	MaxStep    int           // raw set-point advance per SetDrive call at 100%
	Timeout    time.Duration // per-transaction timeout
}

// positioner is the subset of *feetech.Servo used here.
type positioner interface {
	Position(ctx context.Context) (int, error)
	SetPosition(ctx context.Context, position int) error
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Servo emulates an open-loop motor with a position-controlled servo:
// every SetDrive call advances the set-point by a step proportional to
// the drive, and the servo's own position sensor is the encoder.
// Motion is bounded by the servo's single-turn range, so sweep_ticks must
// fit in (4095-Home)/RawPerTick.
type Servo struct {
	bus     *feetech.Bus
	timeout time.Duration

	mu   sync.Mutex
	axes map[Port]*servoAxis
}

type servoAxis struct {
	servo      positioner
	rawPerTick float64
	maxStep    int
	origin     int
	target     int
	drive      int
}

// OpenServo connects to a servo bus and binds one servo to port p.
func OpenServo(p Port, cfg ServoConfig) (*Servo, error) {
	cfg = cfg.withDefaults()
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	found, err := bus.Scan(ctx, cfg.ID, cfg.ID)
	if err != nil || len(found) == 0 {
		bus.Close()
		if err == nil {
			err = fmt.Errorf("no servo answered")
		}
		return nil, fmt.Errorf("scan servo %d on %s: %w", cfg.ID, cfg.Port, err)
	}
	sv := feetech.NewServo(bus, found[0].ID, found[0].Model)

	s := &Servo{bus: bus, timeout: cfg.Timeout, axes: make(map[Port]*servoAxis)}
	if err := s.attach(ctx, p, sv, cfg); err != nil {
		bus.Close()
		return nil, err
	}
	debug.Info("Servo %d on %s bound to port %v", cfg.ID, cfg.Port, p)
	return s, nil
}

func (c ServoConfig) withDefaults() ServoConfig {
	if c.Timeout <= 0 {
		c.Timeout = 100 * time.Millisecond
	}
	if c.RawPerTick <= 0 {
		// A default 1080-tick sweep spans half a servo turn.
		c.RawPerTick = float64(servoRawPerRev/2) / 1080
	}
	if c.MaxStep <= 0 {
		c.MaxStep = 40
	}
	if c.Home <= 0 || c.Home > servoRawMax {
		c.Home = servoRawPerRev / 4
	}
	return c
}

// attach enables torque and moves the servo to its home position.
func (s *Servo) attach(ctx context.Context, p Port, sv positioner, cfg ServoConfig) error {
	if err := sv.Enable(ctx); err != nil {
		return fmt.Errorf("enable servo: %w", err)
	}
	if err := sv.SetPosition(ctx, cfg.Home); err != nil {
		return fmt.Errorf("home servo: %w", err)
	}
	s.axes[p] = &servoAxis{
		servo:      sv,
		rawPerTick: cfg.RawPerTick,
		maxStep:    cfg.MaxStep,
		origin:     cfg.Home,
		target:     cfg.Home,
	}
	return nil
}

func (s *Servo) lookup(p Port) (*servoAxis, error) {
	a, ok := s.axes[p]
	if !ok {
		return nil, fmt.Errorf("servo: port %v not bound", p)
	}
	return a, nil
}

func (s *Servo) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Servo) SetDrive(p Port, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(p)
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	percent = Clamp(percent)
	if percent == 0 {
		// Hold where the shaft is now rather than where it was heading.
		if a.drive != 0 {
			raw, err := a.servo.Position(ctx)
			if err != nil {
				return fmt.Errorf("read position: %w", err)
			}
			a.target = raw
		}
	} else {
		a.target += percent * a.maxStep / 100
	}
	if a.target < 0 {
		a.target = 0
	}
	if a.target > servoRawMax {
		a.target = servoRawMax
	}
	a.drive = percent
	debug.Drive(p.String(), percent)
	if err := a.servo.SetPosition(ctx, a.target); err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	return nil
}

func (s *Servo) Position(p Port) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(p)
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.ctx()
	defer cancel()
	raw, err := a.servo.Position(ctx)
	if err != nil {
		return 0, fmt.Errorf("read position: %w", err)
	}
	return int(float64(raw-a.origin) / a.rawPerTick), nil
}

func (s *Servo) ResetPosition(p Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(p)
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()
	raw, err := a.servo.Position(ctx)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}
	a.origin = raw
	a.target = raw
	return nil
}

// Close releases torque and closes the bus.
func (s *Servo) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.ctx()
	defer cancel()
	var errs []error
	for _, a := range s.axes {
		if err := a.servo.Disable(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
