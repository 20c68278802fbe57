// Package motor provides the motor write primitives (signed drive) and the
// encoder read primitives (signed tick count, one tick per degree) used by
// the oscillation controller.
package motor

import (
	"fmt"
	"strings"
)

// Port identifies a motor output of the brick.
type Port int

const (
	A Port = iota
	B
	C
)

func (p Port) String() string {
	switch p {
	case A:
		return "A"
	case B:
		return "B"
	case C:
		return "C"
	default:
		return fmt.Sprintf("Port(%d)", int(p))
	}
}

// ParsePort converts "A", "b", ... to a Port.
func ParsePort(s string) (Port, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return A, nil
	case "B":
		return B, nil
	case "C":
		return C, nil
	}
	return A, fmt.Errorf("unknown motor port %q (want A, B or C)", s)
}

// Driver is the motor and encoder hardware of the brick.
type Driver interface {
	// SetDrive sets open-loop power in percent, -100..100. Zero stops the motor.
	SetDrive(p Port, percent int) error
	// Position returns encoder ticks since the last reset.
	Position(p Port) (int, error)
	// ResetPosition zeroes the encoder of p.
	ResetPosition(p Port) error
	Close() error
}

// Clamp limits percent to the valid drive range.
func Clamp(percent int) int {
	if percent > 100 {
		return 100
	}
	if percent < -100 {
		return -100
	}
	return percent
}
