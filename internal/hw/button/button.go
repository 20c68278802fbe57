// Package button models the brick's four-button panel. The hardware decodes
// the buttons from a single analog input, so at most one button is ever
// reported: a Reading is a single value, not a set.
package button

import (
	"fmt"
	"strings"
)

// Reading is the decoded panel state on one polling tick.
type Reading int

const (
	None Reading = iota
	Exit
	Right
	Left
	Enter
)

// Wire codes used by the brick firmware and by serial button panels.
const (
	CodeNone  byte = 0xFF
	CodeExit  byte = 0
	CodeRight byte = 1
	CodeLeft  byte = 2
	CodeEnter byte = 3
)

// Source is the hardware read primitive: it returns the currently pressed
// button, already decoded.
type Source interface {
	Current() Reading
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Reading

func (f SourceFunc) Current() Reading { return f() }

func (r Reading) String() string {
	switch r {
	case None:
		return "None"
	case Exit:
		return "Exit"
	case Right:
		return "Right"
	case Left:
		return "Left"
	case Enter:
		return "Enter"
	default:
		return fmt.Sprintf("Reading(%d)", int(r))
	}
}

// Valid reports whether r is one of the five defined readings.
func (r Reading) Valid() bool {
	return r >= None && r <= Enter
}

// Sanitize maps undefined readings to None.
func Sanitize(r Reading) Reading {
	if !r.Valid() {
		return None
	}
	return r
}

// Parse converts a button name ("left", "Exit", ...) to a Reading.
func Parse(s string) (Reading, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "exit":
		return Exit, nil
	case "right":
		return Right, nil
	case "left":
		return Left, nil
	case "enter":
		return Enter, nil
	}
	return None, fmt.Errorf("unknown button %q", s)
}

// FromCode decodes a firmware button code. Unknown codes read as None.
func FromCode(c byte) Reading {
	switch c {
	case CodeExit:
		return Exit
	case CodeRight:
		return Right
	case CodeLeft:
		return Left
	case CodeEnter:
		return Enter
	default:
		return None
	}
}

// Code returns the firmware code of r.
func (r Reading) Code() byte {
	switch r {
	case Exit:
		return CodeExit
	case Right:
		return CodeRight
	case Left:
		return CodeLeft
	case Enter:
		return CodeEnter
	default:
		return CodeNone
	}
}

// priority lists buttons from lowest to highest; the highest pressed wins.
var priority = [...]Reading{Left, Right, Enter, Exit}

// Pressed is the raw per-button state before decoding.
type Pressed struct {
	Left, Right, Enter, Exit bool
}

// Decode reduces simultaneous presses to the single reading the hardware
// would report.
func Decode(p Pressed) Reading {
	down := map[Reading]bool{
		Left:  p.Left,
		Right: p.Right,
		Enter: p.Enter,
		Exit:  p.Exit,
	}
	r := None
	for _, b := range priority {
		if down[b] {
			r = b
		}
	}
	return r
}
