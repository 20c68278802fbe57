// Package display holds the brick's text screen and sound collaborators.
// The control loop only sends fire-and-forget notifications through them.
package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/SweepGo/internal/debug"
)

// Screen geometry of the brick LCD in text cells.
const (
	Rows = 8
	Cols = 16
)

// Display is the text output primitive.
type Display interface {
	ShowText(line int, s string) error
	Clear() error
}

// Sound is the sound-file playback primitive.
type Sound interface {
	Play(file string) error
}

// Screen is an in-memory text screen. Views (TUI, LCD image, web) read it.
type Screen struct {
	mu      sync.RWMutex
	lines   [Rows]string
	version uint64
}

// NewScreen returns a blank screen.
func NewScreen() *Screen {
	return &Screen{}
}

func (s *Screen) ShowText(line int, text string) error {
	if line < 0 || line >= Rows {
		return fmt.Errorf("display line %d out of range 0-%d", line, Rows-1)
	}
	if r := []rune(text); len(r) > Cols {
		text = string(r[:Cols])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line] = text
	s.version++
	return nil
}

func (s *Screen) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = [Rows]string{}
	s.version++
	return nil
}

// Lines returns a copy of the screen contents.
func (s *Screen) Lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, Rows)
	copy(out, s.lines[:])
	return out
}

// Version increases on every change; views use it to skip redraws.
func (s *Screen) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Log writes display updates to the debug log.
type Log struct{}

func (Log) ShowText(line int, s string) error {
	debug.Live("display[%d]: %s", line, s)
	return nil
}

func (Log) Clear() error {
	debug.Trace("display cleared")
	return nil
}

type multi []Display

// Multi fans every call out to all displays, collecting errors.
func Multi(ds ...Display) Display {
	return multi(ds)
}

func (m multi) ShowText(line int, s string) error {
	var errs []error
	for _, d := range m {
		if err := d.ShowText(line, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Clear() error {
	var errs []error
	for _, d := range m {
		if err := d.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
