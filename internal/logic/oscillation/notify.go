package oscillation

import (
	"fmt"

	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/display"
)

// ClickSound is the brick's built-in click sound file.
const ClickSound = "! Click.rso"

// Notifier sends status to the screen and speaker. Both are optional.
// Failures are logged and never reach the control loop.
type Notifier struct {
	Display display.Display
	Sound   display.Sound
}

// Running is shown when a sweep starts.
func (n Notifier) Running() {
	n.clear()
	n.play(ClickSound)
	n.show(0, "Running")
}

// Paused is shown when the controller pauses.
func (n Notifier) Paused() {
	n.clear()
	n.show(0, "Paused")
	n.play(ClickSound)
}

// Phase shows the phase being driven on line 1.
func (n Notifier) Phase(p Phase, cycle int) {
	n.show(1, fmt.Sprintf("Cycle %d %s", cycle, p))
}

// Waiting is shown by the main loop before the first press.
func (n Notifier) Waiting() {
	n.clear()
	n.show(0, "Waiting")
}

func (n Notifier) clear() {
	if n.Display == nil {
		return
	}
	if err := n.Display.Clear(); err != nil {
		debug.Error(fmt.Errorf("clear display: %w", err))
	}
}

func (n Notifier) show(line int, s string) {
	if n.Display == nil {
		return
	}
	if err := n.Display.ShowText(line, s); err != nil {
		debug.Error(fmt.Errorf("show %q: %w", s, err))
	}
}

func (n Notifier) play(file string) {
	if n.Sound == nil {
		return
	}
	if err := n.Sound.Play(file); err != nil {
		debug.Error(fmt.Errorf("play %s: %w", file, err))
	}
}
