package display

import (
	"fmt"
	"io"

	"github.com/cjeanneret/SweepGo/internal/debug"
)

// SoundLog "plays" sound files by logging them. If Bell is set, a terminal
// bell is written too, which is the closest a headless host gets to the
// brick's click.
type SoundLog struct {
	Bell io.Writer
}

func (s SoundLog) Play(file string) error {
	debug.Live("sound: %s", file)
	if s.Bell == nil {
		return nil
	}
	if _, err := io.WriteString(s.Bell, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}
