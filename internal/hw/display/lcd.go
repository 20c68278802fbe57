package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/fogleman/gg"
)

// Pixel layout for the default 7x13 font of gg.
const (
	cellWidth  = 7
	lineHeight = 14
	margin     = 4

	LCDWidth  = Cols*cellWidth + 2*margin
	LCDHeight = Rows*lineHeight + margin
)

// LCD renders a Screen as a monochrome brick LCD image. When Path is set,
// every change is also written there as a PNG snapshot.
type LCD struct {
	screen *Screen
	path   string

	mu sync.Mutex // serializes rendering and file writes
}

// NewLCD renders screen; path may be empty.
func NewLCD(screen *Screen, path string) *LCD {
	return &LCD{screen: screen, path: path}
}

func (l *LCD) ShowText(line int, s string) error {
	if err := l.screen.ShowText(line, s); err != nil {
		return err
	}
	return l.snapshot()
}

func (l *LCD) Clear() error {
	if err := l.screen.Clear(); err != nil {
		return err
	}
	return l.snapshot()
}

// Image renders the current screen.
func (l *LCD) Image() image.Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.render().Image()
}

func (l *LCD) render() *gg.Context {
	dc := gg.NewContext(LCDWidth, LCDHeight)
	// Brick LCD colours: dark pixels on a grey-green backlight.
	dc.SetRGB(0.78, 0.82, 0.72)
	dc.Clear()
	dc.SetRGB(0.1, 0.12, 0.1)
	for i, line := range l.screen.Lines() {
		if line == "" {
			continue
		}
		dc.DrawString(line, margin, float64((i+1)*lineHeight))
	}
	return dc
}

func (l *LCD) snapshot() error {
	if l.path == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.render().SavePNG(l.path); err != nil {
		return fmt.Errorf("save lcd snapshot: %w", err)
	}
	return nil
}
