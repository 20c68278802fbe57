package button

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/cjeanneret/SweepGo/internal/debug"
)

// SerialConfig describes the serial line of a remote button panel.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// SerialPanel reads a stream of single-byte button codes sent by a
// microcontroller whenever its panel changes. The last code received is
// the current reading.
type SerialPanel struct {
	port   io.ReadCloser
	idle   time.Duration // back-off after a read timeout
	code   atomic.Uint32
	closed atomic.Bool
	done   chan struct{}
}

// OpenSerialPanel opens the serial device and starts reading codes.
func OpenSerialPanel(cfg SerialConfig) (*SerialPanel, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	debug.Info("Serial button panel on %s @ %d baud", cfg.Device, cfg.Baud)
	return newSerialPanel(port, cfg.ReadTimeout), nil
}

// NewSerialPanel reads codes from an already opened stream.
func NewSerialPanel(r io.ReadCloser) *SerialPanel {
	return newSerialPanel(r, 10*time.Millisecond)
}

func newSerialPanel(r io.ReadCloser, idle time.Duration) *SerialPanel {
	p := &SerialPanel{
		port: r,
		idle: idle,
		done: make(chan struct{}),
	}
	p.code.Store(uint32(CodeNone))
	go p.readLoop()
	return p
}

func (p *SerialPanel) readLoop() {
	defer close(p.done)
	buf := make([]byte, 16)
	for {
		n, err := p.port.Read(buf)
		if n > 0 {
			c := buf[n-1]
			if FromCode(c) == None && c != CodeNone {
				debug.Trace("serial panel: undefined code 0x%02x", c)
			}
			p.code.Store(uint32(c))
		}
		if p.closed.Load() {
			return
		}
		if err == io.EOF {
			// tarm/serial reports a read timeout as EOF; keep the last code.
			time.Sleep(p.idle)
			continue
		}
		if err != nil {
			debug.Error(fmt.Errorf("serial panel read: %w", err))
			// A dead line must not leave a button stuck down.
			p.code.Store(uint32(CodeNone))
			return
		}
	}
}

// Current returns the last decoded code.
func (p *SerialPanel) Current() Reading {
	return FromCode(byte(p.code.Load()))
}

// Close closes the serial line and waits for the reader to stop.
func (p *SerialPanel) Close() error {
	p.closed.Store(true)
	err := p.port.Close()
	<-p.done
	return err
}
