package button

import (
	"io"
	"testing"
	"time"

	"github.com/cjeanneret/SweepGo/internal/hw/gpio"
)

func TestDecode_Priority(t *testing.T) {
	cases := []struct {
		name string
		p    Pressed
		want Reading
	}{
		{"nothing", Pressed{}, None},
		{"left only", Pressed{Left: true}, Left},
		{"left+right", Pressed{Left: true, Right: true}, Right},
		{"right+enter", Pressed{Right: true, Enter: true}, Enter},
		{"enter+exit", Pressed{Enter: true, Exit: true}, Exit},
		{"all", Pressed{true, true, true, true}, Exit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decode(tc.p); got != tc.want {
				t.Errorf("Decode(%+v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}
}

func TestFromCode(t *testing.T) {
	cases := []struct {
		code byte
		want Reading
	}{
		{CodeExit, Exit},
		{CodeRight, Right},
		{CodeLeft, Left},
		{CodeEnter, Enter},
		{CodeNone, None},
		{0x42, None}, // undefined decoder output
	}
	for _, tc := range cases {
		if got := FromCode(tc.code); got != tc.want {
			t.Errorf("FromCode(0x%02x) = %v, want %v", tc.code, got, tc.want)
		}
		if tc.want != None && tc.want.Code() != tc.code {
			t.Errorf("%v.Code() = 0x%02x, want 0x%02x", tc.want, tc.want.Code(), tc.code)
		}
	}
}

func TestParse(t *testing.T) {
	for in, want := range map[string]Reading{
		"left": Left, "Right": Right, " ENTER ": Enter, "exit": Exit, "none": None,
	} {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Errorf("Parse(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := Parse("up"); err == nil {
		t.Error("Parse(\"up\") should fail")
	}
}

func TestSanitize(t *testing.T) {
	if Sanitize(Reading(42)) != None {
		t.Error("undefined reading should sanitize to None")
	}
	if Sanitize(Left) != Left {
		t.Error("valid reading should pass through")
	}
	if s := Reading(42).String(); s != "Reading(42)" {
		t.Errorf("String() = %q", s)
	}
}

func TestGPIOPanel(t *testing.T) {
	drv := &gpio.MockDriver{}
	pins := Pins{Left: 5, Right: 6, Enter: 13, Exit: 19}
	p, err := NewGPIOPanel(drv, pins)
	if err != nil {
		t.Fatalf("NewGPIOPanel: %v", err)
	}

	if got := p.Current(); got != None {
		t.Errorf("released panel = %v, want None", got)
	}

	drv.SetInput(pins.Left, gpio.Low)
	if got := p.Current(); got != Left {
		t.Errorf("left down = %v, want Left", got)
	}

	drv.SetInput(pins.Exit, gpio.Low)
	if got := p.Current(); got != Exit {
		t.Errorf("left+exit down = %v, want Exit", got)
	}
}

func TestLatch_HoldAndRelease(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLatch(100*time.Millisecond, func() time.Time { return now })

	if l.Current() != None {
		t.Fatal("new latch should read None")
	}
	l.Press(Left)
	if l.Current() != Left {
		t.Error("pressed latch should read Left")
	}
	now = now.Add(99 * time.Millisecond)
	if l.Current() != Left {
		t.Error("latch released too early")
	}
	now = now.Add(time.Millisecond)
	if l.Current() != None {
		t.Error("latch should release after hold")
	}

	l.Press(Right)
	l.Release()
	if l.Current() != None {
		t.Error("Release should clear the reading")
	}
}

func TestLatch_RepressReleasesFirst(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLatch(150*time.Millisecond, func() time.Time { return now })

	l.Press(Exit)
	if got := l.Current(); got != Exit {
		t.Fatalf("first press = %v, want Exit", got)
	}
	now = now.Add(60 * time.Millisecond)
	l.Press(Exit) // still held
	want := []Reading{None, Exit, Exit}
	for i, w := range want {
		if got := l.Current(); got != w {
			t.Errorf("poll %d after re-press = %v, want %v", i, got, w)
		}
	}

	// The re-press gets a full hold of its own.
	now = now.Add(149 * time.Millisecond)
	if got := l.Current(); got != Exit {
		t.Errorf("re-press released early: %v", got)
	}
	now = now.Add(time.Millisecond)
	if got := l.Current(); got != None {
		t.Errorf("re-press not released after hold: %v", got)
	}
}

func TestLatch_OtherButtonReplacesHeld(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLatch(150*time.Millisecond, func() time.Time { return now })

	l.Press(Left)
	l.Current()
	l.Press(Right)
	if got := l.Current(); got != Right {
		t.Errorf("Current() = %v, want Right", got)
	}
}

func TestLatch_ReleaseDropsQueue(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLatch(150*time.Millisecond, func() time.Time { return now })

	l.Press(Enter)
	l.Press(Enter)
	l.Release()
	for i := 0; i < 3; i++ {
		if got := l.Current(); got != None {
			t.Errorf("poll %d after Release = %v, want None", i, got)
		}
	}
}

func TestMerge(t *testing.T) {
	a := NewScript(None, Left, None)
	b := NewScript(Right, None) // only polled while a reads None
	m := Merge(a, b)

	want := []Reading{Right, Left, None}
	for i, w := range want {
		if got := m.Current(); got != w {
			t.Errorf("poll %d = %v, want %v", i, got, w)
		}
	}
}

func TestScript(t *testing.T) {
	steps := append(Hold(Exit, 2), Click(Left)...)
	s := NewScript(steps...)
	want := []Reading{Exit, Exit, Left, None, None}
	for i, w := range want {
		if got := s.Current(); got != w {
			t.Errorf("step %d = %v, want %v", i, got, w)
		}
	}
	if s.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", s.Remaining())
	}
}

func TestSerialPanel(t *testing.T) {
	r, w := io.Pipe()
	p := NewSerialPanel(r)

	if p.Current() != None {
		t.Fatal("initial serial reading should be None")
	}

	w.Write([]byte{CodeLeft})
	waitFor(t, func() bool { return p.Current() == Left })

	w.Write([]byte{0x7E}) // undefined code
	waitFor(t, func() bool { return p.Current() == None })

	w.Write([]byte{CodeEnter, CodeExit})
	waitFor(t, func() bool { return p.Current() == Exit })

	w.CloseWithError(io.ErrUnexpectedEOF)
	waitFor(t, func() bool { return p.Current() == None })
	p.Close()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached within 1s")
}

func TestDispatchers(t *testing.T) {
	var got []Reading
	d := DispatchFunc(func(r Reading) { got = append(got, r) })
	d.Dispatch(Enter)
	NoDispatch.Dispatch(Enter)
	LogDispatch{}.Dispatch(Enter)
	if len(got) != 1 || got[0] != Enter {
		t.Errorf("dispatched = %v, want [Enter]", got)
	}
}
