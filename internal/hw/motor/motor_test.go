package motor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/SweepGo/internal/hw/gpio"
)

func TestParsePort(t *testing.T) {
	for in, want := range map[string]Port{"A": A, "b": B, " c ": C} {
		got, err := ParsePort(in)
		if err != nil || got != want {
			t.Errorf("ParsePort(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePort("D"); err == nil {
		t.Error("ParsePort(\"D\") should fail")
	}
}

func TestClamp(t *testing.T) {
	cases := map[int]int{-150: -100, -100: -100, 0: 0, 25: 25, 101: 100}
	for in, want := range cases {
		if got := Clamp(in); got != want {
			t.Errorf("Clamp(%d) = %d, want %d", in, got, want)
		}
	}
}

// ---------- Sim ----------

func TestSim_IntegratesDrive(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSim(1000, func() time.Time { return now })

	if err := s.ResetPosition(A); err != nil {
		t.Fatal(err)
	}
	_ = s.SetDrive(A, 25)
	now = now.Add(time.Second)
	pos, _ := s.Position(A)
	if pos != 250 {
		t.Errorf("after 1s at 25%%: pos = %d, want 250", pos)
	}

	_ = s.SetDrive(A, -50)
	now = now.Add(time.Second)
	pos, _ = s.Position(A)
	if pos != -250 {
		t.Errorf("after 1s at -50%%: pos = %d, want -250", pos)
	}

	_ = s.ResetPosition(A)
	pos, _ = s.Position(A)
	if pos != 0 {
		t.Errorf("after reset: pos = %d, want 0", pos)
	}
	if s.Drive(A) != -50 {
		t.Errorf("Drive = %d, want -50", s.Drive(A))
	}
}

func TestSim_ClampsAndStopsOnClose(t *testing.T) {
	now := time.Time{}
	s := NewSim(100, func() time.Time { return now })
	_ = s.SetDrive(B, 300)
	if s.Drive(B) != 100 {
		t.Errorf("Drive = %d, want clamp to 100", s.Drive(B))
	}
	_ = s.Close()
	if s.Drive(B) != 0 {
		t.Errorf("Drive after Close = %d, want 0", s.Drive(B))
	}
	if err := s.SetDrive(Port(7), 10); err == nil {
		t.Error("invalid port should fail")
	}
}

func TestSim_Nudge(t *testing.T) {
	s := NewSim(0, func() time.Time { return time.Time{} })
	s.Nudge(C, 500)
	if pos, _ := s.Position(C); pos != 500 {
		t.Errorf("pos = %d, want 500", pos)
	}
}

// ---------- HBridge ----------

var testPins = HBridgePins{PWM: 18, Dir: 23, EncA: 24, EncB: 25}

func TestHBridge_SetDrive(t *testing.T) {
	drv := &gpio.MockDriver{}
	h, err := NewHBridge(drv, map[Port]HBridgePins{A: testPins})
	if err != nil {
		t.Fatalf("NewHBridge: %v", err)
	}

	if err := h.SetDrive(A, 25); err != nil {
		t.Fatal(err)
	}
	if lvl, _ := drv.ReadPin(testPins.Dir); lvl != gpio.High {
		t.Error("forward drive should set dir High")
	}
	if d := drv.Duty(testPins.PWM); d != 25 {
		t.Errorf("duty = %d, want 25", d)
	}

	if err := h.SetDrive(A, -40); err != nil {
		t.Fatal(err)
	}
	if lvl, _ := drv.ReadPin(testPins.Dir); lvl != gpio.Low {
		t.Error("reverse drive should set dir Low")
	}
	if d := drv.Duty(testPins.PWM); d != 40 {
		t.Errorf("duty = %d, want 40", d)
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if d := drv.Duty(testPins.PWM); d != 0 {
		t.Errorf("duty after Close = %d, want 0", d)
	}

	if err := h.SetDrive(B, 10); err == nil {
		t.Error("unwired port should fail")
	}
}

// turn drives the mock encoder pins through n quadrature states.
func turn(drv *gpio.MockDriver, h *HBridge, n int) {
	// Gray sequence (A,B) for forward rotation: 00 -> 10 -> 11 -> 01.
	seq := [4][2]gpio.Level{{gpio.Low, gpio.Low}, {gpio.High, gpio.Low}, {gpio.High, gpio.High}, {gpio.Low, gpio.High}}
	step := 1
	if n < 0 {
		step, n = -1, -n
	}
	idx := 0
	for i := 0; i < n; i++ {
		idx = (idx + step + 4) % 4
		drv.SetInput(testPins.EncA, seq[idx][0])
		drv.SetInput(testPins.EncB, seq[idx][1])
		h.Sample()
	}
}

func TestHBridge_QuadratureCount(t *testing.T) {
	drv := &gpio.MockDriver{}
	h, err := NewHBridge(drv, map[Port]HBridgePins{A: testPins})
	if err != nil {
		t.Fatal(err)
	}
	// Start from state 00.
	drv.SetInput(testPins.EncA, gpio.Low)
	drv.SetInput(testPins.EncB, gpio.Low)
	_ = h.ResetPosition(A)

	turn(drv, h, 8)
	pos, _ := h.Position(A)
	if pos != 8 {
		t.Errorf("after 8 forward edges: pos = %d, want 8", pos)
	}

	// 8 edges bring the shaft back to state 00.
	_ = h.ResetPosition(A)
	turn(drv, h, -6)
	pos, _ = h.Position(A)
	if pos != -6 {
		t.Errorf("after 6 reverse edges: pos = %d, want -6", pos)
	}
}

func TestHBridge_RunSamplerStops(t *testing.T) {
	drv := &gpio.MockDriver{}
	h, _ := NewHBridge(drv, map[Port]HBridgePins{A: testPins})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.RunSampler(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop on cancel")
	}
}

// ---------- Servo ----------

type fakeServo struct {
	raw      int
	setCalls []int
	enabled  bool
	failRead bool
}

func (f *fakeServo) Position(ctx context.Context) (int, error) {
	if f.failRead {
		return 0, errors.New("bus timeout")
	}
	return f.raw, nil
}

func (f *fakeServo) SetPosition(ctx context.Context, pos int) error {
	f.setCalls = append(f.setCalls, pos)
	f.raw = pos // ideal servo: reaches the set-point immediately
	return nil
}

func (f *fakeServo) Enable(ctx context.Context) error  { f.enabled = true; return nil }
func (f *fakeServo) Disable(ctx context.Context) error { f.enabled = false; return nil }

func newTestServo(t *testing.T) (*Servo, *fakeServo) {
	t.Helper()
	fs := &fakeServo{}
	s := &Servo{timeout: time.Second, axes: make(map[Port]*servoAxis)}
	cfg := ServoConfig{Home: 1000, RawPerTick: 2, MaxStep: 40}.withDefaults()
	if err := s.attach(context.Background(), A, fs, cfg); err != nil {
		t.Fatal(err)
	}
	return s, fs
}

func TestServo_AttachHomes(t *testing.T) {
	_, fs := newTestServo(t)
	if !fs.enabled {
		t.Error("servo should be enabled")
	}
	if fs.raw != 1000 {
		t.Errorf("raw = %d, want home 1000", fs.raw)
	}
}

func TestServo_DriveAdvancesSetPoint(t *testing.T) {
	s, fs := newTestServo(t)

	_ = s.ResetPosition(A)
	for i := 0; i < 10; i++ {
		if err := s.SetDrive(A, 25); err != nil {
			t.Fatal(err)
		}
	}
	// 10 calls * 25% * 40 raw = 100 raw = 50 ticks at 2 raw/tick.
	pos, err := s.Position(A)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 50 {
		t.Errorf("pos = %d, want 50", pos)
	}

	_ = s.SetDrive(A, 0)
	if last := fs.setCalls[len(fs.setCalls)-1]; last != 1100 {
		t.Errorf("stop set-point = %d, want hold at 1100", last)
	}

	for i := 0; i < 4; i++ {
		_ = s.SetDrive(A, -100)
	}
	pos, _ = s.Position(A)
	if pos != -30 {
		t.Errorf("pos = %d, want -30", pos)
	}
}

func TestServo_ClampsToRange(t *testing.T) {
	s, fs := newTestServo(t)
	fs.raw = servoRawMax - 10
	_ = s.ResetPosition(A)
	_ = s.SetDrive(A, 100)
	if fs.raw != servoRawMax {
		t.Errorf("raw = %d, want clamp to %d", fs.raw, servoRawMax)
	}
}

func TestServo_ReadErrorPropagates(t *testing.T) {
	s, fs := newTestServo(t)
	fs.failRead = true
	if _, err := s.Position(A); err == nil {
		t.Error("expected read error")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if fs.enabled {
		t.Error("Close should disable torque")
	}
}
