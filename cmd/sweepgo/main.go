package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"go.bug.st/serial"

	"github.com/cjeanneret/SweepGo/internal/config"
	"github.com/cjeanneret/SweepGo/internal/debug"
	"github.com/cjeanneret/SweepGo/internal/hw/button"
	"github.com/cjeanneret/SweepGo/internal/hw/display"
	"github.com/cjeanneret/SweepGo/internal/hw/gpio"
	"github.com/cjeanneret/SweepGo/internal/hw/motor"
	"github.com/cjeanneret/SweepGo/internal/logic/input"
	"github.com/cjeanneret/SweepGo/internal/logic/oscillation"
	"github.com/cjeanneret/SweepGo/internal/logic/runner"
	"github.com/cjeanneret/SweepGo/internal/logic/tick"
	"github.com/cjeanneret/SweepGo/internal/tui"
	"github.com/cjeanneret/SweepGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	useTUI := flag.Bool("tui", false, "show the terminal front panel (arrow keys press the buttons)")
	exitClicks := flag.Int("exit_clicks", 0, "override the number of Exit clicks that end the program")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	if *listPorts {
		if err := printPorts(os.Stdout, serial.GetPortsList); err != nil {
			log.Fatalf("list ports failed: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := validateExitClicks(*exitClicks); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, *exitClicks)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
	}
	debug.SetOutput(logOutput(os.Stdout, !*useTUI, broadcaster))

	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	clock := tick.System{}

	debug.Step(2, "Initializing buttons")
	latch := button.NewLatch(cfg.Hold(), clock.Now)
	src, closeSrc, err := newButtonSource(gpioDriver, cfg, latch)
	if err != nil {
		log.Fatalf("init buttons failed: %v", err)
	}
	defer closeSrc()
	debug.PrintStruct("Buttons config", cfg.Buttons)

	debug.Step(3, "Initializing motor")
	port, err := motor.ParsePort(cfg.Motor.Port)
	if err != nil {
		log.Fatalf("motor port: %v", err)
	}
	motors, err := newMotorFromConfig(ctx, gpioDriver, cfg, port, clock)
	if err != nil {
		log.Fatalf("init motor failed: %v", err)
	}
	defer func() {
		if err := motors.Close(); err != nil {
			log.Printf("closing motor failed: %v", err)
		}
	}()
	debug.PrintStruct("Motor config", cfg.Motor)

	debug.Step(4, "Initializing display")
	screen := display.NewScreen()
	lcd := display.NewLCD(screen, cfg.Display.LCDPNG)
	sound := display.SoundLog{}
	if cfg.Display.Bell && !*useTUI {
		sound.Bell = os.Stdout
	}
	notify := oscillation.Notifier{Display: display.Multi(lcd, display.Log{}), Sound: sound}

	debug.Step(5, "Taking the buttons")
	in := input.New(ctx, src, button.LogDispatch{})
	defer in.Close()
	takeButtons(in, cfg)

	ctrl := oscillation.New(motors, in, clock, notify, oscillation.Config{
		Port:       port,
		Power:      cfg.Motor.PowerPercent,
		SweepTicks: cfg.Motor.SweepTicks,
		Settle:     cfg.Settle(),
		Tick:       cfg.Tick(),
		MaxCycles:  cfg.Motor.MaxCycles,
	})
	run := runner.New(in, ctrl, clock, notify, cfg.Tick())

	// Views run until the main loop ends.
	views, stopViews := context.WithCancel(ctx)
	defer stopViews()

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		state := func() web.State { return webState(in, ctrl, run, screen) }
		srv := web.NewServer(webAddr, broadcaster, state, latch.Press, lcd.Image)
		go func() {
			if err := srv.Run(views); err != nil {
				log.Printf("web server: %v", err)
			}
		}()
	}

	if *useTUI {
		status := func() tui.Status { return tuiStatus(in, ctrl, screen) }
		panel := tui.New(status, latch.Press, ctrl.Config().SweepTicks)
		go func() {
			if err := tui.Run(views, panel); err != nil {
				log.Printf("tui: %v", err)
			}
		}()
	}

	debug.Section("Ready")
	err = run.Run(ctx)
	stopViews()

	debug.Summary("Session Summary")
	debug.PrintStruct("Presses", run.Counts())
	debug.PrintStruct("Sweep", ctrl.Snapshot())
	if err != nil && ctx.Err() == nil {
		log.Fatalf("run failed: %v", err)
	}
}

// validateExitClicks checks the -exit_clicks override. Zero means "use config".
func validateExitClicks(n int) error {
	if n < 0 {
		return fmt.Errorf("exit_clicks must be >= 1, got %d", n)
	}
	return nil
}

// applyOverrides mutates cfg with the CLI overrides. Zero values are ignored.
func applyOverrides(cfg *config.Config, exitClicks int) {
	if exitClicks > 0 {
		cfg.Buttons.ExitClicks = exitClicks
	}
}

// takeButtons applies the ownership settings. The threshold goes first so
// the claim log reports it.
func takeButtons(in *input.Owner, cfg *config.Config) {
	in.SetExitClickThreshold(cfg.Buttons.ExitClicks)
	if cfg.ClaimButtons() {
		in.Claim()
	}
}

// logOutput picks the debug writers: stdout unless the terminal panel owns
// the screen, plus the web log stream when enabled.
func logOutput(stdout io.Writer, useStdout bool, b *web.StatusBroadcaster) io.Writer {
	var ws []io.Writer
	if useStdout {
		ws = append(ws, stdout)
	}
	if b != nil {
		ws = append(ws, web.BroadcastWriter(b))
	}
	switch len(ws) {
	case 0:
		return io.Discard
	case 1:
		return ws[0]
	default:
		return io.MultiWriter(ws...)
	}
}

// newButtonSource builds the configured panel merged with the virtual one.
// The returned func releases the panel.
func newButtonSource(g gpio.Driver, cfg *config.Config, latch *button.Latch) (button.Source, func(), error) {
	noop := func() {}
	switch cfg.Buttons.Source {
	case "virtual":
		return latch, noop, nil
	case "gpio":
		p := cfg.Buttons.Pins
		panel, err := button.NewGPIOPanel(g, button.Pins{Left: p.Left, Right: p.Right, Enter: p.Enter, Exit: p.Exit})
		if err != nil {
			return nil, noop, err
		}
		return button.Merge(panel, latch), noop, nil
	case "serial":
		panel, err := button.OpenSerialPanel(button.SerialConfig{
			Device: cfg.Buttons.SerialPort,
			Baud:   cfg.Buttons.SerialBaud,
		})
		if err != nil {
			return nil, noop, err
		}
		closer := func() {
			if err := panel.Close(); err != nil {
				log.Printf("closing serial panel failed: %v", err)
			}
		}
		return button.Merge(panel, latch), closer, nil
	default:
		return nil, noop, fmt.Errorf("unsupported button source: %s", cfg.Buttons.Source)
	}
}

// newMotorFromConfig selects a motor backend based on configuration.
func newMotorFromConfig(ctx context.Context, g gpio.Driver, cfg *config.Config, port motor.Port, clock tick.Clock) (motor.Driver, error) {
	switch cfg.Motor.Backend {
	case "sim":
		return motor.NewSim(cfg.Motor.Sim.TicksPerSecond, clock.Now), nil
	case "hbridge":
		h := cfg.Motor.HBridge
		hb, err := motor.NewHBridge(g, map[motor.Port]motor.HBridgePins{
			port: {PWM: h.PWMPin, Dir: h.DirPin, EncA: h.EncAPin, EncB: h.EncBPin},
		})
		if err != nil {
			return nil, err
		}
		go hb.RunSampler(ctx, cfg.SampleInterval())
		return hb, nil
	case "servo":
		s := cfg.Motor.Servo
		return motor.OpenServo(port, motor.ServoConfig{
			Port:       s.SerialPort,
			ID:         s.ServoID,
			Home:       s.Home,
			RawPerTick: servoRawPerTick(cfg.Motor.SweepTicks),
			MaxStep:    s.MaxStep,
		})
	default:
		return nil, fmt.Errorf("unsupported motor backend: %s", cfg.Motor.Backend)
	}
}

// servoRawPerTick scales a sweep to half a servo turn (2048 raw steps).
func servoRawPerTick(sweepTicks int) float64 {
	if sweepTicks <= 0 {
		return 0
	}
	return 2048 / float64(sweepTicks)
}

func webState(in *input.Owner, ctrl *oscillation.Controller, run *runner.Runner, screen *display.Screen) web.State {
	return web.State{
		Sweep:         ctrl.Snapshot(),
		Presses:       run.Counts(),
		ExitClicks:    in.ExitClicks(),
		ExitThreshold: in.ExitClickThreshold(),
		Claimed:       in.Claimed(),
		Escaped:       in.Escaped(),
		Button:        in.Last().String(),
		Screen:        screen.Lines(),
	}
}

func tuiStatus(in *input.Owner, ctrl *oscillation.Controller, screen *display.Screen) tui.Status {
	return tui.Status{
		Sweep:         ctrl.Snapshot(),
		Screen:        screen.Lines(),
		ExitClicks:    in.ExitClicks(),
		ExitThreshold: in.ExitClickThreshold(),
		Escaped:       in.Escaped(),
	}
}

// printPorts writes the serial ports found on the host, one per line.
func printPorts(w io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return nil
	}
	sort.Strings(ports)
	for _, p := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		fmt.Fprintln(w, p)
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
