package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 64 * 1024

// ButtonPins are the BCM pins of a four-button GPIO panel (active LOW, pull-up).
type ButtonPins struct {
	Left  int `yaml:"left"`
	Right int `yaml:"right"`
	Enter int `yaml:"enter"`
	Exit  int `yaml:"exit"`
}

// ButtonsConfig configures the button panel and its ownership.
type ButtonsConfig struct {
	Claim      *bool      `yaml:"claim"`       // take the buttons from the platform (default true)
	ExitClicks int        `yaml:"exit_clicks"` // Exit clicks that end the program (default 1)
	Source     string     `yaml:"source"`      // "gpio", "serial" or "virtual"
	Pins       ButtonPins `yaml:"pins"`
	SerialPort string     `yaml:"serial_port"` // e.g., "/dev/ttyACM0" for a serial panel
	SerialBaud int        `yaml:"serial_baud"`
	HoldMs     int        `yaml:"hold_ms"` // how long a virtual press stays down
}

// HBridgeConfig wires one motor through an H-bridge with a quadrature encoder.
type HBridgeConfig struct {
	PWMPin   int `yaml:"pwm_pin"`   // hardware PWM pin (BCM 12, 13, 18 or 19)
	DirPin   int `yaml:"dir_pin"`   // HIGH = forward
	EncAPin  int `yaml:"enc_a_pin"` // encoder channel A
	EncBPin  int `yaml:"enc_b_pin"` // encoder channel B
	SampleUs int `yaml:"sample_us"` // encoder sampling period (µs)
}

// ServoConfig drives the sweep with a Feetech STS bus servo.
type ServoConfig struct {
	SerialPort string `yaml:"serial_port"`
	ServoID    int    `yaml:"servo_id"`
	Home       int    `yaml:"home"`     // raw position held at start (0-4095)
	MaxStep    int    `yaml:"max_step"` // raw set-point advance per tick at 100% drive
}

// SimConfig tunes the simulated motor.
type SimConfig struct {
	TicksPerSecond float64 `yaml:"ticks_per_second"` // encoder speed at 100% drive
}

// MotorConfig configures the swept motor and the sweep itself.
type MotorConfig struct {
	Backend      string        `yaml:"backend"` // "sim", "hbridge" or "servo"
	Port         string        `yaml:"port"`    // A, B or C
	PowerPercent int           `yaml:"power_percent"`
	SweepTicks   int           `yaml:"sweep_ticks"` // encoder target of each half-sweep
	SettleMs     int           `yaml:"settle_ms"`   // pause between forward and reverse; 0 = default, < 0 = none
	MaxCycles    int           `yaml:"max_cycles"`  // 0 = until Right is pressed
	HBridge      HBridgeConfig `yaml:"hbridge"`
	Servo        ServoConfig   `yaml:"servo"`
	Sim          SimConfig     `yaml:"sim"`
}

// DisplayConfig configures the screen and speaker stand-ins.
type DisplayConfig struct {
	LCDPNG string `yaml:"lcd_png"` // optional PNG snapshot of the LCD
	Bell   bool   `yaml:"bell"`    // ring the terminal bell on click sounds
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	TickMs     int  `yaml:"tick_ms"`     // control loop period
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Buttons  ButtonsConfig  `yaml:"buttons"`
	Motor    MotorConfig    `yaml:"motor"`
	Display  DisplayConfig  `yaml:"display"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files inside a configs/ directory,
// without path traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file %q must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Buttons.Claim == nil {
		claim := true
		c.Buttons.Claim = &claim
	}
	// Negative thresholds are left alone: the input owner clamps and logs them.
	if c.Buttons.ExitClicks == 0 {
		c.Buttons.ExitClicks = 1
	}
	if c.Buttons.Source == "" {
		c.Buttons.Source = "virtual"
	}
	if c.Buttons.SerialBaud <= 0 {
		c.Buttons.SerialBaud = 115200
	}
	if c.Buttons.HoldMs <= 0 {
		c.Buttons.HoldMs = 150
	}

	if c.Motor.Backend == "" {
		c.Motor.Backend = "sim"
	}
	if c.Motor.Port == "" {
		c.Motor.Port = "A"
	}
	if c.Motor.PowerPercent == 0 {
		c.Motor.PowerPercent = 25 // low power, as on the brick
	}
	if c.Motor.SweepTicks == 0 {
		c.Motor.SweepTicks = 1080
	}
	if c.Motor.SettleMs == 0 {
		c.Motor.SettleMs = 500
	}
	if c.Motor.HBridge.SampleUs <= 0 {
		c.Motor.HBridge.SampleUs = 200
	}
	if c.Motor.Servo.ServoID == 0 {
		c.Motor.Servo.ServoID = 1
	}
	if c.Motor.Sim.TicksPerSecond <= 0 {
		c.Motor.Sim.TicksPerSecond = 1000
	}

	if c.Defaults.TickMs <= 0 {
		c.Defaults.TickMs = 5
	}
}

// Validate checks value ranges and backend-specific requirements.
func (c *Config) Validate() error {
	switch c.Buttons.Source {
	case "virtual":
	case "gpio":
		p := c.Buttons.Pins
		pins := []int{p.Left, p.Right, p.Enter, p.Exit}
		seen := make(map[int]bool)
		for _, pin := range pins {
			if pin <= 0 {
				return fmt.Errorf("buttons.pins: all four pins are required for source gpio")
			}
			if seen[pin] {
				return fmt.Errorf("buttons.pins: pin %d used twice", pin)
			}
			seen[pin] = true
		}
	case "serial":
		if c.Buttons.SerialPort == "" {
			return fmt.Errorf("buttons.serial_port is required for source serial")
		}
	default:
		return fmt.Errorf("buttons.source must be gpio, serial or virtual, got %q", c.Buttons.Source)
	}

	switch strings.ToUpper(strings.TrimSpace(c.Motor.Port)) {
	case "A", "B", "C":
	default:
		return fmt.Errorf("motor.port must be A, B or C, got %q", c.Motor.Port)
	}
	if c.Motor.PowerPercent < 1 || c.Motor.PowerPercent > 100 {
		return fmt.Errorf("motor.power_percent must be between 1 and 100, got %d", c.Motor.PowerPercent)
	}
	if c.Motor.SweepTicks < 0 {
		return fmt.Errorf("motor.sweep_ticks must be > 0, got %d", c.Motor.SweepTicks)
	}
	if c.Motor.MaxCycles < 0 {
		return fmt.Errorf("motor.max_cycles must be >= 0, got %d", c.Motor.MaxCycles)
	}
	switch c.Motor.Backend {
	case "sim":
	case "hbridge":
		h := c.Motor.HBridge
		if h.PWMPin <= 0 || h.DirPin <= 0 || h.EncAPin <= 0 || h.EncBPin <= 0 {
			return fmt.Errorf("motor.hbridge: pwm_pin, dir_pin, enc_a_pin and enc_b_pin are required")
		}
	case "servo":
		if c.Motor.Servo.SerialPort == "" {
			return fmt.Errorf("motor.servo.serial_port is required for backend servo")
		}
		if c.Motor.Servo.ServoID < 1 || c.Motor.Servo.ServoID > 253 {
			return fmt.Errorf("motor.servo.servo_id must be between 1 and 253, got %d", c.Motor.Servo.ServoID)
		}
		if c.Motor.Servo.Home < 0 || c.Motor.Servo.Home > 4095 {
			return fmt.Errorf("motor.servo.home must be between 0 and 4095, got %d", c.Motor.Servo.Home)
		}
	default:
		return fmt.Errorf("motor.backend must be sim, hbridge or servo, got %q", c.Motor.Backend)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ClaimButtons reports whether the program takes the buttons from the platform.
func (c *Config) ClaimButtons() bool {
	return c.Buttons.Claim == nil || *c.Buttons.Claim
}

// Tick returns the control loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Defaults.TickMs) * time.Millisecond
}

// Settle returns the pause between the forward and reverse phases. A negative
// value means no settle.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Motor.SettleMs) * time.Millisecond
}

// Hold returns how long a virtual button press stays down.
func (c *Config) Hold() time.Duration {
	return time.Duration(c.Buttons.HoldMs) * time.Millisecond
}

// SampleInterval returns the H-bridge encoder sampling period.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Motor.HBridge.SampleUs) * time.Microsecond
}
