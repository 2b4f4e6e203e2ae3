package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture backends selectable with capture.type.
const (
	CaptureCommand = "command"
	CaptureV4L2    = "v4l2"
	CaptureMock    = "mock"
)

// RemoteConfig is the consumer frames are pushed to.
type RemoteConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SendTimeoutMs int    `yaml:"send_timeout_ms"` // connect + write, per frame
}

// ResolutionConfig is the requested capture size in pixels.
type ResolutionConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CaptureConfig describes how frames are produced.
// Type selects a concrete implementation ("command", "v4l2", "mock").
type CaptureConfig struct {
	Type       string           `yaml:"type"`
	Device     string           `yaml:"device"`  // "camera1" for sensor_capture, "/dev/video0" for v4l2
	Command    string           `yaml:"command"` // external capture program (type command)
	Args       []string         `yaml:"args"`    // argument template, see camera.CommandConfig
	Format     string           `yaml:"format"`
	Resolution ResolutionConfig `yaml:"resolution"`
	TimeoutMs  int              `yaml:"timeout_ms"`  // per capture
	IntervalMs int              `yaml:"interval_ms"` // pause between captures
	TempDir    string           `yaml:"temp_dir"`
}

// MotorConfig holds the BCM pins of one H-bridge channel.
type MotorConfig struct {
	In1Pin int `yaml:"in1_pin"`
	In2Pin int `yaml:"in2_pin"`
	PWMPin int `yaml:"pwm_pin"`
}

// DriveConfig holds PWM parameters and movement command limits.
type DriveConfig struct {
	PWMRange         uint32  `yaml:"pwm_range"` // duty cycle at 100% speed
	PWMFreqHz        int     `yaml:"pwm_freq_hz"`
	MaxDurationS     float64 `yaml:"max_duration_s"`     // longest accepted timed move
	DefaultSpeed     int     `yaml:"default_speed"`      // used when a move omits speed
	DefaultDurationS float64 `yaml:"default_duration_s"` // used when a move omits duration
}

// RobotConfig is reported as-is by the robot status endpoint.
type RobotConfig struct {
	RobotType  string `yaml:"robot_type"`
	GPIODriver string `yaml:"gpio_driver"` // empty = name of the active GPIO driver
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	ServiceName string `yaml:"service_name"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Remote     RemoteConfig   `yaml:"remote"`
	Capture    CaptureConfig  `yaml:"capture"`
	LeftMotor  MotorConfig    `yaml:"left_motor"`
	RightMotor MotorConfig    `yaml:"right_motor"`
	Drive      DriveConfig    `yaml:"drive"`
	Robot      RobotConfig    `yaml:"robot"`
	Server     ServerConfig   `yaml:"server"`
	Defaults   DefaultsConfig `yaml:"defaults"`
}

// MaxConfigFileBytes caps the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	// Keys left out of the file keep these values; an explicit 0 is kept.
	cfg := Config{
		Drive: DriveConfig{DefaultSpeed: 50, DefaultDurationS: 1.0},
	}
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
	if c.Remote.SendTimeoutMs <= 0 {
		c.Remote.SendTimeoutMs = 2000
	}

	if c.Capture.Type == "" {
		c.Capture.Type = CaptureCommand
	}
	if c.Capture.Type == CaptureCommand && c.Capture.Command == "" {
		c.Capture.Command = "sensor_capture"
	}
	if c.Capture.Device == "" {
		switch c.Capture.Type {
		case CaptureV4L2:
			c.Capture.Device = "/dev/video0"
		case CaptureCommand:
			c.Capture.Device = "camera1"
		}
	}
	if c.Capture.Format == "" {
		c.Capture.Format = "bmp"
	}
	if c.Capture.Resolution.Width <= 0 || c.Capture.Resolution.Height <= 0 {
		c.Capture.Resolution = ResolutionConfig{Width: 320, Height: 240}
	}
	if c.Capture.TimeoutMs <= 0 {
		c.Capture.TimeoutMs = 5000
	}
	if c.Capture.IntervalMs <= 0 {
		c.Capture.IntervalMs = 100 // ~10 frames per second
	}

	// hardware PWM channels 0 and 1 on BCM 12 and 13
	if c.LeftMotor == (MotorConfig{}) {
		c.LeftMotor = MotorConfig{In1Pin: 23, In2Pin: 24, PWMPin: 12}
	}
	if c.RightMotor == (MotorConfig{}) {
		c.RightMotor = MotorConfig{In1Pin: 5, In2Pin: 6, PWMPin: 13}
	}

	if c.Drive.PWMRange == 0 {
		c.Drive.PWMRange = 1023
	}
	if c.Drive.PWMFreqHz <= 0 {
		c.Drive.PWMFreqHz = 1000
	}
	if c.Drive.MaxDurationS <= 0 {
		c.Drive.MaxDurationS = 30
	}

	if c.Robot.RobotType == "" {
		c.Robot.RobotType = "qnx_freenove_tank"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ServiceName == "" {
		c.Server.ServiceName = "tankgo"
	}
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.Remote.Host == "" {
		return errors.New("remote.host is required")
	}
	if err := checkPort("remote.port", c.Remote.Port); err != nil {
		return err
	}
	if err := checkPort("server.port", c.Server.Port); err != nil {
		return err
	}

	switch c.Capture.Type {
	case CaptureCommand, CaptureV4L2, CaptureMock:
	default:
		return fmt.Errorf("unsupported capture.type: %q", c.Capture.Type)
	}
	if strings.ContainsAny(c.Capture.Format, `/\`) {
		return fmt.Errorf("capture.format must be a plain extension, got %q", c.Capture.Format)
	}

	if err := c.checkPins(); err != nil {
		return err
	}

	if c.Drive.DefaultSpeed < 0 || c.Drive.DefaultSpeed > 100 {
		return fmt.Errorf("drive.default_speed must be between 0 and 100, got %d", c.Drive.DefaultSpeed)
	}
	if c.Drive.MaxDurationS > 3600 {
		return fmt.Errorf("drive.max_duration_s must be <= 3600, got %g", c.Drive.MaxDurationS)
	}
	if c.Drive.DefaultDurationS > c.Drive.MaxDurationS {
		return fmt.Errorf("drive.default_duration_s (%g) exceeds drive.max_duration_s (%g)",
			c.Drive.DefaultDurationS, c.Drive.MaxDurationS)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// BCM GPIO numbers usable on the 40-pin header.
const maxBCMPin = 27

func (c *Config) checkPins() error {
	pins := []struct {
		name string
		pin  int
	}{
		{"left_motor.in1_pin", c.LeftMotor.In1Pin},
		{"left_motor.in2_pin", c.LeftMotor.In2Pin},
		{"left_motor.pwm_pin", c.LeftMotor.PWMPin},
		{"right_motor.in1_pin", c.RightMotor.In1Pin},
		{"right_motor.in2_pin", c.RightMotor.In2Pin},
		{"right_motor.pwm_pin", c.RightMotor.PWMPin},
	}

	seen := make(map[int]string, len(pins))
	for _, p := range pins {
		if p.pin < 0 || p.pin > maxBCMPin {
			return fmt.Errorf("%s must be a BCM pin between 0 and %d, got %d", p.name, maxBCMPin, p.pin)
		}
		if other, dup := seen[p.pin]; dup {
			return fmt.Errorf("%s and %s both use pin %d", other, p.name, p.pin)
		}
		seen[p.pin] = p.name
	}
	return nil
}

func checkPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", name, port)
	}
	return nil
}

// Overrides carries command-line and environment values. Zero values mean
// "keep the file value".
type Overrides struct {
	RemoteHost string
	RemotePort int
	ServerPort int
	DebugLevel *int
	MockGPIO   *bool
}

// Apply mutates c with the non-zero overrides and re-validates.
func (c *Config) Apply(o Overrides) error {
	if o.RemoteHost != "" {
		c.Remote.Host = o.RemoteHost
	}
	if o.RemotePort != 0 {
		c.Remote.Port = o.RemotePort
	}
	if o.ServerPort != 0 {
		c.Server.Port = o.ServerPort
	}
	if o.DebugLevel != nil {
		c.Defaults.DebugLevel = *o.DebugLevel
	}
	if o.MockGPIO != nil {
		c.Defaults.MockGPIO = *o.MockGPIO
	}
	return c.Validate()
}

// ValidateConfigPath rejects paths that could point outside a configs/
// directory or at something other than a YAML file.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if parent := filepath.Base(filepath.Dir(abs)); parent != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// RemoteAddr returns "host:port" of the frame consumer.
func (c *Config) RemoteAddr() string {
	return net.JoinHostPort(c.Remote.Host, strconv.Itoa(c.Remote.Port))
}

// Resolution returns the capture size as "WxH".
func (c *Config) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Capture.Resolution.Width, c.Capture.Resolution.Height)
}

// SendTimeout bounds connect and write of one frame.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Remote.SendTimeoutMs) * time.Millisecond
}

// CaptureTimeout bounds one capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutMs) * time.Millisecond
}

// CaptureInterval is the pause between two capture iterations.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.Capture.IntervalMs) * time.Millisecond
}

// MaxMoveDuration is the longest accepted timed move.
func (c *Config) MaxMoveDuration() time.Duration {
	return time.Duration(c.Drive.MaxDurationS * float64(time.Second))
}
