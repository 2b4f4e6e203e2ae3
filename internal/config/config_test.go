package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
	if err := ValidateConfigPath(filepath.Join("configs", "default.yaml")); err != nil {
		t.Errorf("relative default path should be valid, got: %v", err)
	}
}

func TestValidateConfigPath_Rejected(t *testing.T) {
	cases := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"traversal", "../../etc/passwd"},
		{"traversal inside configs", "configs/../../../etc/shadow.yaml"},
		{"json", "configs/default.json"},
		{"yml", "configs/default.yml"},
		{"no extension", "configs/default"},
		{"other dir", "other/default.yaml"},
		{"bare file", "default.yaml"},
		{"absolute outside", "/tmp/default.yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateConfigPath(tc.path); err == nil {
				t.Errorf("expected error for %q, got nil", tc.path)
			}
		})
	}
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	cfgDir := filepath.Join(t.TempDir(), "configs")
	for _, name := range []string{"con fig.yaml", "café.yaml"} {
		if err := ValidateConfigPath(filepath.Join(cfgDir, name)); err != nil {
			t.Errorf("unexpected error for %q: %v", name, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgDir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
remote:
  host: "192.168.1.20"
  port: 5001
  send_timeout_ms: 1500
capture:
  type: "command"
  command: "rpicam-still"
  args: ["-o", "{output}", "--width", "{width}", "--height", "{height}"]
  format: "jpg"
  resolution:
    width: 640
    height: 480
  timeout_ms: 3000
  interval_ms: 250
left_motor:
  in1_pin: 17
  in2_pin: 27
  pwm_pin: 18
right_motor:
  in1_pin: 22
  in2_pin: 4
  pwm_pin: 19
drive:
  pwm_range: 4096
  pwm_freq_hz: 2000
  max_duration_s: 10
  default_speed: 70
  default_duration_s: 0.5
robot:
  robot_type: "freenove_tank"
  gpio_driver: "rpio"
server:
  port: 9000
  service_name: "tank-front"
defaults:
  debug_level: 2
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RemoteAddr() != "192.168.1.20:5001" {
		t.Errorf("RemoteAddr() = %q", cfg.RemoteAddr())
	}
	if cfg.Capture.Command != "rpicam-still" || len(cfg.Capture.Args) != 6 {
		t.Errorf("capture command = %q %v", cfg.Capture.Command, cfg.Capture.Args)
	}
	if cfg.Resolution() != "640x480" {
		t.Errorf("Resolution() = %q, want 640x480", cfg.Resolution())
	}
	if cfg.LeftMotor.PWMPin != 18 || cfg.RightMotor.In2Pin != 4 {
		t.Errorf("motor pins = %+v / %+v", cfg.LeftMotor, cfg.RightMotor)
	}
	if cfg.Drive.PWMRange != 4096 || cfg.Drive.DefaultSpeed != 70 {
		t.Errorf("drive = %+v", cfg.Drive)
	}
	if cfg.Server.Port != 9000 || cfg.Server.ServiceName != "tank-front" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Defaults.MockGPIO || cfg.Defaults.DebugLevel != 2 {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, "remote:\n  host: \"10.0.0.5\"\n  port: 5001\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Capture.Type != CaptureCommand || cfg.Capture.Command != "sensor_capture" || cfg.Capture.Device != "camera1" {
		t.Errorf("capture defaults = %+v", cfg.Capture)
	}
	if cfg.Capture.Format != "bmp" || cfg.Resolution() != "320x240" {
		t.Errorf("format/resolution defaults = %s/%s", cfg.Capture.Format, cfg.Resolution())
	}
	if cfg.CaptureTimeout() != 5*time.Second {
		t.Errorf("CaptureTimeout() = %v, want 5s", cfg.CaptureTimeout())
	}
	if cfg.CaptureInterval() != 100*time.Millisecond {
		t.Errorf("CaptureInterval() = %v, want 100ms", cfg.CaptureInterval())
	}
	if cfg.SendTimeout() != 2*time.Second {
		t.Errorf("SendTimeout() = %v, want 2s", cfg.SendTimeout())
	}
	if cfg.Drive.PWMRange != 1023 || cfg.Drive.PWMFreqHz != 1000 {
		t.Errorf("pwm defaults = %d / %d", cfg.Drive.PWMRange, cfg.Drive.PWMFreqHz)
	}
	if cfg.MaxMoveDuration() != 30*time.Second {
		t.Errorf("MaxMoveDuration() = %v, want 30s", cfg.MaxMoveDuration())
	}
	if cfg.Drive.DefaultSpeed != 50 || cfg.Drive.DefaultDurationS != 1.0 {
		t.Errorf("move defaults = %d / %g", cfg.Drive.DefaultSpeed, cfg.Drive.DefaultDurationS)
	}
	if cfg.LeftMotor.PWMPin != 12 || cfg.RightMotor.PWMPin != 13 {
		t.Errorf("default PWM pins = %d / %d, want 12 / 13", cfg.LeftMotor.PWMPin, cfg.RightMotor.PWMPin)
	}
	if cfg.Robot.RobotType != "qnx_freenove_tank" {
		t.Errorf("robot_type default = %q", cfg.Robot.RobotType)
	}
	if cfg.Server.Port != 8080 || cfg.Server.ServiceName != "tankgo" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
}

func TestLoad_ExplicitZeroMoveDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
remote: {host: "10.0.0.5", port: 5001}
drive: {default_speed: 0, default_duration_s: 0}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Drive.DefaultSpeed != 0 {
		t.Errorf("DefaultSpeed = %d, want explicit 0 kept", cfg.Drive.DefaultSpeed)
	}
	if cfg.Drive.DefaultDurationS != 0 {
		t.Errorf("DefaultDurationS = %g, want explicit 0 kept", cfg.Drive.DefaultDurationS)
	}
}

func TestLoad_PartialDriveSectionKeepsMoveDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
remote: {host: "10.0.0.5", port: 5001}
drive: {pwm_range: 255}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Drive.DefaultSpeed != 50 || cfg.Drive.DefaultDurationS != 1.0 {
		t.Errorf("move defaults = %d / %g, want 50 / 1", cfg.Drive.DefaultSpeed, cfg.Drive.DefaultDurationS)
	}
}

func TestLoad_V4L2DeviceDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
remote: {host: "10.0.0.5", port: 5001}
capture: {type: "v4l2"}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Device != "/dev/video0" {
		t.Errorf("device = %q, want /dev/video0", cfg.Capture.Device)
	}
	if cfg.Capture.Command != "" {
		t.Errorf("command should stay empty for v4l2, got %q", cfg.Capture.Command)
	}
}

func TestLoad_Invalid(t *testing.T) {
	const remote = "remote: {host: \"10.0.0.5\", port: 5001}\n"
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing host", "remote: {port: 5001}\n", "remote.host"},
		{"missing port", "remote: {host: \"10.0.0.5\"}\n", "remote.port"},
		{"port too large", "remote: {host: \"10.0.0.5\", port: 70000}\n", "remote.port"},
		{"server port", remote + "server: {port: -1}\n", "server.port"},
		{"capture type", remote + "capture: {type: \"usb\"}\n", "capture.type"},
		{"format with slash", remote + "capture: {format: \"../bmp\"}\n", "capture.format"},
		{"pin out of range", remote + "left_motor: {in1_pin: 40, in2_pin: 24, pwm_pin: 12}\n", "left_motor.in1_pin"},
		{"duplicate pin", remote + "right_motor: {in1_pin: 23, in2_pin: 6, pwm_pin: 13}\n", "both use pin 23"},
		{"default speed", remote + "drive: {default_speed: 150}\n", "drive.default_speed"},
		{"max duration", remote + "drive: {max_duration_s: 7200}\n", "drive.max_duration_s"},
		{"default over max", remote + "drive: {max_duration_s: 2, default_duration_s: 5}\n", "default_duration_s"},
		{"debug level", remote + "defaults: {debug_level: 9}\n", "debug_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	path := writeConfig(t, strings.Repeat("#", MaxConfigFileBytes+1))
	if _, err := Load(path); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "{{{{invalid yaml!!!!")); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "")); err == nil {
		t.Error("expected error for empty config (remote.host missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
remote: {host: "10.0.0.5", port: 5001}
unknown_section:
  foo: bar
`
	if _, err := Load(writeConfig(t, yaml)); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_ShippedDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	if err != nil {
		t.Fatalf("configs/default.yaml should load: %v", err)
	}
	if cfg.Remote.Port != 5001 || cfg.Capture.Type != CaptureCommand {
		t.Errorf("unexpected shipped config: %+v", cfg.Remote)
	}
}

// ---------- Overrides ----------

func TestApply_OnlyNonZero(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}

	level := 0
	mock := false
	if err := cfg.Apply(Overrides{RemotePort: 6000, DebugLevel: &level, MockGPIO: &mock}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if cfg.Remote.Host != "192.168.1.20" {
		t.Errorf("empty host override should keep file value, got %q", cfg.Remote.Host)
	}
	if cfg.Remote.Port != 6000 {
		t.Errorf("port = %d, want 6000", cfg.Remote.Port)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server port = %d, want file value 9000", cfg.Server.Port)
	}
	if cfg.Defaults.DebugLevel != 0 || cfg.Defaults.MockGPIO {
		t.Errorf("pointer overrides should apply explicit zero values: %+v", cfg.Defaults)
	}
}

func TestApply_Invalid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Apply(Overrides{ServerPort: 70000}); err == nil {
		t.Error("expected error for out-of-range server port")
	}
}

// ---------- Helper methods ----------

func TestConfig_DurationAccessors(t *testing.T) {
	cfg := &Config{
		Remote:  RemoteConfig{SendTimeoutMs: 750},
		Capture: CaptureConfig{TimeoutMs: 1200, IntervalMs: 40},
		Drive:   DriveConfig{MaxDurationS: 2.5},
	}
	if got := cfg.SendTimeout(); got != 750*time.Millisecond {
		t.Errorf("SendTimeout() = %v", got)
	}
	if got := cfg.CaptureTimeout(); got != 1200*time.Millisecond {
		t.Errorf("CaptureTimeout() = %v", got)
	}
	if got := cfg.CaptureInterval(); got != 40*time.Millisecond {
		t.Errorf("CaptureInterval() = %v", got)
	}
	if got := cfg.MaxMoveDuration(); got != 2500*time.Millisecond {
		t.Errorf("MaxMoveDuration() = %v", got)
	}
}

func TestConfig_RemoteAddrIPv6(t *testing.T) {
	cfg := &Config{Remote: RemoteConfig{Host: "fe80::1", Port: 5001}}
	if got := cfg.RemoteAddr(); got != "[fe80::1]:5001" {
		t.Errorf("RemoteAddr() = %q", got)
	}
}
