package motor

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/cjeanneret/TankGo/internal/debug"
	"github.com/cjeanneret/TankGo/internal/hw/gpio"
)

// MaxSpeed is the magnitude of a full-speed drive command.
const MaxSpeed = 100

// ChannelConfig holds the H-bridge wiring for one track.
type ChannelConfig struct {
	In1Pin int // direction input 1 (BCM). HIGH with In2 LOW = forward.
	In2Pin int // direction input 2 (BCM)
	PWMPin int // speed input, must be a hardware PWM pin
}

// Config holds the hardware configuration for the tank drive.
type Config struct {
	Left      ChannelConfig
	Right     ChannelConfig
	PWMRange  uint32 // duty-cycle value reached at 100% speed
	PWMFreqHz int
}

// TankDriver drives the two tracks of a differential-drive chassis.
// Speeds are percentages in [-100,100]; the sign selects direction.
type TankDriver struct {
	gpio gpio.Driver
	cfg  Config

	mu          sync.Mutex
	left, right int // last speeds applied successfully
}

// NewTankDriver configures the direction and PWM pins of both channels
// and leaves the motors stopped.
func NewTankDriver(g gpio.Driver, cfg Config) (*TankDriver, error) {
	if cfg.PWMRange == 0 {
		cfg.PWMRange = 1023
	}
	if cfg.PWMFreqHz <= 0 {
		cfg.PWMFreqHz = 1000
	}

	t := &TankDriver{gpio: g, cfg: cfg}
	for _, ch := range []ChannelConfig{cfg.Left, cfg.Right} {
		if err := g.SetupPin(ch.In1Pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", ch.In1Pin, err)
		}
		if err := g.SetupPin(ch.In2Pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", ch.In2Pin, err)
		}
		if err := g.SetupPWM(ch.PWMPin, cfg.PWMFreqHz, cfg.PWMRange); err != nil {
			return nil, fmt.Errorf("setup pwm pin %d: %w", ch.PWMPin, err)
		}
	}

	if err := t.StopAll(); err != nil {
		return nil, fmt.Errorf("initial stop: %w", err)
	}
	debug.Info("Tank driver ready (pwm range %d, %d Hz)", cfg.PWMRange, cfg.PWMFreqHz)
	return t, nil
}

// DutyCycle maps a speed percentage to the backend duty-cycle domain.
// The mapping is linear: 0 maps to 0 and 100 maps to pwmRange. The sign of
// percent is ignored and values above 100 saturate.
func DutyCycle(percent int, pwmRange uint32) uint32 {
	if percent < 0 {
		percent = -percent
	}
	if percent > MaxSpeed {
		percent = MaxSpeed
	}
	return uint32(uint64(percent) * uint64(pwmRange) / MaxSpeed)
}

// Drive applies a signed speed to each track.
func (t *TankDriver) Drive(left, right int) error {
	if left < -MaxSpeed || left > MaxSpeed || right < -MaxSpeed || right > MaxSpeed {
		return fmt.Errorf("speed out of range: left=%d right=%d", left, right)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	debug.Drive(left, right)
	if err := t.setChannel(t.cfg.Left, left); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if err := t.setChannel(t.cfg.Right, right); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	t.left, t.right = left, right
	return nil
}

// StopAll brings both tracks to zero. Both channels are always attempted,
// even if the first one fails.
func (t *TankDriver) StopAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := multierr.Append(
		t.setChannel(t.cfg.Left, 0),
		t.setChannel(t.cfg.Right, 0),
	)
	if err != nil {
		return fmt.Errorf("stop motors: %w", err)
	}
	t.left, t.right = 0, 0
	debug.Live("All motors stopped")
	return nil
}

// State returns the last speeds applied successfully.
func (t *TankDriver) State() (left, right int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left, t.right
}

// Close stops the motors. The GPIO driver is owned by the caller.
func (t *TankDriver) Close() error {
	return t.StopAll()
}

func (t *TankDriver) setChannel(ch ChannelConfig, speed int) error {
	var in1, in2 gpio.Level
	switch {
	case speed > 0:
		in1, in2 = gpio.High, gpio.Low
	case speed < 0:
		in1, in2 = gpio.Low, gpio.High
	default:
		// Cut power before touching the direction pins.
		if err := t.gpio.WritePWM(ch.PWMPin, 0); err != nil {
			return err
		}
		in1, in2 = gpio.Low, gpio.Low
	}

	if err := t.gpio.WritePin(ch.In1Pin, in1); err != nil {
		return err
	}
	if err := t.gpio.WritePin(ch.In2Pin, in2); err != nil {
		return err
	}
	return t.gpio.WritePWM(ch.PWMPin, DutyCycle(speed, t.cfg.PWMRange))
}
