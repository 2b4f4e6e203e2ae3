package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/TankGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input, output or hardware PWM.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case PWM:
		return "pwm"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error

	// SetupPWM puts pin in hardware PWM mode with the given output
	// frequency and cycle length (the duty-cycle range).
	SetupPWM(pin int, freqHz int, cycle uint32) error
	// WritePWM sets the duty cycle of a PWM pin, 0..cycle.
	WritePWM(pin int, duty uint32) error

	Close() error
}

// Name identifies the driver in status reports.
func Name(d Driver) string {
	switch d.(type) {
	case *MockDriver:
		return "mock"
	case *RPiDriver:
		return "rpio"
	default:
		return fmt.Sprintf("%T", d)
	}
}

// MockDriver is a test implementation that logs actions and remembers the
// last value written to each pin.
// Used for development on PC or testing.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
	duties map[int]uint32
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	return nil
}

// PinLevel returns the last level written to pin.
func (m *MockDriver) PinLevel(pin int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

func (m *MockDriver) SetupPWM(pin int, freqHz int, cycle uint32) error {
	debug.GPIO("SetupPWM", pin, fmt.Sprintf("freq=%dHz cycle=%d", freqHz, cycle))
	return nil
}

func (m *MockDriver) WritePWM(pin int, duty uint32) error {
	debug.GPIO("WritePWM", pin, duty)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duties == nil {
		m.duties = make(map[int]uint32)
	}
	m.duties[pin] = duty
	return nil
}

// Duty returns the last duty cycle written to pin.
func (m *MockDriver) Duty(pin int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duties[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
