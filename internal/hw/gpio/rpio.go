package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/TankGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
// Hardware PWM is only available on BCM 12, 13, 18 and 19.
type RPiDriver struct {
	mu     sync.Mutex
	pins   map[int]rpio.Pin
	cycles map[int]uint32 // PWM cycle length per pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:   make(map[int]rpio.Pin),
		cycles: make(map[int]uint32),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setupPin(pin, mode)
}

func (r *RPiDriver) setupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		p.Mode(rpio.Pwm)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.setupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

// SetupPWM configures pin for hardware PWM. go-rpio takes the PWM clock
// frequency, so the requested output frequency is multiplied by the cycle.
func (r *RPiDriver) SetupPWM(pin int, freqHz int, cycle uint32) error {
	if freqHz <= 0 || cycle == 0 {
		return fmt.Errorf("invalid PWM setup for pin %d: freq=%d cycle=%d", pin, freqHz, cycle)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.setupPin(pin, PWM); err != nil {
		return err
	}
	p := r.pins[pin]
	p.Freq(freqHz * int(cycle))
	p.DutyCycle(0, cycle)
	r.cycles[pin] = cycle
	debug.GPIO("SetupPWM", pin, fmt.Sprintf("freq=%dHz cycle=%d", freqHz, cycle))
	return nil
}

func (r *RPiDriver) WritePWM(pin int, duty uint32) error {
	debug.GPIO("WritePWM", pin, duty)
	r.mu.Lock()
	defer r.mu.Unlock()

	cycle, ok := r.cycles[pin]
	if !ok {
		return fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	if duty > cycle {
		duty = cycle
	}
	r.pins[pin].DutyCycle(duty, cycle)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")
	r.mu.Lock()
	defer r.mu.Unlock()

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		if _, isPWM := r.cycles[pin]; isPWM {
			p.DutyCycle(0, r.cycles[pin])
		}
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
