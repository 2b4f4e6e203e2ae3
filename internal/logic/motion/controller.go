package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/TankGo/internal/debug"
	"github.com/cjeanneret/TankGo/internal/hw/motor"
	"github.com/cjeanneret/TankGo/internal/metrics"
)

var (
	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidSpeed    = errors.New("invalid speed")
	ErrInvalidDuration = errors.New("invalid duration")
)

// Action is a discrete movement request.
type Action string

const (
	Forward  Action = "forward"
	Backward Action = "backward"
	Left     Action = "left"
	Right    Action = "right"
	Stop     Action = "stop"
)

// Capabilities lists every accepted action.
var Capabilities = []Action{Forward, Backward, Left, Right, Stop}

// ParseAction validates s.
func ParseAction(s string) (Action, error) {
	for _, a := range Capabilities {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidAction, s)
}

// wheels maps an action at speed s to a (left, right) drive pair.
func (a Action) wheels(s int) (left, right int) {
	switch a {
	case Forward:
		return s, s
	case Backward:
		return -s, -s
	case Left:
		return -s, s
	case Right:
		return s, -s
	}
	return 0, 0
}

// Command is one movement request. Duration is in seconds; zero or
// negative means drive and leave the motors running.
type Command struct {
	Action   Action
	Speed    int
	Duration float64
}

// Result describes an executed command.
type Result struct {
	Action      Action
	Speed       int
	Duration    float64
	Interrupted bool // the hold ended early and the motors were stopped
}

// Driver is the actuation backend.
type Driver interface {
	Drive(left, right int) error
	StopAll() error
}

// Config holds the static robot description and command limits.
type Config struct {
	RobotType   string
	GPIODriver  string
	MaxDuration time.Duration // 0 = no limit beyond what a time.Duration holds
}

// Info is the static description reported by Status.
type Info struct {
	RobotType    string
	Capabilities []string
	GPIODriver   string
}

// Controller turns commands into timed differential-drive actuation.
// It sits between the HTTP layer and the motor driver.
type Controller struct {
	drv Driver
	cfg Config

	// moveSlot serializes Moves; a waiting Move can give up on ctx.
	moveSlot chan struct{}
	// backendMu serializes every call into the driver.
	backendMu sync.Mutex

	preemptMu sync.Mutex
	preempt   chan struct{}
}

func NewController(drv Driver, cfg Config) *Controller {
	return &Controller{
		drv:      drv,
		cfg:      cfg,
		moveSlot: make(chan struct{}, 1),
		preempt:  make(chan struct{}),
	}
}

// Validate checks cmd without touching the motors.
func (c *Controller) Validate(cmd Command) error {
	if _, err := ParseAction(string(cmd.Action)); err != nil {
		return err
	}
	if cmd.Action == Stop {
		return nil
	}
	if cmd.Speed < 0 || cmd.Speed > motor.MaxSpeed {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrInvalidSpeed, cmd.Speed, motor.MaxSpeed)
	}
	if math.IsNaN(cmd.Duration) || math.IsInf(cmd.Duration, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidDuration, cmd.Duration)
	}
	limit := c.cfg.MaxDuration
	if limit <= 0 {
		limit = math.MaxInt64
	}
	if cmd.Duration > limit.Seconds() {
		return fmt.Errorf("%w: %gs exceeds limit of %gs", ErrInvalidDuration, cmd.Duration, limit.Seconds())
	}
	return nil
}

// Move executes cmd. Moves run one at a time. For a timed command the
// motors are always stopped before Move returns; the hold ends early on
// EmergencyStop or when ctx is done, and the result is marked Interrupted.
func (c *Controller) Move(ctx context.Context, cmd Command) (Result, error) {
	res := Result{Action: cmd.Action, Speed: cmd.Speed, Duration: cmd.Duration}

	if err := c.Validate(cmd); err != nil {
		label := string(cmd.Action)
		if errors.Is(err, ErrInvalidAction) {
			label = "unknown"
		}
		metrics.MotionCommandsTotal.WithLabelValues(label, "invalid").Inc()
		return Result{}, err
	}

	if cmd.Action == Stop {
		res.Speed, res.Duration = 0, 0
		err := c.halt("command")
		c.count(cmd.Action, err, false)
		return res, err
	}

	select {
	case c.moveSlot <- struct{}{}:
	case <-ctx.Done():
		return Result{}, fmt.Errorf("waiting for previous move: %w", ctx.Err())
	}
	defer func() { <-c.moveSlot }()

	preempt := c.preemptChan()
	left, right := cmd.Action.wheels(cmd.Speed)

	debug.Live("Move %s speed=%d duration=%gs", cmd.Action, cmd.Speed, cmd.Duration)
	if err := c.drive(left, right); err != nil {
		err = multierr.Append(fmt.Errorf("drive %s: %w", cmd.Action, err), c.safetyStop("error"))
		c.count(cmd.Action, err, false)
		return res, err
	}

	if cmd.Duration <= 0 {
		c.count(cmd.Action, nil, false)
		return res, nil
	}

	start := time.Now()
	timer := time.NewTimer(time.Duration(cmd.Duration * float64(time.Second)))
	defer timer.Stop()

	cause := "hold"
	select {
	case <-timer.C:
	case <-preempt:
		res.Interrupted, cause = true, "preempted"
	case <-ctx.Done():
		res.Interrupted, cause = true, "cancelled"
	}
	metrics.MoveHoldSeconds.Observe(time.Since(start).Seconds())

	if err := c.safetyStop(cause); err != nil {
		err = fmt.Errorf("stop after %s: %w", cmd.Action, err)
		c.count(cmd.Action, err, res.Interrupted)
		return res, err
	}
	if res.Interrupted {
		debug.Live("Move %s interrupted (%s)", cmd.Action, cause)
	}
	c.count(cmd.Action, nil, res.Interrupted)
	return res, nil
}

// EmergencyStop stops both motors and wakes any Move that is holding.
func (c *Controller) EmergencyStop() error {
	debug.Info("Emergency stop")
	return c.halt("emergency")
}

// Status reports static capability metadata.
func (c *Controller) Status() Info {
	caps := make([]string, len(Capabilities))
	for i, a := range Capabilities {
		caps[i] = string(a)
	}
	return Info{
		RobotType:    c.cfg.RobotType,
		Capabilities: caps,
		GPIODriver:   c.cfg.GPIODriver,
	}
}

func (c *Controller) halt(cause string) error {
	c.interrupt()
	return c.safetyStop(cause)
}

func (c *Controller) preemptChan() <-chan struct{} {
	c.preemptMu.Lock()
	defer c.preemptMu.Unlock()
	return c.preempt
}

func (c *Controller) interrupt() {
	c.preemptMu.Lock()
	close(c.preempt)
	c.preempt = make(chan struct{})
	c.preemptMu.Unlock()
}

func (c *Controller) drive(left, right int) error {
	c.backendMu.Lock()
	defer c.backendMu.Unlock()
	return c.drv.Drive(left, right)
}

func (c *Controller) safetyStop(cause string) error {
	c.backendMu.Lock()
	err := c.drv.StopAll()
	c.backendMu.Unlock()

	metrics.SafetyStopsTotal.WithLabelValues(cause).Inc()
	if err != nil {
		debug.Error(fmt.Errorf("safety stop (%s): %w", cause, err))
		return fmt.Errorf("safety stop: %w", err)
	}
	debug.Verbose("Motors stopped (%s)", cause)
	return nil
}

func (c *Controller) count(a Action, err error, interrupted bool) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case interrupted:
		outcome = "interrupted"
	}
	metrics.MotionCommandsTotal.WithLabelValues(string(a), outcome).Inc()
}
