// Package status builds the read-only views served by the status and
// health endpoints. Every call recomputes its snapshot.
package status

import (
	"time"

	"github.com/cjeanneret/TankGo/internal/logic/capture"
	"github.com/cjeanneret/TankGo/internal/logic/motion"
)

type CaptureSource interface {
	Status() capture.Status
}

type RobotSource interface {
	Status() motion.Info
}

// Health is the liveness answer.
type Health struct {
	Status    string  `json:"status"`
	Service   string  `json:"service"`
	Timestamp float64 `json:"timestamp"` // unix seconds
	Uptime    float64 `json:"uptime_s"`
}

// Robot describes the drive side of the node.
type Robot struct {
	Status       string   `json:"status"`
	RobotType    string   `json:"robot_type"`
	Capabilities []string `json:"capabilities"`
	GPIODriver   string   `json:"gpio_driver"`
}

// Snapshot is everything at once, pushed on the live status stream.
type Snapshot struct {
	Health Health         `json:"health"`
	Camera capture.Status `json:"camera"`
	Robot  Robot          `json:"robot"`
}

type Reporter struct {
	service string
	capture CaptureSource
	robot   RobotSource
	started time.Time
	now     func() time.Time
}

func NewReporter(service string, c CaptureSource, r RobotSource) *Reporter {
	return &Reporter{
		service: service,
		capture: c,
		robot:   r,
		started: time.Now(),
		now:     time.Now,
	}
}

func (r *Reporter) Health() Health {
	now := r.now()
	return Health{
		Status:    "ok",
		Service:   r.service,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Uptime:    now.Sub(r.started).Seconds(),
	}
}

func (r *Reporter) Camera() capture.Status {
	return r.capture.Status()
}

func (r *Reporter) Robot() Robot {
	info := r.robot.Status()
	return Robot{
		Status:       "online",
		RobotType:    info.RobotType,
		Capabilities: info.Capabilities,
		GPIODriver:   info.GPIODriver,
	}
}

func (r *Reporter) Snapshot() Snapshot {
	return Snapshot{
		Health: r.Health(),
		Camera: r.Camera(),
		Robot:  r.Robot(),
	}
}
