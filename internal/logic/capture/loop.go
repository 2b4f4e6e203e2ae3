package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cjeanneret/TankGo/internal/debug"
	"github.com/cjeanneret/TankGo/internal/hw/camera"
	"github.com/cjeanneret/TankGo/internal/metrics"
)

// Defaults applied to zero Config fields.
const (
	DefaultCaptureTimeout = 5 * time.Second
	DefaultInterval       = 100 * time.Millisecond
)

// Sender delivers one frame to the remote consumer.
type Sender interface {
	Send(ctx context.Context, payload []byte) error
	Addr() string
}

// Config is the static part of a capture session, reported by Status.
type Config struct {
	RemoteHost string
	RemotePort int
	Format     string // replaced by the backend's own format when it reports one
	Width      int
	Height     int

	CaptureTimeout time.Duration // per capture
	Interval       time.Duration // pause between iterations
}

// Resolution formats the capture size as "WxH".
func (c Config) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

// Status is a point-in-time view of the loop.
type Status struct {
	Capturing     bool   `json:"capturing"`
	RemoteHost    string `json:"remote_host"`
	RemotePort    int    `json:"remote_port"`
	Format        string `json:"format"`
	Resolution    string `json:"resolution"`
	SessionID     string `json:"session_id,omitempty"`
	FramesSent    uint64 `json:"frames_sent"`
	FramesDropped uint64 `json:"frames_dropped"`
}

// Loop repeatedly captures a frame and pushes it to the remote consumer
// until stopped. At most one worker goroutine exists at any time.
type Loop struct {
	camera camera.Camera
	sender Sender
	cfg    Config

	// mu serializes Start and Stop; stop and done belong to the live worker.
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	active  atomic.Bool
	session atomic.Pointer[string]

	workers atomic.Int32
	seq     atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewLoop creates a stopped loop.
func NewLoop(cam camera.Camera, sender Sender, cfg Config) *Loop {
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if fr, ok := cam.(camera.FormatReporter); ok {
		if f := fr.Format(); f != "" {
			cfg.Format = f
		}
	}
	return &Loop{camera: cam, sender: sender, cfg: cfg}
}

// Start launches the worker and returns the new session id. If a session
// is already running it returns that session's id and started=false.
func (l *Loop) Start() (sessionID string, started bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active.Load() {
		return l.SessionID(), false
	}

	id := uuid.NewString()
	l.session.Store(&id)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.active.Store(true)
	l.workers.Add(1)

	metrics.CaptureSessionsTotal.Inc()
	metrics.CaptureActive.Set(1)
	debug.Info("Capture session %s started, sending %s frames to %s", id, l.cfg.Format, l.sender.Addr())

	go l.run(id, l.stop, l.done)
	return id, true
}

// Stop signals the worker and waits for it to exit. An in-flight capture
// or send is allowed to finish; the worker exits at its next check.
// Returns false if no session was running.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.active.Load() {
		return false
	}

	close(l.stop)
	<-l.done
	l.active.Store(false)

	metrics.CaptureActive.Set(0)
	debug.Info("Capture session %s stopped", l.SessionID())
	return true
}

// Active reports whether a session is running.
func (l *Loop) Active() bool {
	return l.active.Load()
}

// SessionID returns the id of the current or last session.
func (l *Loop) SessionID() string {
	if p := l.session.Load(); p != nil {
		return *p
	}
	return ""
}

// Status has no side effects.
func (l *Loop) Status() Status {
	s := Status{
		Capturing:     l.active.Load(),
		RemoteHost:    l.cfg.RemoteHost,
		RemotePort:    l.cfg.RemotePort,
		Format:        l.cfg.Format,
		Resolution:    l.cfg.Resolution(),
		FramesSent:    l.sent.Load(),
		FramesDropped: l.dropped.Load(),
	}
	if s.Capturing {
		s.SessionID = l.SessionID()
	}
	return s
}

func (l *Loop) run(session string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer l.workers.Add(-1)

	log := debug.With("session", session)
	for {
		select {
		case <-stop:
			return
		default:
		}

		l.iterate(log)

		select {
		case <-stop:
			return
		case <-time.After(l.cfg.Interval):
		}
	}
}

// iterate runs one capture-send-release cycle. Every failure is counted
// and logged; none of them ends the session.
func (l *Loop) iterate(log *zap.SugaredLogger) {
	seq := l.seq.Add(1)

	defer func() {
		if r := recover(); r != nil {
			l.drop(metrics.ReasonCapture)
			log.Errorw("capture iteration panicked", "seq", seq, "panic", r)
		}
	}()

	// Not derived from the session: stopping never cuts a capture short.
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CaptureTimeout)
	start := time.Now()
	frame, err := l.camera.Capture(ctx)
	cancel()
	metrics.CaptureLatency.Observe(float64(time.Since(start).Milliseconds()))

	if err == nil && frame == nil {
		err = camera.ErrCaptureFailed
	}
	if err != nil {
		reason := metrics.ReasonCapture
		if errors.Is(err, context.DeadlineExceeded) {
			reason = metrics.ReasonTimeout
		}
		l.drop(reason)
		log.Warnw("capture failed", "seq", seq, "error", err)
		return
	}

	defer func() {
		if err := frame.Release(); err != nil {
			metrics.FrameReleaseErrorsTotal.Inc()
			log.Warnw("release frame", "seq", seq, "error", err)
		}
	}()

	size := len(frame.Data)
	metrics.FrameBytes.Observe(float64(size))

	if err := l.sender.Send(context.Background(), frame.Data); err != nil {
		l.drop(metrics.ReasonTransmit)
		log.Warnw("send failed", "seq", seq, "bytes", size, "error", err)
		return
	}

	l.sent.Add(1)
	metrics.FramesSentTotal.Inc()
	debug.Frame(seq, size, l.sender.Addr())
}

func (l *Loop) drop(reason string) {
	l.dropped.Add(1)
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()
}
