package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	CaptureActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tankgo_capture_active",
		Help: "1 while the capture loop is running",
	})
)

// Counters
var (
	CaptureSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tankgo_capture_sessions_total",
		Help: "Total capture sessions started",
	})
	FramesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tankgo_frames_sent_total",
		Help: "Frames delivered to the remote consumer",
	})
	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tankgo_frames_dropped_total",
		Help: "Capture iterations that produced no delivered frame, by reason",
	}, []string{"reason"})
	FrameReleaseErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tankgo_frame_release_errors_total",
		Help: "Temporary capture resources that could not be freed",
	})
	MotionCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tankgo_motion_commands_total",
		Help: "Motion commands by action and outcome",
	}, []string{"action", "outcome"})
	SafetyStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tankgo_safety_stops_total",
		Help: "Stop-all invocations by cause",
	}, []string{"cause"})
)

// Histograms
var (
	FrameBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tankgo_frame_bytes",
		Help:    "Size of captured frames in bytes",
		Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8),
	})
	CaptureLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tankgo_capture_duration_ms",
		Help:    "Capture backend latency in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	MoveHoldSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tankgo_move_hold_seconds",
		Help:    "Time a timed move actually held before stopping",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Drop reasons for FramesDroppedTotal.
const (
	ReasonCapture  = "capture"
	ReasonTimeout  = "timeout"
	ReasonTransmit = "transmit"
)
