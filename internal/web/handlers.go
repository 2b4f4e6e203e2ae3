package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cjeanneret/TankGo/internal/debug"
	"github.com/cjeanneret/TankGo/internal/logic/capture"
	"github.com/cjeanneret/TankGo/internal/logic/motion"
	"github.com/cjeanneret/TankGo/internal/logic/status"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 4 << 10

// CaptureController starts and stops the frame stream.
type CaptureController interface {
	Start() (sessionID string, started bool)
	Stop() bool
}

// MotionController executes movement commands.
type MotionController interface {
	Move(ctx context.Context, cmd motion.Command) (motion.Result, error)
	EmergencyStop() error
}

// StatusSource provides the read-only views.
type StatusSource interface {
	Health() status.Health
	Camera() capture.Status
	Robot() status.Robot
	Snapshot() status.Snapshot
}

// MoveDefaults fill fields a move request omits.
type MoveDefaults struct {
	Speed    int
	Duration float64
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Capture     CaptureController
	Motion      MotionController
	Status      StatusSource
	Broadcaster *StatusBroadcaster
	Defaults    MoveDefaults

	heartbeat time.Duration
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(c CaptureController, m MotionController, s StatusSource, b *StatusBroadcaster, defaults MoveDefaults) *Handlers {
	return &Handlers{
		Capture:     c,
		Motion:      m,
		Status:      s,
		Broadcaster: b,
		Defaults:    defaults,
		heartbeat:   30 * time.Second,
	}
}

type reply struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Verbose("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, reply{Status: "error", Message: msg})
}

// HandleCameraStart handles POST /camera/start. Starting twice is not an error.
func (h *Handlers) HandleCameraStart(w http.ResponseWriter, r *http.Request) {
	id, started := h.Capture.Start()
	msg := "Camera started - sending frames to consumer"
	if !started {
		msg = "Camera already running"
	} else {
		h.Broadcaster.Publish(KindCapture, "capture started", h.Status.Camera())
	}
	writeJSON(w, http.StatusOK, reply{Status: "success", Message: msg, SessionID: id})
}

// HandleCameraStop handles POST /camera/stop. Stopping an idle camera is not an error.
func (h *Handlers) HandleCameraStop(w http.ResponseWriter, r *http.Request) {
	msg := "Camera stopped"
	if h.Capture.Stop() {
		h.Broadcaster.Publish(KindCapture, "capture stopped", h.Status.Camera())
	} else {
		msg = "Camera was not running"
	}
	writeJSON(w, http.StatusOK, reply{Status: "success", Message: msg})
}

func (h *Handlers) HandleCameraStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Status.Camera())
}

// moveRequest mirrors the JSON body of POST /robot/move; nil means omitted.
type moveRequest struct {
	Action   *string  `json:"action"`
	Duration *float64 `json:"duration"`
	Speed    *float64 `json:"speed"`
}

type moveResponse struct {
	Status      string   `json:"status"`
	Action      string   `json:"action"`
	Speed       *int     `json:"speed,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	Interrupted bool     `json:"interrupted"`
}

// decodeMove applies defaults: action "stop", configured speed and duration.
func (h *Handlers) decodeMove(r *http.Request) (motion.Command, error) {
	var req moveRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return motion.Command{}, err
	}

	cmd := motion.Command{
		Action:   motion.Stop,
		Speed:    h.Defaults.Speed,
		Duration: h.Defaults.Duration,
	}
	if req.Action != nil {
		cmd.Action = motion.Action(*req.Action)
	}
	if req.Duration != nil {
		cmd.Duration = *req.Duration
	}
	if req.Speed != nil {
		s := *req.Speed
		if s != math.Trunc(s) || s < math.MinInt32 || s > math.MaxInt32 {
			return motion.Command{}, errors.New("speed must be an integer")
		}
		cmd.Speed = int(s)
	}
	return cmd, nil
}

// HandleMove handles POST /robot/move. The request context bounds a timed
// move: if the client goes away the hold ends and the motors stop.
func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	cmd, err := h.decodeMove(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	res, err := h.Motion.Move(r.Context(), cmd)
	switch {
	case errors.Is(err, motion.ErrInvalidAction),
		errors.Is(err, motion.ErrInvalidSpeed),
		errors.Is(err, motion.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		debug.Error(err)
		h.Broadcaster.Publish(KindMotion, "move failed: "+err.Error(), nil)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := moveResponse{Status: "success", Action: string(res.Action), Interrupted: res.Interrupted}
	if res.Action != motion.Stop {
		resp.Speed = &res.Speed
		resp.Duration = &res.Duration
	}
	h.Broadcaster.Publish(KindMotion, "move "+string(res.Action), resp)
	writeJSON(w, http.StatusOK, resp)
}

// HandleEmergencyStop handles POST /robot/stop.
func (h *Handlers) HandleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if err := h.Motion.EmergencyStop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Broadcaster.Publish(KindMotion, "emergency stop", nil)
	writeJSON(w, http.StatusOK, reply{Status: "success", Message: "Emergency stop executed"})
}

func (h *Handlers) HandleRobotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Status.Robot())
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Status.Health())
}

// HandleStatusStream handles GET /status/stream for SSE. A full snapshot
// is sent first, then log lines and controller events as they happen.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if snap, err := json.Marshal(StatusEvent{
		Time: time.Now().Format(time.RFC3339),
		Kind: KindSnapshot,
		Data: mustJSON(h.Status.Snapshot()),
	}); err == nil {
		w.Write([]byte("data: " + string(snap) + "\n\n"))
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
