package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/TankGo/internal/debug"
)

// DefaultCommandArgs is the argument template of the QNX sensor_capture
// utility. Placeholders are expanded per capture.
var DefaultCommandArgs = []string{
	"--device", "{device}",
	"--format", "{format}",
	"--resolution", "{width}x{height}",
	"--output", "{output}",
}

// CommandConfig describes an external still-capture program.
type CommandConfig struct {
	Command string   // e.g. "sensor_capture" or "rpicam-still"
	Args    []string // template; {output} {format} {width} {height} {device}
	Device  string
	Format  string // file extension and {format} value, e.g. "bmp"
	Width   int
	Height  int
	TempDir string // where captures are written; a fresh dir when empty
}

// CommandCamera captures by running an external program that writes the
// image to a temporary file. The file is removed when the frame is released.
type CommandCamera struct {
	cfg CommandConfig

	// the capture binary can only be run from one place at a time
	mu  sync.Mutex
	seq atomic.Uint64
}

// NewCommandCamera checks the configuration and prepares the temp dir.
func NewCommandCamera(cfg CommandConfig) (*CommandCamera, error) {
	if cfg.Command == "" {
		return nil, errors.New("capture command is required")
	}
	if len(cfg.Args) == 0 {
		cfg.Args = DefaultCommandArgs
	}
	if cfg.Format == "" {
		cfg.Format = "bmp"
	}

	if cfg.TempDir == "" {
		dir, err := os.MkdirTemp("", "tankgo-capture")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		cfg.TempDir = dir
	} else if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	return &CommandCamera{cfg: cfg}, nil
}

// Capture runs the capture program once. ctx bounds the run; the process
// is killed when it expires.
func (c *CommandCamera) Capture(ctx context.Context) (*Frame, error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	defer c.mu.Unlock()

	name := filepath.Join(c.cfg.TempDir, fmt.Sprintf("capture_%d.%s", c.seq.Add(1), c.cfg.Format))
	args := c.expandArgs(name)

	debug.Trace("Camera: %s %s", c.cfg.Command, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	// don't wait on grandchildren holding the output pipe after a kill
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if err != nil {
		removeQuiet(name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCaptureFailed, c.cfg.Command, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrCaptureFailed, c.cfg.Command, err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(name)
	if err != nil {
		removeQuiet(name)
		return nil, fmt.Errorf("%w: read output: %w", ErrCaptureFailed, err)
	}
	if len(data) == 0 {
		removeQuiet(name)
		return nil, fmt.Errorf("%w: %s produced an empty file", ErrCaptureFailed, c.cfg.Command)
	}

	return NewFrame(data, func() error {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}), nil
}

// Format is the extension the capture program writes.
func (c *CommandCamera) Format() string {
	return c.cfg.Format
}

func (c *CommandCamera) expandArgs(output string) []string {
	r := strings.NewReplacer(
		"{output}", output,
		"{format}", c.cfg.Format,
		"{width}", strconv.Itoa(c.cfg.Width),
		"{height}", strconv.Itoa(c.cfg.Height),
		"{device}", c.cfg.Device,
	)
	args := make([]string, len(c.cfg.Args))
	for i, a := range c.cfg.Args {
		args[i] = r.Replace(a)
	}
	return args
}

func removeQuiet(name string) {
	_ = os.Remove(name)
}
