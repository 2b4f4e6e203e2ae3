//go:build linux

package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/cjeanneret/TankGo/internal/debug"
)

// V4L2 pixel formats, in order of preference.
const (
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D // MJPG
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // YUYV
)

// pixelFormatName is the format reported for frames streamed in f.
func pixelFormatName(f webcam.PixelFormat) string {
	switch f {
	case pixFmtMJPEG:
		return "mjpeg"
	case pixFmtYUYV:
		return "yuyv"
	}
	return fmt.Sprintf("fourcc-%08x", uint32(f))
}

// V4L2Camera reads frames straight from a Video4Linux device.
type V4L2Camera struct {
	mu     sync.Mutex
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  uint32
	height uint32
}

// NewV4L2Camera opens device and starts streaming at the closest
// resolution the driver accepts.
func NewV4L2Camera(device string, width, height int) (*V4L2Camera, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	formats := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	for _, f := range []webcam.PixelFormat{pixFmtMJPEG, pixFmtYUYV} {
		if _, ok := formats[f]; ok {
			format = f
			break
		}
	}
	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("%s: no supported pixel format in %v", device, formats)
	}

	f, w, h, err := cam.SetImageFormat(format, uint32(width), uint32(height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("set image format: %w", err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("start streaming: %w", err)
	}

	debug.Info("V4L2 camera %s streaming %s %dx%d", device, formats[f], w, h)
	return &V4L2Camera{cam: cam, format: f, width: w, height: h}, nil
}

// Capture waits for the next frame, bounded by ctx's deadline (1s minimum
// granularity, the V4L2 select timeout is in seconds).
func (c *V4L2Camera) Capture(ctx context.Context) (*Frame, error) {
	if !c.mu.TryLock() {
		return nil, ErrBusy
	}
	defer c.mu.Unlock()

	timeout := uint32(5)
	if deadline, ok := ctx.Deadline(); ok {
		secs := time.Until(deadline).Seconds()
		if secs <= 0 {
			return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, context.DeadlineExceeded)
		}
		timeout = uint32(secs)
		if timeout == 0 {
			timeout = 1
		}
	}

	err := c.cam.WaitForFrame(timeout)
	var te *webcam.Timeout
	switch {
	case errors.As(err, &te):
		return nil, fmt.Errorf("%w: timed out waiting for frame", ErrCaptureFailed)
	case err != nil:
		return nil, fmt.Errorf("%w: wait for frame: %w", ErrCaptureFailed, err)
	}

	raw, err := c.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: read frame: %w", ErrCaptureFailed, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrCaptureFailed)
	}

	// ReadFrame returns a view into the mmap'd buffer; copy before it is requeued.
	data := make([]byte, len(raw))
	copy(data, raw)
	return NewFrame(data, nil), nil
}

// Format reports the pixel format negotiated with the driver.
func (c *V4L2Camera) Format() string {
	return pixelFormatName(c.format)
}

// Close stops streaming and releases the device.
func (c *V4L2Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cam.StopStreaming(); err != nil {
		debug.Warn("V4L2 stop streaming: %v", err)
	}
	return c.cam.Close()
}
