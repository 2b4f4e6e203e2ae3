package camera

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrCaptureFailed wraps every failure reported by a capture backend.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrBusy is returned when another capture is still running.
	ErrBusy = errors.New("camera busy")
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's driven
// (external CLI, V4L2 device, synthetic source, etc.).
type Camera interface {
	// Capture takes one still image. The caller must Release the frame.
	Capture(ctx context.Context) (*Frame, error)
}

// FormatReporter is implemented by backends that know the encoding of the
// frames they actually produce, which may differ from the configured one.
type FormatReporter interface {
	Format() string
}

// Frame is one captured image. Data is opaque to everything but the
// consumer on the other end of the transport.
type Frame struct {
	Data []byte

	once    sync.Once
	release func() error
}

// NewFrame wraps data; release, if non-nil, frees the backing store.
func NewFrame(data []byte, release func() error) *Frame {
	return &Frame{Data: data, release: release}
}

// Release frees the resources backing the frame. Safe to call more than once.
func (f *Frame) Release() error {
	var err error
	f.once.Do(func() {
		if f.release != nil {
			err = f.release()
		}
	})
	return err
}
