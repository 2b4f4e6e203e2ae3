//go:build !linux

package camera

import (
	"context"
	"errors"
)

// V4L2Camera is only available on Linux.
type V4L2Camera struct{}

// NewV4L2Camera always fails on this platform.
func NewV4L2Camera(device string, width, height int) (*V4L2Camera, error) {
	return nil, errors.New("v4l2 capture is only supported on linux")
}

func (c *V4L2Camera) Capture(ctx context.Context) (*Frame, error) {
	return nil, ErrCaptureFailed
}

func (c *V4L2Camera) Close() error { return nil }

func (c *V4L2Camera) Format() string { return "" }
