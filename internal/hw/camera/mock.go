package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"

	"golang.org/x/image/bmp"
)

// MockCamera generates synthetic 24-bit BMP frames. Used with mock GPIO for
// development on PC: each frame is a solid color that changes per capture,
// so a frame sink shows the stream advancing.
type MockCamera struct {
	Width  int
	Height int

	seq atomic.Uint64
}

// NewMockCamera creates a synthetic camera; non-positive sizes default to 320x240.
func NewMockCamera(width, height int) *MockCamera {
	if width <= 0 || height <= 0 {
		width, height = 320, 240
	}
	return &MockCamera{Width: width, Height: height}
}

func (m *MockCamera) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	n := m.seq.Add(1)
	data, err := solidBMP(m.Width, m.Height, color.RGBA{R: byte(n * 37), G: byte(n * 91), B: byte(n * 13), A: 0xff})
	if err != nil {
		return nil, fmt.Errorf("%w: encode bmp: %w", ErrCaptureFailed, err)
	}
	return NewFrame(data, nil), nil
}

// Format is always "bmp".
func (m *MockCamera) Format() string { return "bmp" }

// solidBMP encodes a single-color image. The image is opaque, so the
// encoder writes 24 bits per pixel.
func solidBMP(width, height int, c color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
