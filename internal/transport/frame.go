// Package transport implements the push-only frame protocol between the
// control node and the remote consumer: one TCP connection per frame,
// a 4-byte big-endian length, then exactly that many payload bytes.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
)

// HeaderSize is the length of the frame size prefix.
const HeaderSize = 4

// ErrPayloadTooLarge is returned for payloads that do not fit the
// 32-bit prefix, or that exceed a reader's limit.
var ErrPayloadTooLarge = errors.New("payload too large")

// WriteFrame writes the length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	bufs := net.Buffers{hdr[:], payload}
	_, err := bufs.WriteTo(w)
	return err
}

// ReadFrame reads one length-prefixed payload. maxSize of 0 means no limit.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if maxSize > 0 && n > maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, n, maxSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload (%d bytes): %w", n, err)
	}
	return payload, nil
}
