package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds connect plus write of a single frame.
const DefaultTimeout = 2 * time.Second

// Sender pushes frames to a fixed destination. It keeps no connection
// between calls and never retries; the caller decides what a failure means.
type Sender struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewSender creates a sender for addr ("host:port").
func NewSender(addr string, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sender{addr: addr, timeout: timeout}
}

// Addr returns the destination address.
func (s *Sender) Addr() string {
	return s.addr
}

// Send opens a fresh connection, writes one frame and closes it.
func (s *Sender) Send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	if err := WriteFrame(conn, payload); err != nil {
		conn.Close()
		return fmt.Errorf("send %d bytes to %s: %w", len(payload), s.addr, err)
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("close connection to %s: %w", s.addr, err)
	}
	return nil
}
