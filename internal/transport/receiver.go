package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/cjeanneret/TankGo/internal/debug"
)

// Handler is called once per received frame.
type Handler func(payload []byte, from net.Addr)

// Receiver is the consumer side of the protocol: it reads exactly one
// frame per accepted connection.
type Receiver struct {
	MaxFrameSize uint32        // 0 = unlimited
	ReadTimeout  time.Duration // per connection; 0 = none
	Handler      Handler
}

// Serve accepts connections on ln until ctx is cancelled. It closes ln and
// waits for in-flight connections before returning.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = acceptBackoff(delay)
			debug.Warn("accept: %v; retrying in %v", err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			r.handle(conn)
		}()
	}
}

// acceptBackoff doubles the pause after each consecutive Accept failure,
// from 5ms up to one second.
func acceptBackoff(prev time.Duration) time.Duration {
	const maxDelay = time.Second
	if prev == 0 {
		return 5 * time.Millisecond
	}
	if next := prev * 2; next < maxDelay {
		return next
	}
	return maxDelay
}

func (r *Receiver) handle(conn net.Conn) {
	defer conn.Close()

	if r.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(r.ReadTimeout))
	}

	payload, err := ReadFrame(conn, r.MaxFrameSize)
	if err != nil {
		debug.Warn("frame from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if r.Handler != nil {
		r.Handler(payload, conn.RemoteAddr())
	}
}
