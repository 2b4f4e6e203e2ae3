// Command framesink is the consumer side of the frame stream: it accepts
// length-prefixed frames over TCP and writes each one to a file.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cjeanneret/TankGo/internal/debug"
	"github.com/cjeanneret/TankGo/internal/transport"
)

const defaultMaxFrameBytes = 32 << 20

var rootCmd = &cobra.Command{
	Use:          "framesink",
	Short:        "Receive frames streamed by tankgo and store them on disk",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.Flags()
	f.String("listen", ":5001", "TCP address to accept frames on")
	f.String("out", "frames", "directory frames are written to")
	f.String("ext", "bmp", "file extension of written frames")
	f.Uint32("max-frame-bytes", defaultMaxFrameBytes, "largest accepted frame payload")
	f.Duration("read-timeout", 5*time.Second, "per-connection read deadline")
	f.IntP("debug", "d", 2, "debug level (0-4)")

	for _, name := range []string{"listen", "out", "ext", "max-frame-bytes", "read-timeout", "debug"} {
		viper.BindPFlag(name, f.Lookup(name))
	}
}

func initConfig() {
	viper.SetEnvPrefix("FRAMESINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	debug.Init(viper.GetInt("debug"))
	defer debug.Sync()

	w, err := newFrameWriter(viper.GetString("out"), viper.GetString("ext"))
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", viper.GetString("listen"))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	debug.Info("framesink listening on %s, writing to %s", ln.Addr(), w.dir)

	rcv := &transport.Receiver{
		MaxFrameSize: viper.GetUint32("max-frame-bytes"),
		ReadTimeout:  viper.GetDuration("read-timeout"),
		Handler:      w.Handle,
	}
	err = rcv.Serve(ctx, ln)
	debug.Summary(fmt.Sprintf("framesink stopped after %d frames", w.Count()))
	return err
}

// frameWriter stores each payload as frame_NNNNNN.<ext>.
type frameWriter struct {
	dir string
	ext string
	seq atomic.Uint64
}

func newFrameWriter(dir, ext string) (*frameWriter, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return nil, fmt.Errorf("invalid frame extension %q", ext)
	}
	if dir == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &frameWriter{dir: dir, ext: ext}, nil
}

func (w *frameWriter) Handle(payload []byte, from net.Addr) {
	n := w.seq.Add(1)
	name := filepath.Join(w.dir, fmt.Sprintf("frame_%06d.%s", n, w.ext))
	if err := os.WriteFile(name, payload, 0o644); err != nil {
		debug.Error(fmt.Errorf("write %s: %w", name, err))
		return
	}
	debug.Frame(n, len(payload), from.String())
}

// Count is the number of frames received so far.
func (w *frameWriter) Count() uint64 {
	return w.seq.Load()
}
