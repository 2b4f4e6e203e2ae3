package debug

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (startup, session changes, errors)
	LevelLive    = 2 // Live info (frames sent, moves executed)
	LevelVerbose = 3 // Verbose (config details, per-iteration timings)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  atomic.Int32
	logger atomic.Pointer[zap.SugaredLogger]

	outMu sync.Mutex
	out   io.Writer = os.Stdout
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (startup, capture sessions, errors)
// 2 = live info (frames sent, moves executed)
// 3 = verbose (configuration, per-iteration details)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	rebuild()
}

// SetOutput redirects all debug output to w.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
	rebuild()
}

func rebuild() {
	if Level() <= LevelOff {
		logger.Store(nil)
		return
	}

	outMu.Lock()
	w := out
	outMu.Unlock()

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "t"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	)
	logger.Store(zap.New(core).Named("TankGo").Sugar())
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func at(minLevel int) *zap.SugaredLogger {
	if Level() < minLevel {
		return nil
	}
	return logger.Load()
}

// With returns a logger carrying the given key/value pairs.
// It is a no-op logger when debug output is off.
func With(args ...interface{}) *zap.SugaredLogger {
	if l := at(LevelInfo); l != nil {
		return l.With(args...)
	}
	return zap.NewNop().Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	if l := logger.Load(); l != nil {
		_ = l.Sync()
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if l := at(LevelInfo); l != nil {
		l.Infof(format, args...)
	}
}

// Warn prints a level 1 warning. Used for transient failures that do not
// interrupt the caller.
func Warn(format string, args ...interface{}) {
	if l := at(LevelInfo); l != nil {
		l.Warnf(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if l := at(LevelInfo); l != nil {
		l.Info("═══════════════════════════════════════")
		l.Infof("  %s", title)
		l.Info("═══════════════════════════════════════")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if l := at(LevelLive); l != nil {
		l.Named("live").Infof(format, args...)
	}
}

// Drive prints a motor drive command (level 2).
func Drive(left, right int) {
	if l := at(LevelLive); l != nil {
		l.Named("live").Infow("drive", "left", left, "right", right)
	}
}

// Frame prints a transmitted frame (level 2).
func Frame(seq uint64, size int, dest string) {
	if l := at(LevelLive); l != nil {
		l.Named("live").Infow("frame sent", "seq", seq, "bytes", size, "dest", dest)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if l := at(LevelVerbose); l != nil {
		l.Debugf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if l := at(LevelVerbose); l != nil {
		l.Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if l := at(LevelVerbose); l != nil {
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.Debugf("  %s", name)
		l.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if l := at(LevelVerbose); l != nil {
		l.Debugf("Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if l := at(LevelInfo); l != nil {
		l.Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if l := at(LevelTrace); l != nil {
		l.Named("trace").Debugf(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if l := at(LevelTrace); l != nil {
		l.Named("gpio").Debugw(operation, "pin", pin, "value", value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if l := at(LevelInfo); l != nil {
		l.Errorw("error", zap.Error(err))
	}
}
