package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cjeanneret/TankGo/internal/config"
	"github.com/cjeanneret/TankGo/internal/debug"
	"github.com/cjeanneret/TankGo/internal/hw/camera"
	"github.com/cjeanneret/TankGo/internal/hw/gpio"
	"github.com/cjeanneret/TankGo/internal/hw/motor"
	"github.com/cjeanneret/TankGo/internal/logic/capture"
	"github.com/cjeanneret/TankGo/internal/logic/motion"
	"github.com/cjeanneret/TankGo/internal/logic/status"
	"github.com/cjeanneret/TankGo/internal/transport"
	"github.com/cjeanneret/TankGo/internal/web"
)

var rootCmd = &cobra.Command{
	Use:          "tankgo",
	Short:        "Tank robot control node: frame streaming and motor control over HTTP",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.Flags()
	f.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	f.String("remote-host", "", "override remote.host (frame consumer)")
	f.Int("remote-port", 0, "override remote.port")
	f.IntP("web", "w", 0, "override server.port")
	f.IntP("debug", "d", -1, "override defaults.debug_level (0-4)")
	f.Bool("mock", false, "use mock GPIO (development without a Raspberry Pi)")

	for _, name := range []string{"config", "remote-host", "remote-port", "web", "debug", "mock"} {
		viper.BindPFlag(name, f.Lookup(name))
	}
}

// initConfig lets TANKGO_* environment variables stand in for flags,
// e.g. TANKGO_REMOTE_HOST or TANKGO_MOCK.
func initConfig() {
	viper.SetEnvPrefix("TANKGO")
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

	cfgPath := viper.GetString("config")
	if err := config.ValidateConfigPath(cfgPath); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Apply(overridesFromViper()); err != nil {
		return fmt.Errorf("invalid override: %w", err)
	}

	// Initialize debug system; log lines are mirrored to the status stream
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	debug.Init(cfg.Defaults.DebugLevel)
	defer debug.Sync()

	debug.Section("Initialization")
	debug.Value("Config path", cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Error(fmt.Errorf("close GPIO driver: %w", err))
		}
	}()

	debug.Step(2, "Initializing motors")
	tank, err := motor.NewTankDriver(gpioDriver, motorConfig(cfg))
	if err != nil {
		return fmt.Errorf("init motors: %w", err)
	}
	// final safety stop, before the GPIO driver resets the pins
	defer func() {
		if err := tank.Close(); err != nil {
			debug.Error(fmt.Errorf("stop motors: %w", err))
		}
	}()
	debug.PrintStruct("Left motor", cfg.LeftMotor)
	debug.PrintStruct("Right motor", cfg.RightMotor)

	debug.Step(3, "Initializing camera")
	cam, closeCam, err := newCameraFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init camera: %w", err)
	}
	defer func() {
		if err := closeCam(); err != nil {
			debug.Error(fmt.Errorf("close camera: %w", err))
		}
	}()
	debug.Value("Capture type", cfg.Capture.Type)
	debug.Value("Resolution", cfg.Resolution())
	debug.Value("Remote", cfg.RemoteAddr())

	debug.Step(4, "Creating controllers")
	loop := capture.NewLoop(cam, transport.NewSender(cfg.RemoteAddr(), cfg.SendTimeout()), capture.Config{
		RemoteHost:     cfg.Remote.Host,
		RemotePort:     cfg.Remote.Port,
		Format:         cfg.Capture.Format,
		Width:          cfg.Capture.Resolution.Width,
		Height:         cfg.Capture.Resolution.Height,
		CaptureTimeout: cfg.CaptureTimeout(),
		Interval:       cfg.CaptureInterval(),
	})
	defer loop.Stop()

	ctrl := motion.NewController(tank, motion.Config{
		RobotType:   cfg.Robot.RobotType,
		GPIODriver:  gpioDriverName(cfg, gpioDriver),
		MaxDuration: cfg.MaxMoveDuration(),
	})
	reporter := status.NewReporter(cfg.Server.ServiceName, loop, ctrl)
	handlers := web.NewHandlers(loop, ctrl, reporter, broadcaster, web.MoveDefaults{
		Speed:    cfg.Drive.DefaultSpeed,
		Duration: cfg.Drive.DefaultDurationS,
	})

	debug.Summary(fmt.Sprintf("%s ready on :%d", cfg.Server.ServiceName, cfg.Server.Port))
	srv := web.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), handlers)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}

	debug.Section("Shutdown")
	return nil
}

// overridesFromViper collects flag and environment overrides. Unset values
// keep the config file value.
func overridesFromViper() config.Overrides {
	o := config.Overrides{
		RemoteHost: viper.GetString("remote-host"),
		RemotePort: viper.GetInt("remote-port"),
		ServerPort: viper.GetInt("web"),
	}
	if viper.IsSet("debug") {
		if lvl := viper.GetInt("debug"); lvl >= 0 {
			o.DebugLevel = &lvl
		}
	}
	if viper.IsSet("mock") {
		mock := viper.GetBool("mock")
		o.MockGPIO = &mock
	}
	return o
}

func motorConfig(cfg *config.Config) motor.Config {
	return motor.Config{
		Left: motor.ChannelConfig{
			In1Pin: cfg.LeftMotor.In1Pin,
			In2Pin: cfg.LeftMotor.In2Pin,
			PWMPin: cfg.LeftMotor.PWMPin,
		},
		Right: motor.ChannelConfig{
			In1Pin: cfg.RightMotor.In1Pin,
			In2Pin: cfg.RightMotor.In2Pin,
			PWMPin: cfg.RightMotor.PWMPin,
		},
		PWMRange:  cfg.Drive.PWMRange,
		PWMFreqHz: cfg.Drive.PWMFreqHz,
	}
}

// gpioDriverName is the configured label, or the active driver's name.
func gpioDriverName(cfg *config.Config, d gpio.Driver) string {
	if cfg.Robot.GPIODriver != "" {
		return cfg.Robot.GPIODriver
	}
	return gpio.Name(d)
}

// newCameraFromConfig selects a capture backend based on configuration.
// The returned close function is never nil.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, func() error, error) {
	noop := func() error { return nil }
	res := cfg.Capture.Resolution

	switch cfg.Capture.Type {
	case config.CaptureCommand:
		cam, err := camera.NewCommandCamera(camera.CommandConfig{
			Command: cfg.Capture.Command,
			Args:    cfg.Capture.Args,
			Device:  cfg.Capture.Device,
			Format:  cfg.Capture.Format,
			Width:   res.Width,
			Height:  res.Height,
			TempDir: cfg.Capture.TempDir,
		})
		if err != nil {
			return nil, noop, err
		}
		return cam, noop, nil
	case config.CaptureV4L2:
		cam, err := camera.NewV4L2Camera(cfg.Capture.Device, res.Width, res.Height)
		if err != nil {
			return nil, noop, err
		}
		return cam, cam.Close, nil
	case config.CaptureMock:
		return camera.NewMockCamera(res.Width, res.Height), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported capture type: %s", cfg.Capture.Type)
	}
}
