package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/pipeline"
	"github.com/banshee-data/lanepilot/internal/replay"
	"github.com/banshee-data/lanepilot/internal/serialmux"
	"github.com/banshee-data/lanepilot/internal/timeutil"
	"github.com/banshee-data/lanepilot/internal/vision"
)

// applyFlags copies every flag that was set on the command line into cfg.
// Flags left at their defaults do not override the environment.
func applyFlags(cfg *config.RuntimeConfig, fset *flag.FlagSet) {
	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = *listen
		case "grpc-listen":
			cfg.GRPCAddr = *grpcListen
		case "db":
			cfg.DBPath = *dbPath
		case "tuning":
			cfg.TuningPath = *tuningPath
		case "port":
			cfg.SerialPort = *port
		case "baud":
			cfg.SerialBaud = *baud
		case "frame":
			cfg.SerialFrame = *frame
		case "source":
			cfg.Source = *source
		case "camera":
			cfg.CameraIndex = *camera
		case "video":
			cfg.VideoPath = *video
		case "fixture":
			cfg.FixturePath = *fixture
		case "models":
			cfg.CascadeDir = *cascadeDir
		case "dev":
			cfg.DevMode = *devMode
		case "debug":
			cfg.Debug = *debug
		}
	})
}

// devSource swaps the camera for fixtures in dev mode: the given fixture
// file if any, otherwise the synthetic course.
func devSource(cfg *config.RuntimeConfig) {
	if cfg.Source != "camera" {
		return
	}
	if cfg.FixturePath != "" {
		cfg.Source = "replay"
	} else {
		cfg.Source = "synthetic"
	}
}

// loadTuning reads the tuning file. A missing file at the default location
// falls back to the built-in defaults.
func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && path == config.DefaultConfigPath {
		log.Printf("no tuning file at %s, using built-in defaults", path)
		return config.DefaultTuningConfig(), nil
	}
	tuning, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning %s: %w", path, err)
	}
	return tuning, nil
}

// openSource returns the frame source and matching detector for cfg, plus a
// label recorded with the run.
func openSource(cfg *config.RuntimeConfig, clock timeutil.Clock) (pipeline.FrameSource, pipeline.Detector, string, error) {
	opts := replay.Options{FPS: *fps, Clock: clock, Loop: *loop}

	switch cfg.Source {
	case "replay":
		src, err := replay.OpenFile(cfg.FixturePath, opts)
		if err != nil {
			return nil, nil, "", err
		}
		return src, replay.Detector{}, "replay:" + cfg.FixturePath, nil

	case "synthetic":
		frames := replay.Synthetic(replay.DefaultSynthetic())
		return replay.NewFrameSource(frames, opts), replay.Detector{}, "synthetic", nil

	case "camera":
		target := strconv.Itoa(cfg.CameraIndex)
		if cfg.VideoPath != "" {
			target = cfg.VideoPath
		}
		det, err := vision.NewDetector(vision.DefaultParams(cfg.CascadeDir), clock)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to load detectors: %w", err)
		}
		cam, err := vision.OpenCamera(target, clock)
		if err != nil {
			det.Close()
			return nil, nil, "", err
		}
		return cam, det, "camera:" + target, nil
	}
	return nil, nil, "", fmt.Errorf("unknown frame source %q", cfg.Source)
}

// openBoard connects to the actuator board: a simulated one in dev mode,
// none at all for the "none" port, otherwise the serial device.
func openBoard(cfg *config.RuntimeConfig) (serialmux.Board, error) {
	if cfg.DevMode {
		return serialmux.NewMockSerialMux(), nil
	}
	board, err := serialmux.Open(cfg.SerialPort, serialmux.PortOptions{BaudRate: cfg.SerialBaud, Frame: cfg.SerialFrame})
	if err != nil {
		if ports, lerr := serialmux.ListPorts(); lerr == nil && len(ports) > 0 {
			return nil, fmt.Errorf("failed to open actuator port (present: %s): %w", strings.Join(ports, ", "), err)
		}
		return nil, fmt.Errorf("failed to open actuator port: %w", err)
	}
	if cfg.SerialPort == serialmux.DisabledPort {
		log.Print("actuator board disabled; commands are validated and dropped")
	}
	return board, nil
}
