package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// RuntimeConfig holds deployment settings. Values come from the environment
// (optionally seeded from a .env file); command-line flags override them.
type RuntimeConfig struct {
	ListenAddr string `env:"LANEPILOT_LISTEN" envDefault:"127.0.0.1:8080"`
	GRPCAddr   string `env:"LANEPILOT_GRPC_LISTEN" envDefault:"127.0.0.1:50061"`
	DBPath     string `env:"LANEPILOT_DB_PATH" envDefault:"lanepilot.db"`
	TuningPath string `env:"LANEPILOT_TUNING" envDefault:"config/tuning.defaults.json"`

	SerialPort string `env:"LANEPILOT_SERIAL_PORT" envDefault:"/dev/ttyACM0"`
	SerialBaud int    `env:"LANEPILOT_SERIAL_BAUD" envDefault:"115200"`
	// SerialFrame is data bits, parity and stop bits, e.g. 8N1.
	SerialFrame string `env:"LANEPILOT_SERIAL_FRAME" envDefault:"8N1"`

	// Source selects the frame source: "camera", "replay" or "synthetic".
	Source      string `env:"LANEPILOT_SOURCE" envDefault:"camera"`
	CameraIndex int    `env:"LANEPILOT_CAMERA" envDefault:"0"`
	// VideoPath makes the camera source read a video file instead of a device.
	VideoPath   string `env:"LANEPILOT_VIDEO"`
	FixturePath string `env:"LANEPILOT_FIXTURE"`
	CascadeDir  string `env:"LANEPILOT_CASCADE_DIR" envDefault:"models"`

	DevMode bool `env:"LANEPILOT_DEV"`
	Debug   bool `env:"LANEPILOT_DEBUG"`
}

// LoadRuntimeConfig reads the optional dotenv files (".env" when none are
// given) and then parses the environment. A missing dotenv file is not an
// error.
func LoadRuntimeConfig(dotenv ...string) (*RuntimeConfig, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, path := range dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &RuntimeConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be fixed up later.
func (c *RuntimeConfig) Validate() error {
	switch c.Source {
	case "camera", "synthetic":
	case "replay":
		if c.FixturePath == "" {
			return fmt.Errorf("replay source requires LANEPILOT_FIXTURE")
		}
	default:
		return fmt.Errorf("unknown frame source %q (want camera, replay or synthetic)", c.Source)
	}
	if c.SerialBaud <= 0 {
		return fmt.Errorf("serial baud must be positive, got %d", c.SerialBaud)
	}
	return nil
}
