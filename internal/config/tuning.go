package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid tuning configuration")

// TuningConfig holds the decision pipeline's tuning parameters. Every field
// is optional; the Get* accessors supply the vehicle defaults for fields left
// unset, so partial files are safe. The same schema is served by
// GET /api/tuning.
type TuningConfig struct {
	// Stabilizer params
	HistorySize     *int `json:"history_size,omitempty" yaml:"history_size,omitempty"`
	StopQuorum      *int `json:"stop_quorum,omitempty" yaml:"stop_quorum,omitempty"`
	LightQuorum     *int `json:"light_quorum,omitempty" yaml:"light_quorum,omitempty"`
	DetectionPeriod *int `json:"detection_interval,omitempty" yaml:"detection_interval,omitempty"`

	// Decision params
	StopDuration     *string `json:"stop_duration,omitempty" yaml:"stop_duration,omitempty"`           // duration string like "3s"
	StopSignCooldown *string `json:"stop_sign_cooldown,omitempty" yaml:"stop_sign_cooldown,omitempty"` // duration string like "0s"

	// Lane estimator params
	Smoothing        *float64 `json:"smoothing,omitempty" yaml:"smoothing,omitempty"`
	MinAbsSlope      *float64 `json:"min_abs_slope,omitempty" yaml:"min_abs_slope,omitempty"`
	SingleSideOffset *float64 `json:"single_side_offset,omitempty" yaml:"single_side_offset,omitempty"`
	Lookahead        *float64 `json:"lookahead,omitempty" yaml:"lookahead,omitempty"`

	// Steering params
	Deadband      *float64 `json:"deadband,omitempty" yaml:"deadband,omitempty"`
	StrengthScale *float64 `json:"strength_scale,omitempty" yaml:"strength_scale,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		HistorySize:      ptrInt(5),
		StopQuorum:       ptrInt(3),
		LightQuorum:      ptrInt(2),
		DetectionPeriod:  ptrInt(5),
		StopDuration:     ptrString("3s"),
		StopSignCooldown: ptrString("0s"),
		Smoothing:        ptrFloat64(0.8),
		MinAbsSlope:      ptrFloat64(0.5),
		SingleSideOffset: ptrFloat64(100),
		Lookahead:        ptrFloat64(0.6),
		Deadband:         ptrFloat64(5),
		StrengthScale:    ptrFloat64(100),
	}
}

// LoadTuningConfig loads a TuningConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/lanepilot/ and deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.HistorySize != nil && *c.HistorySize <= 0 {
		return invalid("history_size must be positive, got %d", *c.HistorySize)
	}
	history := c.GetHistorySize()
	if c.StopQuorum != nil && (*c.StopQuorum <= 0 || *c.StopQuorum > history) {
		return invalid("stop_quorum must be in [1, %d], got %d", history, *c.StopQuorum)
	}
	if c.LightQuorum != nil && (*c.LightQuorum <= 0 || *c.LightQuorum > history) {
		return invalid("light_quorum must be in [1, %d], got %d", history, *c.LightQuorum)
	}
	if c.DetectionPeriod != nil && *c.DetectionPeriod <= 0 {
		return invalid("detection_interval must be positive, got %d", *c.DetectionPeriod)
	}

	for name, v := range map[string]*string{
		"stop_duration":      c.StopDuration,
		"stop_sign_cooldown": c.StopSignCooldown,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return invalid("invalid %s '%s': %v", name, *v, err)
		}
		if d < 0 {
			return invalid("%s must not be negative, got %s", name, *v)
		}
	}

	if c.Smoothing != nil && !(*c.Smoothing >= 0 && *c.Smoothing < 1) {
		return invalid("smoothing must be in [0, 1), got %f", *c.Smoothing)
	}
	if c.MinAbsSlope != nil && !(*c.MinAbsSlope >= 0) {
		return invalid("min_abs_slope must be non-negative, got %f", *c.MinAbsSlope)
	}
	if c.SingleSideOffset != nil && !(*c.SingleSideOffset >= 0) {
		return invalid("single_side_offset must be non-negative, got %f", *c.SingleSideOffset)
	}
	if c.Lookahead != nil && !(*c.Lookahead > 0 && *c.Lookahead < 1) {
		return invalid("lookahead must be in (0, 1), got %f", *c.Lookahead)
	}
	if c.Deadband != nil && !(*c.Deadband >= 0 && *c.Deadband <= 45) {
		return invalid("deadband must be in [0, 45], got %f", *c.Deadband)
	}
	if c.StrengthScale != nil && !(*c.StrengthScale > 0) {
		return invalid("strength_scale must be positive, got %f", *c.StrengthScale)
	}
	return nil
}

// GetHistorySize returns the history_size value or the default.
func (c *TuningConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 5
	}
	return *c.HistorySize
}

// GetStopQuorum returns the stop_quorum value or the default.
func (c *TuningConfig) GetStopQuorum() int {
	if c.StopQuorum == nil {
		return 3
	}
	return *c.StopQuorum
}

// GetLightQuorum returns the light_quorum value or the default.
func (c *TuningConfig) GetLightQuorum() int {
	if c.LightQuorum == nil {
		return 2
	}
	return *c.LightQuorum
}

// GetDetectionInterval returns the detection_interval value or the default.
func (c *TuningConfig) GetDetectionInterval() int {
	if c.DetectionPeriod == nil {
		return 5
	}
	return *c.DetectionPeriod
}

// GetStopDuration parses and returns the StopDuration as a time.Duration.
func (c *TuningConfig) GetStopDuration() time.Duration {
	return parseDurationOr(c.StopDuration, 3*time.Second)
}

// GetStopSignCooldown parses and returns the StopSignCooldown as a time.Duration.
func (c *TuningConfig) GetStopSignCooldown() time.Duration {
	return parseDurationOr(c.StopSignCooldown, 0)
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetSmoothing returns the smoothing value or the default.
func (c *TuningConfig) GetSmoothing() float64 {
	if c.Smoothing == nil {
		return 0.8
	}
	return *c.Smoothing
}

// GetMinAbsSlope returns the min_abs_slope value or the default.
func (c *TuningConfig) GetMinAbsSlope() float64 {
	if c.MinAbsSlope == nil {
		return 0.5
	}
	return *c.MinAbsSlope
}

// GetSingleSideOffset returns the single_side_offset value or the default.
func (c *TuningConfig) GetSingleSideOffset() float64 {
	if c.SingleSideOffset == nil {
		return 100
	}
	return *c.SingleSideOffset
}

// GetLookahead returns the lookahead value or the default.
func (c *TuningConfig) GetLookahead() float64 {
	if c.Lookahead == nil {
		return 0.6
	}
	return *c.Lookahead
}

// GetDeadband returns the deadband value or the default.
func (c *TuningConfig) GetDeadband() float64 {
	if c.Deadband == nil {
		return 5
	}
	return *c.Deadband
}

// GetStrengthScale returns the strength_scale value or the default.
func (c *TuningConfig) GetStrengthScale() float64 {
	if c.StrengthScale == nil {
		return 100
	}
	return *c.StrengthScale
}

// Resolved returns a copy with every field populated from the accessors, for
// display and journaling.
func (c *TuningConfig) Resolved() *TuningConfig {
	return &TuningConfig{
		HistorySize:      ptrInt(c.GetHistorySize()),
		StopQuorum:       ptrInt(c.GetStopQuorum()),
		LightQuorum:      ptrInt(c.GetLightQuorum()),
		DetectionPeriod:  ptrInt(c.GetDetectionInterval()),
		StopDuration:     ptrString(c.GetStopDuration().String()),
		StopSignCooldown: ptrString(c.GetStopSignCooldown().String()),
		Smoothing:        ptrFloat64(c.GetSmoothing()),
		MinAbsSlope:      ptrFloat64(c.GetMinAbsSlope()),
		SingleSideOffset: ptrFloat64(c.GetSingleSideOffset()),
		Lookahead:        ptrFloat64(c.GetLookahead()),
		Deadband:         ptrFloat64(c.GetDeadband()),
		StrengthScale:    ptrFloat64(c.GetStrengthScale()),
	}
}
