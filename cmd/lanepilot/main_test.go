package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/replay"
	"github.com/banshee-data/lanepilot/internal/serialmux"
	"github.com/banshee-data/lanepilot/internal/timeutil"
	"github.com/banshee-data/lanepilot/internal/vision"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", *listen)
	assert.Equal(t, "camera", *source)
	assert.Equal(t, config.DefaultConfigPath, *tuningPath)
	assert.False(t, *devMode)
	assert.Equal(t, 30.0, *fps)
}

func TestApplyFlags_OnlyExplicitFlagsOverride(t *testing.T) {
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	fset.String("listen", "", "")
	fset.String("db", "", "")
	require.NoError(t, fset.Parse([]string{"-listen", ":9999"}))

	prev := *listen
	*listen = ":9999"
	t.Cleanup(func() { *listen = prev })

	cfg := &config.RuntimeConfig{ListenAddr: "127.0.0.1:8080", DBPath: "from-env.db"}
	applyFlags(cfg, fset)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "from-env.db", cfg.DBPath, "unset flag must not override the environment")
}

func TestDevSource(t *testing.T) {
	t.Parallel()

	cfg := &config.RuntimeConfig{Source: "camera"}
	devSource(cfg)
	assert.Equal(t, "synthetic", cfg.Source)

	cfg = &config.RuntimeConfig{Source: "camera", FixturePath: "loop.jsonl"}
	devSource(cfg)
	assert.Equal(t, "replay", cfg.Source)

	cfg = &config.RuntimeConfig{Source: "synthetic", FixturePath: "loop.jsonl"}
	devSource(cfg)
	assert.Equal(t, "synthetic", cfg.Source)
}

func TestLoadTuning(t *testing.T) {
	t.Parallel()

	got, err := loadTuning("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTuningConfig().GetHistorySize(), got.GetHistorySize())

	// Tests run from cmd/lanepilot, where the default path does not exist.
	got, err = loadTuning(config.DefaultConfigPath)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = loadTuning(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history_size: 7\n"), 0o644))
	got, err = loadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, 7, got.GetHistorySize())
}

func TestOpenSource(t *testing.T) {
	t.Parallel()

	clock := timeutil.RealClock{}

	src, det, label, err := openSource(&config.RuntimeConfig{Source: "synthetic"}, clock)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", label)
	assert.IsType(t, replay.Detector{}, det)
	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	require.NoError(t, src.Close())

	path := filepath.Join(t.TempDir(), "fixture.jsonl")
	fh, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, replay.WriteFixture(fh, replay.Synthetic(replay.DefaultSynthetic())[:3]))
	require.NoError(t, fh.Close())

	src, _, label, err = openSource(&config.RuntimeConfig{Source: "replay", FixturePath: path}, clock)
	require.NoError(t, err)
	assert.Equal(t, "replay:"+path, label)
	require.NoError(t, src.Close())

	_, _, _, err = openSource(&config.RuntimeConfig{Source: "lidar"}, clock)
	assert.Error(t, err)

	if !vision.Available {
		_, _, _, err = openSource(&config.RuntimeConfig{Source: "camera"}, clock)
		assert.ErrorIs(t, err, vision.ErrUnavailable)
	}
}

func TestOpenBoard(t *testing.T) {
	board, err := openBoard(&config.RuntimeConfig{DevMode: true, SerialPort: "/dev/does-not-exist"})
	require.NoError(t, err)
	assert.IsType(t, &serialmux.SerialMux{}, board)
	require.NoError(t, board.Close())

	board, err = openBoard(&config.RuntimeConfig{SerialPort: serialmux.DisabledPort})
	require.NoError(t, err)
	assert.IsType(t, &serialmux.Disabled{}, board)
	require.NoError(t, board.Close())

	_, err = openBoard(&config.RuntimeConfig{SerialPort: "/dev/ttyACM0", SerialFrame: "9Z9"})
	assert.Error(t, err)
}
