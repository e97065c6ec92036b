package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TFMV/forcegraph/physics"
	"github.com/TFMV/forcegraph/render"
	"github.com/TFMV/forcegraph/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forcegraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultMatchesPackageDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, physics.DefaultOptions(), cfg.PhysicsOptions())
	assert.Equal(t, viewport.DefaultLimits(), cfg.Limits())
	assert.Equal(t, render.Projector{Padding: render.DefaultPadding, DefaultWidth: 800, DefaultHeight: 600}, cfg.NewProjector())
	assert.Equal(t, physics.DefaultInterval, cfg.Simulation.TickInterval)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"defaults", "environment"}, cfg.LoadedFrom)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
simulation:
  link_distance: 60
  charge_strength: -120
  tick_interval: 8ms
viewport:
  min_scale: 0.25
  max_scale: 8
server:
  addr: ":9090"
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"defaults", path, "environment"}, cfg.LoadedFrom)
	assert.Equal(t, 60.0, cfg.Simulation.LinkDistance)
	assert.Equal(t, -120.0, cfg.Simulation.ChargeStrength)
	assert.Equal(t, 8*time.Millisecond, cfg.Simulation.TickInterval)
	assert.Equal(t, 0.9, cfg.Simulation.Theta, "unset keys keep defaults")
	assert.Equal(t, viewport.Limits{MinScale: 0.25, MaxScale: 8}, cfg.Limits())
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts := cfg.PhysicsOptions()
	assert.Equal(t, 60.0, opts.LinkDistance)
	assert.Equal(t, physics.DefaultOptions().AlphaDecay, opts.AlphaDecay)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\nstore:\n  path: file.db\n")
	t.Setenv(EnvAddr, ":7070")
	t.Setenv(EnvDB, "env.db")
	t.Setenv(EnvLogLevel, "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "env.db", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative link distance", "simulation:\n  link_distance: -1\n"},
		{"repulsive charge sign", "simulation:\n  charge_strength: 10\n"},
		{"inverted zoom range", "viewport:\n  min_scale: 4\n  max_scale: 2\n"},
		{"unknown level", "log:\n  level: loud\n"},
		{"unknown key", "simulation:\n  gravity: 3\n"},
		{"not yaml", "simulation: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Log.Development = true

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	cfg.Log.Level = "error"
	logger, err = cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.WarnLevel))
}

func TestSurfaceOptions(t *testing.T) {
	assert.Len(t, Default().SurfaceOptions(), 5)
}
