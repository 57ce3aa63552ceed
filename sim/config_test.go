package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.GridSize)
	assert.Equal(t, 60, cfg.TickRate)
	assert.Equal(t, 200, cfg.ObstacleCap)
	assert.Equal(t, "csv", cfg.Ledger.Backend)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
seed: 7
grid_size: 30
generator:
  min_delay: 500ms
  max_delay: 1s
layout:
  hospitals:
    - {x: 1, y: 1}
    - {x: 20, y: 25}
  generate:
    seed: 3
    building_density: 0.3
    hospitals: 2
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 30, cfg.GridSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Generator.MinDelay)
	assert.Equal(t, time.Second, cfg.Generator.MaxDelay)
	assert.True(t, cfg.Generator.Enabled, "unset fields keep their defaults")
	assert.Equal(t, []Position{{1, 1}, {20, 25}}, cfg.Layout.Hospitals)
	require.NotNil(t, cfg.Layout.Generate)
	assert.Equal(t, 0.3, cfg.Layout.Generate.BuildingDensity)
}

func TestLoadConfig_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, "grid_sise: 30\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grid_sise")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"grid too small", func(c *Config) { c.GridSize = 1 }, "grid_size"},
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }, "tick_rate"},
		{"zero interval", func(c *Config) { c.DroneMoveInterval = 0 }, "drone_move_interval"},
		{"negative cap", func(c *Config) { c.ObstacleCap = -1 }, "obstacle counts"},
		{"probability above one", func(c *Config) { c.NeedChurnProb = 1.5 }, "need_churn_prob"},
		{"inverted delays", func(c *Config) { c.Generator.MaxDelay = time.Second }, "generator delays"},
		{"zero buffer", func(c *Config) { c.Generator.Buffer = 0 }, "buffer"},
		{"unknown policy", func(c *Config) { c.AdmissionPolicy = "fifo" }, "admission policy"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "postgres" }, "ledger backend"},
		{"unknown trace level", func(c *Config) { c.Trace.Level = "verbose" }, "trace level"},
		{"layout outside grid", func(c *Config) { c.Layout.Buildings = []Position{{25, 0}} }, "outside"},
		{"dense city", func(c *Config) { c.Layout.Generate = &GenerateSpec{BuildingDensity: 1} }, "building_density"},
		{"negative generated hospitals", func(c *Config) { c.Layout.Generate = &GenerateSpec{Hospitals: -1} }, "generate.hospitals"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
