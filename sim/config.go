package sim

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dronesim/dronesim/sim/trace"
)

// Config groups every simulation tunable. Zero values are not meaningful;
// start from DefaultConfig and override.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Seed     int64 `yaml:"seed"`
	GridSize int   `yaml:"grid_size"`
	TickRate int   `yaml:"tick_rate"` // ticks per second for Run

	DroneMoveInterval     int     `yaml:"drone_move_interval"`     // ticks
	ObstacleMoveInterval  int     `yaml:"obstacle_move_interval"`  // ticks
	ObstacleSpawnInterval int     `yaml:"obstacle_spawn_interval"` // ticks
	ObstacleCap           int     `yaml:"obstacle_cap"`
	ObstacleBatch         int     `yaml:"obstacle_batch"`
	InitialObstacles      int     `yaml:"initial_obstacles"`
	ObstacleTurnProb      float64 `yaml:"obstacle_turn_prob"`
	NeedChurnProb         float64 `yaml:"need_churn_prob"`
	DeployInterval        int     `yaml:"deploy_interval"` // ticks
	AdmissionPolicy       string  `yaml:"admission_policy"`

	Generator GeneratorConfig `yaml:"generator"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Trace     TraceConfig     `yaml:"trace"`
	Layout    LayoutConfig    `yaml:"layout"`
}

// GeneratorConfig controls the background request generator.
type GeneratorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	MinDelay time.Duration `yaml:"min_delay"`
	MaxDelay time.Duration `yaml:"max_delay"`
	// Buffer is the capacity of the request channel into the orchestrator.
	Buffer int `yaml:"buffer"`
}

// LedgerConfig selects the request ledger backend.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // "csv" (default), "sqlite" or "none"
	Path    string `yaml:"path"`
}

// TraceConfig controls dispatch/replan decision tracing.
type TraceConfig struct {
	Level string `yaml:"level"` // "none" (default) or "decisions"
}

// LayoutConfig describes the initial hospitals and buildings for headless runs.
type LayoutConfig struct {
	Hospitals []Position    `yaml:"hospitals"`
	Buildings []Position    `yaml:"buildings"`
	Generate  *GenerateSpec `yaml:"generate"`
}

// GenerateSpec requests a procedural city layout.
type GenerateSpec struct {
	Seed            int64   `yaml:"seed"`
	BuildingDensity float64 `yaml:"building_density"`
	Hospitals       int     `yaml:"hospitals"`
}

// DefaultConfig returns the stock tuning: a 25×25 grid at 60 ticks/s.
func DefaultConfig() Config {
	return Config{
		Seed:                  42,
		GridSize:              25,
		TickRate:              60,
		DroneMoveInterval:     2,
		ObstacleMoveInterval:  6,
		ObstacleSpawnInterval: 24,
		ObstacleCap:           200,
		ObstacleBatch:         3,
		InitialObstacles:      20,
		ObstacleTurnProb:      0.15,
		NeedChurnProb:         0.05,
		DeployInterval:        60,
		AdmissionPolicy:       "need-aware",
		Generator: GeneratorConfig{
			Enabled:  true,
			MinDelay: 2 * time.Second,
			MaxDelay: 4 * time.Second,
			Buffer:   64,
		},
		Ledger: LedgerConfig{Backend: "csv", Path: "simulation_alerts.csv"},
		Trace:  TraceConfig{Level: string(trace.TraceLevelNone)},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
// Uses strict field checking: unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidLedgerBackends is the set of recognized ledger backend names.
var ValidLedgerBackends = map[string]bool{"": true, "csv": true, "sqlite": true, "none": true}

// Validate checks that every field is in range.
func (c *Config) Validate() error {
	if c.GridSize < 2 {
		return fmt.Errorf("grid_size must be >= 2, got %d", c.GridSize)
	}
	if c.TickRate < 1 {
		return fmt.Errorf("tick_rate must be >= 1, got %d", c.TickRate)
	}
	intervals := map[string]int{
		"drone_move_interval":     c.DroneMoveInterval,
		"obstacle_move_interval":  c.ObstacleMoveInterval,
		"obstacle_spawn_interval": c.ObstacleSpawnInterval,
		"deploy_interval":         c.DeployInterval,
	}
	for name, v := range intervals {
		if v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, v)
		}
	}
	if c.ObstacleCap < 0 || c.ObstacleBatch < 0 || c.InitialObstacles < 0 {
		return fmt.Errorf("obstacle counts must be non-negative (cap=%d batch=%d initial=%d)",
			c.ObstacleCap, c.ObstacleBatch, c.InitialObstacles)
	}
	for name, p := range map[string]float64{"obstacle_turn_prob": c.ObstacleTurnProb, "need_churn_prob": c.NeedChurnProb} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be in [0,1], got %f", name, p)
		}
	}
	if c.Generator.MinDelay <= 0 || c.Generator.MaxDelay < c.Generator.MinDelay {
		return fmt.Errorf("generator delays must satisfy 0 < min_delay <= max_delay, got %v..%v",
			c.Generator.MinDelay, c.Generator.MaxDelay)
	}
	if c.Generator.Buffer < 1 {
		return fmt.Errorf("generator buffer must be >= 1, got %d", c.Generator.Buffer)
	}
	if !ValidAdmissionPolicies[c.AdmissionPolicy] {
		return fmt.Errorf("unknown admission policy %q", c.AdmissionPolicy)
	}
	if !ValidLedgerBackends[c.Ledger.Backend] {
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if !trace.IsValidTraceLevel(c.Trace.Level) {
		return fmt.Errorf("unknown trace level %q", c.Trace.Level)
	}
	for _, p := range append(append([]Position{}, c.Layout.Hospitals...), c.Layout.Buildings...) {
		if p.X < 0 || p.X >= c.GridSize || p.Y < 0 || p.Y >= c.GridSize {
			return fmt.Errorf("layout position %v outside %dx%d grid", p, c.GridSize, c.GridSize)
		}
	}
	if g := c.Layout.Generate; g != nil {
		if g.BuildingDensity < 0 || g.BuildingDensity >= 1 {
			return fmt.Errorf("building_density must be in [0,1), got %f", g.BuildingDensity)
		}
		if g.Hospitals < 0 {
			return fmt.Errorf("generate.hospitals must be non-negative, got %d", g.Hospitals)
		}
	}
	return nil
}
