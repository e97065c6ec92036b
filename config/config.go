// Package config loads forcegraph configuration.
//
// The loading order (from lowest to highest priority):
//  1. Default values (in code)
//  2. A YAML file, if one is given
//  3. Environment variables
//
// The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/TFMV/forcegraph/physics"
	"github.com/TFMV/forcegraph/render"
	"github.com/TFMV/forcegraph/surface"
	"github.com/TFMV/forcegraph/viewport"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAddr     = "FORCEGRAPH_ADDR"
	EnvDB       = "FORCEGRAPH_DB"
	EnvLogLevel = "FORCEGRAPH_LOG_LEVEL"
)

// Config is the full configuration.
type Config struct {
	Simulation Simulation `yaml:"simulation"`
	Viewport   Viewport   `yaml:"viewport"`
	Projector  Projector  `yaml:"projector"`
	Server     Server     `yaml:"server"`
	Store      Store      `yaml:"store"`
	Log        Log        `yaml:"log"`

	// LoadedFrom lists the sources applied, in order.
	LoadedFrom []string `yaml:"-"`
}

// Simulation holds force and integrator parameters.
type Simulation struct {
	LinkDistance    float64       `yaml:"link_distance" validate:"gt=0"`
	ChargeStrength  float64       `yaml:"charge_strength" validate:"lte=0"`
	Theta           float64       `yaml:"theta" validate:"gte=0,lte=2"`
	CollideRadius   float64       `yaml:"collide_radius" validate:"gte=0"`
	CenterStrength  float64       `yaml:"center_strength" validate:"gt=0,lte=1"`
	AlphaMin        float64       `yaml:"alpha_min" validate:"gt=0,lt=1"`
	VelocityDecay   float64       `yaml:"velocity_decay" validate:"gte=0,lt=1"`
	WarmAlpha       float64       `yaml:"warm_alpha" validate:"gt=0,lte=1"`
	SettleThreshold float64       `yaml:"settle_threshold" validate:"gt=0,lte=1"`
	SettleTicks     int           `yaml:"settle_ticks" validate:"gt=0"`
	TickInterval    time.Duration `yaml:"tick_interval" validate:"gt=0"`
	Seed            int64         `yaml:"seed"`
}

// Viewport holds the zoom range.
type Viewport struct {
	MinScale float64 `yaml:"min_scale" validate:"gt=0"`
	MaxScale float64 `yaml:"max_scale" validate:"gtefield=MinScale"`
}

// Projector holds the canvas and the window padding.
type Projector struct {
	Padding float64 `yaml:"padding" validate:"gte=0"`
	Width   float64 `yaml:"width" validate:"gt=0"`
	Height  float64 `yaml:"height" validate:"gt=0"`
}

// Server holds the HTTP host settings.
type Server struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Store holds the database settings.
type Store struct {
	Path string `yaml:"path" validate:"required"`
}

// Log holds logging settings.
type Log struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	sim := physics.DefaultOptions()
	limits := viewport.DefaultLimits()
	return &Config{
		Simulation: Simulation{
			LinkDistance:    sim.LinkDistance,
			ChargeStrength:  sim.ChargeStrength,
			Theta:           sim.Theta,
			CollideRadius:   sim.CollideRadius,
			CenterStrength:  sim.CenterStrength,
			AlphaMin:        sim.AlphaMin,
			VelocityDecay:   sim.VelocityDecay,
			WarmAlpha:       sim.WarmAlpha,
			SettleThreshold: sim.SettleThreshold,
			SettleTicks:     1000,
			TickInterval:    physics.DefaultInterval,
			Seed:            sim.Seed,
		},
		Viewport: Viewport{MinScale: limits.MinScale, MaxScale: limits.MaxScale},
		Projector: Projector{
			Padding: render.DefaultPadding,
			Width:   800,
			Height:  600,
		},
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Store: Store{Path: "forcegraph.db"},
		Log:   Log{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.LoadedFrom = append(cfg.LoadedFrom, "defaults")

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	cfg.applyEnvironment(os.Getenv)
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvironment(getenv func(string) string) {
	if val := getenv(EnvAddr); val != "" {
		c.Server.Addr = val
	}
	if val := getenv(EnvDB); val != "" {
		c.Store.Path = val
	}
	if val := getenv(EnvLogLevel); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
}

var validate = validator.New()

// Validate checks every field constraint.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// PhysicsOptions converts the simulation section.
func (c *Config) PhysicsOptions() physics.Options {
	opts := physics.DefaultOptions()
	s := c.Simulation
	opts.LinkDistance = s.LinkDistance
	opts.ChargeStrength = s.ChargeStrength
	opts.Theta = s.Theta
	opts.CollideRadius = s.CollideRadius
	opts.CenterStrength = s.CenterStrength
	opts.AlphaMin = s.AlphaMin
	opts.AlphaDecay = 1 - math.Pow(s.AlphaMin, 1.0/300)
	opts.VelocityDecay = s.VelocityDecay
	opts.WarmAlpha = s.WarmAlpha
	opts.SettleThreshold = s.SettleThreshold
	opts.Seed = s.Seed
	return opts
}

// Limits converts the viewport section.
func (c *Config) Limits() viewport.Limits {
	return viewport.Limits{MinScale: c.Viewport.MinScale, MaxScale: c.Viewport.MaxScale}
}

// NewProjector converts the projector section.
func (c *Config) NewProjector() render.Projector {
	return render.Projector{
		Padding:       c.Projector.Padding,
		DefaultWidth:  c.Projector.Width,
		DefaultHeight: c.Projector.Height,
	}
}

// SurfaceOptions returns the surface options this configuration implies.
func (c *Config) SurfaceOptions() []surface.Option {
	return []surface.Option{
		surface.WithSimulation(c.PhysicsOptions()),
		surface.WithViewportLimits(c.Limits()),
		surface.WithCanvas(c.Projector.Width, c.Projector.Height),
		surface.WithPadding(c.Projector.Padding),
		surface.WithInterval(c.Simulation.TickInterval),
	}
}
