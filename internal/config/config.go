package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/scene"
)

const (
	DefaultBackend            = "tree"
	DefaultAccuracy           = 1e-3
	DefaultMaxStepSize        = 1e-3
	DefaultMinStepSize        = 1e-8
	DefaultTransitionVelocity = 0.01
	DefaultRealTimeFactor     = 1.0
	DefaultUpdateRate         = 1000.0
	DefaultDuration           = 5.0
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid value")

// Config is the physics configuration of a world. Zero values in a loaded
// file keep the defaults they were read over.
type Config struct {
	Backend            string                `yaml:"backend"`
	Integrator         string                `yaml:"integrator"`
	Accuracy           float64               `yaml:"accuracy"`
	MaxStepSize        float64               `yaml:"max_step_size"`
	MinStepSize        float64               `yaml:"min_step_size"`
	TransitionVelocity float64               `yaml:"max_transient_velocity"`
	Gravity            []float64             `yaml:"gravity,flow"`
	Contact            scene.ContactMaterial `yaml:"contact"`
	RealTimeFactor     float64               `yaml:"real_time_factor"`
	UpdateRate         float64               `yaml:"real_time_update_rate"`
	// LoopConstraints closes loops with constraints instead of slave
	// bodies where the backend supports it.
	LoopConstraints bool `yaml:"loop_constraints"`
	// Workers sizes the tessellation pool. Zero uses one per CPU.
	Workers  int     `yaml:"tessellation_workers"`
	Duration float64 `yaml:"duration"`
	Debug    bool    `yaml:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend:            DefaultBackend,
		Integrator:         integrators.Default,
		Accuracy:           DefaultAccuracy,
		MaxStepSize:        DefaultMaxStepSize,
		MinStepSize:        DefaultMinStepSize,
		TransitionVelocity: DefaultTransitionVelocity,
		Gravity:            []float64{0, 0, -9.8},
		Contact:            scene.DefaultContactMaterial(),
		RealTimeFactor:     DefaultRealTimeFactor,
		UpdateRate:         DefaultUpdateRate,
		Duration:           DefaultDuration,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Gravity = append([]float64(nil), c.Gravity...)
	return &out
}

func (c *Config) Validate() error {
	switch {
	case c.Backend == "":
		return fmt.Errorf("%w: backend must be set", ErrInvalid)
	case c.MaxStepSize <= 0:
		return fmt.Errorf("%w: max_step_size must be positive, got %g", ErrInvalid, c.MaxStepSize)
	case c.MinStepSize <= 0 || c.MinStepSize > c.MaxStepSize:
		return fmt.Errorf("%w: min_step_size must be in (0, %g], got %g", ErrInvalid, c.MaxStepSize, c.MinStepSize)
	case c.Accuracy <= 0:
		return fmt.Errorf("%w: accuracy must be positive, got %g", ErrInvalid, c.Accuracy)
	case c.TransitionVelocity <= 0:
		return fmt.Errorf("%w: max_transient_velocity must be positive, got %g", ErrInvalid, c.TransitionVelocity)
	case len(c.Gravity) != 3:
		return fmt.Errorf("%w: gravity needs 3 components, got %d", ErrInvalid, len(c.Gravity))
	case c.RealTimeFactor < 0:
		return fmt.Errorf("%w: real_time_factor must be non-negative, got %g", ErrInvalid, c.RealTimeFactor)
	case c.UpdateRate < 0:
		return fmt.Errorf("%w: real_time_update_rate must be non-negative, got %g", ErrInvalid, c.UpdateRate)
	case c.Workers < 0:
		return fmt.Errorf("%w: tessellation_workers must be non-negative, got %d", ErrInvalid, c.Workers)
	case c.Duration < 0:
		return fmt.Errorf("%w: duration must be non-negative, got %g", ErrInvalid, c.Duration)
	}
	if err := c.Contact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// GravityVec returns the configured gravity, or zero if it is malformed.
func (c *Config) GravityVec() mgl64.Vec3 {
	if len(c.Gravity) != 3 {
		return mgl64.Vec3{}
	}
	return mgl64.Vec3{c.Gravity[0], c.Gravity[1], c.Gravity[2]}
}

func (c *Config) SetGravityVec(g mgl64.Vec3) {
	c.Gravity = []float64{g[0], g[1], g[2]}
}

// BackendOptions maps the configuration onto world options. The logger and
// tessellator are left for the caller.
func (c *Config) BackendOptions() backend.Options {
	opts := backend.DefaultOptions()
	opts.Integrator = c.Integrator
	opts.Accuracy = c.Accuracy
	opts.MaxStepSize = c.MaxStepSize
	opts.MinStepSize = c.MinStepSize
	opts.TransitionVelocity = c.TransitionVelocity
	opts.Material = c.Contact
	opts.Gravity = c.GravityVec()
	opts.LoopConstraints = c.LoopConstraints
	return opts
}
