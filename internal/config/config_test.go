package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBackend, cfg.Backend)
	assert.Equal(t, "semi_explicit_euler", cfg.Integrator)
	assert.Equal(t, mgl64.Vec3{0, 0, -9.8}, cfg.GravityVec())
}

func TestPresetsValidate(t *testing.T) {
	names := ListPresets()
	assert.Equal(t, []string{"default", "planar", "precise", "stiff_contact"}, names)
	for _, name := range names {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Equal(t, "planar", GetPreset("planar").Backend)
}

func TestGetPresetReturnsCopy(t *testing.T) {
	a := GetPreset("default")
	a.Gravity[2] = 0
	assert.Equal(t, -9.8, GetPreset("default").Gravity[2])
	assert.Nil(t, GetPreset("nonexistent"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no backend", func(c *Config) { c.Backend = "" }},
		{"zero max step", func(c *Config) { c.MaxStepSize = 0 }},
		{"min above max", func(c *Config) { c.MinStepSize = 1 }},
		{"zero accuracy", func(c *Config) { c.Accuracy = 0 }},
		{"zero transition velocity", func(c *Config) { c.TransitionVelocity = 0 }},
		{"short gravity", func(c *Config) { c.Gravity = []float64{0, -9.8} }},
		{"negative rtf", func(c *Config) { c.RealTimeFactor = -1 }},
		{"negative rate", func(c *Config) { c.UpdateRate = -1 }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
		{"negative friction", func(c *Config) { c.Contact.DynamicFriction = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "physics.yaml")
	data := "integrator: rk4\nmax_step_size: 0.002\ngravity: [0, 0, -1.6]\ncontact:\n  stiffness: 2e5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rk4", cfg.Integrator)
	assert.Equal(t, 0.002, cfg.MaxStepSize)
	assert.Equal(t, mgl64.Vec3{0, 0, -1.6}, cfg.GravityVec())
	assert.Equal(t, 2e5, cfg.Contact.Stiffness)
	assert.Equal(t, DefaultBackend, cfg.Backend)
	assert.Equal(t, 0.9, cfg.Contact.DynamicFriction)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_step_size: -1\n"), 0644))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := GetPreset("stiff_contact")
	cfg.SetGravityVec(mgl64.Vec3{1, 2, 3})
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestBackendOptions(t *testing.T) {
	cfg := GetPreset("precise")
	cfg.LoopConstraints = true
	opts := cfg.BackendOptions()
	assert.Equal(t, "rk4", opts.Integrator)
	assert.Equal(t, cfg.MaxStepSize, opts.MaxStepSize)
	assert.Equal(t, cfg.MinStepSize, opts.MinStepSize)
	assert.Equal(t, cfg.Contact, opts.Material)
	assert.True(t, opts.LoopConstraints)
	assert.Equal(t, mgl64.Vec3{0, 0, -9.8}, opts.Gravity)
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	c := cfg.Clone()
	c.Gravity[0] = 5
	assert.Equal(t, 0.0, cfg.Gravity[0])
}
