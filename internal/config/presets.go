package config

import "sort"

// Presets are named physics configurations, each a full Config.
var Presets = map[string]func() *Config{
	"default": DefaultConfig,
	"stiff_contact": func() *Config {
		cfg := DefaultConfig()
		cfg.Integrator = "rk_merson"
		cfg.Accuracy = 1e-4
		cfg.MaxStepSize = 5e-4
		cfg.Contact.Stiffness = 1e7
		cfg.Contact.Dissipation = 100
		cfg.TransitionVelocity = 1e-3
		return cfg
	},
	"planar": func() *Config {
		cfg := DefaultConfig()
		cfg.Backend = "planar"
		cfg.MaxStepSize = 1.0 / 240
		cfg.UpdateRate = 240
		return cfg
	},
	"precise": func() *Config {
		cfg := DefaultConfig()
		cfg.Integrator = "rk4"
		cfg.MaxStepSize = 2.5e-4
		cfg.MinStepSize = 1e-10
		cfg.Accuracy = 1e-6
		cfg.RealTimeFactor = 0
		return cfg
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
