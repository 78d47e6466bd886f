package integrators

import (
	"fmt"
	"sort"
)

// Default is used when no integrator, or an unknown one, is configured.
const Default = "semi_explicit_euler"

var factories = map[string]func() Integrator{
	"euler":               func() Integrator { return NewEuler() },
	"semi_explicit_euler": func() Integrator { return NewLeapfrog() },
	"verlet":              func() Integrator { return NewVerlet() },
	"rk4":                 func() Integrator { return NewRK4() },
	"rk_merson":           func() Integrator { return NewRK45() },
	"rk45":                func() Integrator { return NewRK45() },
}

// New returns a fresh integrator by name.
func New(name string) (Integrator, error) {
	fn, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegrator, name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
