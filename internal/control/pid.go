package control

import "fmt"

// PID is a positional PID loop on one scalar. The derivative term is taken
// from successive errors, so Compute must be called with increasing t.
type PID struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Target float64
	// MaxOutput clamps the output magnitude. Zero leaves it unclamped.
	MaxOutput float64

	integral float64
	prevErr  float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd, target float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		first:  true,
	}
}

// Compute returns the output for measurement x at time t.
func (p *PID) Compute(x, t float64) float64 {
	err := p.Target - x

	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return p.clamp(p.Kp * err)
	}

	dt := t - p.prevT
	if dt <= 0 {
		return p.clamp(p.Kp * err)
	}
	p.integral += err * dt
	derivative := (err - p.prevErr) / dt
	p.prevErr = err
	p.prevT = t
	return p.clamp(p.Kp*err + p.Ki*p.integral + p.Kd*derivative)
}

func (p *PID) clamp(u float64) float64 {
	if p.MaxOutput <= 0 {
		return u
	}
	return max(-p.MaxOutput, min(p.MaxOutput, u))
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     p.Kp,
		"Ki":     p.Ki,
		"Kd":     p.Kd,
		"Target": p.Target,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) error {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "Target":
		p.Target = value
	default:
		return fmt.Errorf("pid: unknown parameter %q", name)
	}
	return nil
}
