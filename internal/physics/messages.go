package physics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	RequestPhysicsInfo = "physics_info"

	ResponseSuccess        = "success"
	ResponseUnknownRequest = "unknown request"

	// InfoType names the payload of a physics_info response.
	InfoType = "rigidsim.physics.Info"
)

// Info describes the running engine.
type Info struct {
	Backend        string     `json:"type"`
	SolverType     string     `json:"solver_type"`
	IntegratorType string     `json:"integrator_type"`
	MinStepSize    float64    `json:"min_step_size"`
	MaxStepSize    float64    `json:"max_step_size"`
	Gravity        [3]float64 `json:"gravity"`
	RealTimeFactor float64    `json:"real_time_factor"`
	UpdateRate     float64    `json:"real_time_update_rate"`
	EnablePhysics  bool       `json:"enable_physics"`
	Models         int        `json:"models"`
	Time           float64    `json:"sim_time"`
}

func (e *Engine) info() Info {
	return Info{
		Backend:        e.cfg.Backend,
		SolverType:     e.world.SolverType(),
		IntegratorType: e.world.IntegratorType(),
		MinStepSize:    e.cfg.MinStepSize,
		MaxStepSize:    e.world.MaxStepSize(),
		Gravity:        [3]float64(e.gravity),
		RealTimeFactor: e.realTimeFactor,
		UpdateRate:     e.updateRate,
		EnablePhysics:  e.enabled,
		Models:         len(e.models),
		Time:           e.now(),
	}
}

// Info returns the state published by the last change.
func (e *Engine) Info() Info { return e.pub.Load().info }

type Request struct {
	ID      int64  `json:"id"`
	Request string `json:"request"`
}

type Response struct {
	ID       int64           `json:"id"`
	Request  string          `json:"request"`
	Response string          `json:"response"`
	Type     string          `json:"type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// HandleRequest answers req. Only physics_info is understood.
func (e *Engine) HandleRequest(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Request: req.Request}
	if req.Request != RequestPhysicsInfo {
		resp.Response = ResponseUnknownRequest
		return resp
	}

	_, unlock, err := e.lock(ctx)
	if err != nil {
		resp.Response = err.Error()
		return resp
	}
	info := e.info()
	unlock()

	data, err := json.Marshal(info)
	if err != nil {
		resp.Response = err.Error()
		return resp
	}
	resp.Response = ResponseSuccess
	resp.Type = InfoType
	resp.Data = data
	return resp
}

// PhysicsMsg changes engine settings at run time. A nil field is left
// alone.
type PhysicsMsg struct {
	EnablePhysics  *bool       `json:"enable_physics,omitempty" yaml:"enable_physics,omitempty"`
	Gravity        *mgl64.Vec3 `json:"gravity,omitempty" yaml:"gravity,omitempty"`
	RealTimeFactor *float64    `json:"real_time_factor,omitempty" yaml:"real_time_factor,omitempty"`
	UpdateRate     *float64    `json:"real_time_update_rate,omitempty" yaml:"real_time_update_rate,omitempty"`
	MaxStepSize    *float64    `json:"max_step_size,omitempty" yaml:"max_step_size,omitempty"`
}

// HandlePhysicsMsg applies every valid field of msg. Invalid fields are
// logged and skipped; the returned error wraps ErrInvalidMessage for each.
func (e *Engine) HandlePhysicsMsg(ctx context.Context, msg PhysicsMsg) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer e.publish()

	var errs []error
	reject := func(field string, format string, args ...any) {
		err := fmt.Errorf("%w: %s: %s", ErrInvalidMessage, field, fmt.Sprintf(format, args...))
		e.log.Warnf("%v", err)
		errs = append(errs, err)
	}

	if msg.EnablePhysics != nil {
		e.enabled = *msg.EnablePhysics
		e.log.Debugf("physics enabled: %t", e.enabled)
	}
	if msg.Gravity != nil {
		g := *msg.Gravity
		if !finite(g[0], g[1], g[2]) {
			reject("gravity", "non-finite value %v", g)
		} else if err := e.setGravity(g); err != nil {
			errs = append(errs, err)
		}
	}
	if msg.RealTimeFactor != nil {
		if v := *msg.RealTimeFactor; !finite(v) || v < 0 {
			reject("real_time_factor", "must be non-negative, got %g", v)
		} else {
			e.realTimeFactor = v
		}
	}
	if msg.UpdateRate != nil {
		if v := *msg.UpdateRate; !finite(v) || v < 0 {
			reject("real_time_update_rate", "must be non-negative, got %g", v)
		} else {
			e.updateRate = v
		}
	}
	if msg.MaxStepSize != nil {
		if v := *msg.MaxStepSize; !finite(v) || v <= 0 || v < e.cfg.MinStepSize {
			reject("max_step_size", "must be at least %g, got %g", e.cfg.MinStepSize, v)
		} else {
			e.cfg.MaxStepSize = v
			e.world.SetMaxStepSize(v)
		}
	}
	return errors.Join(errs...)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
