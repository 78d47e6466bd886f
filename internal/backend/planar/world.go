// Package planar binds scene models to a two-dimensional impulse solver.
// Motion is confined to the vertical XZ plane: every link is a free body and
// every joint becomes a set of solver constraints, so loops need no cutting.
package planar

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp/v2"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/convert"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
)

const (
	Name       = "planar"
	SolverType = "Sequential Impulse"
	// IntegratorType is the only scheme the impulse solver runs.
	IntegratorType = "semi_explicit_euler"

	solverIterations = 20
	// collisionSlop is the overlap the solver tolerates, in metres.
	collisionSlop = 1e-3
)

func init() {
	backend.Register(Name, func(opts backend.Options) (backend.World, error) {
		return New(opts), nil
	})
}

// body is one link in the plane. Static links have no solver body and keep
// their pose.
type body struct {
	link   *scene.Link
	b      *cp.Body
	depth  float64
	static bool
	pose   geom.Pose

	point  []pointForce
	torque float64

	// velocity before the last internal step, for reaction estimates
	prevV cp.Vector
	prevW float64
}

type pointForce struct {
	f, p cp.Vector
}

type state struct {
	p cp.Vector
	a float64
	v cp.Vector
	w float64
}

type World struct {
	opts backend.Options
	log  logging.Logger

	space *cp.Space

	gravity        mgl64.Vec3
	defaultGravity mgl64.Vec3
	maxStep        float64
	time           float64
	lastDt         float64

	models []*scene.Model
	bodies []*body
	byLink map[*scene.Link]*body
	joints []*joint
	groups uint

	initialized bool
	defaults    []state
}

func New(opts backend.Options) *World {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	if opts.Integrator != "" && opts.Integrator != IntegratorType {
		log.Warnf("planar solver integrates with [%s], ignoring integrator [%s]", IntegratorType, opts.Integrator)
	}
	space := cp.NewSpace()
	space.Iterations = solverIterations
	space.SetCollisionSlop(collisionSlop)
	return &World{
		opts:           opts,
		log:            log,
		space:          space,
		defaultGravity: opts.Gravity,
		gravity:        opts.Gravity,
		maxStep:        opts.MaxStepSize,
		byLink:         map[*scene.Link]*body{},
	}
}

func (w *World) Kind() scene.BackendKind { return scene.PlanarBackend }

func (w *World) SolverType() string { return SolverType }

func (w *World) IntegratorType() string { return IntegratorType }

func (w *World) Initialized() bool { return w.initialized }

func (w *World) Initialize() error {
	if w.initialized {
		return backend.ErrInitialized
	}
	w.gravity = w.defaultGravity
	w.space.SetGravity(convert.VecToPlanar(w.gravity))
	w.defaults = w.capture()
	w.initialized = true
	w.log.Debugf("planar world initialized: %d bodies, %d joints", len(w.bodies), len(w.joints))
	return nil
}

func (w *World) Reset() error {
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	w.restore(w.defaults)
	w.time = 0
	w.lastDt = 0
	w.gravity = w.defaultGravity
	w.space.SetGravity(convert.VecToPlanar(w.gravity))
	return nil
}

func (w *World) Time() float64 { return w.time }

func (w *World) SetTime(t float64) { w.time = t }

// StepTo runs fixed internal steps no longer than the max step size. A step
// that produces a non-finite state is rolled back.
func (w *World) StepTo(target float64) error {
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	for target-w.time > 1e-12 {
		dt := math.Min(w.maxStep, target-w.time)
		if dt <= 0 {
			dt = target - w.time
		}
		saved := w.capture()
		for _, b := range w.bodies {
			if !b.static {
				b.prevV, b.prevW = b.b.Velocity(), b.b.AngularVelocity()
			}
		}
		w.applyForces()
		w.space.Step(dt)
		if !w.valid() {
			w.restore(saved)
			return &integrators.StepError{Time: w.time, Dt: dt, Wrapped: integrators.ErrInvalidState}
		}
		w.time += dt
		w.lastDt = dt
	}
	return nil
}

func (w *World) capture() []state {
	out := make([]state, len(w.bodies))
	for i, b := range w.bodies {
		if b.static {
			continue
		}
		out[i] = state{p: b.b.Position(), a: b.b.Angle(), v: b.b.Velocity(), w: b.b.AngularVelocity()}
	}
	return out
}

func (w *World) restore(s []state) {
	for i, b := range w.bodies {
		if b.static || i >= len(s) {
			continue
		}
		b.b.SetPosition(s[i].p)
		b.b.SetAngle(s[i].a)
		b.b.SetVelocityVector(s[i].v)
		b.b.SetAngularVelocity(s[i].w)
	}
}

func (w *World) valid() bool {
	for _, b := range w.bodies {
		if b.static {
			continue
		}
		p, v := b.b.Position(), b.b.Velocity()
		for _, x := range []float64{p.X, p.Y, v.X, v.Y, b.b.Angle(), b.b.AngularVelocity()} {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}

// applyForces pushes the buffered link and joint forces into the solver.
// The solver clears them after every step.
func (w *World) applyForces() {
	for _, b := range w.bodies {
		if b.static {
			continue
		}
		for _, pf := range b.point {
			b.b.ApplyForceAtWorldPoint(pf.f, pf.p)
		}
		if b.torque != 0 {
			b.b.SetTorque(b.b.Torque() + b.torque)
		}
	}
	for _, j := range w.joints {
		j.applyForces()
	}
}

func (w *World) SetDefaultGravity(g mgl64.Vec3) { w.defaultGravity = g }

func (w *World) SetGravity(g mgl64.Vec3) error {
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	w.gravity = g
	w.space.SetGravity(convert.VecToPlanar(g))
	return nil
}

func (w *World) Gravity() mgl64.Vec3 {
	if w.initialized {
		return w.gravity
	}
	return w.defaultGravity
}

// Accuracy is zero: the impulse solver has no error control.
func (w *World) Accuracy() float64 { return 0 }

func (w *World) TransitionVelocity() float64 { return w.opts.TransitionVelocity }

func (w *World) MaxStepSize() float64 { return w.maxStep }

func (w *World) SetMaxStepSize(dt float64) {
	if dt > 0 {
		w.maxStep = dt
	}
}

func (w *World) body(l *scene.Link) (*body, error) {
	h, ok := l.Master()
	if !ok || h.Backend != scene.PlanarBackend || h.Index < 0 || h.Index >= len(w.bodies) || w.bodies[h.Index].link != l {
		return nil, fmt.Errorf("%w: link %q", backend.ErrNotBound, l.Name)
	}
	return w.bodies[h.Index], nil
}

func (w *World) LinkPose(l *scene.Link) (geom.Pose, error) {
	b, err := w.body(l)
	if err != nil {
		return geom.Pose{}, err
	}
	if b.static {
		return b.pose, nil
	}
	return convert.PoseFromPlanar(b.b.Position(), b.b.Angle(), b.depth), nil
}

func (w *World) LinkVelocity(l *scene.Link) (geom.Velocity, error) {
	b, err := w.body(l)
	if err != nil {
		return geom.Velocity{}, err
	}
	if b.static {
		return geom.Velocity{}, nil
	}
	return geom.Velocity{
		Linear:  convert.VecFromPlanar(b.b.Velocity(), 0),
		Angular: mgl64.Vec3{0, -b.b.AngularVelocity(), 0},
	}, nil
}

// SetLinkState moves any dynamic link. Out-of-plane parts of p and v are
// dropped.
func (w *World) SetLinkState(l *scene.Link, p geom.Pose, v geom.Velocity) error {
	b, err := w.body(l)
	if err != nil {
		return err
	}
	if b.static {
		return nil
	}
	pos, angle := convert.PoseToPlanar(p)
	b.b.SetPosition(pos)
	b.b.SetAngle(angle)
	b.b.SetVelocityVector(convert.VecToPlanar(v.Linear))
	b.b.SetAngularVelocity(-v.Angular[1])
	return nil
}

func (w *World) ApplyLinkForce(l *scene.Link, force, point mgl64.Vec3) error {
	b, err := w.body(l)
	if err != nil {
		return err
	}
	b.point = append(b.point, pointForce{f: convert.VecToPlanar(force), p: convert.VecToPlanar(point)})
	return nil
}

func (w *World) ApplyLinkTorque(l *scene.Link, torque mgl64.Vec3) error {
	b, err := w.body(l)
	if err != nil {
		return err
	}
	b.torque -= torque[1]
	return nil
}

func (w *World) ClearForces() {
	for _, b := range w.bodies {
		b.point = b.point[:0]
		b.torque = 0
	}
	for _, j := range w.joints {
		j.effort = 0
	}
}

var _ backend.World = (*World)(nil)
