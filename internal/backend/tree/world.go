// Package tree binds scene models to the reduced-coordinate treedyn engine.
// Every link becomes a mobilized body; loops are cut by welding slave bodies
// back to their masters.
package tree

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/convert"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/treedyn"
)

const (
	Name       = "tree"
	SolverType = "Spatial Algebra and Elastic Foundation"
)

func init() {
	backend.Register(Name, func(opts backend.Options) (backend.World, error) {
		return New(opts), nil
	})
}

// World is a treedyn system plus the bookkeeping that maps scene links and
// joints onto its bodies.
type World struct {
	opts backend.Options
	log  logging.Logger

	sys        *treedyn.System
	stepper    *treedyn.TimeStepper
	integrator string

	models  []*scene.Model
	masters map[*scene.Link]treedyn.MobodIndex
	// bases are links mobilized by an added free base.
	bases map[*scene.Link]bool
	// static links sit on ground at a fixed pose.
	static map[*scene.Link]geom.Pose
	joints []*jointRecord
	welds  int

	initialized bool
	reactions   []treedyn.SpatialVec
}

func New(opts backend.Options) *World {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	sys := treedyn.NewSystem()
	sys.SetDefaultGravity(opts.Gravity)
	if opts.TransitionVelocity > 0 {
		sys.SetTransitionVelocity(opts.TransitionVelocity)
	}

	name := opts.Integrator
	if name == "" {
		name = integrators.Default
	}
	method, err := integrators.New(name)
	if err != nil {
		log.Errorf("integrator [%s] not available, using [%s]", name, integrators.Default)
		name = integrators.Default
		method, _ = integrators.New(name)
	}

	stepper := treedyn.NewTimeStepper(sys, method)
	stepper.SetAccuracy(opts.Accuracy)
	stepper.SetMaxStepSize(opts.MaxStepSize)
	stepper.SetMinStepSize(opts.MinStepSize)

	return &World{
		opts:       opts,
		log:        log,
		sys:        sys,
		stepper:    stepper,
		integrator: name,
		masters:    map[*scene.Link]treedyn.MobodIndex{},
		bases:      map[*scene.Link]bool{},
		static:     map[*scene.Link]geom.Pose{},
	}
}

func (w *World) Kind() scene.BackendKind { return scene.TreeBackend }

func (w *World) SolverType() string { return SolverType }

func (w *World) IntegratorType() string { return w.integrator }

// System exposes the underlying engine.
func (w *World) System() *treedyn.System { return w.sys }

func (w *World) Initialized() bool { return w.initialized }

func (w *World) Initialize() error {
	if w.initialized {
		return backend.ErrInitialized
	}
	st, err := w.sys.RealizeTopology()
	if err != nil {
		return fmt.Errorf("tree: realize topology: %w", err)
	}
	w.stepper.Initialize(st)
	w.initialized = true
	w.reactions = nil
	w.log.Debugf("tree world initialized: %d bodies, %d coordinates, %d welds", w.sys.NumBodies(), w.sys.NumQ(), w.sys.NumWelds())
	return nil
}

func (w *World) Reset() error {
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	w.stepper.Initialize(w.sys.DefaultState())
	w.reactions = nil
	return nil
}

func (w *World) Time() float64 { return w.stepper.Time() }

func (w *World) SetTime(t float64) {
	w.stepper.State().Time = t
}

func (w *World) StepTo(target float64) error {
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	w.reactions = nil
	return w.stepper.StepTo(target)
}

func (w *World) SetDefaultGravity(g mgl64.Vec3) {
	w.sys.SetDefaultGravity(g)
}

func (w *World) SetGravity(g mgl64.Vec3) error {
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	w.stepper.State().SetGravity(g)
	w.reactions = nil
	return nil
}

func (w *World) Gravity() mgl64.Vec3 {
	if w.initialized {
		return w.stepper.State().Gravity
	}
	return w.sys.DefaultGravity()
}

// Accuracy is the tolerance in use, or zero before Initialize.
func (w *World) Accuracy() float64 {
	if !w.initialized {
		return 0
	}
	return w.stepper.Accuracy()
}

func (w *World) TransitionVelocity() float64 { return w.sys.TransitionVelocity() }

func (w *World) MaxStepSize() float64 { return w.stepper.MaxStepSize() }

func (w *World) SetMaxStepSize(dt float64) { w.stepper.SetMaxStepSize(dt) }

func (w *World) master(l *scene.Link) (treedyn.MobodIndex, error) {
	h, ok := l.Master()
	if !ok || h.Backend != scene.TreeBackend {
		return 0, fmt.Errorf("%w: link %q", backend.ErrNotBound, l.Name)
	}
	return treedyn.MobodIndex(h.Index), nil
}

func (w *World) realized() (*treedyn.Realized, error) {
	if !w.initialized {
		return nil, backend.ErrNotInitialized
	}
	return w.sys.Realize(w.stepper.State())
}

func (w *World) LinkPose(l *scene.Link) (geom.Pose, error) {
	if p, ok := w.static[l]; ok {
		return p, nil
	}
	b, err := w.master(l)
	if err != nil {
		return geom.Pose{}, err
	}
	r, err := w.realized()
	if err != nil {
		return geom.Pose{}, err
	}
	return convert.TransformToPose(r.BodyTransform(b)), nil
}

func (w *World) LinkVelocity(l *scene.Link) (geom.Velocity, error) {
	if _, ok := w.static[l]; ok {
		return geom.Velocity{}, nil
	}
	b, err := w.master(l)
	if err != nil {
		return geom.Velocity{}, err
	}
	r, err := w.realized()
	if err != nil {
		return geom.Velocity{}, err
	}
	ang, lin := r.BodyVelocity(b)
	return geom.Velocity{Linear: lin, Angular: ang}, nil
}

func (w *World) SetLinkState(l *scene.Link, p geom.Pose, v geom.Velocity) error {
	if !w.bases[l] {
		return nil
	}
	b, err := w.master(l)
	if err != nil {
		return err
	}
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	w.reactions = nil
	return w.sys.SetFreeTransform(w.stepper.State(), b, convert.PoseToTransform(p), v.Angular, v.Linear)
}

func (w *World) record(j *scene.Joint) (*jointRecord, error) {
	h, ok := j.Handle()
	if !ok || h.Backend != scene.TreeBackend || h.Index < 0 || h.Index >= len(w.joints) || w.joints[h.Index].joint != j {
		return nil, fmt.Errorf("%w: joint %q", backend.ErrNotBound, j.Name)
	}
	return w.joints[h.Index], nil
}

func (w *World) JointState(j *scene.Joint) ([]float64, []float64, error) {
	rec, err := w.record(j)
	if err != nil {
		return nil, nil, err
	}
	if !w.initialized {
		return nil, nil, backend.ErrNotInitialized
	}
	if rec.loop != nil {
		return nil, nil, nil
	}
	q, u, err := w.sys.Coordinates(w.stepper.State(), rec.mobod.Index())
	if err != nil {
		return nil, nil, err
	}
	if rec.reversed && !rec.hasReference() {
		negate(q)
		negate(u)
	}
	return q, u, nil
}

func (w *World) SetJointState(j *scene.Joint, q, u []float64) error {
	rec, err := w.record(j)
	if err != nil {
		return err
	}
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	if rec.loop != nil {
		return nil
	}
	if rec.reversed && !rec.hasReference() {
		q = negated(q)
		u = negated(u)
	}
	w.reactions = nil
	return w.sys.SetCoordinates(w.stepper.State(), rec.mobod.Index(), q, u)
}

func (w *World) SetJointForce(j *scene.Joint, axis int, f float64) error {
	rec, err := w.record(j)
	if err != nil {
		return err
	}
	if rec.loop != nil || axis < 0 || axis >= rec.mobod.NumQ() {
		return fmt.Errorf("%w: joint %q axis %d", scene.ErrBadAxis, j.Name, axis)
	}
	w.sys.ApplyMobilityForce(rec.mobod.Index(), axis, rec.sign()*f)
	return nil
}

// JointWrench reports the force the joint's mobilizer exerts on the child
// link, about the joint origin. Loop constraints report zero.
func (w *World) JointWrench(j *scene.Joint) (geom.Wrench, error) {
	rec, err := w.record(j)
	if err != nil {
		return geom.Wrench{}, err
	}
	if rec.loop != nil {
		return geom.Wrench{}, nil
	}
	if !w.initialized {
		return geom.Wrench{}, backend.ErrNotInitialized
	}
	if w.reactions == nil {
		if w.reactions, err = w.sys.MobilizerReactions(w.stepper.State()); err != nil {
			return geom.Wrench{}, err
		}
	}
	r, err := w.realized()
	if err != nil {
		return geom.Wrench{}, err
	}

	f := w.reactions[rec.mobod.Index()]
	childBody := rec.mobod.Index()
	if rec.reversed {
		// the mobilizer carries the parent; the child feels the reaction
		f = f.Scale(-1)
		childBody = rec.mobod.Parent()
	}
	origin := r.BodyTransform(childBody).Apply(rec.xCB.P)
	return convert.SpatialToWrench(f, origin), nil
}

func (w *World) ApplyLinkForce(l *scene.Link, force, point mgl64.Vec3) error {
	b, err := w.master(l)
	if err != nil {
		return err
	}
	w.sys.ApplyBodyForce(b, force, point)
	return nil
}

func (w *World) ApplyLinkTorque(l *scene.Link, torque mgl64.Vec3) error {
	b, err := w.master(l)
	if err != nil {
		return err
	}
	w.sys.ApplyBodyTorque(b, torque)
	return nil
}

func (w *World) ClearForces() { w.sys.ClearForces() }

func negate(v []float64) {
	for i := range v {
		v[i] = -v[i]
	}
}

func negated(v []float64) []float64 {
	out := append([]float64(nil), v...)
	negate(out)
	return out
}

var _ backend.World = (*World)(nil)
