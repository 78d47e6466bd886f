package planar

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp/v2"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/convert"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/jointtype"
	"github.com/san-kum/rigidsim/internal/scene"
)

// grooveReach bounds an unlimited slider.
const grooveReach = 1e3

type form int

const (
	formPivot form = iota
	formSlider
	formWeld
	formFree
)

// joint is the constraint set of one scene joint. Axis 0 drives the
// solver; further axes are stored but have no effect in the plane.
type joint struct {
	w      *World
	j      *scene.Joint
	form   form
	parent *body
	child  *body

	// sign is +1 when the pivot axis points along world +Y.
	sign float64
	// rel0 is the relative cp angle at bind time.
	rel0 float64
	// anchors are in the solver frame of each body; axisP is the slider
	// direction in the parent frame.
	anchorP, anchorC cp.Vector
	axisP            cp.Vector

	limit  *cp.RotaryLimitJoint
	spring *cp.DampedRotarySpring
	groove *cp.GrooveJoint

	axes   []scene.Axis
	effort float64
}

func (w *World) bindJoint(sj *scene.Joint) error {
	child, ok := w.byLink[sj.Child]
	if !ok {
		return fmt.Errorf("joint [%s]: child link [%s] has no body", sj.Name, sj.Child.Name)
	}
	var parent *body
	if sj.Parent != nil {
		if parent, ok = w.byLink[sj.Parent]; !ok {
			return fmt.Errorf("joint [%s]: parent link [%s] has no body", sj.Name, sj.Parent.Name)
		}
	}

	j := &joint{w: w, j: sj, parent: parent, child: child, sign: 1, axes: append([]scene.Axis(nil), sj.Axes...)}
	switch sj.Kind {
	case jointtype.Revolute, jointtype.Ball:
		j.form = formPivot
	case jointtype.Universal, jointtype.Revolute2:
		w.log.Warnf("joint [%s] of type [%v] keeps only its rotation in the plane", sj.Name, sj.Kind)
		j.form = formPivot
	case jointtype.Prismatic:
		j.form = formSlider
	case jointtype.Fixed:
		j.form = formWeld
	case jointtype.Free:
		j.form = formFree
	default:
		return fmt.Errorf("%w: joint [%s] type [%v] in the plane", backend.ErrUnknownJointKind, sj.Name, sj.Kind)
	}

	pb, cb := w.solverBody(parent), w.solverBody(child)
	frame := sj.Child.DefaultWorldPose().Mul(sj.Pose)
	origin := convert.VecToPlanar(frame.Pos)
	j.anchorP = pb.WorldToLocal(origin)
	j.anchorC = cb.WorldToLocal(origin)
	j.rel0 = cb.Angle() - pb.Angle()

	var axis mgl64.Vec3
	if len(sj.Axes) > 0 {
		axis = frame.Rot.Rotate(sj.GlobalAxis(0))
	}

	var cons []*cp.Constraint
	switch j.form {
	case formPivot:
		if sj.Kind != jointtype.Ball {
			if math.Abs(axis[1]) < 1-1e-6 {
				w.log.Warnf("joint [%s] axis %v is not normal to the plane, using its Y component", sj.Name, axis)
			}
			if axis[1] < 0 {
				j.sign = -1
			}
		}
		cons = append(cons, cp.NewPivotJoint(pb, cb, origin))
		lim := cp.NewRotaryLimitJoint(pb, cb, 0, 0)
		spr := cp.NewDampedRotarySpring(pb, cb, 0, 0, 0)
		j.limit = lim.Class.(*cp.RotaryLimitJoint)
		j.spring = spr.Class.(*cp.DampedRotarySpring)
		cons = append(cons, lim, spr)
	case formSlider:
		dir := convert.VecToPlanar(axis)
		if dir.Length() < 1e-9 {
			return fmt.Errorf("joint [%s]: prismatic axis %v is normal to the plane", sj.Name, axis)
		}
		// rotate the world direction into the parent frame
		j.axisP = dir.Normalize().Unrotate(pb.Rotation())
		groove := cp.NewGrooveJoint(pb, cb, j.anchorP, j.anchorP.Add(j.axisP), j.anchorC)
		j.groove = groove.Class.(*cp.GrooveJoint)
		cons = append(cons, groove, cp.NewGearJoint(pb, cb, j.rel0, 1))
	case formWeld:
		cons = append(cons, cp.NewPivotJoint(pb, cb, origin), cp.NewGearJoint(pb, cb, j.rel0, 1))
	}
	for _, c := range cons {
		c.SetCollideBodies(false)
		w.space.AddConstraint(c)
	}
	j.sync()

	sj.Bind(scene.JointHandle{Backend: scene.PlanarBackend, Index: len(w.joints)}, j)
	w.joints = append(w.joints, j)
	return nil
}

// relRange maps joint limits onto the cp relative angle.
func (j *joint) relRange(lo, hi float64) (float64, float64) {
	a, b := j.rel0-j.sign*lo, j.rel0-j.sign*hi
	return math.Min(a, b), math.Max(a, b)
}

// sync pushes axis 0 into the solver elements.
func (j *joint) sync() {
	ax := scene.Axis{Lower: -math.MaxFloat64, Upper: math.MaxFloat64}
	if len(j.axes) > 0 {
		ax = j.axes[0]
	}
	switch j.form {
	case formPivot:
		j.limit.Min, j.limit.Max = j.relRange(ax.Lower, ax.Upper)
		j.spring.Stiffness = ax.SpringStiffness
		j.spring.Damping = ax.Damping
		j.spring.RestAngle = j.sign*ax.SpringReference - j.rel0
	case formSlider:
		lo, hi := math.Max(ax.Lower, -grooveReach), math.Min(ax.Upper, grooveReach)
		j.groove.GrooveA = j.anchorP.Add(j.axisP.Mult(lo))
		j.groove.GrooveB = j.anchorP.Add(j.axisP.Mult(hi))
		j.groove.GrooveN = j.axisP.Perp()
	}
}

func (j *joint) bodies() (*cp.Body, *cp.Body) {
	return j.w.solverBody(j.parent), j.w.solverBody(j.child)
}

func (j *joint) coordinates() (q, u []float64) {
	pb, cb := j.bodies()
	switch j.form {
	case formPivot:
		return []float64{-j.sign * (cb.Angle() - pb.Angle() - j.rel0)},
			[]float64{-j.sign * (cb.AngularVelocity() - pb.AngularVelocity())}
	case formSlider:
		pa, ca := pb.LocalToWorld(j.anchorP), cb.LocalToWorld(j.anchorC)
		dir := j.axisP.Rotate(pb.Rotation())
		rate := cb.VelocityAtWorldPoint(ca).Sub(pb.VelocityAtWorldPoint(ca))
		return []float64{ca.Sub(pa).Dot(dir)}, []float64{rate.Dot(dir)}
	}
	return []float64{}, []float64{}
}

// setCoordinates moves the child so the joint reads q and u, keeping the
// parent where it is.
func (j *joint) setCoordinates(q, u []float64) error {
	if j.child.static {
		return nil
	}
	pb, cb := j.bodies()
	switch j.form {
	case formPivot:
		if len(q) != 1 || len(u) != 1 {
			return fmt.Errorf("%w: joint %q takes 1 coordinate", scene.ErrBadAxis, j.j.Name)
		}
		origin := pb.LocalToWorld(j.anchorP)
		cb.SetAngle(pb.Angle() + j.rel0 - j.sign*q[0])
		cb.SetPosition(origin.Sub(j.anchorC.Rotate(cb.Rotation())))
		w := pb.AngularVelocity() - j.sign*u[0]
		cb.SetAngularVelocity(w)
		cb.SetVelocityVector(pb.VelocityAtWorldPoint(origin).Add(cb.Position().Sub(origin).Perp().Mult(w)))
	case formSlider:
		if len(q) != 1 || len(u) != 1 {
			return fmt.Errorf("%w: joint %q takes 1 coordinate", scene.ErrBadAxis, j.j.Name)
		}
		dir := j.axisP.Rotate(pb.Rotation())
		origin := pb.LocalToWorld(j.anchorP).Add(dir.Mult(q[0]))
		cb.SetAngle(pb.Angle() + j.rel0)
		cb.SetPosition(origin.Sub(j.anchorC.Rotate(cb.Rotation())))
		cb.SetAngularVelocity(pb.AngularVelocity())
		cb.SetVelocityVector(pb.VelocityAtWorldPoint(origin).Add(dir.Mult(u[0])))
	}
	return nil
}

// applyForces adds the actuation and, for sliders, the spring and damper.
// Pivot springs are solver constraints.
func (j *joint) applyForces() {
	if len(j.axes) == 0 {
		return
	}
	pb, cb := j.bodies()
	parentDynamic := j.parent != nil && !j.parent.static
	switch j.form {
	case formPivot:
		if j.effort == 0 {
			return
		}
		t := -j.sign * j.effort
		cb.SetTorque(cb.Torque() + t)
		if parentDynamic {
			pb.SetTorque(pb.Torque() - t)
		}
	case formSlider:
		ax := j.axes[0]
		q, u := j.coordinates()
		f := j.effort - ax.SpringStiffness*(q[0]-ax.SpringReference) - ax.Damping*u[0]
		if f == 0 {
			return
		}
		dir := j.axisP.Rotate(pb.Rotation())
		at := cb.LocalToWorld(j.anchorC)
		cb.ApplyForceAtWorldPoint(dir.Mult(f), at)
		if parentDynamic {
			pb.ApplyForceAtWorldPoint(dir.Mult(-f), at)
		}
	}
}

// wrench estimates the force the joint puts on the child from the child's
// momentum change over the last internal step. Everything but gravity and
// the applied link forces is attributed to the joint.
func (j *joint) wrench() geom.Wrench {
	c := j.child
	if c.static {
		return geom.Wrench{}
	}
	b := c.b
	var acc cp.Vector
	var alpha float64
	if dt := j.w.lastDt; dt > 0 {
		acc = b.Velocity().Sub(c.prevV).Mult(1 / dt)
		alpha = (b.AngularVelocity() - c.prevW) / dt
	}
	g := convert.VecToPlanar(j.w.gravity)

	var applied cp.Vector
	appliedTorque := c.torque
	for _, pf := range c.point {
		applied = applied.Add(pf.f)
		appliedTorque += pf.p.Sub(b.Position()).Cross(pf.f)
	}
	f := acc.Sub(g).Mult(b.Mass()).Sub(applied)
	couple := b.Moment()*alpha - appliedTorque

	force := convert.VecFromPlanar(f, 0)
	com := convert.VecFromPlanar(b.Position(), c.depth)
	origin := convert.VecFromPlanar(b.LocalToWorld(j.anchorC), c.depth)
	torque := mgl64.Vec3{0, -couple, 0}.Add(com.Sub(origin).Cross(force))
	return geom.Wrench{Force: force, Torque: torque}
}

func (j *joint) valid(axis int) bool { return axis >= 0 && axis < len(j.axes) }

func (j *joint) Damping(axis int) float64 {
	if !j.valid(axis) {
		return 0
	}
	return j.axes[axis].Damping
}

func (j *joint) SetDamping(axis int, v float64) {
	if j.valid(axis) {
		j.axes[axis].Damping = v
		j.sync()
	}
}

func (j *joint) SpringStiffness(axis int) float64 {
	if !j.valid(axis) {
		return 0
	}
	return j.axes[axis].SpringStiffness
}

func (j *joint) SetSpringStiffness(axis int, v float64) {
	if j.valid(axis) {
		j.axes[axis].SpringStiffness = v
		j.sync()
	}
}

func (j *joint) SpringReference(axis int) float64 {
	if !j.valid(axis) {
		return 0
	}
	return j.axes[axis].SpringReference
}

func (j *joint) SetSpringReference(axis int, v float64) {
	if j.valid(axis) {
		j.axes[axis].SpringReference = v
		j.sync()
	}
}

func (j *joint) Limits(axis int) (float64, float64) {
	if !j.valid(axis) {
		return 0, 0
	}
	return j.axes[axis].Lower, j.axes[axis].Upper
}

func (j *joint) SetLimits(axis int, lower, upper float64) {
	if j.valid(axis) {
		j.axes[axis].Lower, j.axes[axis].Upper = lower, upper
		j.sync()
	}
}

var _ scene.AxisBinding = (*joint)(nil)

func (w *World) record(sj *scene.Joint) (*joint, error) {
	h, ok := sj.Handle()
	if !ok || h.Backend != scene.PlanarBackend || h.Index < 0 || h.Index >= len(w.joints) || w.joints[h.Index].j != sj {
		return nil, fmt.Errorf("%w: joint %q", backend.ErrNotBound, sj.Name)
	}
	return w.joints[h.Index], nil
}

func (w *World) JointState(sj *scene.Joint) ([]float64, []float64, error) {
	j, err := w.record(sj)
	if err != nil {
		return nil, nil, err
	}
	if !w.initialized {
		return nil, nil, backend.ErrNotInitialized
	}
	q, u := j.coordinates()
	return q, u, nil
}

func (w *World) SetJointState(sj *scene.Joint, q, u []float64) error {
	j, err := w.record(sj)
	if err != nil {
		return err
	}
	if !w.initialized {
		return backend.ErrNotInitialized
	}
	return j.setCoordinates(q, u)
}

func (w *World) SetJointForce(sj *scene.Joint, axis int, f float64) error {
	j, err := w.record(sj)
	if err != nil {
		return err
	}
	if axis != 0 || !j.valid(axis) || (j.form != formPivot && j.form != formSlider) {
		return fmt.Errorf("%w: joint %q axis %d", scene.ErrBadAxis, sj.Name, axis)
	}
	j.effort += f
	return nil
}

func (w *World) JointWrench(sj *scene.Joint) (geom.Wrench, error) {
	j, err := w.record(sj)
	if err != nil {
		return geom.Wrench{}, err
	}
	if !w.initialized {
		return geom.Wrench{}, backend.ErrNotInitialized
	}
	return j.wrench(), nil
}
