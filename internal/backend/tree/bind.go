package tree

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/convert"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/graph"
	"github.com/san-kum/rigidsim/internal/jointtype"
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/treedyn"
)

// zeroPitchSubstitute replaces a zero screw pitch, which would be a slider.
const zeroPitchSubstitute = 1e6

var primitives = map[jointtype.Primitive]treedyn.MobilizerKind{
	jointtype.PrimPin:       treedyn.Pin,
	jointtype.PrimSlider:    treedyn.Slider,
	jointtype.PrimScrew:     treedyn.Screw,
	jointtype.PrimUniversal: treedyn.Universal,
	jointtype.PrimBall:      treedyn.Ball,
	jointtype.PrimFree:      treedyn.Free,
	jointtype.PrimWeld:      treedyn.Weld,
}

// BindModel adds the mobilizers of g to the system. A static model puts its
// collisions on ground and creates no bodies.
func (w *World) BindModel(m *scene.Model, g *graph.Graph) error {
	if w.initialized {
		return &backend.BindError{Model: m.Name, Wrapped: backend.ErrInitialized}
	}
	if err := backend.CheckChildren(m); err != nil {
		return err
	}
	if g == nil || g.Model != m {
		return &backend.BindError{Model: m.Name, Wrapped: fmt.Errorf("graph was built for another model")}
	}

	w.models = append(w.models, m)
	if g.Static {
		w.bindStatic(m)
		return nil
	}

	clique := w.sys.NewClique()
	type slave struct {
		link *scene.Link
		body treedyn.MobodIndex
	}
	var slaves []slave

	for _, mob := range g.Mobilizers {
		parent := treedyn.Ground
		if mob.Inboard != nil {
			p, ok := w.masters[mob.Inboard]
			if !ok {
				w.log.Errorf("link [%s] is not mobilized, skipping mobilizer to [%s]", mob.Inboard.Name, mob.Outboard.Name)
				continue
			}
			parent = p
		}

		mass := massProperties(mob.Outboard.Inertial.Split(mob.Fragments))
		var body treedyn.MobilizedBody
		if mob.AddedBase {
			b, err := w.sys.AddMobilizedBody(parent, treedyn.MobilizerSpec{Kind: treedyn.Free}, treedyn.TransformIdentity(), treedyn.TransformIdentity(), mass)
			if err != nil {
				return &backend.BindError{Model: m.Name, Element: mob.Outboard.Name, Wrapped: err}
			}
			if err := w.sys.SetDefaultTransform(b.Index(), convert.PoseToTransform(mob.Outboard.DefaultWorldPose())); err != nil {
				return &backend.BindError{Model: m.Name, Element: mob.Outboard.Name, Wrapped: err}
			}
			body = b
			w.bases[mob.Outboard] = true
		} else {
			rec, err := w.bindJoint(mob, parent, mass)
			if err != nil {
				w.log.Errorf("%v", err)
				continue
			}
			body = rec.mobod
		}

		h := scene.BodyHandle{Backend: scene.TreeBackend, Index: int(body.Index())}
		if mob.Slave {
			mob.Outboard.AddSlave(h)
			slaves = append(slaves, slave{link: mob.Outboard, body: body.Index()})
			continue
		}
		mob.Outboard.SetMaster(h)
		w.masters[mob.Outboard] = body.Index()
		w.addCollisions(mob.Outboard, body.Index(), clique, false)
	}

	for _, loop := range g.Loops {
		w.bindLoop(loop)
	}

	for _, s := range slaves {
		master, ok := w.masters[s.link]
		if !ok {
			w.log.Errorf("link [%s] has a slave but no master body", s.link.Name)
			continue
		}
		w.sys.AddWeld(master, s.body, treedyn.TransformIdentity(), treedyn.TransformIdentity())
		w.welds++
	}

	for _, l := range m.Links {
		if _, ok := l.Master(); !ok {
			w.log.Errorf("link [%s] of model [%s] was left unconnected", l.Name, m.Name)
		}
	}
	return nil
}

func (w *World) bindStatic(m *scene.Model) {
	for _, l := range m.Links {
		l.SetMaster(scene.BodyHandle{Backend: scene.TreeBackend, Index: int(treedyn.Ground)})
		w.static[l] = l.DefaultWorldPose()
		w.addCollisions(l, treedyn.Ground, 0, true)
	}
}

// jointFrames returns X_PA, the joint frame in the parent link (or world),
// and X_CB, the joint frame in the child link, at the model's default pose.
func jointFrames(j *scene.Joint) (xPA, xCB treedyn.Transform) {
	xCB = convert.PoseToTransform(j.Pose)
	childInWorld := j.Child.DefaultWorldPose()
	parentInWorld := geom.Identity()
	if j.Parent != nil {
		parentInWorld = j.Parent.DefaultWorldPose()
	}
	xPA = convert.PoseToTransform(parentInWorld.Inverse().Mul(childInWorld)).Mul(xCB)
	return xPA, xCB
}

// alignment rotates the native axes of the primitive onto the joint axes.
func alignment(j *scene.Joint, info jointtype.Info) treedyn.Rotation {
	switch info.Convention {
	case jointtype.NativeZ:
		return treedyn.RotationAligning(j.GlobalAxis(0), treedyn.ZAxis)
	case jointtype.NativeX:
		return treedyn.RotationAligning(j.GlobalAxis(0), treedyn.XAxis)
	case jointtype.NativeXY:
		return treedyn.RotationFromXY(j.GlobalAxis(0), j.GlobalAxis(1))
	}
	return treedyn.RotationIdentity()
}

func (w *World) bindJoint(mob graph.Mobilizer, parent treedyn.MobodIndex, mass treedyn.MassProperties) (*jointRecord, error) {
	j := mob.Joint
	info, ok := jointtype.Lookup(mob.Kind)
	kind, known := primitives[info.Primitive]
	if !ok || !known {
		return nil, fmt.Errorf("%w: joint [%s] type [%v]", backend.ErrUnknownJointKind, j.Name, mob.Kind)
	}

	xPA, xCB := jointFrames(j)
	xIF0, xOM0 := xPA, xCB
	if mob.Reversed {
		xIF0, xOM0 = xCB, xPA
	}
	r := alignment(j, info)
	xIF := treedyn.NewTransform(xIF0.R.Mul(r), xIF0.P)
	xOM := treedyn.NewTransform(xOM0.R.Mul(r), xOM0.P)

	spec := treedyn.MobilizerSpec{Kind: kind, Reversed: mob.Reversed}
	if kind == treedyn.Screw {
		pitch := j.ThreadPitch
		if pitch == 0 {
			w.log.Errorf("thread pitch of joint [%s] should not be zero (joint is a slider?), using pitch = %g", j.Name, zeroPitchSubstitute)
			pitch = zeroPitchSubstitute
		}
		spec.Pitch = -1 / pitch
	}

	body, err := w.sys.AddMobilizedBody(parent, spec, xIF, xOM, mass)
	if err != nil {
		return nil, fmt.Errorf("joint [%s]: %w", j.Name, err)
	}

	rec := &jointRecord{joint: j, mobod: body, reversed: mob.Reversed, xCB: xCB}
	for i := range j.Axes {
		if i >= body.NumQ() {
			break
		}
		ax := j.Axes[i]
		low, high := ax.Lower, ax.Upper
		if rec.sign() < 0 {
			low, high = -high, -low
		}
		rec.stops = append(rec.stops, w.sys.AddMobilityLinearStop(body.Index(), i, ax.StopStiffness, ax.StopDissipation, low, high))
		// dampers exist even at zero so damping can change while running
		rec.dampers = append(rec.dampers, w.sys.AddMobilityLinearDamper(body.Index(), i, ax.Damping))
		rec.springs = append(rec.springs, w.sys.AddMobilityLinearSpring(body.Index(), i, ax.SpringStiffness, rec.sign()*ax.SpringReference))
	}

	w.attach(j, rec)
	return rec, nil
}

func (w *World) attach(j *scene.Joint, rec *jointRecord) {
	h := scene.JointHandle{Backend: scene.TreeBackend, Index: len(w.joints), Reversed: rec.reversed}
	w.joints = append(w.joints, rec)
	j.Bind(h, rec)
}

func (w *World) bindLoop(loop graph.LoopConstraint) {
	j := loop.Joint
	pm, ok := w.masters[loop.Parent]
	if loop.Parent == nil {
		pm, ok = treedyn.Ground, true
	}
	cm, cok := w.masters[loop.Child]
	if !ok || !cok {
		w.log.Errorf("loop joint [%s] connects an unmobilized link, skipping", j.Name)
		return
	}
	xPA, xCB := jointFrames(j)
	var c *treedyn.WeldConstraint
	switch loop.Kind {
	case jointtype.Fixed:
		c = w.sys.AddWeld(pm, cm, xPA, xCB)
	case jointtype.Ball:
		c = w.sys.AddBallConstraint(pm, cm, xPA.P, xCB.P)
	default:
		w.log.Errorf("joint [%s] of type [%v] cannot close a loop as a constraint", j.Name, loop.Kind)
		return
	}
	w.attach(j, &jointRecord{joint: j, loop: c, xCB: xCB})
}

func (w *World) addCollisions(l *scene.Link, body treedyn.MobodIndex, clique int, static bool) {
	if len(l.Collisions) == 0 {
		return
	}
	results := backend.Tessellate(w.opts.Tessellator, l)
	selfCollide := l.SelfCollide || l.Model().SelfCollide
	for i, c := range l.Collisions {
		pose := c.Pose
		if static {
			pose = l.DefaultWorldPose().Mul(c.Pose)
		}
		xBS := convert.PoseToTransform(pose)

		var g treedyn.ContactGeometry
		switch {
		case c.Shape.Kind == scene.PlaneShape:
			g = treedyn.HalfSpace{}
			xBS = xBS.Mul(treedyn.NewTransform(treedyn.RotationAligning(c.Shape.Normal, treedyn.ZAxis), mgl64.Vec3{}))
		case c.Shape.Kind == scene.SphereShape && c.Shape.Radius > 0:
			g = treedyn.Sphere{Radius: c.Shape.Radius}
		case results[i].Err != nil:
			w.log.Errorf("collision [%s] of link [%s]: %v", c.Name, l.Name, results[i].Err)
			continue
		case results[i].Analytic:
			w.log.Errorf("collision [%s] of link [%s]: shape %v unimplemented", c.Name, l.Name, c.Shape.Kind)
			continue
		default:
			g = treedyn.TriangleMesh{Vertices: results[i].Mesh.Vertices, Faces: results[i].Mesh.Faces}
		}

		surf := treedyn.NewContactSurface(g, contactMaterial(backend.Material(c, w.opts.Material)), xBS)
		if !static && clique > 0 && !selfCollide && !c.SelfCollide {
			surf.JoinClique(clique)
		}
		w.sys.AddContactSurface(body, surf)
	}
}

func contactMaterial(m scene.ContactMaterial) treedyn.ContactMaterial {
	return treedyn.ContactMaterial{
		Stiffness:       m.Stiffness,
		Dissipation:     m.Dissipation,
		StaticFriction:  m.StaticFriction,
		DynamicFriction: m.DynamicFriction,
		ViscousFriction: m.ViscousFriction,
	}
}

func massProperties(in scene.Inertial) treedyn.MassProperties {
	return treedyn.MassProperties{Mass: in.Mass, Com: in.Com, Inertia: in.Inertia}
}
