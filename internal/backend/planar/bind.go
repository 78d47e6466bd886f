package planar

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp/v2"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/convert"
	"github.com/san-kum/rigidsim/internal/graph"
	"github.com/san-kum/rigidsim/internal/scene"
)

const (
	// minMass stands in for a massless dynamic link.
	minMass = 1e-3
	// planeReach is the half length of the segment that stands in for a
	// plane, and planeRadius its thickness.
	planeReach  = 1e3
	planeRadius = 0.05
)

// BindModel adds every link of m as a body and every joint the graph kept
// as solver constraints. Loop joints are bound like any other joint.
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
	var group uint
	if !m.Static && !m.SelfCollide {
		w.groups++
		group = w.groups
	}
	for _, l := range m.Links {
		w.addBody(l, m.Static, group)
	}
	if m.Static {
		return nil
	}

	for _, mob := range g.Mobilizers {
		if mob.AddedBase {
			continue
		}
		if err := w.bindJoint(mob.Joint); err != nil {
			w.log.Errorf("%v", err)
		}
	}
	for _, loop := range g.Loops {
		if err := w.bindJoint(loop.Joint); err != nil {
			w.log.Errorf("%v", err)
		}
	}
	if n := g.NumSlaves() + len(g.Loops); n > 0 {
		w.log.Debugf("model [%s]: %d loop joints bound as constraints", m.Name, n)
	}
	return nil
}

func (w *World) addBody(l *scene.Link, static bool, group uint) {
	pose := l.DefaultWorldPose()
	b := &body{link: l, depth: pose.Pos[1], static: static, pose: pose}
	if !static {
		mass := l.Inertial.Mass
		if mass <= 0 {
			w.log.Warnf("link [%s] has no mass, using %g", l.Name, minMass)
			mass = minMass
		}
		moment := l.Inertial.Inertia.At(1, 1)
		if moment <= 0 {
			moment = cp.MomentForCircle(mass, 0, 0.05, cp.Vector{})
		}
		if l.Inertial.Com != (mgl64.Vec3{}) {
			w.log.Warnf("link [%s]: centre of mass offset is ignored in the plane", l.Name)
		}
		b.b = w.space.AddBody(cp.NewBody(mass, moment))
		pos, angle := convert.PoseToPlanar(pose)
		b.b.SetPosition(pos)
		b.b.SetAngle(angle)
	}

	l.SetMaster(scene.BodyHandle{Backend: scene.PlanarBackend, Index: len(w.bodies)})
	w.bodies = append(w.bodies, b)
	w.byLink[l] = b
	w.addCollisions(b, group)
}

// solverBody is the body a link's shapes and constraints attach to.
func (w *World) solverBody(b *body) *cp.Body {
	if b == nil || b.static {
		return w.space.StaticBody
	}
	return b.b
}

func (w *World) addCollisions(b *body, group uint) {
	l := b.link
	if len(l.Collisions) == 0 {
		return
	}
	results := backend.Tessellate(w.opts.Tessellator, l)
	target := w.solverBody(b)
	for i, c := range l.Collisions {
		if err := c.Shape.Validate(); err != nil {
			w.log.Errorf("collision [%s] of link [%s]: %v", c.Name, l.Name, err)
			continue
		}
		pose := c.Pose
		if b.static {
			pose = b.pose.Mul(c.Pose)
		}
		off, angle := convert.PoseToPlanar(pose)

		var shape *cp.Shape
		switch c.Shape.Kind {
		case scene.PlaneShape:
			n := convert.VecToPlanar(pose.Rot.Rotate(c.Shape.Normal.Normalize()))
			if n.Length() < 0.5 {
				w.log.Warnf("collision [%s] of link [%s]: plane is parallel to the simulated plane, skipping", c.Name, l.Name)
				continue
			}
			n = n.Normalize()
			t := n.Perp()
			center := off.Sub(n.Mult(planeRadius))
			shape = cp.NewSegment(target, center.Sub(t.Mult(planeReach)), center.Add(t.Mult(planeReach)), planeRadius)
		case scene.SphereShape:
			shape = cp.NewCircle(target, c.Shape.Radius, off)
		case scene.BoxShape:
			shape = cp.NewPolyShape(target, 4, rectangle(c.Shape.Size[0]/2, c.Shape.Size[2]/2), cp.NewTransformRigid(off, angle), 0)
		case scene.CylinderShape:
			axis := pose.Rot.Rotate(mgl64.Vec3{0, 0, 1})
			if math.Abs(axis[1]) > 0.5 {
				shape = cp.NewCircle(target, c.Shape.Radius, off)
				break
			}
			a := convert.VecToPlanar(axis)
			shape = cp.NewPolyShape(target, 4, rectangle(c.Shape.Length/2, c.Shape.Radius), cp.NewTransformRigid(off, math.Atan2(a.Y, a.X)), 0)
		default:
			if results[i].Err != nil {
				w.log.Errorf("collision [%s] of link [%s]: %v", c.Name, l.Name, results[i].Err)
				continue
			}
			verts := results[i].Mesh.Vertices
			if len(verts) < 3 {
				w.log.Errorf("collision [%s] of link [%s]: %v has too few vertices", c.Name, l.Name, c.Shape.Kind)
				continue
			}
			pts := make([]cp.Vector, len(verts))
			for k, v := range verts {
				pts[k] = convert.VecToPlanar(pose.Apply(v))
			}
			shape = cp.NewPolyShape(target, len(pts), pts, cp.NewTransformIdentity(), 0)
		}

		mat := backend.Material(c, w.opts.Material)
		shape.SetFriction(mat.DynamicFriction)
		shape.SetElasticity(0)
		g := group
		if c.SelfCollide || l.SelfCollide {
			g = 0
		}
		shape.SetFilter(cp.NewShapeFilter(g, cp.ALL_CATEGORIES, cp.ALL_CATEGORIES))
		w.space.AddShape(shape)
	}
}

func rectangle(hw, hh float64) []cp.Vector {
	return []cp.Vector{{X: -hw, Y: -hh}, {X: hw, Y: -hh}, {X: hw, Y: hh}, {X: -hw, Y: hh}}
}
