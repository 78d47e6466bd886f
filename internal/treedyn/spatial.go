package treedyn

import (
	"github.com/go-gl/mathgl/mgl64"
)

// SpatialVec is a motion or force vector measured at the world origin and
// expressed in world axes. For motion W is angular and V linear velocity of
// the body point coincident with the origin; for force W is the moment
// about the origin and V the force.
type SpatialVec struct {
	W Vec3
	V Vec3
}

func (a SpatialVec) Add(b SpatialVec) SpatialVec {
	return SpatialVec{W: a.W.Add(b.W), V: a.V.Add(b.V)}
}

func (a SpatialVec) Sub(b SpatialVec) SpatialVec {
	return SpatialVec{W: a.W.Sub(b.W), V: a.V.Sub(b.V)}
}

func (a SpatialVec) Scale(s float64) SpatialVec {
	return SpatialVec{W: a.W.Mul(s), V: a.V.Mul(s)}
}

// Dot pairs a motion vector with a force vector (power).
func (a SpatialVec) Dot(f SpatialVec) float64 {
	return a.W.Dot(f.W) + a.V.Dot(f.V)
}

// CrossMotion is v ×m m.
func CrossMotion(v, m SpatialVec) SpatialVec {
	return SpatialVec{
		W: v.W.Cross(m.W),
		V: v.W.Cross(m.V).Add(v.V.Cross(m.W)),
	}
}

// CrossForce is v ×* f.
func CrossForce(v, f SpatialVec) SpatialVec {
	return SpatialVec{
		W: v.W.Cross(f.W).Add(v.V.Cross(f.V)),
		V: v.W.Cross(f.V),
	}
}

// ForceAtPoint returns the spatial force of f applied at world point p.
func ForceAtPoint(f, p Vec3) SpatialVec {
	return SpatialVec{W: p.Cross(f), V: f}
}

// PointVelocity returns the linear velocity of the body point at p.
func (a SpatialVec) PointVelocity(p Vec3) Vec3 {
	return a.V.Add(a.W.Cross(p))
}

// MomentAbout re-expresses the moment about the origin as one about p.
func (a SpatialVec) MomentAbout(p Vec3) Vec3 {
	return a.W.Sub(p.Cross(a.V))
}

// MassProperties are given in the body frame: Com is the centre of mass
// location and Inertia is taken about the centre of mass.
type MassProperties struct {
	Mass    float64
	Com     Vec3
	Inertia mgl64.Mat3
}

func (m MassProperties) Scaled(f float64) MassProperties {
	return MassProperties{Mass: m.Mass * f, Com: m.Com, Inertia: m.Inertia.Mul(f)}
}

// spatialInertia is a body's inertia in world axes, about its centre of mass.
type spatialInertia struct {
	mass float64
	com  Vec3
	ic   mgl64.Mat3
}

func worldInertia(m MassProperties, x Transform) spatialInertia {
	r := x.R.Mat3()
	return spatialInertia{
		mass: m.Mass,
		com:  x.Apply(m.Com),
		ic:   r.Mul3(m.Inertia).Mul3(r.Transpose()),
	}
}

// mul returns the momentum I·v.
func (in spatialInertia) mul(v SpatialVec) SpatialVec {
	lin := v.V.Add(v.W.Cross(in.com)).Mul(in.mass)
	ang := in.ic.Mul3x1(v.W).Add(in.com.Cross(lin))
	return SpatialVec{W: ang, V: lin}
}
