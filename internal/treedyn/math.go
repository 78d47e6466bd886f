package treedyn

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type Vec3 = mgl64.Vec3

// CoordinateAxis names one of the three frame axes.
type CoordinateAxis int

const (
	XAxis CoordinateAxis = iota
	YAxis
	ZAxis
)

func (a CoordinateAxis) Unit() Vec3 {
	var v Vec3
	v[a] = 1
	return v
}

// Rotation is an orthonormal matrix whose columns are the axes of a child
// frame expressed in its parent.
type Rotation struct {
	m mgl64.Mat3
}

func RotationIdentity() Rotation {
	return Rotation{m: mgl64.Ident3()}
}

func RotationFromMat3(m mgl64.Mat3) Rotation {
	return Rotation{m: m}
}

// RotationAboutAxis returns a rotation by angle around a fixed coordinate axis.
func RotationAboutAxis(angle float64, axis CoordinateAxis) Rotation {
	c, s := math.Cos(angle), math.Sin(angle)
	switch axis {
	case XAxis:
		return Rotation{m: mgl64.Mat3{1, 0, 0, 0, c, s, 0, -s, c}}
	case YAxis:
		return Rotation{m: mgl64.Mat3{c, 0, -s, 0, 1, 0, s, 0, c}}
	default:
		return Rotation{m: mgl64.Mat3{c, s, 0, -s, c, 0, 0, 0, 1}}
	}
}

// RotationAligning returns a rotation whose given axis points along dir.
// The other two axes are an arbitrary right-handed completion.
func RotationAligning(dir Vec3, axis CoordinateAxis) Rotation {
	d := normalizeOr(dir, axis.Unit())
	p := perpendicular(d)
	q := d.Cross(p)
	switch axis {
	case XAxis:
		return Rotation{m: mgl64.Mat3FromCols(d, p, q)}
	case YAxis:
		return Rotation{m: mgl64.Mat3FromCols(q, d, p)}
	default:
		return Rotation{m: mgl64.Mat3FromCols(p, q, d)}
	}
}

// RotationFromXY builds a rotation with X along x and Y as close to y as
// orthogonality allows.
func RotationFromXY(x, y Vec3) Rotation {
	ex := normalizeOr(x, XAxis.Unit())
	ey := y.Sub(ex.Mul(y.Dot(ex)))
	if ey.Len() < 1e-9 {
		ey = perpendicular(ex)
	} else {
		ey = ey.Normalize()
	}
	ez := ex.Cross(ey)
	return Rotation{m: mgl64.Mat3FromCols(ex, ey, ez)}
}

func (r Rotation) Mat3() mgl64.Mat3 { return r.m }

func (r Rotation) Mul(o Rotation) Rotation {
	return Rotation{m: r.m.Mul3(o.m)}
}

func (r Rotation) Transpose() Rotation {
	return Rotation{m: r.m.Transpose()}
}

func (r Rotation) Apply(v Vec3) Vec3 {
	return r.m.Mul3x1(v)
}

func (r Rotation) Col(i CoordinateAxis) Vec3 {
	return r.m.Col(int(i))
}

// Vee extracts the small-angle rotation vector of r.
func (r Rotation) Vee() Vec3 {
	m := r.m
	v := Vec3{
		m.At(2, 1) - m.At(1, 2),
		m.At(0, 2) - m.At(2, 0),
		m.At(1, 0) - m.At(0, 1),
	}
	return v.Mul(0.5)
}

// Quaternion is stored scalar first: w, x, y, z.
type Quaternion [4]float64

func QuaternionIdentity() Quaternion { return Quaternion{1, 0, 0, 0} }

func RotationFromQuaternion(q Quaternion) Rotation {
	mq := mgl64.Quat{W: q[0], V: Vec3{q[1], q[2], q[3]}}.Normalize()
	return Rotation{m: mq.Mat4().Mat3()}
}

func (r Rotation) Quaternion() Quaternion {
	mq := mgl64.Mat4ToQuat(r.m.Mat4()).Normalize()
	if mq.W < 0 {
		mq = mq.Scale(-1)
	}
	return Quaternion{mq.W, mq.V[0], mq.V[1], mq.V[2]}
}

// Transform maps points from a child frame into its parent.
type Transform struct {
	R Rotation
	P Vec3
}

func TransformIdentity() Transform {
	return Transform{R: RotationIdentity()}
}

func NewTransform(r Rotation, p Vec3) Transform {
	return Transform{R: r, P: p}
}

func (t Transform) Mul(o Transform) Transform {
	return Transform{R: t.R.Mul(o.R), P: t.P.Add(t.R.Apply(o.P))}
}

func (t Transform) Inverse() Transform {
	rt := t.R.Transpose()
	return Transform{R: rt, P: rt.Apply(t.P).Mul(-1)}
}

func (t Transform) Apply(p Vec3) Vec3 {
	return t.R.Apply(p).Add(t.P)
}

func normalizeOr(v, fallback Vec3) Vec3 {
	if v.Len() < 1e-12 {
		return fallback
	}
	return v.Normalize()
}

func perpendicular(d Vec3) Vec3 {
	ref := Vec3{1, 0, 0}
	if math.Abs(d[0]) > 0.9 {
		ref = Vec3{0, 1, 0}
	}
	return d.Cross(ref).Normalize()
}
