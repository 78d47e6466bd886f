// Package geom holds the engine-neutral math types shared by the scene
// description and every backend: poses, velocities, wrenches and colors.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a rigid transform: rotate by Rot, then translate by Pos.
type Pose struct {
	Pos mgl64.Vec3
	Rot mgl64.Quat
}

func Identity() Pose {
	return Pose{Rot: mgl64.QuatIdent()}
}

// NewPose builds a pose from a position and roll/pitch/yaw angles
// (extrinsic X, then Y, then Z).
func NewPose(x, y, z, roll, pitch, yaw float64) Pose {
	return Pose{Pos: mgl64.Vec3{x, y, z}, Rot: EulerToQuat(roll, pitch, yaw)}
}

func EulerToQuat(roll, pitch, yaw float64) mgl64.Quat {
	qz := mgl64.QuatRotate(yaw, mgl64.Vec3{0, 0, 1})
	qy := mgl64.QuatRotate(pitch, mgl64.Vec3{0, 1, 0})
	qx := mgl64.QuatRotate(roll, mgl64.Vec3{1, 0, 0})
	return qz.Mul(qy).Mul(qx).Normalize()
}

// Euler returns roll, pitch and yaw matching EulerToQuat.
func (p Pose) Euler() (roll, pitch, yaw float64) {
	q := p.Rot.Normalize()
	w, x, y, z := q.W, q.V[0], q.V[1], q.V[2]

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	sp := 2 * (w*y - z*x)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return
}

// Mul composes p then q, so p.Mul(q).Apply(v) == p.Apply(q.Apply(v)).
func (p Pose) Mul(q Pose) Pose {
	return Pose{
		Pos: p.Pos.Add(p.Rot.Rotate(q.Pos)),
		Rot: p.Rot.Mul(q.Rot).Normalize(),
	}
}

func (p Pose) Inverse() Pose {
	inv := p.Rot.Conjugate()
	return Pose{Pos: inv.Rotate(p.Pos).Mul(-1), Rot: inv}
}

// Apply maps a point from the pose's frame into the parent frame.
func (p Pose) Apply(v mgl64.Vec3) mgl64.Vec3 {
	return p.Rot.Rotate(v).Add(p.Pos)
}

// ApproxEqual compares positions and orientations, treating q and -q as equal.
func (p Pose) ApproxEqual(o Pose, eps float64) bool {
	if !p.Pos.ApproxEqualThreshold(o.Pos, eps) {
		return false
	}
	return math.Abs(math.Abs(p.Rot.Dot(o.Rot))-1) <= eps
}

// Velocity is a spatial velocity of a body frame origin, expressed in world.
type Velocity struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

// Wrench is a force/torque pair.
type Wrench struct {
	Force  mgl64.Vec3
	Torque mgl64.Vec3
}

// Color is RGBA with each channel in [0, 1].
type Color struct {
	R, G, B, A float64
}

func (c Color) Clamp() Color {
	return Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B), A: clamp01(c.A)}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
