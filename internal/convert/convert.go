// Package convert translates between the engine-neutral geom types and the
// native math types of each backend and of the terminal renderer.
package convert

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp/v2"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/treedyn"
)

// Tree backend

func QuatToRotation(q mgl64.Quat) treedyn.Rotation {
	return treedyn.RotationFromQuaternion(QuatToTree(q))
}

func RotationToQuat(r treedyn.Rotation) mgl64.Quat {
	return QuatFromTree(r.Quaternion())
}

func QuatToTree(q mgl64.Quat) treedyn.Quaternion {
	return treedyn.Quaternion{q.W, q.V[0], q.V[1], q.V[2]}
}

func QuatFromTree(q treedyn.Quaternion) mgl64.Quat {
	return mgl64.Quat{W: q[0], V: mgl64.Vec3{q[1], q[2], q[3]}}
}

func PoseToTransform(p geom.Pose) treedyn.Transform {
	return treedyn.NewTransform(QuatToRotation(p.Rot), p.Pos)
}

func TransformToPose(t treedyn.Transform) geom.Pose {
	return geom.Pose{Pos: t.P, Rot: RotationToQuat(t.R)}
}

// SpatialToWrench reports a spatial force as a force and the torque about
// point.
func SpatialToWrench(f treedyn.SpatialVec, point mgl64.Vec3) geom.Wrench {
	return geom.Wrench{Force: f.V, Torque: f.MomentAbout(point)}
}

// Planar backend. World X maps to cp X and world Z maps to cp Y, so the
// simulated plane is the vertical XZ plane. A rotation by θ about world +Y
// is a cp angle of -θ.

func VecToPlanar(v mgl64.Vec3) cp.Vector {
	return cp.Vector{X: v[0], Y: v[2]}
}

// VecFromPlanar lifts a cp vector back into world space at depth y.
func VecFromPlanar(v cp.Vector, y float64) mgl64.Vec3 {
	return mgl64.Vec3{v.X, y, v.Y}
}

// QuatToPlanarAngle returns the cp angle of the twist of q about world Y.
// Any swing out of the plane is dropped.
func QuatToPlanarAngle(q mgl64.Quat) float64 {
	return -2 * math.Atan2(q.V[1], q.W)
}

func PlanarAngleToQuat(a float64) mgl64.Quat {
	return mgl64.QuatRotate(-a, mgl64.Vec3{0, 1, 0})
}

func PoseToPlanar(p geom.Pose) (cp.Vector, float64) {
	return VecToPlanar(p.Pos), QuatToPlanarAngle(p.Rot)
}

func PoseFromPlanar(pos cp.Vector, angle, y float64) geom.Pose {
	return geom.Pose{Pos: VecFromPlanar(pos, y), Rot: PlanarAngleToQuat(angle)}
}

// Renderer

// ColorToLipgloss renders c as a #rrggbb terminal color. Alpha is dropped.
func ColorToLipgloss(c geom.Color) lipgloss.Color {
	c = c.Clamp()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", channel(c.R), channel(c.G), channel(c.B)))
}

// ColorFromLipgloss parses a #rrggbb color. The result is opaque.
func ColorFromLipgloss(c lipgloss.Color) (geom.Color, error) {
	s := strings.TrimPrefix(string(c), "#")
	if len(s) != 6 {
		return geom.Color{}, fmt.Errorf("convert: color %q is not #rrggbb", string(c))
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return geom.Color{}, fmt.Errorf("convert: color %q: %w", string(c), err)
	}
	return geom.Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
		A: 1,
	}, nil
}

func channel(v float64) uint8 {
	return uint8(math.Round(v * 255))
}
