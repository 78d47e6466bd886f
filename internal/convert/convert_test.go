package convert

import (
	"math"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/treedyn"
)

func TestQuaternionRoundTrip(t *testing.T) {
	quats := []mgl64.Quat{
		mgl64.QuatIdent(),
		geom.EulerToQuat(0.3, -0.2, 1.4),
		geom.EulerToQuat(math.Pi/2, 0, 0),
		geom.EulerToQuat(0, 0, -3),
	}

	for _, q := range quats {
		back := RotationToQuat(QuatToRotation(q))
		assert.InDelta(t, 1, math.Abs(back.Dot(q)), 1e-9)

		native := QuatToTree(q)
		assert.Equal(t, native, QuatToTree(QuatFromTree(native)))

		r := QuatToRotation(q)
		again := QuatToRotation(RotationToQuat(r))
		assert.True(t, r.Mat3().ApproxEqualThreshold(again.Mat3(), 1e-9))
	}
}

func TestPoseRoundTrip(t *testing.T) {
	poses := []geom.Pose{
		geom.Identity(),
		geom.NewPose(1, -2, 3, 0.1, 0.2, 0.3),
		geom.NewPose(0, 0, 5, math.Pi, 0, 0),
	}

	for _, p := range poses {
		back := TransformToPose(PoseToTransform(p))
		assert.True(t, p.ApproxEqual(back, 1e-9), "pose %v came back as %v", p, back)

		v := mgl64.Vec3{0.5, -1, 2}
		want := p.Apply(v)
		got := PoseToTransform(p).Apply(v)
		assert.True(t, want.ApproxEqualThreshold(got, 1e-9))
	}
}

func TestPlanarRoundTrip(t *testing.T) {
	v := mgl64.Vec3{1.5, 7, -2}
	c := VecToPlanar(v)
	assert.Equal(t, cp.Vector{X: 1.5, Y: -2}, c)
	assert.Equal(t, v, VecFromPlanar(c, 7))

	for _, a := range []float64{0, 0.4, -1.2, 3} {
		assert.InDelta(t, a, QuatToPlanarAngle(PlanarAngleToQuat(a)), 1e-12)
	}

	// Turning world X toward -Z is a positive rotation about +Y and a
	// negative cp angle.
	q := mgl64.QuatRotate(0.5, mgl64.Vec3{0, 1, 0})
	assert.InDelta(t, -0.5, QuatToPlanarAngle(q), 1e-12)

	pose := geom.NewPose(2, 0, 1, 0, 0.3, 0)
	pos, angle := PoseToPlanar(pose)
	assert.True(t, pose.ApproxEqual(PoseFromPlanar(pos, angle, 0), 1e-9))
}

func TestColorRoundTrip(t *testing.T) {
	colors := []geom.Color{
		{R: 1, G: 0, B: 0, A: 1},
		{R: 0.2, G: 0.4, B: 0.6, A: 1},
		{R: 0, G: 0, B: 0, A: 1},
	}
	for _, c := range colors {
		back, err := ColorFromLipgloss(ColorToLipgloss(c))
		require.NoError(t, err)
		assert.InDelta(t, c.R, back.R, 1.0/255)
		assert.InDelta(t, c.G, back.G, 1.0/255)
		assert.InDelta(t, c.B, back.B, 1.0/255)
		assert.Equal(t, 1.0, back.A)
	}

	for _, hex := range []lipgloss.Color{"#ff0000", "#336699", "#000000"} {
		c, err := ColorFromLipgloss(hex)
		require.NoError(t, err)
		assert.Equal(t, hex, ColorToLipgloss(c))
	}

	_, err := ColorFromLipgloss("12")
	assert.Error(t, err)
	_, err = ColorFromLipgloss("#zzzzzz")
	assert.Error(t, err)
}

func TestSpatialToWrench(t *testing.T) {
	// A 10 N force along -Z applied at (1, 0, 0), seen from the origin.
	f := treedyn.ForceAtPoint(mgl64.Vec3{0, 0, -10}, mgl64.Vec3{1, 0, 0})

	atPoint := SpatialToWrench(f, mgl64.Vec3{1, 0, 0})
	assert.InDelta(t, 0, atPoint.Torque.Len(), 1e-12)
	assert.InDelta(t, -10, atPoint.Force[2], 1e-12)

	atOrigin := SpatialToWrench(f, mgl64.Vec3{})
	assert.InDelta(t, 10, atOrigin.Torque[1], 1e-12)
}
