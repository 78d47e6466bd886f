package physics_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	_ "github.com/san-kum/rigidsim/internal/backend/planar"
	_ "github.com/san-kum/rigidsim/internal/backend/tree"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/jointtype"
	"github.com/san-kum/rigidsim/internal/scene"
)

func TestPhysics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Physics Suite")
}

func at(x, y, z float64) geom.Pose {
	return geom.NewPose(x, y, z, 0, 0, 0)
}

func ball(name string, x, y, z float64) *scene.Model {
	m := scene.NewModel(name)
	_, _ = m.AddLink("ball", scene.SolidSphere(1, 0.1), at(x, y, z))
	return m
}

// pendulum hangs a bob one metre from a pin at the origin, swinging about
// world Y. offset tilts it away from straight down.
func pendulum(offset float64) (*scene.Model, *scene.Joint) {
	m := scene.NewModel("pendulum")
	bob, _ := m.AddLink("bob", scene.SolidSphere(1, 0.1), at(offset, 0, -1))
	j, _ := m.AddJoint("pivot", jointtype.Revolute, nil, bob)
	j.Pose = at(-offset, 0, 1)
	j.Axes[0].Xyz = mgl64.Vec3{0, 1, 0}
	return m, j
}
