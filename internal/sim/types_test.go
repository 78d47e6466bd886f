package sim

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/geom"
)

func TestLinkState_Energy(t *testing.T) {
	s := LinkState{
		Pose:     geom.NewPose(0, 0, 3, 0, 0, 0),
		Velocity: geom.Velocity{Linear: mgl64.Vec3{0, 0, -1}},
		Mass:     2,
		Inertia:  mgl64.Ident3(),
	}
	g := mgl64.Vec3{0, 0, -10}

	if got := s.KineticEnergy(); math.Abs(got-1) > 1e-12 {
		t.Errorf("KineticEnergy() = %v, want 1", got)
	}
	if got := s.PotentialEnergy(g); math.Abs(got-60) > 1e-12 {
		t.Errorf("PotentialEnergy() = %v, want 60", got)
	}
}

func TestLinkState_SpinAboutOffsetCom(t *testing.T) {
	s := LinkState{
		Pose:     geom.Identity(),
		Velocity: geom.Velocity{Angular: mgl64.Vec3{0, 0, 2}},
		Mass:     1,
		Com:      mgl64.Vec3{1, 0, 0},
		Inertia:  mgl64.Ident3(),
	}

	v := s.ComVelocity()
	if !v.ApproxEqual(mgl64.Vec3{0, 2, 0}) {
		t.Errorf("ComVelocity() = %v, want [0 2 0]", v)
	}
	// 2 from the com moving on its circle, 2 from spinning about it.
	if got := s.KineticEnergy(); math.Abs(got-4) > 1e-12 {
		t.Errorf("KineticEnergy() = %v, want 4", got)
	}
}

func TestFrame_IsValid(t *testing.T) {
	good := LinkState{Pose: geom.Identity()}
	bad := good
	bad.Velocity.Linear[1] = math.NaN()
	inf := good
	inf.Pose.Pos[2] = math.Inf(-1)

	tests := []struct {
		name  string
		frame Frame
		valid bool
	}{
		{"empty", Frame{}, true},
		{"normal", Frame{Links: []LinkState{good, good}}, true},
		{"with NaN", Frame{Links: []LinkState{good, bad}}, false},
		{"with -Inf", Frame{Links: []LinkState{inf}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestFrame_EnergySkipsStaticLinks(t *testing.T) {
	f := Frame{
		Gravity: mgl64.Vec3{0, 0, -10},
		Links: []LinkState{
			{Model: "ground", Link: "floor", Static: true, Pose: geom.NewPose(0, 0, 5, 0, 0, 0), Mass: 100},
			{Model: "ball", Link: "ball", Pose: geom.NewPose(0, 0, 1, 0, 0, 0), Mass: 1},
		},
	}
	if got := f.Energy(); math.Abs(got-10) > 1e-12 {
		t.Errorf("Energy() = %v, want 10", got)
	}

	if _, ok := f.Link("ball", "ball"); !ok {
		t.Error("Link(ball, ball) not found")
	}
	if _, ok := f.Link("ball", "floor"); ok {
		t.Error("Link(ball, floor) matched a link of another model")
	}
}

func TestSimError(t *testing.T) {
	err := SimError{Time: 1.5, Step: 150, Message: "test error"}
	expected := "step 150 (t=1.5000): test error"
	if err.Error() != expected {
		t.Errorf("SimError.Error() = %q, want %q", err.Error(), expected)
	}
}
