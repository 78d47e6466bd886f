package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/physics"
)

// LinkState is one link as published by a completed tick.
type LinkState struct {
	ID       uuid.UUID
	Model    string
	Link     string
	Static   bool
	Pose     geom.Pose
	Velocity geom.Velocity
	Mass     float64
	// Com and Inertia are in the link frame.
	Com     mgl64.Vec3
	Inertia mgl64.Mat3
}

// ComPosition is the centre of mass in world.
func (s LinkState) ComPosition() mgl64.Vec3 {
	return s.Pose.Apply(s.Com)
}

// ComVelocity is the linear velocity of the centre of mass in world.
func (s LinkState) ComVelocity() mgl64.Vec3 {
	r := s.Pose.Rot.Rotate(s.Com)
	return s.Velocity.Linear.Add(s.Velocity.Angular.Cross(r))
}

// KineticEnergy is the translational and rotational energy of the link.
func (s LinkState) KineticEnergy() float64 {
	v := s.ComVelocity()
	rot := s.Pose.Rot.Mat4().Mat3()
	w := rot.Transpose().Mul3x1(s.Velocity.Angular)
	return 0.5*s.Mass*v.Dot(v) + 0.5*w.Dot(s.Inertia.Mul3x1(w))
}

// PotentialEnergy is relative to the world origin.
func (s LinkState) PotentialEnergy(g mgl64.Vec3) float64 {
	return -s.Mass * g.Dot(s.ComPosition())
}

func (s LinkState) IsValid() bool {
	vals := []float64{
		s.Pose.Pos[0], s.Pose.Pos[1], s.Pose.Pos[2],
		s.Pose.Rot.W, s.Pose.Rot.V[0], s.Pose.Rot.V[1], s.Pose.Rot.V[2],
		s.Velocity.Linear[0], s.Velocity.Linear[1], s.Velocity.Linear[2],
		s.Velocity.Angular[0], s.Velocity.Angular[1], s.Velocity.Angular[2],
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Frame is the state of every loaded link at one simulation time.
type Frame struct {
	Time    float64
	Gravity mgl64.Vec3
	Links   []LinkState
}

// Capture reads the links of every model loaded in eng. It must not race
// with Step, so call it from the goroutine that steps the engine or from a
// step hook.
func Capture(eng *physics.Engine) Frame {
	f := Frame{Time: eng.Time(), Gravity: eng.Gravity()}
	for _, m := range eng.Models() {
		for _, l := range m.Links {
			f.Links = append(f.Links, LinkState{
				ID:       l.ID,
				Model:    m.Name,
				Link:     l.Name,
				Static:   m.Static,
				Pose:     l.WorldPose(),
				Velocity: l.Velocity(),
				Mass:     l.Inertial.Mass,
				Com:      l.Inertial.Com,
				Inertia:  l.Inertial.Inertia,
			})
		}
	}
	return f
}

// Link finds a link by model and link name.
func (f Frame) Link(model, link string) (LinkState, bool) {
	for _, s := range f.Links {
		if s.Model == model && s.Link == link {
			return s, true
		}
	}
	return LinkState{}, false
}

func (f Frame) IsValid() bool {
	for _, s := range f.Links {
		if !s.IsValid() {
			return false
		}
	}
	return true
}

// Energy is the mechanical energy of the moving links.
func (f Frame) Energy() float64 {
	var e float64
	for _, s := range f.Links {
		if s.Static {
			continue
		}
		e += s.KineticEnergy() + s.PotentialEnergy(f.Gravity)
	}
	return e
}

type Metric interface {
	Name() string
	Observe(f Frame)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(f Frame)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(f Frame)

func (fn ObserverFunc) OnStep(f Frame) { fn(f) }

type Config struct {
	Duration float64
	// Dt is the tick interval. Zero uses the engine's update rate.
	Dt float64
	// Record keeps every RecordEvery-th frame in the result.
	Record      bool
	RecordEvery int
	// ValidateState stops the run at the first frame with a NaN or Inf.
	ValidateState bool
	// StopOnError ends the run at the first failed tick instead of
	// carrying on from the last good state.
	StopOnError bool
}

type Result struct {
	Frames  []Frame
	Metrics map[string]float64
	Errors  []error
	// StepsTaken counts completed ticks.
	StepsTaken int
	Start, End float64
	Wall       time.Duration
	// EnergyDrift is |E_end - E_start| / |E_start| over the moving links.
	EnergyDrift float64
}

// SimError marks a run stopped by an invalid frame.
type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
