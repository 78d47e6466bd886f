package scene

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/jointtype"
)

// Axis holds the per-axis parameters of a joint.
type Axis struct {
	// Xyz is the axis direction in the joint frame.
	Xyz             mgl64.Vec3
	Lower, Upper    float64
	StopStiffness   float64
	StopDissipation float64
	SpringStiffness float64
	SpringReference float64
	Damping         float64
}

// DefaultAxis is an unlimited Z axis with stiff stops and no spring.
func DefaultAxis() Axis {
	return Axis{
		Xyz:             mgl64.Vec3{0, 0, 1},
		Lower:           -math.MaxFloat64,
		Upper:           math.MaxFloat64,
		StopStiffness:   1e5,
		StopDissipation: 1,
	}
}

// AxisBinding is installed by a backend when it binds a joint so that
// parameter changes reach the live force elements without a rebuild.
type AxisBinding interface {
	Damping(axis int) float64
	SetDamping(axis int, v float64)
	SpringStiffness(axis int) float64
	SetSpringStiffness(axis int, v float64)
	SpringReference(axis int) float64
	SetSpringReference(axis int, v float64)
	Limits(axis int) (lower, upper float64)
	SetLimits(axis int, lower, upper float64)
}

// Joint constrains the motion of Child relative to Parent. A nil Parent is
// world.
type Joint struct {
	ID     uuid.UUID
	Name   string
	Kind   jointtype.Kind
	Parent *Link
	Child  *Link
	// Pose is the joint frame in the child link frame.
	Pose geom.Pose
	// AxisFrame rotates Axis.Xyz into the joint frame. Identity when axes
	// are already given in the child frame.
	AxisFrame   mgl64.Quat
	ThreadPitch float64
	Axes        []Axis
	// MustBreakLoop asks the graph builder to close a loop at this joint
	// when it lies on one.
	MustBreakLoop bool

	model   *Model
	handle  JointHandle
	binding AxisBinding
	wrench  geom.Wrench
}

func (j *Joint) Model() *Model { return j.model }

func (j *Joint) axisFrame() mgl64.Quat {
	if j.AxisFrame == (mgl64.Quat{}) {
		return mgl64.QuatIdent()
	}
	return j.AxisFrame
}

// GlobalAxis returns axis i rotated by the axis frame, in the child frame.
func (j *Joint) GlobalAxis(i int) mgl64.Vec3 {
	if i < 0 || i >= len(j.Axes) {
		return mgl64.Vec3{0, 0, 1}
	}
	return j.axisFrame().Rotate(j.Axes[i].Xyz)
}

func (j *Joint) checkAxis(i int) error {
	if i < 0 || i >= len(j.Axes) {
		return fmt.Errorf("%w: joint %q has %d axes, got %d", ErrBadAxis, j.Name, len(j.Axes), i)
	}
	return nil
}

func (j *Joint) SetDamping(i int, v float64) error {
	if err := j.checkAxis(i); err != nil {
		return err
	}
	j.Axes[i].Damping = v
	if j.binding != nil {
		j.binding.SetDamping(i, v)
	}
	return nil
}

func (j *Joint) Damping(i int) float64 {
	if j.checkAxis(i) != nil {
		return 0
	}
	if j.binding != nil {
		return j.binding.Damping(i)
	}
	return j.Axes[i].Damping
}

func (j *Joint) SetStiffness(i int, v float64) error {
	if err := j.checkAxis(i); err != nil {
		return err
	}
	j.Axes[i].SpringStiffness = v
	if j.binding != nil {
		j.binding.SetSpringStiffness(i, v)
	}
	return nil
}

func (j *Joint) Stiffness(i int) float64 {
	if j.checkAxis(i) != nil {
		return 0
	}
	if j.binding != nil {
		return j.binding.SpringStiffness(i)
	}
	return j.Axes[i].SpringStiffness
}

// SetStiffnessDamping sets spring stiffness, damping and spring reference
// of axis i in one call.
func (j *Joint) SetStiffnessDamping(i int, stiffness, damping, reference float64) error {
	if err := j.SetStiffness(i, stiffness); err != nil {
		return err
	}
	if err := j.SetDamping(i, damping); err != nil {
		return err
	}
	return j.SetSpringReference(i, reference)
}

func (j *Joint) SetSpringReference(i int, v float64) error {
	if err := j.checkAxis(i); err != nil {
		return err
	}
	j.Axes[i].SpringReference = v
	if j.binding != nil {
		j.binding.SetSpringReference(i, v)
	}
	return nil
}

func (j *Joint) SpringReference(i int) float64 {
	if j.checkAxis(i) != nil {
		return 0
	}
	if j.binding != nil {
		return j.binding.SpringReference(i)
	}
	return j.Axes[i].SpringReference
}

func (j *Joint) SetLimits(i int, lower, upper float64) error {
	if err := j.checkAxis(i); err != nil {
		return err
	}
	j.Axes[i].Lower, j.Axes[i].Upper = lower, upper
	if j.binding != nil {
		j.binding.SetLimits(i, lower, upper)
	}
	return nil
}

func (j *Joint) Limits(i int) (float64, float64) {
	if j.checkAxis(i) != nil {
		return 0, 0
	}
	if j.binding != nil {
		return j.binding.Limits(i)
	}
	return j.Axes[i].Lower, j.Axes[i].Upper
}

// Bind records the backend handle and parameter binding of the joint.
func (j *Joint) Bind(h JointHandle, b AxisBinding) {
	j.handle = h
	j.binding = b
}

func (j *Joint) Handle() (JointHandle, bool) {
	return j.handle, j.handle.Valid()
}

func (j *Joint) Bound() bool { return j.handle.Valid() }

func (j *Joint) unbind() {
	j.handle = JointHandle{}
	j.binding = nil
}

// Wrench is the reaction force and torque on the child link cached by the
// last completed step, in world frame about the joint origin.
func (j *Joint) Wrench() geom.Wrench { return j.wrench }

func (j *Joint) CacheWrench(w geom.Wrench) { j.wrench = w }
