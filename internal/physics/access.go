package physics

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/scene"
)

// ApplyLinkForce adds a world-frame force at a world point for the next
// tick.
func (e *Engine) ApplyLinkForce(ctx context.Context, l *scene.Link, force, point mgl64.Vec3) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return e.world.ApplyLinkForce(l, force, point)
}

// ApplyLinkTorque adds a world-frame torque for the next tick.
func (e *Engine) ApplyLinkTorque(ctx context.Context, l *scene.Link, torque mgl64.Vec3) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return e.world.ApplyLinkTorque(l, torque)
}

// SetJointForce adds a generalized force on one axis for the next tick.
func (e *Engine) SetJointForce(ctx context.Context, j *scene.Joint, axis int, f float64) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return e.world.SetJointForce(j, axis, f)
}

func (e *Engine) JointPosition(ctx context.Context, j *scene.Joint, axis int) (float64, error) {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return backend.JointPosition(e.world, j, axis)
}

func (e *Engine) JointVelocity(ctx context.Context, j *scene.Joint, axis int) (float64, error) {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return backend.JointVelocity(e.world, j, axis)
}

// SetJointState writes the native coordinates of j and publishes the
// resulting link poses.
func (e *Engine) SetJointState(ctx context.Context, j *scene.Joint, q, u []float64) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if err := e.world.SetJointState(j, q, u); err != nil {
		return err
	}
	if m := j.Model(); m != nil {
		e.harvest([]*scene.Model{m})
	}
	return nil
}
