package control

import (
	"context"
	"fmt"

	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/scene"
)

// JointController holds one joint axis at a target position by applying
// a PID effort before every tick.
type JointController struct {
	eng   *physics.Engine
	joint *scene.Joint
	axis  int
	pid   *PID
}

func NewJointController(eng *physics.Engine, j *scene.Joint, axis int, pid *PID) (*JointController, error) {
	if j == nil {
		return nil, fmt.Errorf("control: nil joint")
	}
	if axis < 0 || axis >= len(j.Axes) {
		return nil, fmt.Errorf("control: joint %q has no axis %d", j.Name, axis)
	}
	return &JointController{eng: eng, joint: j, axis: axis, pid: pid}, nil
}

func (c *JointController) PID() *PID { return c.pid }

// Update reads the joint position at time t and applies the effort for
// the next tick. It returns the applied effort.
func (c *JointController) Update(ctx context.Context, t float64) (float64, error) {
	q, err := c.eng.JointPosition(ctx, c.joint, c.axis)
	if err != nil {
		return 0, err
	}
	u := c.pid.Compute(q, t)
	return u, c.eng.SetJointForce(ctx, c.joint, c.axis, u)
}
