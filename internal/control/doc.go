// Package control provides feedback controllers for joints.
//
//   - [PID]: Proportional-Integral-Derivative loop on a scalar
//   - [JointController]: drives one joint axis of an engine with a PID
//
// # Usage
//
//	pid := control.NewPID(400, 10, 40, 0.5) // Kp, Ki, Kd, setpoint
//	ctl, _ := control.NewJointController(eng, joint, 0, pid)
//	s.AddObserver(sim.ObserverFunc(func(f sim.Frame) {
//		ctl.Update(ctx, f.Time)
//	}))
//
// The effort is a generalized force: a torque on revolute axes and a force
// on prismatic ones. The engine clears it after every tick.
package control
