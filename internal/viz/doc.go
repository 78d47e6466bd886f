// Package viz draws rigid body scenes in the terminal.
//
// Links are outlined as wireframes of their collision shapes, projected
// through an orbiting [Camera] onto a braille [Canvas]. Two Bubble Tea
// programs are built on it:
//
//   - [Model]: the live viewer. It steps a physics engine once per frame
//     and plots the height of the selected link with asciigraph.
//   - [Browser]: lists runs kept in a storage directory and replays their
//     trajectories.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset the engine to time zero
//	Tab   - Select the next link
//	E     - Toggle physics
//	[ ]   - Halve/double the real time factor
//	G     - Toggle GIF recording
//	T     - Cycle color themes
//	?     - Show help overlay
package viz
