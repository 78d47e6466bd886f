package scene

import "fmt"

// BackendKind tags which backend a handle belongs to.
type BackendKind int

const (
	NoBackend BackendKind = iota
	TreeBackend
	PlanarBackend
)

func (k BackendKind) String() string {
	switch k {
	case TreeBackend:
		return "tree"
	case PlanarBackend:
		return "planar"
	default:
		return "none"
	}
}

// BodyHandle names a native body inside one backend's world. Index is
// only meaningful to the backend named by Backend.
type BodyHandle struct {
	Backend BackendKind
	Index   int
}

func (h BodyHandle) Valid() bool { return h.Backend != NoBackend }

func (h BodyHandle) String() string {
	return fmt.Sprintf("%s#%d", h.Backend, h.Index)
}

// JointHandle names the native mobilizer or constraint set of a joint.
type JointHandle struct {
	Backend BackendKind
	Index   int
	// Reversed is set when the native mobilizer runs from child to parent.
	Reversed bool
}

func (h JointHandle) Valid() bool { return h.Backend != NoBackend }
