// Package jointtype is the fixed table of joint kinds: how many degrees of
// freedom each has, how its axes are laid out and which backend primitive
// it lowers to.
package jointtype

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownKind = errors.New("jointtype: unknown joint kind")

type Kind int

const (
	Unknown Kind = iota
	Revolute
	Prismatic
	Universal
	Ball
	Screw
	Revolute2
	Free
	Fixed
)

// Primitive is the native mobilizer a joint kind lowers to.
type Primitive int

const (
	PrimNone Primitive = iota
	PrimPin
	PrimSlider
	PrimScrew
	PrimUniversal
	PrimBall
	PrimFree
	PrimWeld
)

// Convention says which native frame axes carry the joint's axes.
type Convention int

const (
	// NoAxis: the joint has no user axis (ball, free, fixed).
	NoAxis Convention = iota
	// NativeZ: axis 0 is mapped onto native Z.
	NativeZ
	// NativeX: axis 0 is mapped onto native X.
	NativeX
	// NativeXY: axis 0 onto native X and axis 1 onto native Y.
	NativeXY
)

type Info struct {
	Kind       Kind
	Name       string
	DOF        int
	Axes       int
	Primitive  Primitive
	Convention Convention
	// Translational marks axes measured in meters rather than radians.
	Translational []bool
	// LoopCapable kinds can close a loop as a constraint instead of a
	// welded slave body.
	LoopCapable bool
}

var table = map[Kind]Info{
	Revolute:  {Kind: Revolute, Name: "revolute", DOF: 1, Axes: 1, Primitive: PrimPin, Convention: NativeZ, Translational: []bool{false}},
	Prismatic: {Kind: Prismatic, Name: "prismatic", DOF: 1, Axes: 1, Primitive: PrimSlider, Convention: NativeX, Translational: []bool{true}},
	Screw:     {Kind: Screw, Name: "screw", DOF: 1, Axes: 1, Primitive: PrimScrew, Convention: NativeZ, Translational: []bool{false}},
	Universal: {Kind: Universal, Name: "universal", DOF: 2, Axes: 2, Primitive: PrimUniversal, Convention: NativeXY, Translational: []bool{false, false}},
	Revolute2: {Kind: Revolute2, Name: "revolute2", DOF: 2, Axes: 2, Primitive: PrimUniversal, Convention: NativeXY, Translational: []bool{false, false}},
	Ball:      {Kind: Ball, Name: "ball", DOF: 3, Primitive: PrimBall, Convention: NoAxis, LoopCapable: true},
	Free:      {Kind: Free, Name: "free", DOF: 6, Primitive: PrimFree, Convention: NoAxis},
	Fixed:     {Kind: Fixed, Name: "fixed", DOF: 0, Primitive: PrimWeld, Convention: NoAxis, LoopCapable: true},
}

var aliases = map[string]Kind{
	"hinge":  Revolute,
	"slider": Prismatic,
	"hinge2": Revolute2,
	"weld":   Fixed,
}

// Lookup returns the table entry for k.
func Lookup(k Kind) (Info, bool) {
	info, ok := table[k]
	return info, ok
}

// DOF returns the degrees of freedom of k, or -1 if k is unknown.
func DOF(k Kind) int {
	if info, ok := table[k]; ok {
		return info.DOF
	}
	return -1
}

// Parse maps a joint type name, or one of its aliases, to its Kind.
func Parse(name string) (Kind, error) {
	for k, info := range table {
		if info.Name == name {
			return k, nil
		}
	}
	if k, ok := aliases[name]; ok {
		return k, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

func (k Kind) String() string {
	if info, ok := table[k]; ok {
		return info.Name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := table[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Names lists the canonical joint type names in sorted order.
func Names() []string {
	names := make([]string, 0, len(table))
	for _, info := range table {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}
