package treedyn

import "fmt"

// MobodIndex identifies a mobilized body within a System. Ground is 0.
type MobodIndex int

const Ground MobodIndex = 0

// MobilizerKind selects the relative motion a mobilizer permits between
// its inboard frame F and outboard frame M.
type MobilizerKind int

const (
	// Weld allows no motion.
	Weld MobilizerKind = iota
	// Pin rotates about the common Z axis.
	Pin
	// Slider translates along the common X axis.
	Slider
	// Screw rotates about Z and translates pitch per radian along Z.
	Screw
	// Universal rotates about X, then about the new Y.
	Universal
	// Ball rotates freely.
	Ball
	// Free translates and rotates freely.
	Free
)

var mobilizerNames = map[MobilizerKind]string{
	Weld:      "weld",
	Pin:       "pin",
	Slider:    "slider",
	Screw:     "screw",
	Universal: "universal",
	Ball:      "ball",
	Free:      "free",
}

func (k MobilizerKind) String() string {
	if s, ok := mobilizerNames[k]; ok {
		return s
	}
	return fmt.Sprintf("mobilizer(%d)", int(k))
}

type primitiveKind int

const (
	primRotate primitiveKind = iota
	primTranslate
	primScrew
)

// primitive is a single-dof axis of a mobilizer. Multi-dof mobilizers are
// chains of primitives joined by massless frames, so q̇ = u holds for every
// coordinate.
type primitive struct {
	kind  primitiveKind
	axis  CoordinateAxis
	pitch float64
}

func (p primitive) transform(q float64) Transform {
	switch p.kind {
	case primTranslate:
		return Transform{R: RotationIdentity(), P: p.axis.Unit().Mul(q)}
	case primScrew:
		return Transform{R: RotationAboutAxis(q, p.axis), P: p.axis.Unit().Mul(p.pitch * q)}
	default:
		return Transform{R: RotationAboutAxis(q, p.axis)}
	}
}

// axisVector returns the spatial axis of p when its frame sits at x.
func (p primitive) axisVector(x Transform) SpatialVec {
	a := x.R.Apply(p.axis.Unit())
	switch p.kind {
	case primTranslate:
		return SpatialVec{V: a}
	case primScrew:
		return SpatialVec{W: a, V: x.P.Cross(a).Add(a.Mul(p.pitch))}
	default:
		return SpatialVec{W: a, V: x.P.Cross(a)}
	}
}

// layout returns the primitive chain of a mobilizer kind and the index at
// which its reference rotation is inserted (-1 when it has none). Rotational
// Ball and Free coordinates are local angles about a reference orientation
// that is re-based after every committed step.
func layout(kind MobilizerKind, pitch float64) ([]primitive, int) {
	switch kind {
	case Pin:
		return []primitive{{kind: primRotate, axis: ZAxis}}, -1
	case Slider:
		return []primitive{{kind: primTranslate, axis: XAxis}}, -1
	case Screw:
		return []primitive{{kind: primScrew, axis: ZAxis, pitch: pitch}}, -1
	case Universal:
		return []primitive{
			{kind: primRotate, axis: XAxis},
			{kind: primRotate, axis: YAxis},
		}, -1
	case Ball:
		return []primitive{
			{kind: primRotate, axis: XAxis},
			{kind: primRotate, axis: YAxis},
			{kind: primRotate, axis: ZAxis},
		}, 0
	case Free:
		return []primitive{
			{kind: primTranslate, axis: XAxis},
			{kind: primTranslate, axis: YAxis},
			{kind: primTranslate, axis: ZAxis},
			{kind: primRotate, axis: XAxis},
			{kind: primRotate, axis: YAxis},
			{kind: primRotate, axis: ZAxis},
		}, 3
	default:
		return nil, -1
	}
}

// MobilizerSpec describes a mobilizer to add.
type MobilizerSpec struct {
	Kind MobilizerKind
	// Pitch is the screw lead in meters per radian.
	Pitch float64
	// Reversed marks a mobilizer whose inboard body is the joint's child.
	Reversed bool
}

type mobod struct {
	index    MobodIndex
	parent   MobodIndex
	spec     MobilizerSpec
	xPF      Transform
	xMB      Transform
	mass     MassProperties
	prims    []primitive
	refIndex int

	qStart   int
	chain    []int
	children []MobodIndex

	defaultQ   []float64
	defaultRef Rotation
}

func (b *mobod) nq() int { return len(b.prims) }

// rotationalRange returns the coordinate range of the local angles of a
// Ball or Free mobilizer.
func (b *mobod) rotationalRange() (int, int, bool) {
	if b.refIndex < 0 {
		return 0, 0, false
	}
	return b.qStart + b.refIndex, b.qStart + b.refIndex + 3, true
}

// MobilizedBody is a handle to a body in a System.
type MobilizedBody struct {
	sys   *System
	index MobodIndex
}

func (m MobilizedBody) Index() MobodIndex { return m.index }

func (m MobilizedBody) IsValid() bool {
	return m.sys != nil && int(m.index) < len(m.sys.bodies)
}

func (m MobilizedBody) Kind() MobilizerKind {
	return m.sys.bodies[m.index].spec.Kind
}

func (m MobilizedBody) Reversed() bool {
	return m.sys.bodies[m.index].spec.Reversed
}

func (m MobilizedBody) NumQ() int {
	return m.sys.bodies[m.index].nq()
}

// QIndex returns the global coordinate index of the body's axis-th
// coordinate. Valid after RealizeTopology.
func (m MobilizedBody) QIndex(axis int) int {
	return m.sys.bodies[m.index].qStart + axis
}

func (m MobilizedBody) Parent() MobodIndex {
	return m.sys.bodies[m.index].parent
}

func (m MobilizedBody) MassProperties() MassProperties {
	return m.sys.bodies[m.index].mass
}
