// Package scene is the backend-neutral description of what is simulated:
// models made of links, the joints between them and their collision
// shapes. Backends attach non-owning handles to links and joints when a
// model is bound.
package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/jointtype"
)

var (
	ErrDuplicateName = errors.New("scene: duplicate name")
	ErrForeignLink   = errors.New("scene: link belongs to another model")
	ErrNoChild       = errors.New("scene: joint has no child link")
	ErrBadAxis       = errors.New("scene: axis index out of range")
)

// Model owns a set of links and the joints between them.
type Model struct {
	ID   uuid.UUID
	Name string
	// Pose places the model frame in world.
	Pose   geom.Pose
	Static bool
	// SelfCollide lets every collision of the model touch its siblings.
	SelfCollide bool

	Links  []*Link
	Joints []*Joint
}

func NewModel(name string) *Model {
	return &Model{ID: uuid.New(), Name: name, Pose: geom.Identity()}
}

// AddLink creates a link at pose relative to the model frame.
func (m *Model) AddLink(name string, inertial Inertial, pose geom.Pose) (*Link, error) {
	if m.LinkByName(name) != nil {
		return nil, fmt.Errorf("%w: link %q in model %q", ErrDuplicateName, name, m.Name)
	}
	l := &Link{
		ID:       uuid.New(),
		Name:     name,
		Inertial: inertial,
		Pose:     pose,
		model:    m,
	}
	l.worldPose = m.Pose.Mul(pose)
	m.Links = append(m.Links, l)
	return l, nil
}

// AddJoint connects parent to child. A nil parent anchors the child to
// world. A nil child is accepted here so that loaders can describe broken
// models; the graph builder rejects such joints.
func (m *Model) AddJoint(name string, kind jointtype.Kind, parent, child *Link) (*Joint, error) {
	if m.JointByName(name) != nil {
		return nil, fmt.Errorf("%w: joint %q in model %q", ErrDuplicateName, name, m.Name)
	}
	for _, l := range []*Link{parent, child} {
		if l != nil && l.model != m {
			return nil, fmt.Errorf("%w: %q", ErrForeignLink, l.Name)
		}
	}
	j := &Joint{
		ID:     uuid.New(),
		Name:   name,
		Kind:   kind,
		Parent: parent,
		Child:  child,
		Pose:   geom.Identity(),
		model:  m,
	}
	info, ok := jointtype.Lookup(kind)
	n := 0
	if ok {
		n = info.Axes
	}
	j.Axes = make([]Axis, n)
	for i := range j.Axes {
		j.Axes[i] = DefaultAxis()
	}
	if n > 1 {
		j.Axes[1].Xyz = mgl64.Vec3{0, 1, 0}
	}
	m.Joints = append(m.Joints, j)
	return j, nil
}

func (m *Model) LinkByName(name string) *Link {
	for _, l := range m.Links {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func (m *Model) JointByName(name string) *Joint {
	for _, j := range m.Joints {
		if j.Name == name {
			return j
		}
	}
	return nil
}

func (m *Model) Link(id uuid.UUID) *Link {
	for _, l := range m.Links {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (m *Model) Joint(id uuid.UUID) *Joint {
	for _, j := range m.Joints {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// Unbind drops every backend handle held by the model.
func (m *Model) Unbind() {
	for _, l := range m.Links {
		l.clearHandles()
	}
	for _, j := range m.Joints {
		j.unbind()
	}
}

// Inertial holds mass properties in the link frame. Inertia is about the
// centre of mass.
type Inertial struct {
	Mass    float64
	Com     mgl64.Vec3
	Inertia mgl64.Mat3
}

// SolidSphere returns the inertial of a uniform sphere.
func SolidSphere(mass, radius float64) Inertial {
	i := 0.4 * mass * radius * radius
	return Inertial{Mass: mass, Inertia: mgl64.Diag3(mgl64.Vec3{i, i, i})}
}

// SolidBox returns the inertial of a uniform box with full side lengths.
func SolidBox(mass float64, size mgl64.Vec3) Inertial {
	x, y, z := size[0]*size[0], size[1]*size[1], size[2]*size[2]
	return Inertial{Mass: mass, Inertia: mgl64.Diag3(mgl64.Vec3{y + z, x + z, x + y}.Mul(mass / 12))}
}

// SolidCylinder returns the inertial of a uniform cylinder along Z.
func SolidCylinder(mass, radius, length float64) Inertial {
	side := mass * (3*radius*radius + length*length) / 12
	return Inertial{Mass: mass, Inertia: mgl64.Diag3(mgl64.Vec3{side, side, 0.5 * mass * radius * radius})}
}

// Split returns the share of i carried by one of n fragments.
func (i Inertial) Split(n int) Inertial {
	if n <= 1 {
		return i
	}
	f := 1 / float64(n)
	return Inertial{Mass: i.Mass * f, Com: i.Com, Inertia: i.Inertia.Mul(f)}
}

// Link is one rigid body of a model.
type Link struct {
	ID       uuid.UUID
	Name     string
	Inertial Inertial
	// Pose is relative to the model frame.
	Pose       geom.Pose
	Collisions []*Collision
	// MustBeBase asks the graph builder to root a tree at this link.
	MustBeBase  bool
	SelfCollide bool

	model  *Model
	master BodyHandle
	slaves []BodyHandle

	worldPose geom.Pose
	velocity  geom.Velocity
}

func (l *Link) Model() *Model { return l.model }

// AddCollision attaches a shape at pose in the link frame.
func (l *Link) AddCollision(name string, shape Shape, pose geom.Pose) *Collision {
	c := &Collision{Name: name, Shape: shape, Pose: pose, link: l}
	l.Collisions = append(l.Collisions, c)
	return c
}

// WorldPose is the pose published by the last completed step, or the
// model-relative default before any step.
func (l *Link) WorldPose() geom.Pose { return l.worldPose }

func (l *Link) Velocity() geom.Velocity { return l.velocity }

// SetState records a harvested pose and velocity.
func (l *Link) SetState(p geom.Pose, v geom.Velocity) {
	l.worldPose = p
	l.velocity = v
}

// DefaultWorldPose is the link pose implied by the model pose.
func (l *Link) DefaultWorldPose() geom.Pose {
	if l.model == nil {
		return l.Pose
	}
	return l.model.Pose.Mul(l.Pose)
}

// Master is the handle of the authoritative body. ok is false while the
// link is unbound.
func (l *Link) Master() (BodyHandle, bool) {
	return l.master, l.master.Valid()
}

func (l *Link) Slaves() []BodyHandle { return l.slaves }

func (l *Link) SetMaster(h BodyHandle) { l.master = h }

func (l *Link) AddSlave(h BodyHandle) { l.slaves = append(l.slaves, h) }

func (l *Link) clearHandles() {
	l.master = BodyHandle{}
	l.slaves = nil
}

// Collision is a shape fixed to a link.
type Collision struct {
	Name  string
	Shape Shape
	// Pose is relative to the link frame.
	Pose        geom.Pose
	SelfCollide bool
	// Material overrides the engine-wide contact material when set.
	Material *ContactMaterial

	link *Link
}

func (c *Collision) Link() *Link { return c.link }

// ContactMaterial holds compliant-contact coefficients.
type ContactMaterial struct {
	Stiffness       float64 `yaml:"stiffness"`
	Dissipation     float64 `yaml:"dissipation"`
	StaticFriction  float64 `yaml:"static_friction"`
	DynamicFriction float64 `yaml:"dynamic_friction"`
	ViscousFriction float64 `yaml:"viscous_friction"`
	// PlasticCoefRestitution and PlasticImpactVelocity feed the impulse
	// backend's elasticity.
	PlasticCoefRestitution float64 `yaml:"plastic_coef_restitution"`
	PlasticImpactVelocity  float64 `yaml:"plastic_impact_velocity"`
}

func DefaultContactMaterial() ContactMaterial {
	return ContactMaterial{
		Stiffness:              1e5,
		Dissipation:            10,
		StaticFriction:         0.9,
		DynamicFriction:        0.9,
		ViscousFriction:        0,
		PlasticCoefRestitution: 0.5,
		PlasticImpactVelocity:  0.5,
	}
}

// Validate rejects negative coefficients.
func (m ContactMaterial) Validate() error {
	vals := map[string]float64{
		"stiffness":        m.Stiffness,
		"dissipation":      m.Dissipation,
		"static_friction":  m.StaticFriction,
		"dynamic_friction": m.DynamicFriction,
		"viscous_friction": m.ViscousFriction,
	}
	for name, v := range vals {
		if v < 0 {
			return fmt.Errorf("scene: contact %s must be non-negative, got %g", name, v)
		}
	}
	return nil
}
