// Package sceneio reads scene files: YAML documents describing models,
// their links, joints and collision shapes, and optionally the physics
// configuration to run them with.
//
// Structural problems such as an unknown joint type or a joint child that
// names no link are logged and kept in the model, so the graph builder and
// binders can degrade the load the same way they would for any other
// source. Malformed YAML and duplicate names are errors.
package sceneio

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/jointtype"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
)

// World names the parent of a joint anchored to world.
const World = "world"

// Scene is a loaded scene file.
type Scene struct {
	Name string
	// Physics is nil when the file has no physics section.
	Physics *config.Config
	Models  []*scene.Model
}

// Model returns the model called name, or nil.
func (s *Scene) Model(name string) *scene.Model {
	for _, m := range s.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// document is decoded strictly. The physics section is taken from a
// separate loose pass, since the strict field check would also apply to
// a yaml.Node field and reject every config key.
type document struct {
	Name    string      `yaml:"name"`
	Physics any         `yaml:"physics"`
	Models  []modelSpec `yaml:"models"`
}

type physicsSection struct {
	Physics *yaml.Node `yaml:"physics"`
}

// poseSpec is x y z roll pitch yaw; missing trailing values are zero.
type poseSpec []float64

func (p poseSpec) pose() (geom.Pose, error) {
	if len(p) > 6 {
		return geom.Pose{}, fmt.Errorf("pose has %d values, want at most 6", len(p))
	}
	var v [6]float64
	copy(v[:], p)
	return geom.NewPose(v[0], v[1], v[2], v[3], v[4], v[5]), nil
}

type vec3 []float64

func (v vec3) vec(def mgl64.Vec3) (mgl64.Vec3, error) {
	switch len(v) {
	case 0:
		return def, nil
	case 3:
		return mgl64.Vec3{v[0], v[1], v[2]}, nil
	}
	return mgl64.Vec3{}, fmt.Errorf("vector has %d values, want 3", len(v))
}

type modelSpec struct {
	Name        string      `yaml:"name"`
	Pose        poseSpec    `yaml:"pose,flow"`
	Static      bool        `yaml:"static"`
	SelfCollide bool        `yaml:"self_collide"`
	Links       []linkSpec  `yaml:"links"`
	Joints      []jointSpec `yaml:"joints"`
}

type inertiaSpec struct {
	Ixx float64 `yaml:"ixx"`
	Iyy float64 `yaml:"iyy"`
	Izz float64 `yaml:"izz"`
	Ixy float64 `yaml:"ixy"`
	Ixz float64 `yaml:"ixz"`
	Iyz float64 `yaml:"iyz"`
}

type linkSpec struct {
	Name string   `yaml:"name"`
	Pose poseSpec `yaml:"pose,flow"`
	Mass float64  `yaml:"mass"`
	Com  vec3     `yaml:"com,flow"`
	// Inertia is about the centre of mass. When absent the inertia of the
	// first collision shape is used, or a small sphere.
	Inertia     *inertiaSpec    `yaml:"inertia"`
	MustBeBase  bool            `yaml:"must_be_base"`
	SelfCollide bool            `yaml:"self_collide"`
	Collisions  []collisionSpec `yaml:"collisions"`
}

type collisionSpec struct {
	Name        string                 `yaml:"name"`
	Pose        poseSpec               `yaml:"pose,flow"`
	SelfCollide bool                   `yaml:"self_collide"`
	Shape       shapeSpec              `yaml:"shape"`
	Material    *scene.ContactMaterial `yaml:"material"`
}

type shapeSpec struct {
	Type     string      `yaml:"type"`
	Normal   vec3        `yaml:"normal,flow"`
	Size     vec3        `yaml:"size,flow"`
	Radius   float64     `yaml:"radius"`
	Length   float64     `yaml:"length"`
	Vertices [][]float64 `yaml:"vertices"`
	Faces    [][3]int    `yaml:"faces"`
	Heights  [][]float64 `yaml:"heights"`
}

type axisSpec struct {
	Xyz             vec3     `yaml:"xyz,flow"`
	Lower           *float64 `yaml:"lower"`
	Upper           *float64 `yaml:"upper"`
	StopStiffness   *float64 `yaml:"stop_stiffness"`
	StopDissipation *float64 `yaml:"stop_dissipation"`
	SpringStiffness float64  `yaml:"spring_stiffness"`
	SpringReference float64  `yaml:"spring_reference"`
	Damping         float64  `yaml:"damping"`
}

type jointSpec struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Parent string   `yaml:"parent"`
	Child  string   `yaml:"child"`
	Pose   poseSpec `yaml:"pose,flow"`
	// AxisFrame is roll pitch yaw of the frame the axes are given in.
	AxisFrame     []float64  `yaml:"axis_frame,flow"`
	ThreadPitch   float64    `yaml:"thread_pitch"`
	MustBreakLoop bool       `yaml:"must_break_loop"`
	Axes          []axisSpec `yaml:"axes"`
}

func Load(path string, log logging.Logger) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse builds a scene from YAML. The physics section, when present, is
// read over the default configuration and validated.
func Parse(data []byte, log logging.Logger) (*Scene, error) {
	if log == nil {
		log = logging.Nop()
	}
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}

	var section physicsSection
	if err := yaml.Unmarshal(data, &section); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}

	s := &Scene{Name: doc.Name}
	if section.Physics != nil && section.Physics.Kind != 0 {
		cfg := config.DefaultConfig()
		if err := section.Physics.Decode(cfg); err != nil {
			return nil, fmt.Errorf("physics: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("physics: %w", err)
		}
		s.Physics = cfg
	}
	for i, ms := range doc.Models {
		if ms.Name == "" {
			return nil, fmt.Errorf("model %d has no name", i)
		}
		if s.Model(ms.Name) != nil {
			return nil, fmt.Errorf("%w: model %q", scene.ErrDuplicateName, ms.Name)
		}
		m, err := buildModel(ms, log)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", ms.Name, err)
		}
		s.Models = append(s.Models, m)
	}
	return s, nil
}

func buildModel(ms modelSpec, log logging.Logger) (*scene.Model, error) {
	m := scene.NewModel(ms.Name)
	pose, err := ms.Pose.pose()
	if err != nil {
		return nil, err
	}
	m.Pose = pose
	m.Static = ms.Static
	m.SelfCollide = ms.SelfCollide

	for _, ls := range ms.Links {
		if err := addLink(m, ls); err != nil {
			return nil, fmt.Errorf("link %q: %w", ls.Name, err)
		}
	}
	for _, js := range ms.Joints {
		if err := addJoint(m, js, log); err != nil {
			return nil, fmt.Errorf("joint %q: %w", js.Name, err)
		}
	}
	return m, nil
}

func addLink(m *scene.Model, ls linkSpec) error {
	pose, err := ls.Pose.pose()
	if err != nil {
		return err
	}
	shapes := make([]scene.Shape, len(ls.Collisions))
	for i, cs := range ls.Collisions {
		if shapes[i], err = cs.Shape.shape(); err != nil {
			return fmt.Errorf("collision %q: %w", cs.Name, err)
		}
	}
	inertial, err := ls.inertial(shapes)
	if err != nil {
		return err
	}

	l, err := m.AddLink(ls.Name, inertial, pose)
	if err != nil {
		return err
	}
	l.MustBeBase = ls.MustBeBase
	l.SelfCollide = ls.SelfCollide
	for i, cs := range ls.Collisions {
		cp, err := cs.Pose.pose()
		if err != nil {
			return fmt.Errorf("collision %q: %w", cs.Name, err)
		}
		c := l.AddCollision(cs.Name, shapes[i], cp)
		c.SelfCollide = cs.SelfCollide
		c.Material = cs.Material
	}
	return nil
}

// defaultRadius sizes the stand-in sphere of a link with no inertia and no
// shape to take it from.
const defaultRadius = 0.05

func (ls linkSpec) inertial(shapes []scene.Shape) (scene.Inertial, error) {
	com, err := ls.Com.vec(mgl64.Vec3{})
	if err != nil {
		return scene.Inertial{}, err
	}
	var in scene.Inertial
	switch {
	case ls.Inertia != nil:
		i := ls.Inertia
		in = scene.Inertial{Mass: ls.Mass, Inertia: mgl64.Mat3{
			i.Ixx, i.Ixy, i.Ixz,
			i.Ixy, i.Iyy, i.Iyz,
			i.Ixz, i.Iyz, i.Izz,
		}}
	case len(shapes) > 0 && shapes[0].Kind == scene.BoxShape:
		in = scene.SolidBox(ls.Mass, shapes[0].Size)
	case len(shapes) > 0 && shapes[0].Kind == scene.CylinderShape:
		in = scene.SolidCylinder(ls.Mass, shapes[0].Radius, shapes[0].Length)
	case len(shapes) > 0 && shapes[0].Kind == scene.SphereShape:
		in = scene.SolidSphere(ls.Mass, shapes[0].Radius)
	default:
		in = scene.SolidSphere(ls.Mass, defaultRadius)
	}
	in.Com = com
	return in, nil
}

func (ss shapeSpec) shape() (scene.Shape, error) {
	kind, err := scene.ParseShapeKind(ss.Type)
	if err != nil {
		return scene.Shape{}, err
	}
	var s scene.Shape
	switch kind {
	case scene.PlaneShape:
		n, err := ss.Normal.vec(mgl64.Vec3{0, 0, 1})
		if err != nil {
			return s, err
		}
		s = scene.Plane(n)
	case scene.SphereShape:
		s = scene.Sphere(ss.Radius)
	case scene.BoxShape:
		size, err := ss.Size.vec(mgl64.Vec3{})
		if err != nil {
			return s, err
		}
		s = scene.Box(size)
	case scene.CylinderShape:
		s = scene.Cylinder(ss.Radius, ss.Length)
	case scene.MeshShape:
		verts := make([]mgl64.Vec3, len(ss.Vertices))
		for i, v := range ss.Vertices {
			if verts[i], err = vec3(v).vec(mgl64.Vec3{}); err != nil {
				return s, fmt.Errorf("vertex %d: %w", i, err)
			}
		}
		s = scene.Mesh(verts, ss.Faces)
	case scene.HeightmapShape:
		size, err := ss.Size.vec(mgl64.Vec3{1, 1, 1})
		if err != nil {
			return s, err
		}
		s = scene.Heightmap(ss.Heights, size)
	}
	return s, s.Validate()
}

func addJoint(m *scene.Model, js jointSpec, log logging.Logger) error {
	kind, err := jointtype.Parse(js.Type)
	if err != nil {
		log.Errorf("joint [%s] of model [%s]: %v", js.Name, m.Name, err)
		kind = jointtype.Unknown
	}

	var parent *scene.Link
	if js.Parent != "" && js.Parent != World {
		if parent = m.LinkByName(js.Parent); parent == nil {
			return fmt.Errorf("parent link %q not found", js.Parent)
		}
	}
	child := m.LinkByName(js.Child)
	if child == nil {
		log.Errorf("joint [%s] of model [%s]: child link [%s] not found", js.Name, m.Name, js.Child)
	}

	j, err := m.AddJoint(js.Name, kind, parent, child)
	if err != nil {
		return err
	}
	if j.Pose, err = js.Pose.pose(); err != nil {
		return err
	}
	switch len(js.AxisFrame) {
	case 0:
	case 3:
		j.AxisFrame = geom.EulerToQuat(js.AxisFrame[0], js.AxisFrame[1], js.AxisFrame[2])
	default:
		return fmt.Errorf("axis_frame has %d values, want 3", len(js.AxisFrame))
	}
	j.ThreadPitch = js.ThreadPitch
	j.MustBreakLoop = js.MustBreakLoop

	if len(js.Axes) > len(j.Axes) {
		log.Warnf("joint [%s] of type [%s] has %d axes, ignoring %d", js.Name, kind, len(j.Axes), len(js.Axes)-len(j.Axes))
	}
	for i := range j.Axes {
		if i >= len(js.Axes) {
			break
		}
		if err := js.Axes[i].apply(&j.Axes[i]); err != nil {
			return fmt.Errorf("axis %d: %w", i, err)
		}
	}
	return nil
}

func (as axisSpec) apply(a *scene.Axis) error {
	xyz, err := as.Xyz.vec(a.Xyz)
	if err != nil {
		return err
	}
	if xyz.Len() == 0 {
		return fmt.Errorf("axis direction is zero")
	}
	a.Xyz = xyz.Normalize()
	if as.Lower != nil {
		a.Lower = *as.Lower
	}
	if as.Upper != nil {
		a.Upper = *as.Upper
	}
	if a.Lower > a.Upper {
		return fmt.Errorf("lower limit %g above upper %g", a.Lower, a.Upper)
	}
	if as.StopStiffness != nil {
		a.StopStiffness = *as.StopStiffness
	}
	if as.StopDissipation != nil {
		a.StopDissipation = *as.StopDissipation
	}
	a.SpringStiffness = as.SpringStiffness
	a.SpringReference = as.SpringReference
	a.Damping = as.Damping
	return nil
}
