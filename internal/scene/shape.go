package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

type ShapeKind int

const (
	PlaneShape ShapeKind = iota + 1
	SphereShape
	BoxShape
	CylinderShape
	MeshShape
	HeightmapShape
)

var shapeNames = map[ShapeKind]string{
	PlaneShape:     "plane",
	SphereShape:    "sphere",
	BoxShape:       "box",
	CylinderShape:  "cylinder",
	MeshShape:      "mesh",
	HeightmapShape: "heightmap",
}

func (k ShapeKind) String() string {
	if s, ok := shapeNames[k]; ok {
		return s
	}
	return fmt.Sprintf("shape(%d)", int(k))
}

// ParseShapeKind accepts the names printed by String, plus "trimesh".
func ParseShapeKind(name string) (ShapeKind, error) {
	if name == "trimesh" {
		return MeshShape, nil
	}
	for k, s := range shapeNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("scene: unknown shape %q", name)
}

// Shape is a collision shape descriptor. Only the fields of Kind are used.
type Shape struct {
	Kind ShapeKind
	// Normal of a plane.
	Normal mgl64.Vec3
	// Size is the full extent of a box, or the x/y extent and height scale
	// of a heightmap.
	Size   mgl64.Vec3
	Radius float64
	// Length of a cylinder along its Z axis.
	Length   float64
	Vertices []mgl64.Vec3
	Faces    [][3]int
	// Heights is a row-major grid sampled over Size.
	Heights [][]float64
}

func Plane(normal mgl64.Vec3) Shape {
	return Shape{Kind: PlaneShape, Normal: normal}
}

func Sphere(radius float64) Shape {
	return Shape{Kind: SphereShape, Radius: radius}
}

func Box(size mgl64.Vec3) Shape {
	return Shape{Kind: BoxShape, Size: size}
}

func Cylinder(radius, length float64) Shape {
	return Shape{Kind: CylinderShape, Radius: radius, Length: length}
}

func Mesh(vertices []mgl64.Vec3, faces [][3]int) Shape {
	return Shape{Kind: MeshShape, Vertices: vertices, Faces: faces}
}

func Heightmap(heights [][]float64, size mgl64.Vec3) Shape {
	return Shape{Kind: HeightmapShape, Heights: heights, Size: size}
}

// Validate checks the dimensions used by the shape's kind.
func (s Shape) Validate() error {
	switch s.Kind {
	case PlaneShape:
		if s.Normal.Len() == 0 {
			return fmt.Errorf("scene: plane normal is zero")
		}
	case SphereShape:
		if s.Radius <= 0 {
			return fmt.Errorf("scene: sphere radius %g", s.Radius)
		}
	case BoxShape:
		if s.Size[0] <= 0 || s.Size[1] <= 0 || s.Size[2] <= 0 {
			return fmt.Errorf("scene: box size %v", s.Size)
		}
	case CylinderShape:
		if s.Radius <= 0 || s.Length <= 0 {
			return fmt.Errorf("scene: cylinder radius %g length %g", s.Radius, s.Length)
		}
	case MeshShape:
		for _, f := range s.Faces {
			for _, i := range f {
				if i < 0 || i >= len(s.Vertices) {
					return fmt.Errorf("scene: mesh face index %d out of range", i)
				}
			}
		}
	case HeightmapShape:
		if len(s.Heights) < 2 || len(s.Heights[0]) < 2 {
			return fmt.Errorf("scene: heightmap needs at least 2x2 samples")
		}
		for _, row := range s.Heights {
			if len(row) != len(s.Heights[0]) {
				return fmt.Errorf("scene: heightmap rows differ in length")
			}
		}
	default:
		return fmt.Errorf("scene: unknown shape %v", s.Kind)
	}
	return nil
}
