// Package shapes turns collision shape descriptors into the triangle meshes
// the contact backends consume. Planes and spheres stay analytic.
package shapes

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/scene"
)

const (
	// BrickResolution is the number of divisions along the longest edge of
	// a tessellated box.
	BrickResolution = 6
	// CylinderResolution gives a hexagonal prism.
	CylinderResolution = 1
)

var ErrAnalytic = errors.New("shapes: shape has an analytic form")

// Mesh is a triangle mesh in the shape frame. Faces wind counterclockwise
// seen from outside.
type Mesh struct {
	Vertices []mgl64.Vec3
	Faces    [][3]int
}

func (m Mesh) NumTriangles() int { return len(m.Faces) }

// Normal returns the unnormalized outward normal of face i.
func (m Mesh) Normal(i int) mgl64.Vec3 {
	f := m.Faces[i]
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	return b.Sub(a).Cross(c.Sub(a))
}

// Bounds returns the axis aligned box enclosing every vertex.
func (m Mesh) Bounds() (lo, hi mgl64.Vec3) {
	if len(m.Vertices) == 0 {
		return
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], v[k])
			hi[k] = math.Max(hi[k], v[k])
		}
	}
	return lo, hi
}

// Tessellate meshes one shape. Planes and spheres return ErrAnalytic.
func Tessellate(s scene.Shape) (Mesh, error) {
	if err := s.Validate(); err != nil {
		return Mesh{}, err
	}
	switch s.Kind {
	case scene.BoxShape:
		return Brick(s.Size.Mul(0.5), BrickResolution), nil
	case scene.CylinderShape:
		return Prism(s.Radius, s.Length/2, CylinderResolution), nil
	case scene.MeshShape:
		return Mesh{Vertices: s.Vertices, Faces: s.Faces}, nil
	case scene.HeightmapShape:
		return Grid(s.Heights, s.Size), nil
	case scene.PlaneShape, scene.SphereShape:
		return Mesh{}, fmt.Errorf("%w: %v", ErrAnalytic, s.Kind)
	}
	return Mesh{}, fmt.Errorf("shapes: cannot tessellate %v", s.Kind)
}

// Brick builds a closed box mesh centred on the origin. The longest edge is
// split into resolution segments and the others proportionally, at least
// one each. Vertices are shared between faces.
func Brick(halfDims mgl64.Vec3, resolution int) Mesh {
	if resolution < 1 {
		resolution = 1
	}
	longest := math.Max(halfDims[0], math.Max(halfDims[1], halfDims[2]))
	var n [3]int
	for k := 0; k < 3; k++ {
		n[k] = max(1, int(math.Round(float64(resolution)*halfDims[k]/longest)))
	}

	var m Mesh
	index := map[[3]int]int{}
	vertex := func(p [3]int) int {
		if i, ok := index[p]; ok {
			return i
		}
		var v mgl64.Vec3
		for k := 0; k < 3; k++ {
			v[k] = -halfDims[k] + 2*halfDims[k]*float64(p[k])/float64(n[k])
		}
		index[p] = len(m.Vertices)
		m.Vertices = append(m.Vertices, v)
		return index[p]
	}

	for a := 0; a < 3; a++ {
		u, v := (a+1)%3, (a+2)%3
		for _, side := range []int{0, n[a]} {
			for i := 0; i < n[u]; i++ {
				for j := 0; j < n[v]; j++ {
					corner := func(di, dj int) int {
						var p [3]int
						p[a], p[u], p[v] = side, i+di, j+dj
						return vertex(p)
					}
					p00, p10, p11, p01 := corner(0, 0), corner(1, 0), corner(1, 1), corner(0, 1)
					if side > 0 {
						m.Faces = append(m.Faces, [3]int{p00, p10, p11}, [3]int{p00, p11, p01})
					} else {
						m.Faces = append(m.Faces, [3]int{p00, p11, p10}, [3]int{p00, p01, p11})
					}
				}
			}
		}
	}
	return m
}

// Prism approximates a Z-aligned cylinder with 6*resolution sides and
// capped ends.
func Prism(radius, halfLength float64, resolution int) Mesh {
	if resolution < 1 {
		resolution = 1
	}
	sides := 6 * resolution
	m := Mesh{Vertices: make([]mgl64.Vec3, 0, 2*sides+2)}
	for _, z := range []float64{-halfLength, halfLength} {
		for i := 0; i < sides; i++ {
			a := 2 * math.Pi * float64(i) / float64(sides)
			m.Vertices = append(m.Vertices, mgl64.Vec3{radius * math.Cos(a), radius * math.Sin(a), z})
		}
	}
	bottom, top := 2*sides, 2*sides+1
	m.Vertices = append(m.Vertices, mgl64.Vec3{0, 0, -halfLength}, mgl64.Vec3{0, 0, halfLength})

	for i := 0; i < sides; i++ {
		next := (i + 1) % sides
		b0, b1 := i, next
		t0, t1 := sides+i, sides+next
		m.Faces = append(m.Faces,
			[3]int{b0, b1, t1},
			[3]int{b0, t1, t0},
			[3]int{top, t0, t1},
			[3]int{bottom, b1, b0},
		)
	}
	return m
}

// Grid meshes a heightmap. Rows run along Y and columns along X over the
// x/y extent of size, centred on the origin. Heights are scaled by size Z.
func Grid(heights [][]float64, size mgl64.Vec3) Mesh {
	rows := len(heights)
	if rows < 2 || len(heights[0]) < 2 {
		return Mesh{}
	}
	cols := len(heights[0])
	dx := size[0] / float64(cols-1)
	dy := size[1] / float64(rows-1)

	m := Mesh{Vertices: make([]mgl64.Vec3, 0, rows*cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Vertices = append(m.Vertices, mgl64.Vec3{
				-size[0]/2 + float64(c)*dx,
				-size[1]/2 + float64(r)*dy,
				heights[r][c] * size[2],
			})
		}
	}
	at := func(r, c int) int { return r*cols + c }
	for r := 0; r < rows-1; r++ {
		for c := 0; c < cols-1; c++ {
			m.Faces = append(m.Faces,
				[3]int{at(r, c), at(r, c+1), at(r+1, c+1)},
				[3]int{at(r, c), at(r+1, c+1), at(r+1, c)},
			)
		}
	}
	return m
}
