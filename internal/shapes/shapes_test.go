package shapes

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rigidsim/internal/scene"
)

// expectClosed checks that every edge is shared by exactly two faces with
// opposite direction and that every face points away from the origin.
func expectClosed(t *testing.T, m Mesh) {
	t.Helper()
	edges := map[[2]int]int{}
	for i, f := range m.Faces {
		for k := 0; k < 3; k++ {
			edges[[2]int{f[k], f[(k+1)%3]}]++
		}
		centroid := m.Vertices[f[0]].Add(m.Vertices[f[1]]).Add(m.Vertices[f[2]]).Mul(1.0 / 3)
		assert.Greater(t, m.Normal(i).Dot(centroid), 0.0, "face %d points inward", i)
	}
	for e, n := range edges {
		assert.Equal(t, 1, n, "edge %v", e)
		assert.Equal(t, 1, edges[[2]int{e[1], e[0]}], "edge %v has no twin", e)
	}
}

func TestBrickCube(t *testing.T) {
	m := Brick(mgl64.Vec3{0.5, 0.5, 0.5}, BrickResolution)
	// surface lattice points of a 6x6x6 grid
	assert.Len(t, m.Vertices, 7*7*7-5*5*5)
	assert.Equal(t, 6*6*6*2, m.NumTriangles())
	expectClosed(t, m)

	lo, hi := m.Bounds()
	assert.Equal(t, mgl64.Vec3{-0.5, -0.5, -0.5}, lo)
	assert.Equal(t, mgl64.Vec3{0.5, 0.5, 0.5}, hi)
}

func TestBrickFlat(t *testing.T) {
	m := Brick(mgl64.Vec3{3, 1, 0.01}, BrickResolution)
	expectClosed(t, m)
	// 6 x 2 x 1 divisions
	assert.Equal(t, 2*2*(6*2+2*1+6*1), m.NumTriangles())
}

func TestPrism(t *testing.T) {
	m := Prism(0.2, 0.5, CylinderResolution)
	assert.Len(t, m.Vertices, 14)
	assert.Equal(t, 24, m.NumTriangles())
	expectClosed(t, m)

	lo, hi := m.Bounds()
	assert.InDelta(t, -0.5, lo[2], 1e-12)
	assert.InDelta(t, 0.5, hi[2], 1e-12)
	assert.InDelta(t, 0.2, hi[0], 1e-12)
}

func TestGrid(t *testing.T) {
	m := Grid([][]float64{{0, 0, 0}, {0, 1, 0}}, mgl64.Vec3{2, 1, 3})
	assert.Len(t, m.Vertices, 6)
	assert.Equal(t, 4, m.NumTriangles())
	for i := range m.Faces {
		assert.Greater(t, m.Normal(i)[2], 0.0)
	}
	assert.Equal(t, mgl64.Vec3{0, 0.5, 3}, m.Vertices[4])
}

func TestTessellate(t *testing.T) {
	_, err := Tessellate(scene.Sphere(1))
	assert.ErrorIs(t, err, ErrAnalytic)

	_, err = Tessellate(scene.Box(mgl64.Vec3{1, 0, 1}))
	assert.Error(t, err)

	verts := []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	m, err := Tessellate(scene.Mesh(verts, [][3]int{{0, 1, 2}}))
	require.NoError(t, err)
	assert.Equal(t, verts, m.Vertices)
}

func TestTessellatorKeepsOrder(t *testing.T) {
	tess := NewTessellator(3)
	defer tess.Close()

	batch := []scene.Shape{
		scene.Box(mgl64.Vec3{1, 1, 1}),
		scene.Plane(mgl64.Vec3{0, 0, 1}),
		scene.Cylinder(0.1, 1),
		scene.Sphere(0),
		scene.Heightmap([][]float64{{0, 0}, {0, 0}}, mgl64.Vec3{1, 1, 1}),
	}
	for round := 0; round < 3; round++ {
		res := tess.TessellateAll(batch)
		require.Len(t, res, len(batch))
		assert.Equal(t, 432, res[0].Mesh.NumTriangles())
		assert.True(t, res[1].Analytic)
		assert.Equal(t, 24, res[2].Mesh.NumTriangles())
		assert.Error(t, res[3].Err)
		assert.Equal(t, 2, res[4].Mesh.NumTriangles())
	}
}
