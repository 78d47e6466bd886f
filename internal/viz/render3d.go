package viz

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/shapes"
)

// Camera orbits Target in a Z-up world. Yaw turns about world Z, Pitch
// tilts the view down toward the XY plane.
type Camera struct {
	Target     mgl64.Vec3
	Yaw, Pitch float64
	Distance   float64
	Near       float64
	Zoom       float64
}

func NewCamera() *Camera {
	return &Camera{Yaw: -0.6, Pitch: 0.35, Distance: 12, Near: 0.1, Zoom: 1.0}
}

func (c *Camera) Orbit(yaw, pitch float64) {
	c.Yaw += yaw
	c.Pitch = math.Max(-math.Pi/2, math.Min(math.Pi/2, c.Pitch+pitch))
}

func (c *Camera) ZoomIn()  { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut() { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// view maps a world point to camera space: x right, y up, z into the
// screen, relative to Target.
func (c *Camera) view(p mgl64.Vec3) mgl64.Vec3 {
	d := p.Sub(c.Target)
	cy, sy := math.Cos(c.Yaw), math.Sin(c.Yaw)
	x := d[0]*cy - d[1]*sy
	depth := d[0]*sy + d[1]*cy
	cp, sp := math.Cos(c.Pitch), math.Sin(c.Pitch)
	return mgl64.Vec3{x, d[2]*cp - depth*sp, d[2]*sp + depth*cp}
}

// Project converts a world point to canvas sub-pixels. It returns the
// depth for painter's ordering and whether the point lands on the canvas.
func (c *Camera) Project(p mgl64.Vec3, sw, sh int) (int, int, float64, bool) {
	v := c.view(p)
	dist := c.Distance + v[2]
	if dist <= c.Near {
		return 0, 0, 0, false
	}
	scale := c.Distance / dist
	pScale := float64(min(sw, sh)) / 8 * c.Zoom
	sx := int(math.Round(v[0]*scale*pScale)) + sw/2
	sy := int(math.Round(-v[1]*scale*pScale)) + sh/2
	return sx, sy, v[2], sx >= 0 && sx < sw && sy >= 0 && sy < sh
}

type Edge struct {
	Start, End mgl64.Vec3
}

// Wireframe is a set of edges in some frame, usually a link's.
type Wireframe struct{ Edges []Edge }

func NewWireframe() *Wireframe               { return &Wireframe{Edges: make([]Edge, 0)} }
func (w *Wireframe) AddEdge(s, e mgl64.Vec3) { w.Edges = append(w.Edges, Edge{s, e}) }
func (w *Wireframe) AddPoint(p mgl64.Vec3)   { w.Edges = append(w.Edges, Edge{p, p}) }
func (w *Wireframe) Clear()                  { w.Edges = w.Edges[:0] }

// Append adds o's edges moved by pose.
func (w *Wireframe) Append(o *Wireframe, pose geom.Pose) {
	for _, e := range o.Edges {
		w.AddEdge(pose.Apply(e.Start), pose.Apply(e.End))
	}
}

func (w *Wireframe) addLoop(pts []mgl64.Vec3) {
	for i := range pts {
		w.AddEdge(pts[i], pts[(i+1)%len(pts)])
	}
}

type ProjectedEdge struct {
	X1, Y1, X2, Y2 int
	Depth          float64
}

// Render3D draws the wireframe to the canvas, farthest edges first.
func Render3D(c *Canvas, w *Wireframe, cam *Camera) {
	if c == nil || w == nil || cam == nil {
		return
	}
	cw, ch := c.Width*2, c.Height*4
	proj := make([]ProjectedEdge, 0, len(w.Edges))
	for _, e := range w.Edges {
		x1, y1, d1, v1 := cam.Project(e.Start, cw, ch)
		x2, y2, d2, v2 := cam.Project(e.End, cw, ch)
		if v1 || v2 {
			proj = append(proj, ProjectedEdge{x1, y1, x2, y2, (d1 + d2) / 2})
		}
	}
	sort.Slice(proj, func(i, j int) bool { return proj[i].Depth > proj[j].Depth })
	for _, e := range proj {
		if e.X1 == e.X2 && e.Y1 == e.Y2 {
			c.Set(e.X1, e.Y1)
		} else {
			c.DrawLine(e.X1, e.Y1, e.X2, e.Y2)
		}
	}
}

const (
	ringSegments = 16
	planeExtent  = 5.0
)

// circle is a ring of radius r about axis n through centre.
func circle(centre, n mgl64.Vec3, r float64) []mgl64.Vec3 {
	u, v := basis(n)
	pts := make([]mgl64.Vec3, ringSegments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / ringSegments
		pts[i] = centre.Add(u.Mul(r * math.Cos(a))).Add(v.Mul(r * math.Sin(a)))
	}
	return pts
}

// basis returns two unit vectors normal to n and to each other.
func basis(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	n = n.Normalize()
	ref := mgl64.Vec3{1, 0, 0}
	if math.Abs(n[0]) > 0.9 {
		ref = mgl64.Vec3{0, 1, 0}
	}
	u := n.Cross(ref).Normalize()
	return u, n.Cross(u)
}

// ShapeWireframe outlines a collision shape in its own frame.
func ShapeWireframe(s scene.Shape) *Wireframe {
	w := NewWireframe()
	switch s.Kind {
	case scene.SphereShape:
		for _, n := range []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
			w.addLoop(circle(mgl64.Vec3{}, n, s.Radius))
		}
	case scene.CylinderShape:
		h := s.Length / 2
		top := circle(mgl64.Vec3{0, 0, h}, mgl64.Vec3{0, 0, 1}, s.Radius)
		bottom := circle(mgl64.Vec3{0, 0, -h}, mgl64.Vec3{0, 0, 1}, s.Radius)
		w.addLoop(top)
		w.addLoop(bottom)
		for i := 0; i < ringSegments; i += ringSegments / 4 {
			w.AddEdge(top[i], bottom[i])
		}
	case scene.PlaneShape:
		u, v := basis(s.Normal)
		for i := -planeExtent; i <= planeExtent; i++ {
			w.AddEdge(u.Mul(i).Add(v.Mul(-planeExtent)), u.Mul(i).Add(v.Mul(planeExtent)))
			w.AddEdge(v.Mul(i).Add(u.Mul(-planeExtent)), v.Mul(i).Add(u.Mul(planeExtent)))
		}
	default:
		mesh, err := shapes.Tessellate(s)
		if err != nil {
			return w
		}
		addMeshEdges(w, mesh)
	}
	return w
}

func addMeshEdges(w *Wireframe, m shapes.Mesh) {
	seen := map[[2]int]bool{}
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			if a > b {
				a, b = b, a
			}
			if seen[[2]int{a, b}] {
				continue
			}
			seen[[2]int{a, b}] = true
			w.AddEdge(m.Vertices[a], m.Vertices[b])
		}
	}
}

// LinkWireframe outlines every collision of l in the link frame. A link
// without collisions is drawn as a small cross at its centre of mass.
func LinkWireframe(l *scene.Link) *Wireframe {
	w := NewWireframe()
	for _, c := range l.Collisions {
		w.Append(ShapeWireframe(c.Shape), c.Pose)
	}
	if len(l.Collisions) == 0 {
		const r = 0.05
		com := l.Inertial.Com
		for _, d := range []mgl64.Vec3{{r, 0, 0}, {0, r, 0}, {0, 0, r}} {
			w.AddEdge(com.Sub(d), com.Add(d))
		}
	}
	return w
}

func CreateAxesWireframe(l float64) *Wireframe {
	w, o := NewWireframe(), mgl64.Vec3{}
	w.AddEdge(o, mgl64.Vec3{l, 0, 0})
	w.AddEdge(o, mgl64.Vec3{0, l, 0})
	w.AddEdge(o, mgl64.Vec3{0, 0, l})
	return w
}
