package treedyn

import "math"

// ContactGeometry is the shape of a contact surface, in the surface frame.
type ContactGeometry interface {
	isContactGeometry()
}

// HalfSpace occupies z <= 0 of its surface frame; +Z is the outward normal.
type HalfSpace struct{}

type Sphere struct {
	Radius float64
}

// TriangleMesh contacts through its vertices only.
type TriangleMesh struct {
	Vertices []Vec3
	Faces    [][3]int
}

func (HalfSpace) isContactGeometry()    {}
func (Sphere) isContactGeometry()       {}
func (TriangleMesh) isContactGeometry() {}

// ContactMaterial holds compliant contact and friction coefficients.
type ContactMaterial struct {
	Stiffness       float64
	Dissipation     float64
	StaticFriction  float64
	DynamicFriction float64
	ViscousFriction float64
}

// ContactSurface is a geometry fixed to a body at Transform (X_BS).
type ContactSurface struct {
	Geometry  ContactGeometry
	Material  ContactMaterial
	Transform Transform

	body    MobodIndex
	cliques []int
}

func NewContactSurface(g ContactGeometry, m ContactMaterial, xBS Transform) *ContactSurface {
	return &ContactSurface{Geometry: g, Material: m, Transform: xBS}
}

// JoinClique puts the surface in a clique; surfaces sharing a clique never
// contact each other.
func (c *ContactSurface) JoinClique(id int) *ContactSurface {
	c.cliques = append(c.cliques, id)
	return c
}

func (c *ContactSurface) Body() MobodIndex { return c.body }

func (c *ContactSurface) Cliques() []int { return c.cliques }

func (c *ContactSurface) sharesClique(o *ContactSurface) bool {
	for _, a := range c.cliques {
		for _, b := range o.cliques {
			if a == b {
				return true
			}
		}
	}
	return false
}

// NewClique returns a fresh clique id.
func (s *System) NewClique() int {
	s.nextClique++
	return s.nextClique
}

func (s *System) AddContactSurface(b MobodIndex, surf *ContactSurface) {
	surf.body = b
	s.surfaces = append(s.surfaces, surf)
}

// Surfaces returns the contact surfaces attached to b.
func (s *System) Surfaces(b MobodIndex) []*ContactSurface {
	var out []*ContactSurface
	for _, c := range s.surfaces {
		if c.body == b {
			out = append(out, c)
		}
	}
	return out
}

func (s *System) NumSurfaces() int { return len(s.surfaces) }

func geometryRank(g ContactGeometry) int {
	switch g.(type) {
	case HalfSpace:
		return 0
	case Sphere:
		return 1
	default:
		return 2
	}
}

// contactForces accumulates compliant contact forces for every surface pair
// into out, indexed by body.
func (s *System) contactForces(x []Transform, v []SpatialVec, out []SpatialVec) {
	for i := 0; i < len(s.surfaces); i++ {
		for j := i + 1; j < len(s.surfaces); j++ {
			a, b := s.surfaces[i], s.surfaces[j]
			if a.body == b.body || a.sharesClique(b) {
				continue
			}
			if geometryRank(a.Geometry) > geometryRank(b.Geometry) {
				a, b = b, a
			}
			s.collide(a, b, x, v, out)
		}
	}
}

func (s *System) collide(a, b *ContactSurface, x []Transform, v []SpatialVec, out []SpatialVec) {
	xa := x[a.body].Mul(a.Transform)
	xb := x[b.body].Mul(b.Transform)

	switch ga := a.Geometry.(type) {
	case HalfSpace:
		n := xa.R.Col(ZAxis)
		switch gb := b.Geometry.(type) {
		case Sphere:
			depth := gb.Radius - xb.P.Sub(xa.P).Dot(n)
			if depth > 0 {
				p := xb.P.Sub(n.Mul(gb.Radius - depth/2))
				s.pointContact(a, b, p, n, depth, v, out)
			}
		case TriangleMesh:
			for _, vert := range gb.Vertices {
				w := xb.Apply(vert)
				if depth := -w.Sub(xa.P).Dot(n); depth > 0 {
					s.pointContact(a, b, w, n, depth, v, out)
				}
			}
		}
	case Sphere:
		switch gb := b.Geometry.(type) {
		case Sphere:
			d := xb.P.Sub(xa.P)
			dist := d.Len()
			depth := ga.Radius + gb.Radius - dist
			if depth > 0 && dist > 1e-12 {
				n := d.Mul(1 / dist)
				p := xa.P.Add(n.Mul(ga.Radius - depth/2))
				s.pointContact(a, b, p, n, depth, v, out)
			}
		case TriangleMesh:
			for _, vert := range gb.Vertices {
				w := xb.Apply(vert)
				d := w.Sub(xa.P)
				dist := d.Len()
				if depth := ga.Radius - dist; depth > 0 && dist > 1e-12 {
					s.pointContact(a, b, w, d.Mul(1/dist), depth, v, out)
				}
			}
		}
	}
}

// pointContact applies a force at p pushing b along n and a away from it.
func (s *System) pointContact(a, b *ContactSurface, p, n Vec3, depth float64, v []SpatialVec, out []SpatialVec) {
	k, c, mus, mud, muv := combineMaterials(a.Material, b.Material)

	vrel := v[b.body].PointVelocity(p).Sub(v[a.body].PointVelocity(p))
	vn := vrel.Dot(n)
	fn := k * depth * (1 - 1.5*c*vn)
	if fn <= 0 {
		return
	}
	f := n.Mul(fn)

	vt := vrel.Sub(n.Mul(vn))
	if slip := vt.Len(); slip > 1e-12 {
		vr := slip / s.transitionVelocity
		mu := math.Min(vr, 1)*(mud+2*(mus-mud)/(1+vr*vr)) + muv*slip
		f = f.Sub(vt.Mul(mu * fn / slip))
	}

	sf := ForceAtPoint(f, p)
	out[b.body] = out[b.body].Add(sf)
	out[a.body] = out[a.body].Sub(sf)
}

func combineMaterials(a, b ContactMaterial) (k, c, mus, mud, muv float64) {
	if sum := a.Stiffness + b.Stiffness; sum > 0 {
		k = a.Stiffness * b.Stiffness / sum
		c = (a.Dissipation*b.Stiffness + b.Dissipation*a.Stiffness) / sum
	}
	return k, c, harmonic(a.StaticFriction, b.StaticFriction),
		harmonic(a.DynamicFriction, b.DynamicFriction),
		harmonic(a.ViscousFriction, b.ViscousFriction)
}

func harmonic(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}
