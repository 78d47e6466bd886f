package metrics

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/sim"
)

// Displacement is the farthest any link has moved from where it was first
// observed. Links loaded mid-run start from their first frame.
type Displacement struct {
	name   string
	origin map[uuid.UUID]mgl64.Vec3
	max    float64
}

func NewDisplacement() *Displacement {
	return &Displacement{name: "max_displacement", origin: map[uuid.UUID]mgl64.Vec3{}}
}

func (d *Displacement) Name() string { return d.name }

func (d *Displacement) Observe(f sim.Frame) {
	for _, l := range f.Links {
		o, ok := d.origin[l.ID]
		if !ok {
			d.origin[l.ID] = l.Pose.Pos
			continue
		}
		if dist := l.Pose.Pos.Sub(o).Len(); dist > d.max {
			d.max = dist
		}
	}
}

func (d *Displacement) Value() float64 { return d.max }

func (d *Displacement) Reset() {
	d.origin = map[uuid.UUID]mgl64.Vec3{}
	d.max = 0
}
