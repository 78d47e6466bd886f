// Package graph turns the links and joints of a model into a spanning tree
// of mobilizers suitable for a reduced-coordinate backend. Joints that would
// close a loop become slave mobilizers, welded back to their master body by
// the binder, or loop constraints when the joint kind allows it.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/rigidsim/internal/jointtype"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
)

var (
	ErrNilModel = errors.New("graph: nil model")
	ErrSelfLoop = errors.New("graph: joint connects a link to itself")
)

// Mobilizer is one edge of the spanning tree. Inboard is nil for world.
// Outboard is always a real link; for a slave mobilizer it is the master
// link whose body is duplicated.
type Mobilizer struct {
	Joint    *scene.Joint
	Kind     jointtype.Kind
	Inboard  *scene.Link
	Outboard *scene.Link
	// Reversed is set when the tree runs from the joint's child to its
	// parent.
	Reversed bool
	// Slave marks a mobilizer onto a duplicate body of Outboard.
	Slave bool
	// SlaveIndex numbers the slaves of one link from zero.
	SlaveIndex int
	// AddedBase marks a free mobilizer synthesized to connect an otherwise
	// unconnected link to world. Joint is nil.
	AddedBase bool
	// Fragments is how many mobilized bodies share Outboard's mass.
	Fragments int
	Level     int
}

// LoopConstraint closes a loop at Joint without duplicating a body.
type LoopConstraint struct {
	Joint  *scene.Joint
	Kind   jointtype.Kind
	Parent *scene.Link
	Child  *scene.Link
}

// Graph is the result of Build. Mobilizers are ordered parent before
// child.
type Graph struct {
	Model      *scene.Model
	Static     bool
	Mobilizers []Mobilizer
	Loops      []LoopConstraint
	// LoopJoints are the joints that closed a loop, whichever way they
	// were handled.
	LoopJoints []*scene.Joint
	// Rejected joints were dropped for having no child link.
	Rejected []*scene.Joint
}

type options struct {
	loopConstraints bool
	log             logging.Logger
}

type Option func(*options)

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLoopConstraints closes loops at loop-capable joints with a
// constraint instead of a slave body.
func WithLoopConstraints() Option {
	return func(o *options) { o.loopConstraints = true }
}

type body struct {
	link   *scene.Link
	inTree bool
	level  int
	slaves int
}

type edge struct {
	joint         *scene.Joint
	parent, child int
	used          bool
	mustBreakLoop bool
}

type builder struct {
	opts   options
	graph  *Graph
	bodies []*body
	edges  []*edge
}

// Build derives the multibody graph of m. It does not modify m.
func Build(m *scene.Model, opts ...Option) (*Graph, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	o := options{log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{Model: m, Static: m.Static}
	if m.Static {
		return g, nil
	}

	b := &builder{opts: o, graph: g}
	if err := b.register(m); err != nil {
		return nil, err
	}
	b.grow()
	b.closeLoops()
	b.finish()
	return g, nil
}

func (b *builder) register(m *scene.Model) error {
	b.bodies = append(b.bodies, &body{inTree: true})
	index := make(map[*scene.Link]int, len(m.Links))
	for _, l := range m.Links {
		index[l] = len(b.bodies)
		b.bodies = append(b.bodies, &body{link: l})
	}

	for _, j := range m.Joints {
		if j.Child == nil {
			b.opts.log.Errorf("joint [%s] does not have a valid child link, which is required", j.Name)
			b.graph.Rejected = append(b.graph.Rejected, j)
			continue
		}
		if j.Parent == j.Child {
			return fmt.Errorf("%w: %q", ErrSelfLoop, j.Name)
		}
		e := &edge{joint: j, child: index[j.Child], mustBreakLoop: j.MustBreakLoop}
		if j.Parent != nil {
			e.parent = index[j.Parent]
		}
		b.edges = append(b.edges, e)
	}
	return nil
}

// grow adds bodies level by level from world, then from synthesized bases
// until every body is in the tree.
func (b *builder) grow() {
	b.growFrom([]int{0})
	for {
		base := b.pickBase()
		if base < 0 {
			return
		}
		bb := b.bodies[base]
		bb.inTree = true
		bb.level = 1
		b.graph.Mobilizers = append(b.graph.Mobilizers, Mobilizer{
			Kind:      jointtype.Free,
			Outboard:  bb.link,
			AddedBase: true,
			Level:     1,
		})
		b.opts.log.Debugf("link [%s] has no path to world, adding a free base mobilizer", bb.link.Name)
		b.growFrom([]int{base})
	}
}

func (b *builder) growFrom(frontier []int) {
	for len(frontier) > 0 {
		var next []int
		for _, idx := range frontier {
			for _, e := range b.edges {
				if e.used || e.mustBreakLoop {
					continue
				}
				switch {
				case e.parent == idx && !b.bodies[e.child].inTree:
					b.attach(e, e.parent, e.child, false)
					next = append(next, e.child)
				case e.child == idx && !b.bodies[e.parent].inTree:
					b.attach(e, e.child, e.parent, true)
					next = append(next, e.parent)
				}
			}
		}
		frontier = next
	}
}

func (b *builder) attach(e *edge, in, out int, reversed bool) {
	e.used = true
	ob := b.bodies[out]
	ob.inTree = true
	ob.level = b.bodies[in].level + 1
	b.graph.Mobilizers = append(b.graph.Mobilizers, Mobilizer{
		Joint:    e.joint,
		Kind:     e.joint.Kind,
		Inboard:  b.bodies[in].link,
		Outboard: ob.link,
		Reversed: reversed,
		Level:    ob.level,
	})
}

// pickBase returns the next body to connect to world: a must-be-base link
// first, else the heaviest. It returns -1 once every body is in the tree.
func (b *builder) pickBase() int {
	best := -1
	for i, bb := range b.bodies[1:] {
		if bb.inTree {
			continue
		}
		idx := i + 1
		if bb.link.MustBeBase {
			return idx
		}
		if best < 0 || bb.link.Inertial.Mass > b.bodies[best].link.Inertial.Mass {
			best = idx
		}
	}
	return best
}

func (b *builder) closeLoops() {
	for _, e := range b.edges {
		if e.used {
			continue
		}
		e.used = true
		b.graph.LoopJoints = append(b.graph.LoopJoints, e.joint)

		info, ok := jointtype.Lookup(e.joint.Kind)
		if b.opts.loopConstraints && ok && info.LoopCapable {
			b.graph.Loops = append(b.graph.Loops, LoopConstraint{
				Joint:  e.joint,
				Kind:   e.joint.Kind,
				Parent: e.joint.Parent,
				Child:  e.joint.Child,
			})
			continue
		}

		in, out := b.bodies[e.parent], b.bodies[e.child]
		b.graph.Mobilizers = append(b.graph.Mobilizers, Mobilizer{
			Joint:      e.joint,
			Kind:       e.joint.Kind,
			Inboard:    in.link,
			Outboard:   out.link,
			Slave:      true,
			SlaveIndex: out.slaves,
			Level:      in.level + 1,
		})
		out.slaves++
		b.opts.log.Debugf("joint [%s] closes a loop, link [%s] gets slave body %d", e.joint.Name, out.link.Name, out.slaves)
	}
}

func (b *builder) finish() {
	fragments := make(map[*scene.Link]int, len(b.bodies))
	for _, bb := range b.bodies[1:] {
		fragments[bb.link] = bb.slaves + 1
	}
	for i := range b.graph.Mobilizers {
		mob := &b.graph.Mobilizers[i]
		mob.Fragments = fragments[mob.Outboard]
	}
	sort.SliceStable(b.graph.Mobilizers, func(i, j int) bool {
		return b.graph.Mobilizers[i].Level < b.graph.Mobilizers[j].Level
	})
}

func (g *Graph) NumSlaves() int {
	n := 0
	for _, m := range g.Mobilizers {
		if m.Slave {
			n++
		}
	}
	return n
}

func (g *Graph) NumAddedBases() int {
	n := 0
	for _, m := range g.Mobilizers {
		if m.AddedBase {
			n++
		}
	}
	return n
}

// Fragments returns how many mobilized bodies carry link's mass.
func (g *Graph) Fragments(l *scene.Link) int {
	for _, m := range g.Mobilizers {
		if m.Outboard == l {
			return m.Fragments
		}
	}
	return 1
}
