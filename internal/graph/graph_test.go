package graph_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/graph"
	"github.com/san-kum/rigidsim/internal/jointtype"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
)

func addLinks(m *scene.Model, masses map[string]float64, names ...string) []*scene.Link {
	links := make([]*scene.Link, len(names))
	for i, name := range names {
		mass := 1.0
		if v, ok := masses[name]; ok {
			mass = v
		}
		l, err := m.AddLink(name, scene.SolidSphere(mass, 0.1), geom.Identity())
		Expect(err).NotTo(HaveOccurred())
		links[i] = l
	}
	return links
}

func join(m *scene.Model, name string, kind jointtype.Kind, parent, child *scene.Link) *scene.Joint {
	j, err := m.AddJoint(name, kind, parent, child)
	Expect(err).NotTo(HaveOccurred())
	return j
}

// expectParentFirst checks that every inboard link is mobilized before it
// is used.
func expectParentFirst(g *graph.Graph) {
	seen := map[*scene.Link]bool{}
	for _, mob := range g.Mobilizers {
		if mob.Inboard != nil {
			Expect(seen[mob.Inboard]).To(BeTrue(), "inboard %s used before it was mobilized", mob.Inboard.Name)
		}
		if !mob.Slave {
			seen[mob.Outboard] = true
		}
	}
}

var _ = Describe("Build", func() {
	var (
		m   *scene.Model
		rec *logging.Recorder
	)

	BeforeEach(func() {
		m = scene.NewModel("test")
		rec = logging.NewRecorder()
	})

	It("rejects a nil model", func() {
		_, err := graph.Build(nil)
		Expect(err).To(MatchError(graph.ErrNilModel))
	})

	Context("with a tree", func() {
		It("emits one mobilizer per joint and no slaves", func() {
			l := addLinks(m, nil, "base", "upper", "lower", "hand")
			join(m, "j0", jointtype.Revolute, nil, l[0])
			join(m, "j1", jointtype.Revolute, l[0], l[1])
			join(m, "j2", jointtype.Prismatic, l[1], l[2])
			join(m, "j3", jointtype.Universal, l[2], l[3])

			g, err := graph.Build(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Mobilizers).To(HaveLen(4))
			Expect(g.NumSlaves()).To(BeZero())
			Expect(g.NumAddedBases()).To(BeZero())
			Expect(g.LoopJoints).To(BeEmpty())
			expectParentFirst(g)

			for i, mob := range g.Mobilizers {
				Expect(mob.Level).To(Equal(i + 1))
				Expect(mob.Fragments).To(Equal(1))
			}
		})

		It("adds one free base per component not reachable from world", func() {
			l := addLinks(m, map[string]float64{"b": 5}, "a", "b", "c", "lone")
			join(m, "ab", jointtype.Revolute, l[0], l[1])
			join(m, "bc", jointtype.Ball, l[1], l[2])

			g, err := graph.Build(m, graph.WithLogger(rec))
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Mobilizers).To(HaveLen(2 + 2))
			Expect(g.NumAddedBases()).To(Equal(2))
			Expect(g.NumSlaves()).To(BeZero())
			expectParentFirst(g)

			var bases []string
			for _, mob := range g.Mobilizers {
				if mob.AddedBase {
					Expect(mob.Kind).To(Equal(jointtype.Free))
					Expect(mob.Inboard).To(BeNil())
					Expect(mob.Joint).To(BeNil())
					bases = append(bases, mob.Outboard.Name)
				}
			}
			Expect(bases).To(ConsistOf("b", "lone"))
			Expect(rec.Count("DEBUG")).To(Equal(2))
		})

		It("reverses a joint whose child is reached first", func() {
			l := addLinks(m, nil, "a", "b")
			join(m, "ground", jointtype.Revolute, nil, l[1])
			join(m, "ab", jointtype.Revolute, l[0], l[1])

			g, err := graph.Build(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Mobilizers).To(HaveLen(2))
			rev := g.Mobilizers[1]
			Expect(rev.Joint.Name).To(Equal("ab"))
			Expect(rev.Reversed).To(BeTrue())
			Expect(rev.Inboard).To(Equal(l[1]))
			Expect(rev.Outboard).To(Equal(l[0]))
		})

		It("prefers a must-be-base link over a heavier one", func() {
			l := addLinks(m, map[string]float64{"heavy": 10}, "heavy", "light")
			l[1].MustBeBase = true
			join(m, "j", jointtype.Revolute, l[0], l[1])

			g, err := graph.Build(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Mobilizers[0].AddedBase).To(BeTrue())
			Expect(g.Mobilizers[0].Outboard.Name).To(Equal("light"))
			Expect(g.Mobilizers[1].Reversed).To(BeTrue())
		})

		It("turns a link with no joints into its own base", func() {
			addLinks(m, nil, "box")
			g, err := graph.Build(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Mobilizers).To(HaveLen(1))
			Expect(g.Mobilizers[0].AddedBase).To(BeTrue())
		})
	})

	Context("with one closed loop", func() {
		var l []*scene.Link

		BeforeEach(func() {
			l = addLinks(m, map[string]float64{"a": 4}, "a", "b", "c", "d")
			join(m, "ab", jointtype.Revolute, l[0], l[1])
			join(m, "bc", jointtype.Revolute, l[1], l[2])
			join(m, "cd", jointtype.Revolute, l[2], l[3])
			join(m, "da", jointtype.Revolute, l[3], l[0])
		})

		It("marks exactly one loop edge and duplicates one body", func() {
			g, err := graph.Build(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.LoopJoints).To(HaveLen(1))
			Expect(g.NumSlaves()).To(Equal(1))
			Expect(g.NumAddedBases()).To(Equal(1))
			Expect(g.Mobilizers).To(HaveLen(5))
			expectParentFirst(g)

			var slave graph.Mobilizer
			for _, mob := range g.Mobilizers {
				if mob.Slave {
					slave = mob
				}
			}
			Expect(slave.Joint).To(Equal(g.LoopJoints[0]))
			Expect(slave.Outboard).To(Equal(slave.Joint.Child))
			Expect(slave.Fragments).To(Equal(2))
			Expect(g.Fragments(slave.Outboard)).To(Equal(2))
			Expect(g.Fragments(l[0])).To(Equal(1))
		})

		It("honours MustBreakLoop", func() {
			m.JointByName("ab").MustBreakLoop = true
			g, err := graph.Build(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.LoopJoints).To(HaveLen(1))
			Expect(g.LoopJoints[0].Name).To(Equal("ab"))
		})
	})

	Context("with loop constraints enabled", func() {
		It("closes a ball loop with a constraint instead of a slave", func() {
			l := addLinks(m, nil, "a", "b", "c")
			join(m, "wa", jointtype.Revolute, nil, l[0])
			join(m, "ab", jointtype.Revolute, l[0], l[1])
			join(m, "bc", jointtype.Revolute, l[1], l[2])
			join(m, "ca", jointtype.Ball, l[2], l[0]).MustBreakLoop = true

			g, err := graph.Build(m, graph.WithLoopConstraints())
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Loops).To(HaveLen(1))
			Expect(g.Loops[0].Kind).To(Equal(jointtype.Ball))
			Expect(g.NumSlaves()).To(BeZero())
			Expect(g.Mobilizers).To(HaveLen(3))
		})

		It("still duplicates a body for a revolute loop", func() {
			l := addLinks(m, nil, "a", "b")
			join(m, "wa", jointtype.Revolute, nil, l[0])
			join(m, "wb", jointtype.Revolute, nil, l[1])
			join(m, "ab", jointtype.Revolute, l[0], l[1])

			g, err := graph.Build(m, graph.WithLoopConstraints())
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Loops).To(BeEmpty())
			Expect(g.NumSlaves()).To(Equal(1))
		})
	})

	It("builds nothing for a static model", func() {
		m.Static = true
		l := addLinks(m, nil, "wall", "floor")
		join(m, "fixed", jointtype.Fixed, l[0], l[1])

		g, err := graph.Build(m)
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Static).To(BeTrue())
		Expect(g.Mobilizers).To(BeEmpty())
	})

	It("skips and records a joint without a child", func() {
		l := addLinks(m, nil, "a")
		join(m, "broken", jointtype.Revolute, l[0], nil)

		g, err := graph.Build(m, graph.WithLogger(rec))
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Rejected).To(HaveLen(1))
		Expect(g.Mobilizers).To(HaveLen(1))
		Expect(g.Mobilizers[0].AddedBase).To(BeTrue())
		Expect(rec.Count("ERROR")).To(Equal(1))
	})

	It("rejects a joint from a link to itself", func() {
		l := addLinks(m, nil, "a")
		join(m, "self", jointtype.Revolute, l[0], l[0])
		_, err := graph.Build(m)
		Expect(err).To(MatchError(ContainSubstring("itself")))
	})

	It("dumps a readable listing", func() {
		l := addLinks(m, nil, "a", "b")
		join(m, "wa", jointtype.Revolute, nil, l[0])
		join(m, "wb", jointtype.Revolute, nil, l[1])
		join(m, "ab", jointtype.Revolute, l[0], l[1])

		g, err := graph.Build(m)
		Expect(err).NotTo(HaveOccurred())
		var buf bytes.Buffer
		Expect(g.Dump(&buf)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("slave#0"))
		Expect(buf.String()).To(ContainSubstring("mass/2"))
	})
})
