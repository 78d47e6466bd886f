package physics_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/integrators"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/physics"
	"github.com/san-kum/rigidsim/internal/scene"
)

func ptr[T any](v T) *T { return &v }

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		rec *logging.Recorder
		eng *physics.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = logging.NewRecorder()
	})

	AfterEach(func() {
		if eng != nil {
			eng.Close()
		}
	})

	Context("on a scripted backend", func() {
		var box *scene.Model

		BeforeEach(func() {
			fake.reset()
			var err error
			eng, err = physics.New(config.DefaultConfig(), physics.WithBackend(fakeName), physics.WithLogger(rec))
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.created).To(Equal(1))
			box = ball("box", 0, 0, 1)
		})

		It("sets default gravity before a model runs and live gravity after", func() {
			g1 := mgl64.Vec3{0, 0, -1}
			Expect(eng.SetGravity(ctx, g1)).To(Succeed())
			Expect(eng.Gravity()).To(Equal(g1))
			Expect(fake.last.Gravity()).To(Equal(g1))
			Expect(fake.last.liveGravitySet).To(Equal(0))

			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(fake.created).To(Equal(2))
			Expect(fake.last.Gravity()).To(Equal(g1))

			g2 := mgl64.Vec3{1, 0, 0}
			Expect(eng.SetGravity(ctx, g2)).To(Succeed())
			Expect(fake.created).To(Equal(2))
			Expect(fake.last.liveGravitySet).To(Equal(1))
			Expect(fake.last.Gravity()).To(Equal(g2))
			Expect(eng.Gravity()).To(Equal(g2))
		})

		It("publishes link poses after a completed tick", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			eng.DrainDirtyPoses()

			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			Expect(eng.Time()).To(BeNumerically("~", 0.1, 1e-12))
			l := box.Links[0]
			Expect(l.WorldPose().Pos[0]).To(BeNumerically("~", 0.1, 1e-12))
			Expect(l.Velocity().Linear).To(Equal(mgl64.Vec3{1, 0, 0}))

			dirty := eng.DrainDirtyPoses()
			Expect(dirty).To(HaveLen(1))
			Expect(dirty[0].LinkID).To(Equal(l.ID))
			Expect(dirty[0].Model).To(Equal("box"))
			Expect(eng.DrainDirtyPoses()).To(BeEmpty())
		})

		It("keeps one queued pose per link until drained", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			Expect(eng.Step(ctx, 0.2)).To(Succeed())
			dirty := eng.DrainDirtyPoses()
			Expect(dirty).To(HaveLen(1))
			Expect(dirty[0].Pose.Pos[0]).To(BeNumerically("~", 0.2, 1e-12))
		})

		It("survives a tick that fails twice and recovers on the next", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			eng.DrainDirtyPoses()
			l := box.Links[0]
			before := l.WorldPose()

			Expect(eng.ApplyLinkForce(ctx, l, mgl64.Vec3{1, 0, 0}, before.Pos)).To(Succeed())
			fake.failSteps = 2
			err := eng.Step(ctx, 0.2)
			Expect(err).To(MatchError(integrators.ErrInvalidState))
			var tick *physics.TickError
			Expect(errors.As(err, &tick)).To(BeTrue())
			Expect(tick.Target).To(Equal(0.2))

			Expect(l.WorldPose()).To(Equal(before))
			Expect(eng.DrainDirtyPoses()).To(BeEmpty())
			Expect(fake.last.forces).To(Equal(0))
			Expect(eng.Time()).To(BeNumerically("~", 0.1, 1e-12))
			Expect(eng.Stats().Failures).To(Equal(1))
			Expect(rec.Count("ERROR")).To(Equal(1))

			Expect(eng.Step(ctx, 0.2)).To(Succeed())
			Expect(l.WorldPose().Pos[0]).To(BeNumerically("~", before.Pos[0]+0.1, 1e-12))
			Expect(eng.Time()).To(BeNumerically("~", 0.2, 1e-12))
		})

		It("retries a failed step once", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			fake.failSteps = 1
			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			Expect(eng.Stats().Retries).To(Equal(1))
			Expect(eng.Stats().Ticks).To(Equal(1))
			Expect(rec.Count("WARN")).To(Equal(1))
		})

		It("clears external forces after every tick", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(eng.ApplyLinkTorque(ctx, box.Links[0], mgl64.Vec3{0, 0, 1})).To(Succeed())
			Expect(fake.last.forces).To(Equal(1))
			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			Expect(fake.last.forces).To(Equal(0))
		})

		It("runs step hooks with a context that re-enters the lock", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			var seen []float64
			var blocked error
			eng.OnStepEnd(func(hctx context.Context, t float64) {
				seen = append(seen, t)
				Expect(eng.SetGravity(hctx, mgl64.Vec3{0, 0, -t})).To(Succeed())

				short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
				defer cancel()
				blocked = eng.SetGravity(short, mgl64.Vec3{})
			})

			Expect(eng.Step(ctx, 0.5)).To(Succeed())
			Expect(seen).To(Equal([]float64{0.5}))
			Expect(eng.Gravity()).To(Equal(mgl64.Vec3{0, 0, -0.5}))
			Expect(blocked).To(MatchError(context.DeadlineExceeded))
		})

		It("rebuilds without a model that fails to bind", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(eng.Step(ctx, 0.3)).To(Succeed())

			err := eng.AddModel(ctx, ball("broken", 0, 0, 0))
			var load *physics.LoadError
			Expect(errors.As(err, &load)).To(BeTrue())
			Expect(load.Model).To(Equal("broken"))
			Expect(rec.Count("ERROR")).To(BeNumerically(">=", 1))

			Expect(eng.Models()).To(ConsistOf(box))
			_, bound := box.Links[0].Master()
			Expect(bound).To(BeTrue())
			Expect(eng.Time()).To(BeNumerically("~", 0.3, 1e-12))
			p, err := fake.last.LinkPose(box.Links[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Pos[0]).To(BeNumerically("~", 0.3, 1e-12))
		})

		It("rejects a model added twice", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(eng.AddModel(ctx, box)).To(MatchError(physics.ErrDuplicateModel))
			Expect(eng.AddModel(ctx, nil)).To(HaveOccurred())
		})

		It("removes models and keeps the time", func() {
			other := ball("other", 1, 0, 0)
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(eng.AddModel(ctx, other)).To(Succeed())
			Expect(eng.Step(ctx, 0.2)).To(Succeed())

			Expect(eng.RemoveModel(ctx, box.ID)).To(Succeed())
			Expect(eng.Models()).To(ConsistOf(other))
			_, bound := box.Links[0].Master()
			Expect(bound).To(BeFalse())
			p, err := fake.last.LinkPose(other.Links[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Pos[0]).To(BeNumerically("~", 1.2, 1e-12))

			Expect(eng.RemoveModel(ctx, other.ID)).To(Succeed())
			Expect(eng.Models()).To(BeEmpty())
			Expect(eng.Time()).To(BeNumerically("~", 0.2, 1e-12))
			Expect(eng.RemoveModel(ctx, other.ID)).To(MatchError(physics.ErrUnknownModel))

			Expect(eng.Step(ctx, 0.4)).To(Succeed())
			Expect(eng.Time()).To(BeNumerically("~", 0.4, 1e-12))
		})

		It("resets to time zero and re-applies the current gravity", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			g := mgl64.Vec3{0, 0, -3}
			Expect(eng.SetGravity(ctx, g)).To(Succeed())
			Expect(eng.Step(ctx, 0.3)).To(Succeed())

			Expect(eng.Reset(ctx)).To(Succeed())
			Expect(eng.Time()).To(Equal(0.0))
			Expect(fake.last.Gravity()).To(Equal(g))
			Expect(fake.last.liveGravitySet).To(Equal(2))
		})

		It("only moves the clock while physics is disabled", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			Expect(eng.HandlePhysicsMsg(ctx, physics.PhysicsMsg{EnablePhysics: ptr(false)})).To(Succeed())
			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			Expect(eng.Time()).To(BeNumerically("~", 0.1, 1e-12))
			Expect(box.Links[0].WorldPose().Pos[0]).To(Equal(0.0))
			Expect(eng.Info().EnablePhysics).To(BeFalse())
		})

		It("applies valid message fields and rejects the rest", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			err := eng.HandlePhysicsMsg(ctx, physics.PhysicsMsg{
				RealTimeFactor: ptr(-1.0),
				UpdateRate:     ptr(500.0),
				MaxStepSize:    ptr(0.002),
				Gravity:        &mgl64.Vec3{0, math.NaN(), 0},
			})
			Expect(err).To(MatchError(physics.ErrInvalidMessage))
			Expect(rec.Count("WARN")).To(Equal(2))

			info := eng.Info()
			Expect(info.UpdateRate).To(Equal(500.0))
			Expect(info.RealTimeFactor).To(Equal(config.DefaultRealTimeFactor))
			Expect(info.MaxStepSize).To(Equal(0.002))
			Expect(fake.last.maxStep).To(Equal(0.002))
			Expect(eng.Gravity()).To(Equal(mgl64.Vec3{0, 0, -9.8}))

			Expect(eng.HandlePhysicsMsg(ctx, physics.PhysicsMsg{})).To(Succeed())
		})

		It("answers physics_info with a JSON payload", func() {
			Expect(eng.AddModel(ctx, box)).To(Succeed())
			resp := eng.HandleRequest(ctx, physics.Request{ID: 7, Request: physics.RequestPhysicsInfo})
			Expect(resp.ID).To(Equal(int64(7)))
			Expect(resp.Response).To(Equal(physics.ResponseSuccess))
			Expect(resp.Type).To(Equal(physics.InfoType))

			var info physics.Info
			Expect(json.Unmarshal(resp.Data, &info)).To(Succeed())
			Expect(info.Backend).To(Equal(fakeName))
			Expect(info.SolverType).To(Equal("fake solver"))
			Expect(info.Gravity).To(Equal([3]float64{0, 0, -9.8}))
			Expect(info.MaxStepSize).To(Equal(config.DefaultMaxStepSize))
			Expect(info.MinStepSize).To(Equal(config.DefaultMinStepSize))
			Expect(info.EnablePhysics).To(BeTrue())
			Expect(info.Models).To(Equal(1))

			other := eng.HandleRequest(ctx, physics.Request{ID: 8, Request: "entity_list"})
			Expect(other.Response).To(Equal(physics.ResponseUnknownRequest))
			Expect(other.Data).To(BeEmpty())
		})
	})

	Context("on the tree backend", func() {
		BeforeEach(func() {
			cfg := config.DefaultConfig()
			cfg.Integrator = "rk4"
			var err error
			eng, err = physics.New(cfg, physics.WithLogger(rec))
			Expect(err).NotTo(HaveOccurred())
		})

		It("restores running models when another is added", func() {
			a, _ := pendulum(0.5)
			b := ball("ball", 0, 3, 2)
			Expect(eng.AddModel(ctx, a)).To(Succeed())
			Expect(eng.AddModel(ctx, b)).To(Succeed())
			Expect(eng.Step(ctx, 0.3)).To(Succeed())

			before := map[*scene.Link]geom.Pose{}
			vel := map[*scene.Link]geom.Velocity{}
			for _, m := range []*scene.Model{a, b} {
				for _, l := range m.Links {
					before[l] = l.WorldPose()
					vel[l] = l.Velocity()
				}
			}

			c := ball("newcomer", 5, 0, 0)
			Expect(eng.AddModel(ctx, c)).To(Succeed())
			Expect(eng.Time()).To(BeNumerically("~", 0.3, 1e-12))
			for l, p := range before {
				Expect(l.WorldPose().ApproxEqual(p, 1e-9)).To(BeTrue(), "pose of %s", l.Name)
				Expect(l.Velocity().Linear.Sub(vel[l].Linear).Len()).To(BeNumerically("<", 1e-9))
				Expect(l.Velocity().Angular.Sub(vel[l].Angular).Len()).To(BeNumerically("<", 1e-9))
			}
			Expect(c.Links[0].WorldPose().ApproxEqual(c.Links[0].DefaultWorldPose(), 1e-12)).To(BeTrue())
		})

		It("caches the reaction of a hanging pendulum", func() {
			m, j := pendulum(0)
			Expect(eng.AddModel(ctx, m)).To(Succeed())
			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			wr := j.Wrench()
			Expect(wr.Force[2]).To(BeNumerically("~", 9.8, 1e-6))
			Expect(wr.Force[0]).To(BeNumerically("~", 0, 1e-6))
		})

		It("drops a non-finite tick and steps cleanly afterwards", func() {
			b := ball("ball", 0, 0, 1)
			Expect(eng.AddModel(ctx, b)).To(Succeed())
			Expect(eng.Step(ctx, 0.05)).To(Succeed())
			l := b.Links[0]
			before := l.WorldPose()

			Expect(eng.ApplyLinkForce(ctx, l, mgl64.Vec3{math.Inf(1), 0, 0}, before.Pos)).To(Succeed())
			Expect(eng.Step(ctx, 0.1)).To(MatchError(integrators.ErrInvalidState))
			Expect(l.WorldPose()).To(Equal(before))

			Expect(eng.Step(ctx, 0.1)).To(Succeed())
			Expect(l.WorldPose().Pos[2]).To(BeNumerically("<", before.Pos[2]))
			Expect(l.WorldPose().Pos[0]).To(BeNumerically("~", 0, 1e-12))
		})

		It("swings a pendulum released off vertical", func() {
			m, j := pendulum(0.5)
			Expect(eng.AddModel(ctx, m)).To(Succeed())
			q0, err := eng.JointPosition(ctx, j, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.Step(ctx, 0.2)).To(Succeed())
			u, err := eng.JointVelocity(ctx, j, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).NotTo(BeZero())
			q, err := eng.JointPosition(ctx, j, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(q).NotTo(BeNumerically("~", q0, 1e-6))
		})

		It("refuses solver settings once a model runs", func() {
			Expect(eng.SetParam(ctx, physics.ParamMaxStepSize, 0.002)).To(Succeed())
			Expect(eng.Info().MaxStepSize).To(Equal(0.002))
			Expect(eng.AddModel(ctx, ball("ball", 0, 0, 1))).To(Succeed())
			Expect(eng.SetParam(ctx, physics.ParamMaxStepSize, 0.001)).To(MatchError(physics.ErrUnsupportedParam))
			v, err := eng.GetParam(ctx, physics.ParamAccuracy)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(config.DefaultAccuracy))
		})
	})

	Context("on the planar backend", func() {
		BeforeEach(func() {
			var err error
			eng, err = physics.New(config.GetPreset("planar"), physics.WithLogger(rec))
			Expect(err).NotTo(HaveOccurred())
		})

		It("runs a pendulum in the plane and caches its reaction", func() {
			m, j := pendulum(0.5)
			Expect(eng.AddModel(ctx, m)).To(Succeed())
			for i := 1; i <= 24; i++ {
				Expect(eng.Step(ctx, float64(i)/240)).To(Succeed())
			}
			Expect(eng.Time()).To(BeNumerically("~", 0.1, 1e-9))
			Expect(m.Links[0].WorldPose().Pos[1]).To(Equal(0.0))
			Expect(j.Wrench().Force.Len()).To(BeNumerically(">", 1))

			v, err := eng.GetParam(ctx, physics.ParamSolverType)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("Sequential Impulse"))
		})
	})
})
