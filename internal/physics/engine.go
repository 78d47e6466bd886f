package physics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/graph"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
	"github.com/san-kum/rigidsim/internal/shapes"
	"github.com/san-kum/rigidsim/internal/snapshot"
)

// StepHook runs after every completed tick, under the engine lock. ctx
// carries the lock, so the hook may call back into the engine with it.
type StepHook func(ctx context.Context, t float64)

type Option func(*Engine)

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithBackend overrides the backend named in the configuration.
func WithBackend(name string) Option {
	return func(e *Engine) { e.cfg.Backend = name }
}

// WithTessellator shares t across engines. The engine does not close it.
func WithTessellator(t *shapes.Tessellator) Option {
	return func(e *Engine) { e.tess = t }
}

// Stats counts engine lifecycle events.
type Stats struct {
	Ticks    int
	Retries  int
	Failures int
	Rebuilds int
}

// status is the lock-free view published after every change.
type status struct {
	time    float64
	models  []*scene.Model
	gravity mgl64.Vec3
	info    Info
	stats   Stats
	cfg     *config.Config
}

// Engine owns one backend world and the models bound into it. Topology
// changes rebuild the world and carry the state of surviving models over.
type Engine struct {
	sem    chan struct{}
	holder atomic.Pointer[lockToken]
	seq    uint64

	cfg     *config.Config
	log     logging.Logger
	tess    *shapes.Tessellator
	ownTess bool

	world  backend.World
	models []*scene.Model
	graphs map[uuid.UUID]*graph.Graph
	// idle is the time while no model is loaded.
	idle float64

	gravity        mgl64.Vec3
	enabled        bool
	realTimeFactor float64
	updateRate     float64
	stats          Stats

	pub atomic.Pointer[status]

	hookMu sync.Mutex
	hooks  []StepHook

	dirty dirtyQueue
}

// New creates an engine with an empty world. cfg is copied; nil uses the
// defaults.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		sem:    make(chan struct{}, 1),
		cfg:    cfg.Clone(),
		log:    logging.Nop(),
		graphs: map[uuid.UUID]*graph.Graph{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.tess == nil {
		e.tess = shapes.NewTessellator(e.cfg.Workers)
		e.ownTess = true
	}
	e.gravity = e.cfg.GravityVec()
	e.enabled = true
	e.realTimeFactor = e.cfg.RealTimeFactor
	e.updateRate = e.cfg.UpdateRate

	w, err := backend.New(e.cfg.Backend, e.worldOptions())
	if err != nil {
		e.Close()
		return nil, err
	}
	e.world = w
	e.publish()
	e.log.Debugf("physics engine ready: backend [%s], solver [%s], integrator [%s]", e.cfg.Backend, w.SolverType(), w.IntegratorType())
	return e, nil
}

// Close releases the tessellation pool if the engine created it.
func (e *Engine) Close() {
	if e.ownTess && e.tess != nil {
		e.tess.Close()
		e.tess = nil
	}
}

func (e *Engine) Logger() logging.Logger { return e.log }

// Config returns a copy of the configuration the engine runs with.
func (e *Engine) Config() *config.Config {
	return e.pub.Load().cfg.Clone()
}

func (e *Engine) Time() float64 { return e.pub.Load().time }

func (e *Engine) Gravity() mgl64.Vec3 { return e.pub.Load().gravity }

// Models returns the loaded models in load order.
func (e *Engine) Models() []*scene.Model { return e.pub.Load().models }

func (e *Engine) Stats() Stats { return e.pub.Load().stats }

// Model returns the loaded model with id, or nil.
func (e *Engine) Model(id uuid.UUID) *scene.Model {
	for _, m := range e.Models() {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Graph returns the multibody graph a loaded model was bound with.
func (e *Engine) Graph(ctx context.Context, id uuid.UUID) (*graph.Graph, error) {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	g, ok := e.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return g, nil
}

// OnStepEnd registers h to run after every completed tick.
func (e *Engine) OnStepEnd(h StepHook) {
	e.hookMu.Lock()
	e.hooks = append(e.hooks, h)
	e.hookMu.Unlock()
}

func (e *Engine) stepHooks() []StepHook {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	return slices.Clone(e.hooks)
}

func (e *Engine) running() bool {
	return e.world.Initialized() && len(e.models) > 0
}

func (e *Engine) now() float64 {
	if e.world.Initialized() {
		return e.world.Time()
	}
	return e.idle
}

func (e *Engine) worldOptions() backend.Options {
	opts := e.cfg.BackendOptions()
	opts.Gravity = e.gravity
	opts.Logger = e.log
	opts.Tessellator = e.tess
	return opts
}

func (e *Engine) graphOptions() []graph.Option {
	opts := []graph.Option{graph.WithLogger(e.log)}
	if e.cfg.LoopConstraints {
		opts = append(opts, graph.WithLoopConstraints())
	}
	return opts
}

func (e *Engine) publish() {
	e.pub.Store(&status{
		time:    e.now(),
		models:  slices.Clone(e.models),
		gravity: e.gravity,
		info:    e.info(),
		stats:   e.stats,
		cfg:     e.cfg.Clone(),
	})
}

// AddModel binds m into a rebuilt world. Models already loaded keep their
// state. If m cannot be bound the world is rebuilt without it and a
// LoadError is returned.
func (e *Engine) AddModel(ctx context.Context, m *scene.Model) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer e.publish()

	if m == nil {
		return graph.ErrNilModel
	}
	if slices.ContainsFunc(e.models, func(have *scene.Model) bool { return have.ID == m.ID }) {
		return fmt.Errorf("%w: %q", ErrDuplicateModel, m.Name)
	}

	t := e.now()
	snap := snapshot.Capture(e.world, e.models, nil)
	models := append(slices.Clone(e.models), m)
	if err := e.rebuild(models, snap, t); err != nil {
		e.log.Errorf("model [%s] failed to load: %v", m.Name, err)
		m.Unbind()
		if rerr := e.rebuild(e.models, snap, t); rerr != nil {
			e.abandon(t, rerr)
			return &LoadError{Model: m.Name, Wrapped: errors.Join(err, rerr)}
		}
		return &LoadError{Model: m.Name, Wrapped: err}
	}
	e.models = models
	e.log.Infof("model [%s] loaded: %d links, %d joints", m.Name, len(m.Links), len(m.Joints))
	return nil
}

// RemoveModel drops the model with id and rebuilds the world around the
// rest.
func (e *Engine) RemoveModel(ctx context.Context, id uuid.UUID) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer e.publish()

	idx := slices.IndexFunc(e.models, func(m *scene.Model) bool { return m.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	removed := e.models[idx]
	t := e.now()
	snap := snapshot.Capture(e.world, e.models, removed)
	models := slices.Delete(slices.Clone(e.models), idx, idx+1)
	if err := e.rebuild(models, snap, t); err != nil {
		e.abandon(t, err)
		return fmt.Errorf("remove model %q: %w", removed.Name, err)
	}
	removed.Unbind()
	e.models = models
	e.dirty.drop(removed)
	e.log.Infof("model [%s] removed", removed.Name)
	return nil
}

// rebuild binds models into a fresh world, restores snap and sets the time
// to t. The engine keeps its current world on error.
func (e *Engine) rebuild(models []*scene.Model, snap snapshot.Snapshot, t float64) error {
	for _, m := range e.models {
		m.Unbind()
	}
	for _, m := range models {
		m.Unbind()
	}

	w, err := backend.New(e.cfg.Backend, e.worldOptions())
	if err != nil {
		return err
	}
	graphs := make(map[uuid.UUID]*graph.Graph, len(models))
	for _, m := range models {
		g, err := graph.Build(m, e.graphOptions()...)
		if err != nil {
			return fmt.Errorf("model %q: %w", m.Name, err)
		}
		if err := w.BindModel(m, g); err != nil {
			return err
		}
		graphs[m.ID] = g
	}
	if len(models) > 0 {
		if err := w.Initialize(); err != nil {
			return err
		}
		if err := snapshot.Apply(snap, w, models, e.log); err != nil {
			e.log.Warnf("state not fully restored after rebuild: %v", err)
		}
		w.SetTime(t)
	}

	e.world, e.graphs, e.idle = w, graphs, t
	e.stats.Rebuilds++
	if w.Initialized() {
		e.harvest(models)
	}
	return nil
}

// abandon drops every model after a rebuild that could not be undone.
func (e *Engine) abandon(t float64, cause error) {
	e.log.Errorf("world could not be rebuilt, unloading all models: %v", cause)
	for _, m := range e.models {
		m.Unbind()
		e.dirty.drop(m)
	}
	e.models = nil
	e.graphs = map[uuid.UUID]*graph.Graph{}
	if w, err := backend.New(e.cfg.Backend, e.worldOptions()); err == nil {
		e.world = w
	}
	e.idle = t
}

// Reset returns every model to its default state at time zero and puts the
// current gravity back.
func (e *Engine) Reset(ctx context.Context) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer e.publish()

	e.idle = 0
	if !e.world.Initialized() {
		return nil
	}
	if err := e.world.Reset(); err != nil {
		return err
	}
	if err := e.world.SetGravity(e.gravity); err != nil {
		return err
	}
	e.harvest(e.models)
	e.log.Debugf("physics reset")
	return nil
}

// SetGravity changes gravity without a rebuild. Before any model is
// running it sets the default every rebuilt world starts from.
func (e *Engine) SetGravity(ctx context.Context, g mgl64.Vec3) error {
	_, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	defer e.publish()
	return e.setGravity(g)
}

func (e *Engine) setGravity(g mgl64.Vec3) error {
	if e.running() {
		if err := e.world.SetGravity(g); err != nil {
			return err
		}
	} else {
		e.world.SetDefaultGravity(g)
	}
	e.gravity = g
	return nil
}
