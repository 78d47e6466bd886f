package physics

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/scene"
)

// DirtyPose is a link pose published by a completed tick. The queue holds
// only the latest pose of each link: ticks that complete between two drains
// overwrite earlier entries rather than appending one per tick.
type DirtyPose struct {
	LinkID uuid.UUID
	Model  string
	Link   string
	Pose   geom.Pose
}

// dirtyQueue keeps the latest pose of every link until it is drained.
type dirtyQueue struct {
	mu    sync.Mutex
	poses []DirtyPose
	index map[uuid.UUID]int
}

func (q *dirtyQueue) push(batch []DirtyPose) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index == nil {
		q.index = map[uuid.UUID]int{}
	}
	for _, p := range batch {
		if i, ok := q.index[p.LinkID]; ok {
			q.poses[i] = p
			continue
		}
		q.index[p.LinkID] = len(q.poses)
		q.poses = append(q.poses, p)
	}
}

func (q *dirtyQueue) drain() []DirtyPose {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.poses
	q.poses = nil
	q.index = nil
	return out
}

// drop forgets queued poses of m's links.
func (q *dirtyQueue) drop(m *scene.Model) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.poses) == 0 {
		return
	}
	gone := make(map[uuid.UUID]bool, len(m.Links))
	for _, l := range m.Links {
		gone[l.ID] = true
	}
	kept := q.poses[:0]
	q.index = map[uuid.UUID]int{}
	for _, p := range q.poses {
		if gone[p.LinkID] {
			continue
		}
		q.index[p.LinkID] = len(kept)
		kept = append(kept, p)
	}
	q.poses = kept
}

// DrainDirtyPoses returns the latest pose of every link published since
// the last drain, one per link, and empties the queue. Intermediate poses
// of ticks between drains are not kept; record a trajectory through
// OnStepEnd or a sim observer instead.
func (e *Engine) DrainDirtyPoses() []DirtyPose {
	return e.dirty.drain()
}

// Step advances the world to target. A failed step is retried once; a
// second failure ends the tick with a TickError and leaves the harvested
// poses as they were. External forces are cleared either way.
//
// With physics disabled, or no model loaded, only the time moves.
func (e *Engine) Step(ctx context.Context, target float64) error {
	ctx, unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if target <= e.now() {
		return nil
	}
	if !e.world.Initialized() {
		e.idle = target
		e.publish()
		return nil
	}
	if !e.enabled {
		e.world.SetTime(target)
		e.world.ClearForces()
		e.publish()
		return nil
	}

	err = e.world.StepTo(target)
	if err != nil {
		e.stats.Retries++
		e.log.Warnf("physics step to t=%.6f failed, retrying: %v", target, err)
		err = e.world.StepTo(target)
	}
	if err != nil {
		e.stats.Failures++
		e.world.ClearForces()
		e.log.Errorf("physics step to t=%.6f failed, halting until next tick: %v", target, err)
		e.publish()
		return &TickError{Target: target, Wrapped: err}
	}

	e.harvest(e.models)
	e.world.ClearForces()
	e.stats.Ticks++
	e.publish()

	t := e.world.Time()
	for _, h := range e.stepHooks() {
		h(ctx, t)
	}
	return nil
}

// harvest publishes the pose of every bound link and caches joint
// reactions.
func (e *Engine) harvest(models []*scene.Model) {
	var batch []DirtyPose
	for _, m := range models {
		for _, l := range m.Links {
			p, err := e.world.LinkPose(l)
			if err != nil {
				continue
			}
			v, err := e.world.LinkVelocity(l)
			if err != nil {
				v = geom.Velocity{}
			}
			l.SetState(p, v)
			batch = append(batch, DirtyPose{LinkID: l.ID, Model: m.Name, Link: l.Name, Pose: p})
		}
		for _, j := range m.Joints {
			if !j.Bound() {
				continue
			}
			if wr, err := e.world.JointWrench(j); err == nil {
				j.CacheWrench(wr)
			}
		}
	}
	e.dirty.push(batch)
}
