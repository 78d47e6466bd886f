// Package snapshot carries link and joint state across a world rebuild.
// Topology changes build a fresh world; a snapshot taken from the old one
// puts every surviving model back where it was.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/san-kum/rigidsim/internal/backend"
	"github.com/san-kum/rigidsim/internal/geom"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/scene"
)

type LinkState struct {
	ID       uuid.UUID
	Name     string
	Pose     geom.Pose
	Velocity geom.Velocity
}

// JointState holds native coordinates. Q and U are nil for a joint with
// no coordinates of its own, such as a loop constraint.
type JointState struct {
	ID   uuid.UUID
	Name string
	Q, U []float64
}

type ModelState struct {
	ID     uuid.UUID
	Name   string
	Links  []LinkState
	Joints []JointState
}

type Snapshot struct {
	Time   float64
	Models []ModelState
}

// Empty reports whether the snapshot holds no model.
func (s Snapshot) Empty() bool { return len(s.Models) == 0 }

// Capture records the state of every model except exclude. Unbound links
// and joints are left out. An uninitialized world gives an empty snapshot.
func Capture(w backend.World, models []*scene.Model, exclude *scene.Model) Snapshot {
	if w == nil || !w.Initialized() {
		return Snapshot{}
	}
	s := Snapshot{Time: w.Time()}
	for _, m := range models {
		if m == exclude {
			continue
		}
		ms := ModelState{ID: m.ID, Name: m.Name}
		for _, l := range m.Links {
			p, err := w.LinkPose(l)
			if err != nil {
				continue
			}
			v, err := w.LinkVelocity(l)
			if err != nil {
				continue
			}
			ms.Links = append(ms.Links, LinkState{ID: l.ID, Name: l.Name, Pose: p, Velocity: v})
		}
		for _, j := range m.Joints {
			if !j.Bound() {
				continue
			}
			q, u, err := w.JointState(j)
			if err != nil {
				continue
			}
			ms.Joints = append(ms.Joints, JointState{ID: j.ID, Name: j.Name, Q: q, U: u})
		}
		s.Models = append(s.Models, ms)
	}
	return s
}

// matches reports whether every captured element of ms still exists in m
// under the same name.
func matches(ms ModelState, m *scene.Model) error {
	if ms.Name != m.Name {
		return fmt.Errorf("model renamed from %q to %q", ms.Name, m.Name)
	}
	for _, ls := range ms.Links {
		l := m.Link(ls.ID)
		if l == nil || l.Name != ls.Name {
			return fmt.Errorf("link %q no longer matches", ls.Name)
		}
	}
	for _, js := range ms.Joints {
		j := m.Joint(js.ID)
		if j == nil || j.Name != js.Name {
			return fmt.Errorf("joint %q no longer matches", js.Name)
		}
	}
	return nil
}

// Apply writes s into w, which must be initialized, and sets its time. A
// model absent from s keeps its default state. A model whose captured
// links or joints no longer match is left at its default with a warning.
func Apply(s Snapshot, w backend.World, models []*scene.Model, log logging.Logger) error {
	if log == nil {
		log = logging.Nop()
	}
	if s.Empty() {
		return nil
	}
	byID := make(map[uuid.UUID]*scene.Model, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	var errs []error
	for _, ms := range s.Models {
		m, ok := byID[ms.ID]
		if !ok {
			continue
		}
		if err := matches(ms, m); err != nil {
			log.Warnf("model [%s] left at its default state: %v", ms.Name, err)
			continue
		}
		for _, js := range ms.Joints {
			if js.Q == nil {
				continue
			}
			if err := w.SetJointState(m.Joint(js.ID), js.Q, js.U); err != nil && !errors.Is(err, backend.ErrNotBound) {
				errs = append(errs, fmt.Errorf("joint %q: %w", js.Name, err))
			}
		}
		// Link states go last. A maximal-coordinate world places each child
		// on its ideal joint geometry when joint coordinates are set, which
		// would overwrite the captured poses.
		for _, ls := range ms.Links {
			if err := w.SetLinkState(m.Link(ls.ID), ls.Pose, ls.Velocity); err != nil && !errors.Is(err, backend.ErrNotBound) {
				errs = append(errs, fmt.Errorf("link %q: %w", ls.Name, err))
			}
		}
	}
	w.SetTime(s.Time)
	return errors.Join(errs...)
}
