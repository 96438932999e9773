// Package trail keeps a bounded, chronologically ordered position history
// for every target present in the latest snapshot.
package trail

import (
	"sync"

	"github.com/spaceshield/sitaware/internal/queue"
	"github.com/spaceshield/sitaware/pkg/core"
)

// DefaultMaxPoints is the trail length used when none is configured.
const DefaultMaxPoints = 50

// Manager owns the trail of every live target. Update is the only writer and
// must be called once per snapshot, in snapshot order. Readers may call the
// accessors from any goroutine.
type Manager struct {
	mu     sync.RWMutex
	max    int
	trails map[string]*queue.Ring[core.Position3]
}

// NewManager creates a manager keeping at most maxPoints per target.
// Non-positive values fall back to DefaultMaxPoints.
func NewManager(maxPoints int) *Manager {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Manager{
		max:    maxPoints,
		trails: make(map[string]*queue.Ring[core.Position3]),
	}
}

// MaxPoints returns the per-target cap.
func (m *Manager) MaxPoints() int {
	return m.max
}

// Update folds one snapshot into the trails.
//
// A target's new position is appended unless it exactly equals the last
// recorded point; the oldest point is dropped once the cap is exceeded.
// Trails of targets missing from the snapshot are deleted outright.
func (m *Manager) Update(targets []core.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		active[t.ID] = struct{}{}

		ring, ok := m.trails[t.ID]
		if !ok {
			ring = queue.NewRing[core.Position3](m.max)
			m.trails[t.ID] = ring
		}

		if last, ok := ring.Last(); ok && last == t.Position {
			continue
		}
		ring.Push(t.Position)
	}

	for id := range m.trails {
		if _, ok := active[id]; !ok {
			delete(m.trails, id)
		}
	}
}

// History returns a copy of one target's trail, oldest first.
func (m *Manager) History(id string) ([]core.Position3, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ring, ok := m.trails[id]
	if !ok {
		return nil, false
	}
	return ring.Items(), true
}

// Snapshot returns a deep copy of every trail keyed by target id.
func (m *Manager) Snapshot() map[string][]core.Position3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]core.Position3, len(m.trails))
	for id, ring := range m.trails {
		out[id] = ring.Items()
	}
	return out
}

// Len returns the number of tracked targets.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trails)
}

// Points returns the total number of stored positions.
func (m *Manager) Points() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ring := range m.trails {
		n += ring.Len()
	}
	return n
}
