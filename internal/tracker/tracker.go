// Package tracker records whether the document holds unsaved local changes.
package tracker

import (
	"sync"
	"time"
)

// State is a point-in-time copy of the tracker.
type State struct {
	Loading    bool      `json:"loading"`
	Dirty      bool      `json:"dirty"`
	Mutations  int       `json:"mutations"`
	ChangedAt  time.Time `json:"changed_at"`
	Generation uint64    `json:"-"`
}

// Tracker is the unsaved-change flag. Every mutation bumps a generation
// counter; a save only clears the flag when no mutation happened since the
// snapshot it transmitted was taken.
type Tracker struct {
	mu         sync.Mutex
	loading    bool
	dirty      bool
	mutations  int
	changedAt  time.Time
	generation uint64
}

// New returns a tracker in the loading state.
func New() *Tracker {
	return &Tracker{loading: true}
}

// Changed implements document.Observer. While loading, mutations are
// counted in the generation but never flip the dirty flag.
func (t *Tracker) Changed(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	if t.loading {
		return
	}
	t.dirty = true
	t.mutations++
	t.changedAt = at
}

// FinishLoad leaves the loading state with a clean document.
func (t *Tracker) FinishLoad() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	t.reset()
}

// Reset marks the document clean unconditionally, e.g. after adopting a
// remote snapshot.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// MarkSaved clears the dirty flag if generation is still current and
// reports whether it did.
func (t *Tracker) MarkSaved(generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generation != generation {
		return false
	}
	t.reset()
	return true
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Loading:    t.loading,
		Dirty:      t.dirty,
		Mutations:  t.mutations,
		ChangedAt:  t.changedAt,
		Generation: t.generation,
	}
}

func (t *Tracker) reset() {
	t.dirty = false
	t.mutations = 0
	t.changedAt = time.Time{}
}
