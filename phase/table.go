package phase

import (
	"fmt"
	"sort"
	"time"
)

// TransitionState is the in-flight blend of one entity from one phase to
// another. It exists only while 0 <= Progress < 1.
type TransitionState struct {
	ID       uint64
	EntityID string
	From     *Phase
	To       *Phase
	Start    time.Duration
	Duration time.Duration
	Progress float64
	Style    Style
	Easing   Easing
	// Abandoned transitions are kept until a full reset but are neither
	// advanced nor drawn.
	Abandoned bool
}

// Table is the single authoritative copy of which phase each entity is in,
// plus the at-most-one TransitionState per entity. Only the transition engine
// mutates it.
type Table struct {
	store       Store
	active      map[string]string
	transitions map[string]*TransitionState
	stale       map[string]string
}

func NewTable(store Store) *Table {
	return &Table{
		store:       store,
		active:      make(map[string]string),
		transitions: make(map[string]*TransitionState),
		stale:       make(map[string]string),
	}
}

// Active returns the entity's current phase id.
func (t *Table) Active(entityID string) (string, bool) {
	id, ok := t.active[entityID]
	return id, ok
}

// ActivePhase resolves the entity's current phase record.
func (t *Table) ActivePhase(entityID string) (*Phase, bool) {
	id, ok := t.active[entityID]
	if !ok {
		return nil, false
	}
	return t.store.Phase(entityID, id)
}

// Snapshot copies the whole active-phase table.
func (t *Table) Snapshot() map[string]string {
	out := make(map[string]string, len(t.active))
	for k, v := range t.active {
		out[k] = v
	}
	return out
}

// SetActive records phaseID as the entity's active phase. The phase must exist
// in that entity's catalog.
func (t *Table) SetActive(entityID, phaseID string) error {
	if _, ok := t.store.Phase(entityID, phaseID); !ok {
		return fmt.Errorf("%w: %s/%s", ErrPhaseNotFound, entityID, phaseID)
	}
	t.active[entityID] = phaseID
	return nil
}

// Transition returns a copy of the entity's in-flight transition.
func (t *Table) Transition(entityID string) (TransitionState, bool) {
	ts, ok := t.transitions[entityID]
	if !ok {
		return TransitionState{}, false
	}
	return *ts, true
}

// Transitioning reports whether the entity has a live (not abandoned) transition.
func (t *Table) Transitioning(entityID string) bool {
	ts, ok := t.transitions[entityID]
	return ok && !ts.Abandoned
}

// Transitions returns copies of every in-flight transition, ordered by entity id.
func (t *Table) Transitions() []TransitionState {
	out := make([]TransitionState, 0, len(t.transitions))
	for _, ts := range t.transitions {
		out = append(out, *ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// BeginTransition installs ts as the entity's only transition, returning the
// one it superseded, if any.
func (t *Table) BeginTransition(ts TransitionState) (TransitionState, bool) {
	prev, had := t.transitions[ts.EntityID]
	cp := ts
	t.transitions[ts.EntityID] = &cp
	delete(t.stale, ts.EntityID)
	if !had {
		return TransitionState{}, false
	}
	return *prev, true
}

// SetProgress stores the entity's latest progress.
func (t *Table) SetProgress(entityID string, progress float64) {
	if ts, ok := t.transitions[entityID]; ok {
		ts.Progress = progress
	}
}

// EndTransition deletes the entity's transition.
func (t *Table) EndTransition(entityID string) (TransitionState, bool) {
	ts, ok := t.transitions[entityID]
	if !ok {
		return TransitionState{}, false
	}
	delete(t.transitions, entityID)
	return *ts, true
}

// AbandonAll freezes every in-flight transition without deleting it.
func (t *Table) AbandonAll() {
	for _, ts := range t.transitions {
		ts.Abandoned = true
	}
}

// MarkStale records that the entity's pixels should keep showing phaseID even
// though the active table has moved on (a failed transition is not rolled back).
func (t *Table) MarkStale(entityID, phaseID string) {
	if phaseID == "" {
		return
	}
	t.stale[entityID] = phaseID
}

// Stale returns the phase the entity is still visually stuck on, if any.
func (t *Table) Stale(entityID string) (string, bool) {
	id, ok := t.stale[entityID]
	return id, ok
}

// Reset clears every transition and stale marker and puts each known entity
// back into its default phase.
func (t *Table) Reset(entityIDs []string) {
	t.transitions = make(map[string]*TransitionState)
	t.stale = make(map[string]string)
	t.active = make(map[string]string)
	for _, id := range entityIDs {
		if def, ok := t.store.DefaultPhase(id); ok {
			t.active[id] = def.ID
		}
	}
}

// Rebind points the table at a new store (catalog reload). Entities whose
// active phase no longer exists fall back to their default; in-flight
// transitions referring to vanished phases are dropped.
func (t *Table) Rebind(store Store, entityIDs []string) []string {
	t.store = store
	var repaired []string
	known := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		known[id] = true
		cur, ok := t.active[id]
		if ok {
			if _, exists := store.Phase(id, cur); exists {
				continue
			}
		}
		if def, ok := store.DefaultPhase(id); ok {
			t.active[id] = def.ID
			repaired = append(repaired, id)
		} else {
			delete(t.active, id)
		}
	}
	for id := range t.active {
		if !known[id] {
			delete(t.active, id)
		}
	}
	for id, ts := range t.transitions {
		if _, ok := store.Phase(id, ts.To.ID); !known[id] || !ok {
			delete(t.transitions, id)
		}
	}
	for id, phaseID := range t.stale {
		if _, ok := store.Phase(id, phaseID); !ok {
			delete(t.stale, id)
		}
	}
	sort.Strings(repaired)
	return repaired
}
