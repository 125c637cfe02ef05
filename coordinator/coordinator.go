// Package coordinator expands a requested phase change into the full set of
// entity-level changes its coordination rules imply, and schedules them
// against the beat source.
package coordinator

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/milk9111/stagesync/beat"
	"github.com/milk9111/stagesync/phase"
)

// Catalog is the read side of the phase catalog the coordinator needs.
type Catalog interface {
	phase.Store
	Phases(entityID string) []*phase.Phase
	Kind(entityID string) (phase.Kind, bool)
	HasEntity(entityID string) bool
}

// ActiveTable reports each entity's current phase.
type ActiveTable interface {
	Active(entityID string) (string, bool)
}

// Executor runs one resolved request. The transition engine implements it.
type Executor interface {
	ExecuteSingle(req phase.ChangeRequest, now time.Duration) error
	Transitioning(entityID string) bool
}

type Stats struct {
	Pending    int
	Backlogged int
	Superseded int
}

type Coordinator struct {
	catalog Catalog
	active  ActiveTable
	beats   beat.Source
	exec    Executor

	rules      []*Rule
	queue      scheduledQueue
	backlog    map[string][]phase.ChangeRequest
	seq        uint64
	superseded int
}

func New(cat Catalog, active ActiveTable, beats beat.Source, exec Executor) *Coordinator {
	return &Coordinator{
		catalog: cat,
		active:  active,
		beats:   beats,
		exec:    exec,
		backlog: make(map[string][]phase.ChangeRequest),
	}
}

// AddRule validates r against the catalog and appends it. Rules are
// evaluated in insertion order.
func (c *Coordinator) AddRule(r Rule) error {
	r.normalize()
	if err := r.validate(c.catalog); err != nil {
		return err
	}
	for _, existing := range c.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, r.ID)
		}
	}
	c.rules = append(c.rules, &r)
	return nil
}

func (c *Coordinator) RemoveRule(id string) bool {
	for i, r := range c.rules {
		if r.ID == id {
			c.rules = append(c.rules[:i], c.rules[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Coordinator) Rules() []Rule {
	out := make([]Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, *r)
	}
	return out
}

// Reload swaps in a new catalog and rule set. Nothing changes unless every
// rule validates against cat. Pending work that refers to phases cat no
// longer has is dropped.
func (c *Coordinator) Reload(cat Catalog, rules []Rule) error {
	prev, prevRules := c.catalog, c.rules
	c.catalog, c.rules = cat, nil
	for _, r := range rules {
		if err := c.AddRule(r); err != nil {
			c.catalog, c.rules = prev, prevRules
			return err
		}
	}

	kept := c.queue[:0]
	for _, it := range c.queue {
		if _, ok := cat.Phase(it.Request.EntityID, it.Request.ToPhaseID); ok {
			kept = append(kept, it)
		}
	}
	c.queue = kept
	c.queue.rebuild()

	for id, reqs := range c.backlog {
		var keep []phase.ChangeRequest
		for _, r := range reqs {
			if _, ok := cat.Phase(id, r.ToPhaseID); ok {
				keep = append(keep, r)
			}
		}
		if len(keep) == 0 {
			delete(c.backlog, id)
			continue
		}
		c.backlog[id] = keep
	}
	return nil
}

// validate rejects a caller request that names an unknown entity or phase.
func (c *Coordinator) validate(req *phase.ChangeRequest) error {
	if !c.catalog.HasEntity(req.EntityID) {
		return fmt.Errorf("coordinator: %s: %w", req.EntityID, phase.ErrEntityNotFound)
	}
	if _, ok := c.catalog.Phase(req.EntityID, req.ToPhaseID); !ok {
		return fmt.Errorf("coordinator: %s/%s: %w", req.EntityID, req.ToPhaseID, phase.ErrPhaseNotFound)
	}
	if req.FromPhaseID != "" {
		if _, ok := c.catalog.Phase(req.EntityID, req.FromPhaseID); !ok {
			return fmt.Errorf("coordinator: %s/%s: %w", req.EntityID, req.FromPhaseID, phase.ErrPhaseNotFound)
		}
	}
	t, err := phase.ParseTiming(string(req.Timing))
	if err != nil {
		return fmt.Errorf("coordinator: %s: %w", req.EntityID, err)
	}
	req.Timing = t
	req.Priority = req.Priority.Normalize()
	if req.Delay < 0 {
		req.Delay = 0
	}
	return nil
}

// Resolve returns req followed by every request derived from it through the
// coordination rules, breadth first. Each entity appears at most once.
func (c *Coordinator) Resolve(req phase.ChangeRequest) ([]phase.ChangeRequest, error) {
	if err := c.validate(&req); err != nil {
		return nil, err
	}

	out := []phase.ChangeRequest{req}
	visited := map[string]bool{req.EntityID: true}
	for i := 0; i < len(out); i++ {
		cur := out[i]
		to, ok := c.catalog.Phase(cur.EntityID, cur.ToPhaseID)
		if !ok {
			continue
		}
		for _, r := range c.rules {
			if r.From != cur.EntityID || r.Mode == phase.ModeIndependent {
				continue
			}
			holds, err := r.Condition.Eval(to)
			if err != nil {
				log.Printf("coordinator: rule %s: %v", r.ID, err)
				continue
			}
			if !holds {
				continue
			}
			for idx, target := range r.To {
				if visited[target] {
					continue
				}
				dst, ok := c.mapPhase(r, to, target)
				if !ok {
					continue
				}
				visited[target] = true
				out = append(out, derive(cur, r, target, dst, idx))
			}
		}
	}
	return out, nil
}

func derive(src phase.ChangeRequest, r *Rule, target, dst string, idx int) phase.ChangeRequest {
	d := phase.ChangeRequest{
		EntityID:  target,
		ToPhaseID: dst,
		Timing:    src.Timing,
		BeatAlign: src.BeatAlign,
		Priority:  src.Priority,
		Mode:      r.Mode,
		Delay:     src.Delay + r.Delay + time.Duration(idx)*r.Stagger,
		Queue:     src.Queue,
		Rule:      r.ID,
	}
	if r.Priority != 0 {
		d.Priority = r.Priority.Normalize()
	}
	if r.Mode == phase.ModeResponsive && d.Timing == phase.TimingImmediate {
		d.Timing = phase.TimingNextBeat
	}
	return d
}

func (c *Coordinator) mapPhase(r *Rule, to *phase.Phase, target string) (string, bool) {
	switch r.Mapping {
	case MappingCustom:
		dst, ok := r.Custom[to.ID]
		if !ok {
			return "", false
		}
		_, ok = c.catalog.Phase(target, dst)
		return dst, ok
	case MappingSynchronized:
		_, ok := c.catalog.Phase(target, to.ID)
		return to.ID, ok
	case MappingAutomatic:
		contrast := r.Mode == phase.ModeContrasting
		if k, _ := c.catalog.Kind(target); k == phase.KindBackground && !contrast {
			return FindCompatibleBackgroundPhase(c.catalog, to, target)
		}
		best, ok := BestMatch(to, c.catalog.Phases(target), contrast)
		if !ok {
			return "", false
		}
		return best.ID, true
	}
	return "", false
}

func (c *Coordinator) now() time.Duration {
	if c.beats == nil {
		return 0
	}
	return c.beats.Now()
}

// Request resolves req and either executes each resulting change inline or
// queues it. Immediate, unaligned, undelayed changes run before Request
// returns; the rest wait for Drain.
func (c *Coordinator) Request(req phase.ChangeRequest) error {
	reqs, err := c.Resolve(req)
	if err != nil {
		return err
	}
	now := c.now()
	var inline []phase.ChangeRequest
	for _, r := range reqs {
		if !r.Queue {
			c.superseded += c.queue.removeEntity(r.EntityID)
		}
		if r.Synchronous() || c.beats == nil {
			inline = append(inline, r)
			continue
		}
		c.seq++
		c.queue.push(Scheduled{Request: r, ExecuteAt: c.executeAt(r, now), seq: c.seq})
	}
	return c.runTiers(inline, now)
}

// RequestGroup requests each of reqs in order, collecting every error.
func (c *Coordinator) RequestGroup(reqs []phase.ChangeRequest) error {
	var errs []error
	for _, r := range reqs {
		if err := c.Request(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GroupChange builds one request per entity, staggering the i-th by
// i*stagger.
func GroupChange(entityIDs []string, toPhaseID string, timing phase.Timing, stagger time.Duration) []phase.ChangeRequest {
	out := make([]phase.ChangeRequest, 0, len(entityIDs))
	for i, id := range entityIDs {
		out = append(out, phase.ChangeRequest{
			EntityID:  id,
			ToPhaseID: toPhaseID,
			Timing:    timing,
			Delay:     time.Duration(i) * stagger,
		})
	}
	return out
}

func (c *Coordinator) executeAt(r phase.ChangeRequest, now time.Duration) time.Duration {
	base := now
	switch r.Timing {
	case phase.TimingNextBeat:
		base = c.beats.NextBeatTime()
	case phase.TimingNextMeasure:
		base = c.beats.NextMeasureTime()
	default:
		if r.BeatAlign {
			base = c.beats.NextBeatTime()
		}
	}
	return base + r.Delay
}

// Drain executes every scheduled change due at or before now. Changes due at
// the same instant run as priority tiers, high before normal before low, and
// start at their scheduled instant rather than now.
func (c *Coordinator) Drain(now time.Duration) error {
	due := c.queue.popDue(now)
	var errs []error
	for i := 0; i < len(due); {
		at := due[i].ExecuteAt
		j := i
		var group []phase.ChangeRequest
		for ; j < len(due) && due[j].ExecuteAt == at; j++ {
			group = append(group, due[j].Request)
		}
		if err := c.runTiers(group, at); err != nil {
			errs = append(errs, err)
		}
		i = j
	}
	return errors.Join(errs...)
}

var tierOrder = []phase.Priority{phase.PriorityHigh, phase.PriorityNormal, phase.PriorityLow}

func (c *Coordinator) runTiers(reqs []phase.ChangeRequest, at time.Duration) error {
	if len(reqs) == 0 {
		return nil
	}
	var errs []error
	for _, tier := range tierOrder {
		for _, r := range reqs {
			if r.Priority.Normalize() != tier {
				continue
			}
			if err := c.execute(r, at); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) execute(r phase.ChangeRequest, at time.Duration) error {
	if r.Queue && c.exec.Transitioning(r.EntityID) {
		c.backlog[r.EntityID] = append(c.backlog[r.EntityID], r)
		return nil
	}
	return c.exec.ExecuteSingle(r, at)
}

// Release runs the next backlogged request for entityID. Call it when the
// entity's transition completes.
func (c *Coordinator) Release(entityID string, now time.Duration) error {
	reqs := c.backlog[entityID]
	if len(reqs) == 0 || c.exec.Transitioning(entityID) {
		return nil
	}
	next := reqs[0]
	if len(reqs) == 1 {
		delete(c.backlog, entityID)
	} else {
		c.backlog[entityID] = reqs[1:]
	}
	return c.exec.ExecuteSingle(next, now)
}

// Pending lists scheduled changes in execution order.
func (c *Coordinator) Pending() []Scheduled {
	return c.queue.snapshot()
}

func (c *Coordinator) Backlog(entityID string) []phase.ChangeRequest {
	return append([]phase.ChangeRequest(nil), c.backlog[entityID]...)
}

// Clear drops every scheduled and backlogged change.
func (c *Coordinator) Clear() {
	c.queue = nil
	c.backlog = make(map[string][]phase.ChangeRequest)
}

func (c *Coordinator) Stats() Stats {
	s := Stats{Pending: c.queue.Len(), Superseded: c.superseded}
	for _, reqs := range c.backlog {
		s.Backlogged += len(reqs)
	}
	return s
}
