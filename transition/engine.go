// Package transition executes phase changes: it updates the active-phase
// table, tracks per-entity blend progress and dispatches the per-modality
// sub-transitions to their renderers.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/milk9111/stagesync/beat"
	"github.com/milk9111/stagesync/common"
	"github.com/milk9111/stagesync/phase"
	"golang.org/x/sync/errgroup"
)

var ErrTransitionFailed = errors.New("transition: failed")

// SubTransition is what one modality renderer is asked to play.
type SubTransition struct {
	ID       uint64
	From     *phase.Phase
	To       *phase.Phase
	Style    phase.Style
	Easing   phase.Easing
	Start    time.Duration
	Duration time.Duration
}

// ModalityRenderer plays one modality of a phase change. StartPhaseTransition
// runs off the frame loop; it must not touch engine state.
type ModalityRenderer interface {
	Modality() phase.Modality
	StartPhaseTransition(ctx context.Context, entityID string, st SubTransition) error
}

// Listener receives engine events. Calls happen on the frame loop.
type Listener interface {
	PhaseChanged(entityID, fromPhaseID, toPhaseID string)
	TransitionStarted(ts phase.TransitionState)
	TransitionCompleted(ts phase.TransitionState)
	TransitionFailed(req phase.ChangeRequest, err error)
	// TransitionAborted follows TransitionFailed when the failure ended the
	// entity's current transition, leaving the entity free for its next change.
	TransitionAborted(ts phase.TransitionState)
}

// Catalog is the part of the phase catalog the engine reads.
type Catalog interface {
	phase.Store
	Kind(entityID string) (phase.Kind, bool)
}

type Stats struct {
	Started    int
	Completed  int
	Failed     int
	Superseded int
}

type dispatchResult struct {
	epoch  uint64
	id     uint64
	req    phase.ChangeRequest
	fromID string
	err    error
}

type Engine struct {
	catalog   Catalog
	table     *phase.Table
	beats     beat.Source
	renderers []ModalityRenderer
	listener  Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	results []dispatchResult

	epoch   uint64
	nextID  uint64
	lastFor map[string]uint64
	stats   Stats
}

func NewEngine(cat Catalog, table *phase.Table, beats beat.Source, listener Listener) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		catalog:  cat,
		table:    table,
		beats:    beats,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
		lastFor:  make(map[string]uint64),
	}
}

// Register adds a modality renderer. More than one renderer may serve the
// same modality.
func (e *Engine) Register(r ModalityRenderer) {
	if r != nil {
		e.renderers = append(e.renderers, r)
	}
}

func (e *Engine) SetCatalog(cat Catalog) {
	e.catalog = cat
}

func (e *Engine) Table() *phase.Table { return e.table }

func (e *Engine) Stats() Stats { return e.stats }

func (e *Engine) Transitioning(entityID string) bool {
	return e.table.Transitioning(entityID)
}

// ExecuteSingle starts req at now. The active-phase table moves to the target
// phase before ExecuteSingle returns; the visual blend follows through
// UpdateProgress. A transition already running for the entity is replaced.
func (e *Engine) ExecuteSingle(req phase.ChangeRequest, now time.Duration) error {
	to, ok := e.catalog.Phase(req.EntityID, req.ToPhaseID)
	if !ok {
		return fmt.Errorf("transition: %s/%s: %w", req.EntityID, req.ToPhaseID, phase.ErrPhaseNotFound)
	}

	fromID := req.FromPhaseID
	if stale, ok := e.table.Stale(req.EntityID); ok {
		// The screen still shows the phase a failed transition left behind.
		fromID = stale
	} else if fromID == "" {
		fromID, _ = e.table.Active(req.EntityID)
	}
	from, _ := e.catalog.Phase(req.EntityID, fromID)

	cur, _ := e.table.Active(req.EntityID)
	_, staleNow := e.table.Stale(req.EntityID)
	if cur == to.ID && !e.table.Transitioning(req.EntityID) && !staleNow {
		return nil
	}

	duration := to.Transition.Duration
	if req.BeatAlign || to.Transition.BeatAlign {
		if e.beats != nil {
			duration = beat.RoundUpToBeats(duration, e.beats.CurrentBPM())
		}
	}
	if to.Transition.Style == phase.StyleInstant {
		duration = 0
	}

	if err := e.table.SetActive(req.EntityID, to.ID); err != nil {
		return err
	}
	if e.listener != nil {
		e.listener.PhaseChanged(req.EntityID, cur, to.ID)
	}

	e.nextID++
	e.lastFor[req.EntityID] = e.nextID
	ts := phase.TransitionState{
		ID:       e.nextID,
		EntityID: req.EntityID,
		From:     from,
		To:       to,
		Start:    now,
		Duration: duration,
		Style:    to.Transition.Style,
		Easing:   to.Transition.Easing,
	}
	if _, superseded := e.table.BeginTransition(ts); superseded {
		e.stats.Superseded++
	}
	e.stats.Started++
	if e.listener != nil {
		e.listener.TransitionStarted(ts)
	}

	e.dispatch(req, ts, fromID)

	if duration <= 0 {
		e.complete(req.EntityID)
	}
	return nil
}

func (e *Engine) modalities(entityID string) map[phase.Modality]bool {
	appearance := phase.ModalityAppearance
	if k, _ := e.catalog.Kind(entityID); k == phase.KindBackground {
		appearance = phase.ModalityBackground
	}
	return map[phase.Modality]bool{
		appearance:              true,
		phase.ModalityAnimation: true,
		phase.ModalityAudio:     true,
	}
}

func (e *Engine) dispatch(req phase.ChangeRequest, ts phase.TransitionState, fromID string) {
	wanted := e.modalities(req.EntityID)
	var targets []ModalityRenderer
	for _, r := range e.renderers {
		m := r.Modality()
		if !wanted[m] {
			continue
		}
		if !ts.To.Has(m) && !ts.From.Has(m) {
			continue
		}
		targets = append(targets, r)
	}
	if len(targets) == 0 {
		return
	}

	sub := SubTransition{
		ID:       ts.ID,
		From:     ts.From,
		To:       ts.To,
		Style:    ts.Style,
		Easing:   ts.Easing,
		Start:    ts.Start,
		Duration: ts.Duration,
	}
	epoch := e.epoch
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		g, ctx := errgroup.WithContext(e.ctx)
		for _, r := range targets {
			g.Go(func() error {
				if err := r.StartPhaseTransition(ctx, req.EntityID, sub); err != nil {
					return fmt.Errorf("%s: %w", r.Modality(), err)
				}
				return nil
			})
		}
		err := g.Wait()
		e.mu.Lock()
		e.results = append(e.results, dispatchResult{epoch: epoch, id: ts.ID, req: req, fromID: fromID, err: err})
		e.mu.Unlock()
	}()
}

// Poll applies finished sub-transition dispatches. It runs on the frame loop.
// A failed dispatch removes its transition and leaves the active phase where
// it is; the entity keeps drawing its previous phase until its next change.
func (e *Engine) Poll() {
	e.mu.Lock()
	results := e.results
	e.results = nil
	e.mu.Unlock()

	for _, res := range results {
		if res.epoch != e.epoch || res.err == nil {
			continue
		}
		e.stats.Failed++
		// Only the entity's latest change owns its visuals; a superseded
		// failure is reported but leaves the newer transition alone.
		var (
			aborted phase.TransitionState
			ended   bool
		)
		if e.lastFor[res.req.EntityID] == res.id {
			aborted, ended = e.table.EndTransition(res.req.EntityID)
			e.table.MarkStale(res.req.EntityID, res.fromID)
		}
		err := fmt.Errorf("%w: %s: %v", ErrTransitionFailed, res.req, res.err)
		log.Print(err)
		if e.listener == nil {
			continue
		}
		e.listener.TransitionFailed(res.req, err)
		if ended {
			e.listener.TransitionAborted(aborted)
		}
	}
}

// UpdateProgress advances every live transition to now and completes those
// that reached the end.
func (e *Engine) UpdateProgress(now time.Duration) {
	for _, ts := range e.table.Transitions() {
		if ts.Abandoned {
			continue
		}
		p := 1.0
		if ts.Duration > 0 {
			p = common.Clamp01(float64(now-ts.Start) / float64(ts.Duration))
		}
		if p < 1 {
			e.table.SetProgress(ts.EntityID, p)
			continue
		}
		e.complete(ts.EntityID)
	}
}

func (e *Engine) complete(entityID string) {
	ts, ok := e.table.EndTransition(entityID)
	if !ok {
		return
	}
	ts.Progress = 1
	e.stats.Completed++
	if e.listener != nil {
		e.listener.TransitionCompleted(ts)
	}
}

// Reset forgets every transition and dispatch in flight and returns each
// entity to its default phase. Late dispatch results are ignored.
func (e *Engine) Reset(entityIDs []string) {
	e.epoch++
	e.mu.Lock()
	e.results = nil
	e.mu.Unlock()
	e.table.Reset(entityIDs)
	e.lastFor = make(map[string]uint64)
	e.stats = Stats{}
}

// Wait blocks until every dispatched sub-transition has returned, then
// applies the results.
func (e *Engine) Wait() {
	e.wg.Wait()
	e.Poll()
}

// Close cancels in-flight sub-transitions and waits for them.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}
