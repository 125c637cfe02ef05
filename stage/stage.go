// Package stage owns the frame loop. It wires the playback clock, the beat
// source, the phase coordinator, the transition engine, the renderers and the
// interaction handler together, drains queued input once per tick and exposes
// the outward event stream.
package stage

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/milk9111/stagesync/audio"
	"github.com/milk9111/stagesync/beat"
	"github.com/milk9111/stagesync/clock"
	"github.com/milk9111/stagesync/coordinator"
	"github.com/milk9111/stagesync/ecs"
	"github.com/milk9111/stagesync/ecs/component"
	"github.com/milk9111/stagesync/interact"
	"github.com/milk9111/stagesync/metrics"
	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/render"
	"github.com/milk9111/stagesync/transition"
)

const (
	DefaultWidth             = 800
	DefaultHeight            = 600
	DefaultGeometryCacheSize = 128
)

var ErrClosed = errors.New("stage: closed")

type Options struct {
	Width, Height   float64
	BPM             float64
	BeatsPerMeasure int
	SyncTolerance   time.Duration
	Metrics         metrics.Config
	// GeometryCacheSize bounds the number of cached character outlines.
	GeometryCacheSize int
	// MetronomeClick sounds a click on every beat while playing.
	MetronomeClick bool

	LoadScript func(name string) ([]byte, error)
	OpenImage  render.OpenFunc
	// Placements is the authoritative placement store. Nil keeps placements
	// on the stage's own entities.
	Placements PlacementStore
	// Audio receives the audio modality. Nil creates a silent engine that
	// nothing plays.
	Audio *audio.Engine
}

func (o *Options) defaults() {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.BeatsPerMeasure <= 0 {
		o.BeatsPerMeasure = beat.DefaultBeatsPerMeasure
	}
	if o.SyncTolerance <= 0 {
		o.SyncTolerance = clock.DefaultSyncTolerance
	}
	if o.Metrics == (metrics.Config{}) {
		o.Metrics = metrics.DefaultConfig()
	}
	if o.GeometryCacheSize <= 0 {
		o.GeometryCacheSize = DefaultGeometryCacheSize
	}
	if o.OpenImage == nil {
		o.OpenImage = render.OpenFile
	}
	if o.Audio == nil {
		o.Audio = audio.NewEngine(audio.DefaultSampleRate)
	}
}

// Stats is a read-only summary for overlays and tests.
type Stats struct {
	Clock          clock.State
	Time           time.Duration
	BPM            float64
	Transitions    transition.Stats
	Queue          coordinator.Stats
	Metrics        metrics.Snapshot
	Corrections    int
	GeometryHits   int
	GeometryMisses int
	Entities       int
}

// queuedRequest is a phase request made while the frame loop was busy.
type queuedRequest struct {
	reqs  []phase.ChangeRequest
	group bool
}

type Stage struct {
	opts Options

	world      *ecs.World
	ents       map[string]ecs.Entity
	placements PlacementStore
	systems    *ecs.Scheduler

	catalog   *phase.Catalog
	table     *phase.Table
	clock     *clock.Clock
	metronome *beat.Metronome
	engine    *transition.Engine
	coord     *coordinator.Coordinator
	handler   *interact.Handler

	characters  *render.CharacterRenderer
	backgrounds *render.BackgroundRenderer
	audio       *audio.Engine
	monitor     *metrics.Monitor

	pointers  ecs.Queue[interact.PointerEvent]
	requests  ecs.Queue[queuedRequest]
	events    ecs.Queue[Event]
	completed []string

	busy       bool
	closed     bool
	cancelBeat func()
}

// New builds a stage from a parsed stage file.
func New(sf *phase.StageFile, opts Options) (*Stage, error) {
	opts.defaults()
	s := &Stage{
		opts:      opts,
		world:     ecs.NewWorld(),
		ents:      make(map[string]ecs.Entity),
		catalog:   phase.NewCatalog(),
		clock:     clock.New(),
		metronome: beat.NewMetronome(opts.BPM, opts.BeatsPerMeasure),
		audio:     opts.Audio,
		monitor:   metrics.NewMonitor(opts.Metrics),
	}
	s.clock.SetSyncTolerance(opts.SyncTolerance)
	s.clock.OnSeek = s.seeked

	s.table = phase.NewTable(s.catalog)
	s.engine = transition.NewEngine(s.catalog, s.table, s.metronome, listener{s})
	s.coord = coordinator.New(s.catalog, s.table, s.metronome, s.engine)
	s.handler = interact.NewHandler(s.world)

	s.characters = render.NewCharacterRenderer(render.NewGeometryCache(opts.GeometryCacheSize))
	s.backgrounds = render.NewBackgroundRenderer(render.NewImageCache(opts.OpenImage), int(opts.Width), int(opts.Height))
	s.engine.Register(s.characters)
	s.engine.Register(render.AnimationRenderer{})
	s.engine.Register(s.backgrounds)
	s.engine.Register(audio.Renderer{})

	s.placements = opts.Placements
	s.systems = ecs.NewScheduler()
	if s.placements == nil {
		s.placements = &worldPlacements{world: s.world, ents: s.ents}
	} else {
		s.systems.Add(&placementSystem{store: s.placements, ents: s.ents})
	}
	s.systems.Add(&hitBoxSystem{stage: s})
	s.systems.Add(&audioSystem{stage: s})

	s.cancelBeat = s.metronome.OnBeat(s.onBeat)

	if err := s.load(sf); err != nil {
		s.engine.Close()
		return nil, err
	}
	return s, nil
}

// load swaps in the catalog and rules described by sf. Nothing changes when
// any part of sf is invalid.
func (s *Stage) load(sf *phase.StageFile) error {
	if sf == nil {
		return fmt.Errorf("stage: %w: no stage file", phase.ErrInvalidPhase)
	}
	cat, err := sf.BuildCatalog()
	if err != nil {
		return err
	}
	rules := make([]coordinator.Rule, 0, len(sf.Rules))
	for _, rs := range sf.Rules {
		r, err := coordinator.RuleFromSpec(rs, s.opts.LoadScript)
		if err != nil {
			return err
		}
		rules = append(rules, r)
	}
	if err := s.coord.Reload(cat, rules); err != nil {
		return err
	}

	s.catalog = cat
	s.engine.SetCatalog(cat)
	repaired := s.table.Rebind(cat, cat.Entities())
	for _, id := range repaired {
		log.Printf("stage: %s falls back to its default phase", id)
	}
	s.syncEntities(sf)

	var backgrounds []*phase.Phase
	for _, id := range cat.Entities() {
		s.characters.Cache().InvalidateEntity(id)
		if k, _ := cat.Kind(id); k == phase.KindBackground {
			backgrounds = append(backgrounds, cat.Phases(id)...)
		}
	}
	s.backgrounds.Preload(backgrounds)
	return nil
}

// syncEntities creates ECS entities for new stage entities and destroys
// those the stage file no longer has. Existing entities keep their placement.
func (s *Stage) syncEntities(sf *phase.StageFile) {
	keep := make(map[string]bool, len(sf.Entities))
	for _, spec := range sf.Entities {
		keep[spec.ID] = true
		e, ok := s.ents[spec.ID]
		if !ok {
			e = ecs.CreateEntity(s.world)
			s.ents[spec.ID] = e
			pl := placementOf(spec.Placement)
			if cur, ok := s.placements.Placement(spec.ID); ok {
				pl = cur
			} else {
				s.placements.SetPlacement(spec.ID, pl)
			}
			_ = ecs.Add(s.world, e, component.PlacementComponent.Kind(), &pl)
		}
		_ = ecs.Add(s.world, e, component.StageEntityComponent.Kind(), &component.StageEntity{ID: spec.ID, Kind: string(spec.Kind)})
		_ = ecs.Add(s.world, e, component.RenderLayerComponent.Kind(), &component.RenderLayer{Index: spec.Layer})
		if spec.Kind == phase.KindCharacter {
			if !ecs.Has(s.world, e, component.HitBoxComponent.Kind()) {
				_ = ecs.Add(s.world, e, component.HitBoxComponent.Kind(), &component.HitBox{})
			}
		} else {
			ecs.Remove(s.world, e, component.HitBoxComponent.Kind())
		}
	}
	removed := false
	for id, e := range s.ents {
		if keep[id] {
			continue
		}
		removed = true
		ecs.DestroyEntity(s.world, e)
		delete(s.ents, id)
		s.audio.Silence(id)
		s.characters.Cache().InvalidateEntity(id)
	}
	if removed {
		s.handler.Reset()
	}
}

func placementOf(p phase.PlacementSpec) Placement {
	pl := Placement{X: p.X, Y: p.Y, Rotation: p.Rotation, Scale: p.Scale}
	if pl.Scale == 0 {
		pl.Scale = 1
	}
	return pl
}

// Reload replaces the catalog and coordination rules between ticks. On error
// the stage keeps running on the previous catalog.
func (s *Stage) Reload(sf *phase.StageFile) error {
	err := s.load(sf)
	s.emit(Event{Kind: EventCatalogReloaded, At: s.clock.Time(), Err: err})
	if err != nil {
		return fmt.Errorf("stage: reload: %w", err)
	}
	return nil
}

func (s *Stage) Play() {
	s.clock.Play()
	s.audio.Pause(false)
}

func (s *Stage) Pause() {
	s.clock.Pause()
	s.audio.Pause(true)
}

// Stop rewinds to zero. Transitions in flight are abandoned rather than
// finished: they stay in the table, undrawn, until Reset. Scheduled changes
// are dropped.
func (s *Stage) Stop() {
	s.clock.Stop()
	s.metronome.Reset()
	s.table.AbandonAll()
	s.coord.Clear()
	s.completed = nil
	s.audio.StopAll()
}

// Seek moves performance time in any clock state. Beats crossed on the way
// forward fire; seeking backwards is silent.
func (s *Stage) Seek(t time.Duration) {
	s.clock.Seek(t)
}

func (s *Stage) seeked(t time.Duration) {
	s.advance(t)
}

// Reset stops playback, drops every queued request, transition, stale visual
// and pointer state, and returns each entity to its default phase.
func (s *Stage) Reset() {
	s.clock.Stop()
	s.metronome.Reset()
	s.coord.Clear()
	s.engine.Reset(s.catalog.Entities())
	s.handler.Reset()
	s.pointers.Clear()
	s.requests.Clear()
	s.completed = nil
	s.audio.StopAll()
	s.monitor.Reset()
}

// Pointer queues a pointer event in stage coordinates for the next tick.
func (s *Stage) Pointer(ev interact.PointerEvent) {
	s.pointers.Push(ev)
}

// RequestPhase asks for a phase change. Outside the frame loop the request
// is resolved and, when synchronous, executed before RequestPhase returns.
// Requests made from inside the frame loop, such as from an event consumer
// running during Tick, are queued for the next tick and their errors are
// reported as events.
func (s *Stage) RequestPhase(req phase.ChangeRequest) error {
	if s.closed {
		return ErrClosed
	}
	return s.submit(queuedRequest{reqs: []phase.ChangeRequest{req}})
}

// RequestGroup requests every change of reqs, in order.
func (s *Stage) RequestGroup(reqs []phase.ChangeRequest) error {
	if s.closed {
		return ErrClosed
	}
	return s.submit(queuedRequest{reqs: append([]phase.ChangeRequest(nil), reqs...), group: true})
}

func (s *Stage) submit(q queuedRequest) error {
	if s.busy {
		s.requests.Push(q)
		return nil
	}
	s.busy = true
	defer func() { s.busy = false }()
	return s.request(q)
}

func (s *Stage) request(q queuedRequest) error {
	var err error
	if q.group {
		err = s.coord.RequestGroup(q.reqs)
	} else {
		err = s.coord.Request(q.reqs[0])
	}
	s.release(s.clock.Time())
	return err
}

// Tick runs one frame of work: queued input, then clock advance, then
// scheduled changes and transition progress, then per-entity systems.
func (s *Stage) Tick(dt time.Duration) {
	if s.closed {
		return
	}
	s.busy = true
	defer func() { s.busy = false }()

	// Requests raised while handling this tick's input wait for the next one.
	for _, q := range s.requests.Drain() {
		if err := s.request(q); err != nil {
			s.reject(err)
		}
	}
	for _, ev := range s.pointers.Drain() {
		for _, in := range s.handler.Handle(ev) {
			s.apply(in)
		}
	}

	s.clock.Tick(dt)
	s.advance(s.clock.Time())
	s.systems.Update(s.world, s.clock.Time())
}

// advance brings beat source, scheduled queue and transitions to now.
func (s *Stage) advance(now time.Duration) {
	s.metronome.Advance(now)
	s.engine.Poll()
	if err := s.coord.Drain(now); err != nil {
		s.reject(err)
	}
	s.engine.UpdateProgress(now)
	s.release(now)
}

func (s *Stage) onBeat(t beat.Tick) {
	if err := s.coord.Drain(t.Timestamp); err != nil {
		s.reject(err)
	}
	if s.opts.MetronomeClick && s.clock.Playing() {
		s.audio.Click(t.Downbeat)
	}
}

// release starts the next backlogged change of every entity whose transition
// completed. A released change may itself complete at once.
func (s *Stage) release(now time.Duration) {
	for len(s.completed) > 0 {
		id := s.completed[0]
		s.completed = s.completed[1:]
		if err := s.coord.Release(id, now); err != nil {
			s.reject(err)
		}
	}
}

func (s *Stage) reject(err error) {
	log.Printf("stage: %v", err)
	s.emit(Event{Kind: EventRequestRejected, At: s.clock.Time(), Err: err})
}

func (s *Stage) apply(in interact.Intent) {
	ev := Event{At: s.clock.Time(), EntityID: in.EntityID, X: in.X, Y: in.Y}
	switch in.Kind {
	case interact.IntentSelected:
		ev.Kind = EventSelected
	case interact.IntentSelectionCleared:
		ev.Kind = EventSelectionCleared
	case interact.IntentHoverChanged:
		ev.Kind = EventHoverChanged
	case interact.IntentMove, interact.IntentDragCompleted:
		ev.Kind = EventMoved
		if in.Kind == interact.IntentDragCompleted {
			ev.Kind = EventDragCompleted
		}
		pl, ok := s.placements.Placement(in.EntityID)
		if !ok {
			return
		}
		if pl.X != in.X || pl.Y != in.Y {
			pl.X, pl.Y = in.X, in.Y
			s.placements.SetPlacement(in.EntityID, pl)
		}
	default:
		return
	}
	s.emit(ev)
}

// CheckSync compares performance time with the audio clock reading. Drift
// beyond tolerance is corrected once and reported once.
func (s *Stage) CheckSync(audioTime time.Duration) (time.Duration, bool) {
	drift, corrected := s.clock.CheckSync(audioTime)
	if !corrected {
		return drift, false
	}
	s.emit(Event{Kind: EventSyncDrift, At: s.clock.Time(), Drift: drift})
	s.advance(s.clock.Time())
	return drift, true
}

// ObserveFrame records one presented frame at wall time now that took render
// to draw. Sustained degradation is reported, never acted on.
func (s *Stage) ObserveFrame(now, render time.Duration) {
	for _, w := range s.monitor.Frame(now, render) {
		s.emit(Event{Kind: EventPerformanceWarning, At: s.clock.Time(), Warning: w})
	}
}

func (s *Stage) emit(ev Event) {
	s.events.Push(ev)
}

// Events drains the events raised since the last call, oldest first.
func (s *Stage) Events() []Event {
	return s.events.Drain()
}

// Frame is what the entity looks and sounds like right now. An abandoned
// transition is not drawn; a failed one leaves the phase it started from.
func (s *Stage) Frame(entityID string) (transition.Frame, bool) {
	if ts, ok := s.table.Transition(entityID); ok && !ts.Abandoned {
		return transition.FrameOf(ts), true
	}
	if id, ok := s.table.Stale(entityID); ok {
		if p, ok := s.catalog.Phase(entityID, id); ok {
			return transition.SteadyFrame(p), true
		}
	}
	p, ok := s.table.ActivePhase(entityID)
	if !ok {
		return transition.Frame{}, false
	}
	return transition.SteadyFrame(p), true
}

// ActivePhase is the entity's phase identity. It moves as soon as a change
// executes, ahead of the visual blend.
func (s *Stage) ActivePhase(entityID string) (string, bool) {
	return s.table.Active(entityID)
}

func (s *Stage) Placement(entityID string) (Placement, bool) {
	return s.placements.Placement(entityID)
}

func (s *Stage) SetBPM(bpm float64) { s.metronome.SetBPM(bpm) }

func (s *Stage) Time() time.Duration { return s.clock.Time() }

func (s *Stage) State() clock.State { return s.clock.State() }

func (s *Stage) Catalog() *phase.Catalog { return s.catalog }

func (s *Stage) Pending() []coordinator.Scheduled { return s.coord.Pending() }

func (s *Stage) Rules() []coordinator.Rule { return s.coord.Rules() }

func (s *Stage) Selected() (string, bool) { return s.handler.Selected() }

func (s *Stage) Entities() []string { return s.catalog.Entities() }

func (s *Stage) Audio() *audio.Engine { return s.audio }

func (s *Stage) Size() (w, h float64) { return s.opts.Width, s.opts.Height }

func (s *Stage) Stats() Stats {
	hits, misses := s.characters.Cache().Stats()
	return Stats{
		Clock:          s.clock.State(),
		Time:           s.clock.Time(),
		BPM:            s.metronome.CurrentBPM(),
		Transitions:    s.engine.Stats(),
		Queue:          s.coord.Stats(),
		Metrics:        s.monitor.Snapshot(),
		Corrections:    s.clock.Corrections(),
		GeometryHits:   hits,
		GeometryMisses: misses,
		Entities:       len(s.ents),
	}
}

// Wait blocks until every dispatched sub-transition has reported and applies
// the results. Tests use it to make failures deterministic.
func (s *Stage) Wait() {
	s.engine.Wait()
}

func (s *Stage) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancelBeat()
	s.engine.Close()
	s.audio.StopAll()
}

// listener turns engine callbacks into stage events.
type listener struct{ s *Stage }

func (l listener) PhaseChanged(entityID, from, to string) {
	l.s.emit(Event{Kind: EventPhaseChanged, At: l.s.clock.Time(), EntityID: entityID, FromPhaseID: from, ToPhaseID: to})
}

func (l listener) TransitionStarted(ts phase.TransitionState) {
	l.s.emit(Event{Kind: EventTransitionStarted, At: ts.Start, EntityID: ts.EntityID, FromPhaseID: phaseID(ts.From), ToPhaseID: phaseID(ts.To)})
}

func (l listener) TransitionCompleted(ts phase.TransitionState) {
	l.s.emit(Event{Kind: EventTransitionCompleted, At: ts.Start + ts.Duration, EntityID: ts.EntityID, FromPhaseID: phaseID(ts.From), ToPhaseID: phaseID(ts.To)})
	l.s.completed = append(l.s.completed, ts.EntityID)
}

func (l listener) TransitionFailed(req phase.ChangeRequest, err error) {
	l.s.emit(Event{Kind: EventTransitionFailed, At: l.s.clock.Time(), EntityID: req.EntityID, ToPhaseID: req.ToPhaseID, Err: err})
}

// TransitionAborted frees the entity's backlog just as a completion does.
func (l listener) TransitionAborted(ts phase.TransitionState) {
	l.s.completed = append(l.s.completed, ts.EntityID)
}

func phaseID(p *phase.Phase) string {
	if p == nil {
		return ""
	}
	return p.ID
}
