package stage

import (
	"testing"
	"time"

	"github.com/milk9111/stagesync/clock"
	"github.com/milk9111/stagesync/coordinator"
	"github.com/milk9111/stagesync/interact"
	"github.com/milk9111/stagesync/phase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStage = `
entities:
  - id: sky
    kind: background
    default: dusk
    phases:
      - id: dusk
        appearance: {fill: "#1d2b53", accent: "#7e2553"}
        transition: {duration: 500ms}
        meta: {mood: calm, intensity: 2}
      - id: party
        appearance: {fill: "#ff004d", accent: "#ffa300"}
        transition: {duration: 500ms, style: wipe}
        meta: {mood: energetic, intensity: 8}
  - id: char-1
    kind: character
    layer: 10
    default: idle
    placement: {x: 100, y: 100}
    phases:
      - id: idle
        appearance: {shape: ellipse, width: 80, height: 120, fill: "#29adff"}
        transition: {duration: 400ms}
        meta: {mood: calm, intensity: 2}
      - id: dance
        appearance: {shape: diamond, width: 100, height: 140, fill: "#ff77a8"}
        audio: {track: "tone:440:square", volume: 0.5}
        transition: {duration: 600ms}
        meta: {mood: energetic, intensity: 8}
      - id: broken
        appearance: {shape: rect, width: 0, height: 0, fill: red}
        transition: {duration: 400ms}
        meta: {mood: sad, intensity: 1}
  - id: char-2
    kind: character
    layer: 11
    default: idle
    placement: {x: 500, y: 400}
    phases:
      - id: idle
        appearance: {shape: rect, width: 70, height: 110, fill: "#00e436"}
        meta: {mood: calm, intensity: 3}
      - id: dance
        appearance: {shape: ellipse, width: 90, height: 130, fill: "#ffa300"}
        meta: {mood: playful, intensity: 7}
`

const tick = 10 * time.Millisecond

func parse(t *testing.T, src string) *phase.StageFile {
	t.Helper()
	sf, err := phase.ParseStageFile([]byte(src))
	require.NoError(t, err)
	return sf
}

func newStage(t *testing.T, opts Options) *Stage {
	t.Helper()
	if opts.BPM == 0 {
		opts.BPM = 120
	}
	s, err := New(parse(t, testStage), opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func tickTo(s *Stage, t time.Duration) {
	for s.Time() < t {
		s.Tick(tick)
	}
}

func kinds(events []Event) map[EventKind]int {
	out := make(map[EventKind]int)
	for _, ev := range events {
		out[ev.Kind]++
	}
	return out
}

func active(t *testing.T, s *Stage, entityID string) string {
	t.Helper()
	id, ok := s.ActivePhase(entityID)
	require.True(t, ok, entityID)
	return id
}

func TestNewStartsInDefaultPhases(t *testing.T) {
	s := newStage(t, Options{})

	assert.Equal(t, "dusk", active(t, s, "sky"))
	assert.Equal(t, "idle", active(t, s, "char-1"))
	assert.Equal(t, "idle", active(t, s, "char-2"))
	assert.Equal(t, clock.Stopped, s.State())
	assert.Equal(t, 3, s.Stats().Entities)

	pl, ok := s.Placement("char-1")
	require.True(t, ok)
	assert.Equal(t, Placement{X: 100, Y: 100, Scale: 1}, pl)
}

func TestImmediateRequestIsSynchronous(t *testing.T) {
	s := newStage(t, Options{})

	err := s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance", Timing: phase.TimingImmediate})
	require.NoError(t, err)

	assert.Equal(t, "dance", active(t, s, "char-1"))
	assert.Empty(t, s.Pending())

	got := kinds(s.Events())
	assert.Equal(t, 1, got[EventPhaseChanged])
	assert.Equal(t, 1, got[EventTransitionStarted])

	f, ok := s.Frame("char-1")
	require.True(t, ok)
	assert.True(t, f.Transitioning, "visuals lag the identity change")
	assert.Equal(t, "idle", f.FromPhase.ID)
	assert.Equal(t, "dance", f.ToPhase.ID)
}

func TestNextBeatRequestWaitsForBeat(t *testing.T) {
	s := newStage(t, Options{BPM: 120})
	s.Play()
	tickTo(s, time.Second)
	require.Equal(t, time.Second, s.Time())

	err := s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance", Timing: phase.TimingNextBeat})
	require.NoError(t, err)

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 1500*time.Millisecond, pending[0].ExecuteAt)

	tickTo(s, 1490*time.Millisecond)
	assert.Equal(t, "idle", active(t, s, "char-1"))

	s.Tick(tick)
	assert.Equal(t, 1500*time.Millisecond, s.Time())
	assert.Equal(t, "dance", active(t, s, "char-1"))
	assert.Empty(t, s.Pending())
}

func TestTransitionCompletes(t *testing.T) {
	s := newStage(t, Options{})
	s.Play()
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance"}))
	s.Wait()

	tickTo(s, 300*time.Millisecond)
	f, _ := s.Frame("char-1")
	assert.True(t, f.Transitioning)
	assert.InDelta(t, 0.5, f.Weight, 0.02)

	tickTo(s, 600*time.Millisecond)
	f, _ = s.Frame("char-1")
	assert.False(t, f.Transitioning)
	assert.Equal(t, "dance", f.ToPhase.ID)
	assert.Equal(t, 1, kinds(s.Events())[EventTransitionCompleted])
	assert.Equal(t, 1, s.Stats().Transitions.Completed)
}

func TestSeekDrainsScheduledChanges(t *testing.T) {
	s := newStage(t, Options{BPM: 120, BeatsPerMeasure: 4})

	err := s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance", Timing: phase.TimingNextMeasure})
	require.NoError(t, err)
	require.Len(t, s.Pending(), 1)
	assert.Equal(t, 2*time.Second, s.Pending()[0].ExecuteAt)

	s.Seek(1900 * time.Millisecond)
	assert.Equal(t, "idle", active(t, s, "char-1"))

	s.Seek(2 * time.Second)
	assert.Equal(t, clock.Stopped, s.State(), "seek does not change state")
	assert.Equal(t, "dance", active(t, s, "char-1"))
}

func TestSyncDriftReportedOncePerDetection(t *testing.T) {
	s := newStage(t, Options{SyncTolerance: 10 * time.Millisecond})
	s.Play()
	tickTo(s, 100*time.Millisecond)
	s.Events()

	drift, corrected := s.CheckSync(115 * time.Millisecond)
	assert.True(t, corrected)
	assert.Equal(t, 15*time.Millisecond, drift)
	assert.Equal(t, 115*time.Millisecond, s.Time())

	_, corrected = s.CheckSync(115 * time.Millisecond)
	assert.False(t, corrected)
	_, corrected = s.CheckSync(120 * time.Millisecond)
	assert.False(t, corrected, "5ms is inside tolerance")

	events := s.Events()
	require.Equal(t, 1, kinds(events)[EventSyncDrift])
	assert.Equal(t, 1, s.Stats().Corrections)
}

func TestDragThroughStage(t *testing.T) {
	s := newStage(t, Options{})
	s.Tick(tick) // sizes hit boxes

	s.Pointer(interact.PointerEvent{Kind: interact.PointerDown, X: 100, Y: 100})
	for x := 120.0; x <= 300; x += 20 {
		s.Pointer(interact.PointerEvent{Kind: interact.PointerMove, X: x, Y: 100})
	}
	s.Pointer(interact.PointerEvent{Kind: interact.PointerUp, X: 300, Y: 100})
	s.Tick(tick)

	got := kinds(s.Events())
	assert.Equal(t, 1, got[EventSelected])
	assert.Equal(t, 1, got[EventDragCompleted])
	assert.Equal(t, 0, got[EventSelectionCleared])
	assert.Equal(t, 10, got[EventMoved])

	pl, _ := s.Placement("char-1")
	assert.Equal(t, 300.0, pl.X)
	assert.Equal(t, 100.0, pl.Y)

	id, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, "char-1", id)
}

func TestPointerEventsWaitForTick(t *testing.T) {
	s := newStage(t, Options{})
	s.Tick(tick)

	s.Pointer(interact.PointerEvent{Kind: interact.PointerDown, X: 100, Y: 100})
	assert.Empty(t, s.Events())
	_, ok := s.Selected()
	assert.False(t, ok)

	s.Tick(tick)
	_, ok = s.Selected()
	assert.True(t, ok)
}

func TestFailedTransitionLeavesStaleVisual(t *testing.T) {
	s := newStage(t, Options{})

	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "broken"}))
	s.Wait()

	assert.Equal(t, "broken", active(t, s, "char-1"), "no rollback")
	f, ok := s.Frame("char-1")
	require.True(t, ok)
	assert.False(t, f.Transitioning)
	assert.Equal(t, "idle", f.ToPhase.ID, "pixels keep the previous phase")

	events := s.Events()
	require.Equal(t, 1, kinds(events)[EventTransitionFailed])
	for _, ev := range events {
		if ev.Kind == EventTransitionFailed {
			assert.Equal(t, "broken", ev.ToPhaseID)
			assert.Error(t, ev.Err)
		}
	}
	assert.Equal(t, 1, s.Stats().Transitions.Failed)

	// The next change blends from what is on screen.
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance"}))
	f, _ = s.Frame("char-1")
	assert.Equal(t, "idle", f.FromPhase.ID)
}

func TestQueuedRequestRunsAfterFailure(t *testing.T) {
	s := newStage(t, Options{})
	s.Play()

	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "broken"}))
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance", Queue: true}))
	assert.Equal(t, 1, s.Stats().Queue.Backlogged)

	s.Wait()
	s.Tick(tick)

	assert.Equal(t, "dance", active(t, s, "char-1"))
	assert.Zero(t, s.Stats().Queue.Backlogged)
	f, ok := s.Frame("char-1")
	require.True(t, ok)
	assert.True(t, f.Transitioning)
	assert.Equal(t, "dance", f.ToPhase.ID)
	assert.Equal(t, "idle", f.FromPhase.ID, "blends from what was on screen")

	got := kinds(s.Events())
	assert.Equal(t, 1, got[EventTransitionFailed])
	assert.Equal(t, 2, got[EventPhaseChanged])
}

func TestUnknownPhaseRejectedWithoutMutation(t *testing.T) {
	s := newStage(t, Options{})

	err := s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "fly"})
	require.ErrorIs(t, err, phase.ErrPhaseNotFound)
	err = s.RequestPhase(phase.ChangeRequest{EntityID: "ghost", ToPhaseID: "idle"})
	require.ErrorIs(t, err, phase.ErrEntityNotFound)

	assert.Equal(t, "idle", active(t, s, "char-1"))
	assert.Empty(t, s.Pending())
	assert.Zero(t, s.Stats().Transitions.Started)
}

func TestStopAbandonsTransitions(t *testing.T) {
	s := newStage(t, Options{})
	s.Play()
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance"}))
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-2", ToPhaseID: "dance", Timing: phase.TimingNextMeasure}))
	s.Wait()
	tickTo(s, 100*time.Millisecond)

	s.Stop()
	assert.Equal(t, clock.Stopped, s.State())
	assert.Zero(t, s.Time())
	assert.Empty(t, s.Pending())

	f, _ := s.Frame("char-1")
	assert.False(t, f.Transitioning, "abandoned transitions are not drawn")
	assert.Equal(t, "dance", f.ToPhase.ID)

	s.Play()
	tickTo(s, 3*time.Second)
	assert.Zero(t, s.Stats().Transitions.Completed)
	assert.Equal(t, "idle", active(t, s, "char-2"))
}

func TestResetRestoresDefaults(t *testing.T) {
	s := newStage(t, Options{})
	s.Play()
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "broken"}))
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-2", ToPhaseID: "dance", Timing: phase.TimingNextBeat}))
	s.Wait()
	s.Tick(tick)
	s.Pointer(interact.PointerEvent{Kind: interact.PointerDown, X: 100, Y: 100})
	s.Tick(tick)

	s.Reset()

	assert.Equal(t, clock.Stopped, s.State())
	assert.Equal(t, "idle", active(t, s, "char-1"))
	assert.Equal(t, "idle", active(t, s, "char-2"))
	assert.Empty(t, s.Pending())
	f, _ := s.Frame("char-1")
	assert.Equal(t, "idle", f.ToPhase.ID)
	_, selected := s.Selected()
	assert.False(t, selected)
	assert.Zero(t, s.Stats().Transitions)
}

func TestCoordinationRulesThroughStage(t *testing.T) {
	src := testStage + `
rules:
  - id: sky-follows-lead
    from: char-1
    to: [sky]
    mode: complementary
  - id: partner
    from: char-1
    to: [char-2]
    mode: responsive
    condition: intensity >= 5
`
	s, err := New(parse(t, src), Options{BPM: 120})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	s.Play()

	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance"}))
	assert.Equal(t, "party", active(t, s, "sky"))
	assert.Equal(t, "idle", active(t, s, "char-2"), "responsive targets wait for the beat")
	require.Len(t, s.Pending(), 1)

	tickTo(s, 500*time.Millisecond)
	assert.Equal(t, "dance", active(t, s, "char-2"))
}

// callbackStore is an external placement store whose writes trigger more
// work, the way a UI binding would.
type callbackStore struct {
	placements map[string]Placement
	onSet      func(id string, p Placement)
}

func (c *callbackStore) Placement(id string) (Placement, bool) {
	p, ok := c.placements[id]
	return p, ok
}

func (c *callbackStore) SetPlacement(id string, p Placement) {
	c.placements[id] = p
	if c.onSet != nil {
		c.onSet(id, p)
	}
}

func TestRequestsDuringTickAreQueued(t *testing.T) {
	store := &callbackStore{placements: map[string]Placement{}}
	s := newStage(t, Options{Placements: store})

	var reqErr error
	store.onSet = func(id string, p Placement) {
		if p.X > 200 {
			reqErr = s.RequestPhase(phase.ChangeRequest{EntityID: id, ToPhaseID: "dance"})
		}
	}
	s.Tick(tick)

	s.Pointer(interact.PointerEvent{Kind: interact.PointerDown, X: 100, Y: 100})
	s.Pointer(interact.PointerEvent{Kind: interact.PointerUp, X: 250, Y: 100})
	s.Tick(tick)
	require.NoError(t, reqErr)
	assert.Equal(t, "idle", active(t, s, "char-1"), "queued until the next tick")
	assert.Equal(t, 250.0, store.placements["char-1"].X)

	s.Tick(tick)
	assert.Equal(t, "dance", active(t, s, "char-1"))
}

func TestQueuedRequestErrorsBecomeEvents(t *testing.T) {
	store := &callbackStore{placements: map[string]Placement{}}
	s := newStage(t, Options{Placements: store})
	store.onSet = func(id string, _ Placement) {
		_ = s.RequestPhase(phase.ChangeRequest{EntityID: id, ToPhaseID: "missing"})
	}
	s.Tick(tick)
	s.Pointer(interact.PointerEvent{Kind: interact.PointerDown, X: 100, Y: 100})
	s.Pointer(interact.PointerEvent{Kind: interact.PointerUp, X: 150, Y: 100})
	s.Tick(tick)
	s.Tick(tick)

	var rejected []Event
	for _, ev := range s.Events() {
		if ev.Kind == EventRequestRejected {
			rejected = append(rejected, ev)
		}
	}
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0].Err, phase.ErrPhaseNotFound)
}

func TestReload(t *testing.T) {
	s := newStage(t, Options{})
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance"}))
	s.Wait()
	s.Events()

	// char-2 goes away and char-1 loses the phase it is in.
	next := `
entities:
  - id: char-1
    kind: character
    default: idle
    placement: {x: 400, y: 400}
    phases:
      - id: idle
        appearance: {shape: rect, width: 60, height: 60, fill: blue}
      - id: wave
        appearance: {shape: ellipse, width: 60, height: 90, fill: green}
`
	require.NoError(t, s.Reload(parse(t, next)))

	assert.Equal(t, "idle", active(t, s, "char-1"))
	_, ok := s.ActivePhase("char-2")
	assert.False(t, ok)
	assert.Equal(t, []string{"char-1"}, s.Entities())
	assert.Equal(t, 1, s.Stats().Entities)

	pl, _ := s.Placement("char-1")
	assert.Equal(t, 100.0, pl.X, "existing entities keep their placement")
	assert.Equal(t, 1, kinds(s.Events())[EventCatalogReloaded])

	bad := next + `
rules:
  - id: dangling
    from: char-1
    to: [nobody]
`
	err := s.Reload(parse(t, bad))
	require.Error(t, err)
	assert.Equal(t, []string{"char-1"}, s.Entities())
	events := s.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventCatalogReloaded, events[0].Kind)
	assert.ErrorIs(t, err, events[0].Err)
	assert.ErrorIs(t, err, coordinator.ErrInvalidRule)
}

func TestAudioFollowsFrames(t *testing.T) {
	s := newStage(t, Options{})
	s.Play()
	require.NoError(t, s.RequestPhase(phase.ChangeRequest{EntityID: "char-1", ToPhaseID: "dance"}))
	s.Wait()

	tickTo(s, 300*time.Millisecond)
	levels := s.Audio().Levels()
	require.Len(t, levels, 1)
	assert.Equal(t, "char-1", levels[0].EntityID)
	assert.InDelta(t, 0.25, levels[0].Level, 0.02)

	s.Stop()
	assert.Empty(t, s.Audio().Levels())
}

func TestEventStrings(t *testing.T) {
	ev := Event{Kind: EventPhaseChanged, EntityID: "char-1", FromPhaseID: "idle", ToPhaseID: "dance", At: time.Second}
	assert.Equal(t, "phase-changed char-1 idle->dance @1s", ev.String())
	assert.Equal(t, "sync-drift-detected", EventSyncDrift.String())
	assert.Equal(t, "event(99)", EventKind(99).String())
}
