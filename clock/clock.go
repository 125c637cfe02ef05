// Package clock owns the authoritative performance time of the stage.
package clock

import "time"

// DefaultSyncTolerance is how far the playback clock may drift from an
// external audio clock before it is corrected.
const DefaultSyncTolerance = 10 * time.Millisecond

type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Clock is the playback state machine: Stopped -> Playing <-> Paused, with
// Stop reachable from both. Time only moves forward through Tick while
// Playing; Seek and SynchronizeTo set it directly.
type Clock struct {
	state       State
	current     time.Duration
	tolerance   time.Duration
	corrections int

	// OnSeek is called after every Seek so the owner can render at t even
	// while stopped or paused.
	OnSeek func(t time.Duration)
	// OnStateChange observes play/pause/stop.
	OnStateChange func(from, to State)
}

func New() *Clock {
	return &Clock{tolerance: DefaultSyncTolerance}
}

func (c *Clock) State() State { return c.state }

func (c *Clock) Time() time.Duration { return c.current }

func (c *Clock) Playing() bool { return c.state == Playing }

// SyncTolerance returns the drift allowed before CheckSync corrects.
func (c *Clock) SyncTolerance() time.Duration { return c.tolerance }

func (c *Clock) SetSyncTolerance(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.tolerance = d
}

// Corrections counts SynchronizeTo calls made by CheckSync.
func (c *Clock) Corrections() int { return c.corrections }

// Play starts or resumes from the current time; it never rewinds.
func (c *Clock) Play() {
	c.setState(Playing)
}

func (c *Clock) Pause() {
	if c.state != Playing {
		return
	}
	c.setState(Paused)
}

// Stop pauses and rewinds to zero.
func (c *Clock) Stop() {
	if c.state == Playing {
		c.setState(Paused)
	}
	c.current = 0
	c.setState(Stopped)
}

// Seek moves to t in any state without changing the state.
func (c *Clock) Seek(t time.Duration) {
	if t < 0 {
		t = 0
	}
	c.current = t
	if c.OnSeek != nil {
		c.OnSeek(t)
	}
}

// Tick integrates wall time while playing.
func (c *Clock) Tick(dt time.Duration) {
	if c.state != Playing || dt <= 0 {
		return
	}
	c.current += dt
}

// SynchronizeTo snaps the clock to an external reading.
func (c *Clock) SynchronizeTo(t time.Duration) {
	if t < 0 {
		t = 0
	}
	c.current = t
}

// CheckSync compares the clock with an external audio clock reading. When the
// drift exceeds the tolerance the clock is corrected once and corrected is
// true; the following check then sees no drift.
func (c *Clock) CheckSync(audio time.Duration) (drift time.Duration, corrected bool) {
	drift = audio - c.current
	abs := drift
	if abs < 0 {
		abs = -abs
	}
	if abs <= c.tolerance {
		return drift, false
	}
	c.SynchronizeTo(audio)
	c.corrections++
	return drift, true
}

func (c *Clock) setState(s State) {
	if c.state == s {
		return
	}
	from := c.state
	c.state = s
	if c.OnStateChange != nil {
		c.OnStateChange(from, s)
	}
}
