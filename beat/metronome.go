package beat

import (
	"sort"
	"time"
)

const (
	MinBPM                 = 20.0
	MaxBPM                 = 300.0
	DefaultBPM             = 120.0
	DefaultBeatsPerMeasure = 4
)

// Metronome derives beat and measure boundaries from a tempo and the
// performance time it is advanced to. Tempo changes re-anchor at the current
// time so that beats already delivered are never repeated.
type Metronome struct {
	bpm             float64
	beatsPerMeasure int

	anchorTime time.Duration
	anchorBeat int64

	now      time.Duration
	lastBeat int64

	subs   map[int]func(Tick)
	nextID int
}

func NewMetronome(bpm float64, beatsPerMeasure int) *Metronome {
	if beatsPerMeasure <= 0 {
		beatsPerMeasure = DefaultBeatsPerMeasure
	}
	m := &Metronome{
		beatsPerMeasure: beatsPerMeasure,
		subs:            make(map[int]func(Tick)),
		lastBeat:        -1,
	}
	m.bpm = clampBPM(bpm)
	return m
}

func clampBPM(bpm float64) float64 {
	if bpm <= 0 {
		return DefaultBPM
	}
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

func (m *Metronome) CurrentBPM() float64 { return m.bpm }

func (m *Metronome) BeatsPerMeasure() int { return m.beatsPerMeasure }

func (m *Metronome) Now() time.Duration { return m.now }

// SetBPM changes tempo from the current time on.
func (m *Metronome) SetBPM(bpm float64) {
	bpm = clampBPM(bpm)
	if bpm == m.bpm {
		return
	}
	m.anchorBeat = m.beatIndex(m.now)
	m.anchorTime = m.beatTime(m.anchorBeat)
	m.bpm = bpm
}

// beatIndex is the index of the last beat at or before t.
func (m *Metronome) beatIndex(t time.Duration) int64 {
	beatLen := BeatLength(m.bpm)
	if t < m.anchorTime {
		// Before the anchor (after a seek backwards): extrapolate.
		back := (m.anchorTime - t + beatLen - 1) / beatLen
		return m.anchorBeat - int64(back)
	}
	return m.anchorBeat + int64((t-m.anchorTime)/beatLen)
}

func (m *Metronome) beatTime(idx int64) time.Duration {
	return m.anchorTime + time.Duration(idx-m.anchorBeat)*BeatLength(m.bpm)
}

// NextBeatTime is the first beat boundary strictly after Now.
func (m *Metronome) NextBeatTime() time.Duration {
	return m.beatTime(m.beatIndex(m.now) + 1)
}

// NextMeasureTime is the first downbeat strictly after Now.
func (m *Metronome) NextMeasureTime() time.Duration {
	idx := m.beatIndex(m.now) + 1
	bpm := int64(m.beatsPerMeasure)
	if r := idx % bpm; r != 0 {
		if r < 0 {
			r += bpm
		}
		idx += bpm - r
	}
	return m.beatTime(idx)
}

// OnBeat subscribes fn to beat ticks. Subscribers run in subscription order.
func (m *Metronome) OnBeat(fn func(Tick)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() { delete(m.subs, id) }
}

// Advance moves the metronome to now and delivers one tick per beat boundary
// crossed since the previous call. Moving backwards re-syncs silently.
func (m *Metronome) Advance(now time.Duration) {
	if now < m.now {
		m.now = now
		m.lastBeat = m.beatIndex(now)
		if m.beatTime(m.lastBeat) == now {
			m.lastBeat--
		}
		return
	}
	m.now = now
	cur := m.beatIndex(now)
	if cur <= m.lastBeat {
		return
	}
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for b := m.lastBeat + 1; b <= cur; b++ {
		tick := Tick{
			Timestamp: m.beatTime(b),
			Beat:      b,
			Measure:   floorDiv(b, int64(m.beatsPerMeasure)),
			Downbeat:  mod(b, int64(m.beatsPerMeasure)) == 0,
		}
		for _, id := range ids {
			if fn, ok := m.subs[id]; ok {
				fn(tick)
			}
		}
	}
	m.lastBeat = cur
}

// Reset rewinds to time zero with no beats delivered.
func (m *Metronome) Reset() {
	m.anchorTime = 0
	m.anchorBeat = 0
	m.now = 0
	m.lastBeat = -1
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int64) int64 {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
