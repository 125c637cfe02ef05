// Package beat defines the musical clock the phase coordinator aligns to and
// a tempo-driven Metronome that implements it.
package beat

import "time"

// Tick is delivered to subscribers once per beat.
type Tick struct {
	Timestamp time.Duration
	Beat      int64
	Measure   int64
	Downbeat  bool
}

// Source is the musical clock. All timestamps are in performance time, the
// same timeline as the playback clock.
type Source interface {
	CurrentBPM() float64
	NextBeatTime() time.Duration
	NextMeasureTime() time.Duration
	Now() time.Duration
	OnBeat(fn func(Tick)) (cancel func())
}

// BeatLength is the duration of one beat at bpm, or zero if bpm is not positive.
func BeatLength(bpm float64) time.Duration {
	if bpm <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / bpm)
}

// RoundUpToBeats rounds d up to a whole number of beats at bpm. A zero or
// negative d, or an inactive tempo, returns d unchanged.
func RoundUpToBeats(d time.Duration, bpm float64) time.Duration {
	beatLen := BeatLength(bpm)
	if d <= 0 || beatLen <= 0 {
		return d
	}
	beats := (d + beatLen - 1) / beatLen
	return beats * beatLen
}
