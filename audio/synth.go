// Package audio plays the audio modality of phases. Tracks are synthesised
// tones described as "tone:<hz>:<wave>"; every entity's tracks are mixed
// into one stream that the ebiten audio context pulls from.
package audio

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gopxl/beep"
)

var ErrBadTrack = errors.New("audio: bad track")

type Wave int

const (
	WaveSine Wave = iota
	WaveSquare
	WaveSaw
	WaveTriangle
	WaveNoise
)

var waveNames = map[string]Wave{
	"sine":     WaveSine,
	"square":   WaveSquare,
	"saw":      WaveSaw,
	"triangle": WaveTriangle,
	"noise":    WaveNoise,
}

func (w Wave) String() string {
	for name, v := range waveNames {
		if v == w {
			return name
		}
	}
	return fmt.Sprintf("wave(%d)", int(w))
}

// Tone is a parsed track.
type Tone struct {
	Freq float64
	Wave Wave
}

// ParseTrack parses "tone:440" or "tone:440:square". The wave defaults to
// sine.
func ParseTrack(track string) (Tone, error) {
	parts := strings.Split(strings.TrimSpace(track), ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "tone" {
		return Tone{}, fmt.Errorf("%w: %q", ErrBadTrack, track)
	}
	freq, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || freq <= 0 || freq > 20000 {
		return Tone{}, fmt.Errorf("%w: %q: frequency", ErrBadTrack, track)
	}
	t := Tone{Freq: freq, Wave: WaveSine}
	if len(parts) == 3 {
		w, ok := waveNames[strings.ToLower(parts[2])]
		if !ok {
			return Tone{}, fmt.Errorf("%w: %q: wave %q", ErrBadTrack, track, parts[2])
		}
		t.Wave = w
	}
	return t, nil
}

// oscillator is an endless periodic wave.
type oscillator struct {
	tone  Tone
	phase float64
	rate  beep.SampleRate
	rng   *rand.Rand
}

func newOscillator(t Tone, rate beep.SampleRate) *oscillator {
	return &oscillator{tone: t, rate: rate, rng: rand.New(rand.NewSource(int64(t.Freq)))}
}

func (o *oscillator) sample() float64 {
	p := o.phase
	switch o.tone.Wave {
	case WaveSquare:
		if p < 0.5 {
			return 1
		}
		return -1
	case WaveSaw:
		return 2 * (p - 0.5)
	case WaveTriangle:
		return 1 - 4*math.Abs(p-0.5)
	case WaveNoise:
		return o.rng.Float64()*2 - 1
	default:
		return math.Sin(2 * math.Pi * p)
	}
}

func (o *oscillator) Stream(samples [][2]float64) (int, bool) {
	step := o.tone.Freq / float64(o.rate)
	for i := range samples {
		v := o.sample()
		samples[i][0], samples[i][1] = v, v
		o.phase += step
		o.phase -= math.Floor(o.phase)
	}
	return len(samples), true
}

func (o *oscillator) Err() error { return nil }

// envelope ramps a finite stream in over attack and out over release.
type envelope struct {
	s       beep.Streamer
	pos     int
	total   int
	attack  int
	release int
}

func newEnvelope(s beep.Streamer, d, attack, release time.Duration, rate beep.SampleRate) beep.Streamer {
	return &envelope{s: beep.Take(rate.N(d), s), total: rate.N(d), attack: rate.N(attack), release: rate.N(release)}
}

func (e *envelope) Stream(samples [][2]float64) (int, bool) {
	n, ok := e.s.Stream(samples)
	for i := 0; i < n; i++ {
		g := 1.0
		if e.attack > 0 && e.pos < e.attack {
			g = float64(e.pos) / float64(e.attack)
		}
		if rem := e.total - e.pos; e.release > 0 && rem < e.release {
			g = math.Min(g, float64(rem)/float64(e.release))
		}
		samples[i][0] *= g
		samples[i][1] *= g
		e.pos++
	}
	return n, ok
}

func (e *envelope) Err() error { return e.s.Err() }
