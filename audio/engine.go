package audio

import (
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/milk9111/stagesync/transition"
)

const DefaultSampleRate = 44100

type voiceKey struct {
	entityID string
	track    string
}

type voice struct {
	ctrl   *beep.Ctrl
	volume *effects.Volume
	level  float64
}

func (v *voice) setLevel(level float64) {
	v.level = level
	if level <= 0 {
		v.volume.Silent = true
		return
	}
	v.volume.Silent = false
	v.volume.Volume = math.Log2(level)
}

// Engine mixes one voice per (entity, track). The frame loop sets levels;
// the audio device pulls samples through Stream on its own goroutine.
type Engine struct {
	rate beep.SampleRate

	mu     sync.Mutex
	mixer  *beep.Mixer
	voices map[voiceKey]*voice
	master float64
	muted  bool

	badTracks map[string]bool
}

func NewEngine(sampleRate int) *Engine {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Engine{
		rate:      beep.SampleRate(sampleRate),
		mixer:     &beep.Mixer{},
		voices:    make(map[voiceKey]*voice),
		master:    1,
		badTracks: make(map[string]bool),
	}
}

func (e *Engine) SampleRate() int { return int(e.rate) }

// Stream fills samples with the mix. It never ends; silence is streamed
// while no voice plays.
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	e.mu.Lock()
	n, _ := e.mixer.Stream(samples)
	gain := e.master
	if e.muted {
		gain = 0
	}
	e.mu.Unlock()
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
	for i := range samples[:n] {
		samples[i][0] *= gain
		samples[i][1] *= gain
	}
	return len(samples), true
}

func (e *Engine) Err() error { return nil }

// Apply sets the entity's voices from a frame. During a transition the
// outgoing track fades out while the incoming one fades in; the same track
// on both sides just changes level.
func (e *Engine) Apply(entityID string, f transition.Frame) {
	want := map[string]float64{}
	add := func(track string, level float64) {
		if track != "" && level > 0 {
			want[track] += level
		}
	}
	if f.Transitioning {
		add(f.From.Track, f.From.Volume*(1-f.Weight))
		add(f.To.Track, f.To.Volume*f.Weight)
	} else {
		add(f.To.Track, f.To.Volume)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, v := range e.voices {
		if key.entityID != entityID {
			continue
		}
		if _, ok := want[key.track]; !ok {
			v.ctrl.Streamer = nil
			delete(e.voices, key)
		}
	}
	for track, level := range want {
		key := voiceKey{entityID: entityID, track: track}
		v, ok := e.voices[key]
		if !ok {
			if v = e.newVoiceLocked(track); v == nil {
				continue
			}
			e.voices[key] = v
			e.mixer.Add(v.ctrl)
		}
		v.setLevel(math.Min(level, 1))
	}
}

func (e *Engine) newVoiceLocked(track string) *voice {
	tone, err := ParseTrack(track)
	if err != nil {
		if !e.badTracks[track] {
			e.badTracks[track] = true
			log.Printf("audio: %v", err)
		}
		return nil
	}
	vol := &effects.Volume{Streamer: newOscillator(tone, e.rate), Base: 2, Silent: true}
	return &voice{ctrl: &beep.Ctrl{Streamer: vol}, volume: vol}
}

// Silence stops every voice of the entity.
func (e *Engine) Silence(entityID string) {
	e.Apply(entityID, transition.Frame{})
}

// StopAll stops every voice.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, v := range e.voices {
		v.ctrl.Streamer = nil
		delete(e.voices, key)
	}
	e.mixer.Clear()
}

// Pause holds every voice without dropping it.
func (e *Engine) Pause(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range e.voices {
		v.ctrl.Paused = paused
	}
}

func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
}

func (e *Engine) Muted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *Engine) SetMaster(level float64) {
	e.mu.Lock()
	e.master = math.Max(0, math.Min(level, 1))
	e.mu.Unlock()
}

// Click plays a short metronome tick; accented ticks are higher.
func (e *Engine) Click(accent bool) {
	freq := 1000.0
	if accent {
		freq = 1600
	}
	osc := newOscillator(Tone{Freq: freq, Wave: WaveTriangle}, e.rate)
	s := newEnvelope(osc, 40*time.Millisecond, 2*time.Millisecond, 30*time.Millisecond, e.rate)
	vol := &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(0.3)}
	e.mu.Lock()
	e.mixer.Add(vol)
	e.mu.Unlock()
}

// Level is one playing voice, for the debug overlay and tests.
type Level struct {
	EntityID string
	Track    string
	Level    float64
}

// Levels lists the live voices sorted by entity then track.
func (e *Engine) Levels() []Level {
	e.mu.Lock()
	out := make([]Level, 0, len(e.voices))
	for key, v := range e.voices {
		out = append(out, Level{EntityID: key.entityID, Track: key.track, Level: v.level})
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Track < out[j].Track
	})
	return out
}
