package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/transition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrack(t *testing.T) {
	cases := []struct {
		in      string
		want    Tone
		wantErr bool
	}{
		{in: "tone:440", want: Tone{Freq: 440, Wave: WaveSine}},
		{in: "tone:220:square", want: Tone{Freq: 220, Wave: WaveSquare}},
		{in: " tone:110.5:Triangle ", want: Tone{Freq: 110.5, Wave: WaveTriangle}},
		{in: "tone:80:noise", want: Tone{Freq: 80, Wave: WaveNoise}},
		{in: "", wantErr: true},
		{in: "song.ogg", wantErr: true},
		{in: "tone:abc", wantErr: true},
		{in: "tone:-5", wantErr: true},
		{in: "tone:440:kazoo", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTrack(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrBadTrack)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func snap(track string, vol float64) transition.Snapshot {
	return transition.Snapshot{Track: track, Volume: vol}
}

func TestEngineCrossfade(t *testing.T) {
	e := NewEngine(0)

	e.Apply("char-1", transition.Frame{To: snap("tone:220:sine", 0.4)})
	assert.Equal(t, []Level{{EntityID: "char-1", Track: "tone:220:sine", Level: 0.4}}, e.Levels())

	e.Apply("char-1", transition.Frame{
		Transitioning: true,
		Weight:        0.25,
		From:          snap("tone:220:sine", 0.4),
		To:            snap("tone:440:square", 0.8),
	})
	levels := e.Levels()
	require.Len(t, levels, 2)
	assert.InDelta(t, 0.3, levels[0].Level, 1e-9)
	assert.Equal(t, "tone:440:square", levels[1].Track)
	assert.InDelta(t, 0.2, levels[1].Level, 1e-9)

	e.Apply("char-1", transition.Frame{To: snap("tone:440:square", 0.8)})
	assert.Equal(t, []Level{{EntityID: "char-1", Track: "tone:440:square", Level: 0.8}}, e.Levels())

	e.Silence("char-1")
	assert.Empty(t, e.Levels())
}

func TestEngineEntitiesAreIndependent(t *testing.T) {
	e := NewEngine(0)
	e.Apply("char-1", transition.Frame{To: snap("tone:220", 0.5)})
	e.Apply("char-2", transition.Frame{To: snap("tone:220", 0.5)})
	e.Apply("char-1", transition.Frame{})
	levels := e.Levels()
	require.Len(t, levels, 1)
	assert.Equal(t, "char-2", levels[0].EntityID)

	e.StopAll()
	assert.Empty(t, e.Levels())
}

func TestEngineSkipsBadTracks(t *testing.T) {
	e := NewEngine(0)
	e.Apply("char-1", transition.Frame{To: snap("song.ogg", 1)})
	assert.Empty(t, e.Levels())
}

func peak(samples [][2]float64) float64 {
	m := 0.0
	for _, s := range samples {
		m = math.Max(m, math.Abs(s[0]))
	}
	return m
}

func TestEngineStream(t *testing.T) {
	e := NewEngine(0)
	buf := make([][2]float64, 512)

	n, ok := e.Stream(buf)
	assert.Equal(t, len(buf), n)
	assert.True(t, ok)
	assert.Zero(t, peak(buf), "silent with no voices")

	e.Apply("char-1", transition.Frame{To: snap("tone:440:square", 0.5)})
	e.Stream(buf)
	assert.InDelta(t, 0.5, peak(buf), 1e-6)

	e.SetMuted(true)
	e.Stream(buf)
	assert.Zero(t, peak(buf))
	e.SetMuted(false)

	e.Pause(true)
	e.Stream(buf)
	assert.Zero(t, peak(buf))
}

func TestClickEnds(t *testing.T) {
	e := NewEngine(1000)
	e.Click(true)
	buf := make([][2]float64, 20)
	e.Stream(buf)
	assert.Greater(t, peak(buf), 0.0)

	// 40ms at 1kHz is 40 samples; after that the mix is silent again.
	for i := 0; i < 5; i++ {
		e.Stream(buf)
	}
	assert.Zero(t, peak(buf))
}

type constStream struct{ v float64 }

func (c constStream) Stream(s [][2]float64) (int, bool) {
	for i := range s {
		s[i] = [2]float64{c.v, -c.v}
	}
	return len(s), true
}

func (constStream) Err() error { return nil }

func TestPCMReader(t *testing.T) {
	r := &pcmReader{src: constStream{v: 2}}
	p := make([]byte, 10)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 8, n, "partial frames are not written")
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(p[0:])))
	assert.Equal(t, int16(-32767), int16(binary.LittleEndian.Uint16(p[2:])))
}

func TestRenderer(t *testing.T) {
	var r Renderer
	assert.Equal(t, phase.ModalityAudio, r.Modality())

	good := &phase.Phase{ID: "dance", Audio: &phase.Audio{Track: "tone:440:square"}}
	bad := &phase.Phase{ID: "dance", Audio: &phase.Audio{Track: "dance.ogg"}}
	silent := &phase.Phase{ID: "pose", Animation: &phase.Animation{}}

	assert.NoError(t, r.StartPhaseTransition(context.Background(), "char-1", transition.SubTransition{To: good}))
	assert.NoError(t, r.StartPhaseTransition(context.Background(), "char-1", transition.SubTransition{To: silent}))
	assert.ErrorIs(t, r.StartPhaseTransition(context.Background(), "char-1", transition.SubTransition{To: bad}), ErrBadTrack)
}
