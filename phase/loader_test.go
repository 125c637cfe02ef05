package phase

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStage = `
entities:
  - id: bg
    kind: background
    default: night
    phases:
      - id: day
        appearance: {fill: skyblue}
      - id: night
        appearance: {fill: "#000", accent: "#102030"}
        transition: {duration: 1500ms, style: wipe, beat_align: true}
        meta: {mood: Calm, intensity: 2, tags: [dark]}
  - id: char-1
    kind: character
    placement: {x: 100, y: 200}
    phases:
      - id: idle
        audio: {track: "tone:220"}
rules:
  - from: char-1
    to: [bg]
    mode: responsive
`

func TestParseStageFile(t *testing.T) {
	sf, err := ParseStageFile([]byte(sampleStage))
	require.NoError(t, err)
	require.Len(t, sf.Entities, 2)
	require.Len(t, sf.Rules, 1)
	assert.Equal(t, 100.0, sf.Entities[1].Placement.X)

	c, err := sf.BuildCatalog()
	require.NoError(t, err)

	def, ok := c.DefaultPhase("bg")
	require.True(t, ok)
	assert.Equal(t, "night", def.ID)
	assert.Equal(t, 1500*time.Millisecond, def.Transition.Duration)
	assert.Equal(t, StyleWipe, def.Transition.Style)
	assert.True(t, def.Transition.BeatAlign)
	assert.Equal(t, MoodCalm, def.Meta.Mood)
	assert.Equal(t, color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, def.Appearance.Accent)

	idle, ok := c.Phase("char-1", "idle")
	require.True(t, ok)
	assert.Equal(t, 1.0, idle.Audio.Volume)
}

func TestBuildCatalogRejectsBadDuration(t *testing.T) {
	sf, err := ParseStageFile([]byte(`
entities:
  - id: a
    kind: character
    phases:
      - id: p
        audio: {track: x}
        transition: {duration: soon}
`))
	require.NoError(t, err)
	_, err = sf.BuildCatalog()
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestParseColor(t *testing.T) {
	cases := []struct {
		in   string
		want color.RGBA
		err  bool
	}{
		{"", color.RGBA{}, false},
		{"#fff", color.RGBA{R: 255, G: 255, B: 255, A: 255}, false},
		{"#11223344", color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, false},
		{"red", color.RGBA{R: 255, A: 255}, false},
		{"#12", color.RGBA{}, true},
		{"notacolour", color.RGBA{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseColor(tc.in)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
