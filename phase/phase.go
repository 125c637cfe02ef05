// Package phase holds the per-entity phase catalog and the authoritative
// active-phase table.
//
// A Phase is a named bundle of appearance, animation and audio state for one
// stage entity. Phases are immutable once inserted into a Catalog; changing a
// phase means inserting a new Phase with the same id, which supersedes the old
// record without touching it.
package phase

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"
)

var (
	ErrEntityNotFound = errors.New("phase: entity not found")
	ErrPhaseNotFound  = errors.New("phase: phase not found")
	ErrInvalidPhase   = errors.New("phase: invalid phase")
	ErrDuplicate      = errors.New("phase: duplicate id")
)

// Kind is the kind of stage entity that owns a catalog.
type Kind string

const (
	KindCharacter  Kind = "character"
	KindBackground Kind = "background"
)

// Modality names one independently rendered aspect of a phase.
type Modality string

const (
	ModalityAppearance Modality = "appearance"
	ModalityBackground Modality = "background"
	ModalityAudio      Modality = "audio"
	ModalityAnimation  Modality = "animation"
)

// Style is how a transition visually moves from one phase to the next.
type Style string

const (
	StyleCrossfade Style = "crossfade"
	StyleWipe      Style = "wipe"
	StyleDissolve  Style = "dissolve"
	StyleMorphing  Style = "morphing"
	StyleLayered   Style = "layered"
	StyleInstant   Style = "instant"
)

func (s Style) valid() bool {
	switch s {
	case StyleCrossfade, StyleWipe, StyleDissolve, StyleMorphing, StyleLayered, StyleInstant:
		return true
	}
	return false
}

// Easing shapes transition progress before it is used as a blend weight.
type Easing string

const (
	EaseLinear    Easing = "linear"
	EaseIn        Easing = "ease-in"
	EaseOut       Easing = "ease-out"
	EaseInOut     Easing = "ease-in-out"
	EaseStep      Easing = "step"
	defaultEasing        = EaseLinear
)

func (e Easing) valid() bool {
	switch e {
	case EaseLinear, EaseIn, EaseOut, EaseInOut, EaseStep:
		return true
	}
	return false
}

// Shape is the outline used to draw a character body.
type Shape string

const (
	ShapeRect    Shape = "rect"
	ShapeEllipse Shape = "ellipse"
	ShapeDiamond Shape = "diamond"
)

// Mood is descriptive metadata used for compatibility scoring.
type Mood string

const (
	MoodCalm       Mood = "calm"
	MoodPeaceful   Mood = "peaceful"
	MoodEnergetic  Mood = "energetic"
	MoodHappy      Mood = "happy"
	MoodPlayful    Mood = "playful"
	MoodSad        Mood = "sad"
	MoodMelancholy Mood = "melancholic"
	MoodTense      Mood = "tense"
	MoodDramatic   Mood = "dramatic"
	MoodMysterious Mood = "mysterious"
	MoodRomantic   Mood = "romantic"
)

const MaxIntensity = 10

// Appearance is the visual payload. For characters it describes the body
// geometry; for backgrounds Fill/Accent form a vertical gradient and Image, if
// set, is drawn over it.
type Appearance struct {
	Shape   Shape
	Width   float64
	Height  float64
	Fill    color.RGBA
	Accent  color.RGBA
	Image   string
	Palette []color.RGBA
}

// Animation is the idle motion applied on top of placement.
type Animation struct {
	Name string
	// BobAmplitude is the vertical bounce in stage units.
	BobAmplitude float64
	// Rate is motion cycles per second.
	Rate float64
	// Sway is the rotation amplitude in radians.
	Sway float64
	// Pulse is the scale oscillation amplitude (0.1 = +-10%).
	Pulse float64
}

// Audio is the sound bed associated with a phase.
type Audio struct {
	Track  string
	Volume float64
	Loop   bool
}

// TransitionConfig controls how a transition into this phase is played.
type TransitionConfig struct {
	Duration  time.Duration
	Style     Style
	BeatAlign bool
	Easing    Easing
}

// Metadata drives compatibility scoring between phases of different entities.
type Metadata struct {
	Mood      Mood
	Intensity int
	Tags      []string
}

// Phase is one entity's named bundle of modality payloads. Any payload may be
// nil, but at least one must be present.
type Phase struct {
	ID         string
	EntityID   string
	Name       string
	Appearance *Appearance
	Animation  *Animation
	Audio      *Audio
	Transition TransitionConfig
	Meta       Metadata
}

// Has reports whether the phase carries a payload for m. Background appearance
// counts as ModalityBackground, character appearance as ModalityAppearance;
// the caller decides which by entity kind.
func (p *Phase) Has(m Modality) bool {
	if p == nil {
		return false
	}
	switch m {
	case ModalityAppearance, ModalityBackground:
		return p.Appearance != nil
	case ModalityAnimation:
		return p.Animation != nil
	case ModalityAudio:
		return p.Audio != nil
	}
	return false
}

// HasTag reports whether the phase metadata carries tag.
func (p *Phase) HasTag(tag string) bool {
	if p == nil {
		return false
	}
	for _, t := range p.Meta.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Validate checks a phase before it is inserted into a catalog.
func (p *Phase) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrInvalidPhase)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPhase)
	}
	if strings.TrimSpace(p.EntityID) == "" {
		return fmt.Errorf("%w: %s: empty entity id", ErrInvalidPhase, p.ID)
	}
	if p.Appearance == nil && p.Animation == nil && p.Audio == nil {
		return fmt.Errorf("%w: %s: no appearance, animation or audio payload", ErrInvalidPhase, p.ID)
	}
	if p.Transition.Duration < 0 {
		return fmt.Errorf("%w: %s: negative transition duration", ErrInvalidPhase, p.ID)
	}
	if p.Transition.Style != "" && !p.Transition.Style.valid() {
		return fmt.Errorf("%w: %s: unknown style %q", ErrInvalidPhase, p.ID, p.Transition.Style)
	}
	if p.Transition.Easing != "" && !p.Transition.Easing.valid() {
		return fmt.Errorf("%w: %s: unknown easing %q", ErrInvalidPhase, p.ID, p.Transition.Easing)
	}
	if p.Meta.Intensity < 0 || p.Meta.Intensity > MaxIntensity {
		return fmt.Errorf("%w: %s: intensity %d outside [0,%d]", ErrInvalidPhase, p.ID, p.Meta.Intensity, MaxIntensity)
	}
	if a := p.Appearance; a != nil && (a.Width < 0 || a.Height < 0) {
		return fmt.Errorf("%w: %s: negative appearance size", ErrInvalidPhase, p.ID)
	}
	if a := p.Audio; a != nil && (a.Volume < 0 || a.Volume > 1) {
		return fmt.Errorf("%w: %s: audio volume %.2f outside [0,1]", ErrInvalidPhase, p.ID, a.Volume)
	}
	return nil
}

// normalized returns a deep copy with defaults filled in, so that catalog
// entries never alias caller memory.
func (p Phase) normalized() *Phase {
	out := p
	if out.Transition.Style == "" {
		out.Transition.Style = StyleCrossfade
	}
	if out.Transition.Easing == "" {
		out.Transition.Easing = defaultEasing
	}
	if out.Name == "" {
		out.Name = out.ID
	}
	if p.Appearance != nil {
		a := *p.Appearance
		a.Palette = append([]color.RGBA(nil), p.Appearance.Palette...)
		if a.Shape == "" {
			a.Shape = ShapeRect
		}
		out.Appearance = &a
	}
	if p.Animation != nil {
		a := *p.Animation
		out.Animation = &a
	}
	if p.Audio != nil {
		a := *p.Audio
		out.Audio = &a
	}
	out.Meta.Tags = append([]string(nil), p.Meta.Tags...)
	return &out
}

// GeometryKey identifies the cached drawable geometry of a phase. It changes
// whenever a superseding phase alters the shape or size.
func (p *Phase) GeometryKey() string {
	if p == nil || p.Appearance == nil {
		return ""
	}
	a := p.Appearance
	return fmt.Sprintf("%s/%s/%s/%.1fx%.1f", p.EntityID, p.ID, a.Shape, a.Width, a.Height)
}
