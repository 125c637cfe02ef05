package transition

import (
	"image/color"

	"github.com/milk9111/stagesync/common"
	"github.com/milk9111/stagesync/phase"
)

// Snapshot is the drawable and audible state of an entity at one instant.
type Snapshot struct {
	// Shape morphs toward MorphShape by Morph.
	Shape      phase.Shape
	MorphShape phase.Shape
	Morph      float64
	Width      float64
	Height     float64
	Fill       color.RGBA
	Accent     color.RGBA
	Opacity    float64
	Image      string

	Bob   float64
	Rate  float64
	Sway  float64
	Pulse float64

	Track  string
	Volume float64
}

// Steady is the snapshot of p with no transition in progress.
func Steady(p *phase.Phase) Snapshot {
	var s Snapshot
	if p == nil {
		return s
	}
	if a := p.Appearance; a != nil {
		s.Shape, s.MorphShape = a.Shape, a.Shape
		s.Width, s.Height = a.Width, a.Height
		s.Fill, s.Accent = a.Fill, a.Accent
		s.Image = a.Image
		s.Opacity = 1
	}
	if a := p.Animation; a != nil {
		s.Bob, s.Rate, s.Sway, s.Pulse = a.BobAmplitude, a.Rate, a.Sway, a.Pulse
	}
	if a := p.Audio; a != nil {
		s.Track, s.Volume = a.Track, a.Volume
	}
	return s
}

// Blend interpolates from toward to at progress shaped by easing. At eased
// weight 0 it is exactly Steady(from) and at 1 exactly Steady(to). When only
// one side has an appearance its geometry is kept and only opacity fades.
func Blend(from, to *phase.Phase, progress float64, easing phase.Easing) Snapshot {
	w := Ease(easing, progress)
	a, b := Steady(from), Steady(to)
	if w <= 0 {
		return a
	}
	if w >= 1 {
		return b
	}

	if a.Opacity == 0 && b.Opacity > 0 {
		a = withGeometry(a, b)
	} else if b.Opacity == 0 && a.Opacity > 0 {
		b = withGeometry(b, a)
	}

	out := Snapshot{
		Shape:      a.Shape,
		MorphShape: b.Shape,
		Morph:      w,
		Width:      common.Lerp(a.Width, b.Width, w),
		Height:     common.Lerp(a.Height, b.Height, w),
		Fill:       lerpColor(a.Fill, b.Fill, w),
		Accent:     lerpColor(a.Accent, b.Accent, w),
		Opacity:    common.Lerp(a.Opacity, b.Opacity, w),
		Image:      a.Image,
		Bob:        common.Lerp(a.Bob, b.Bob, w),
		Rate:       common.Lerp(a.Rate, b.Rate, w),
		Sway:       common.Lerp(a.Sway, b.Sway, w),
		Pulse:      common.Lerp(a.Pulse, b.Pulse, w),
		Track:      a.Track,
		Volume:     common.Lerp(a.Volume, b.Volume, w),
	}
	if w >= 0.5 {
		out.Image = b.Image
		out.Track = b.Track
	}
	if out.Shape == "" {
		out.Shape = out.MorphShape
	}
	if out.MorphShape == "" {
		out.MorphShape = out.Shape
	}
	return out
}

func withGeometry(dst, src Snapshot) Snapshot {
	dst.Shape, dst.MorphShape = src.Shape, src.MorphShape
	dst.Width, dst.Height = src.Width, src.Height
	dst.Fill, dst.Accent = src.Fill, src.Accent
	dst.Image = src.Image
	return dst
}

func lerpColor(a, b color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: common.LerpByte(a.R, b.R, t),
		G: common.LerpByte(a.G, b.G, t),
		B: common.LerpByte(a.B, b.B, t),
		A: common.LerpByte(a.A, b.A, t),
	}
}

// Frame is everything a renderer needs to draw one entity: the two steady
// ends, their interpolation and the eased weight.
type Frame struct {
	Style  phase.Style
	Weight float64
	From   Snapshot
	To     Snapshot
	Mixed  Snapshot
	// FromPhase and ToPhase are the records behind From and To; renderers
	// key their geometry caches on them.
	FromPhase *phase.Phase
	ToPhase   *phase.Phase
	// Transitioning is false for a steady frame, where From, To and Mixed
	// are identical.
	Transitioning bool
}

// SteadyFrame wraps a single phase.
func SteadyFrame(p *phase.Phase) Frame {
	s := Steady(p)
	return Frame{Weight: 1, From: s, To: s, Mixed: s, FromPhase: p, ToPhase: p}
}

// FrameOf is the frame for an in-flight transition at its stored progress.
func FrameOf(ts phase.TransitionState) Frame {
	return Frame{
		Style:         ts.Style,
		Weight:        Ease(ts.Easing, ts.Progress),
		From:          Steady(ts.From),
		To:            Steady(ts.To),
		Mixed:         Blend(ts.From, ts.To, ts.Progress, ts.Easing),
		FromPhase:     ts.From,
		ToPhase:       ts.To,
		Transitioning: true,
	}
}
