package render

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/milk9111/stagesync/ecs/component"
	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/transition"
	"golang.org/x/image/colornames"
)

// CharacterRenderer draws character bodies and serves the appearance
// modality of the transition engine.
type CharacterRenderer struct {
	cache       *GeometryCache
	StrokeWidth float32
}

func NewCharacterRenderer(cache *GeometryCache) *CharacterRenderer {
	if cache == nil {
		cache = NewGeometryCache(0)
	}
	return &CharacterRenderer{cache: cache, StrokeWidth: 2}
}

func (r *CharacterRenderer) Cache() *GeometryCache { return r.cache }

func (r *CharacterRenderer) Modality() phase.Modality { return phase.ModalityAppearance }

// StartPhaseTransition builds the target outline ahead of the first blended
// frame.
func (r *CharacterRenderer) StartPhaseTransition(ctx context.Context, entityID string, st transition.SubTransition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.To == nil || st.To.Appearance == nil {
		return nil
	}
	a := st.To.Appearance
	if a.Width <= 0 || a.Height <= 0 {
		return fmt.Errorf("render: %s/%s: empty geometry %.0fx%.0f", entityID, st.To.ID, a.Width, a.Height)
	}
	r.cache.Outline(st.To)
	return nil
}

// Draw renders one character frame at placement pl and time t.
func (r *CharacterRenderer) Draw(dst *ebiten.Image, pl component.Placement, f transition.Frame, t time.Duration) {
	dy, rot, scale := Motion(f.Mixed, t)
	tr := newTransform(pl, dy, rot, scale)
	for _, l := range CharacterLayers(f, r.cache) {
		fillOutline(dst, l, tr)
		strokeOutline(dst, l, tr, r.StrokeWidth)
	}
}

// DrawHighlight rings the frame's current outline, used for selection and
// hover feedback.
func (r *CharacterRenderer) DrawHighlight(dst *ebiten.Image, pl component.Placement, f transition.Frame, t time.Duration, selected bool) {
	layers := CharacterLayers(f, r.cache)
	if len(layers) == 0 {
		return
	}
	top := layers[len(layers)-1]
	ring := ShapeLayer{Outline: scaleOutline(top.Outline, 1.12), Alpha: 1, Accent: colornames.Lightgrey}
	if selected {
		ring.Accent = colornames.Gold
	}
	dy, rot, scale := Motion(f.Mixed, t)
	strokeOutline(dst, ring, newTransform(pl, dy, rot, scale), r.StrokeWidth+1)
}

// HitSize is the size of the frame's hit box, before placement scale.
func HitSize(f transition.Frame) (w, h float64) {
	s := f.Mixed
	if s.Width == 0 && s.Height == 0 {
		s = f.To
	}
	return s.Width, s.Height
}

// AnimationRenderer serves the animation modality. Motion is computed from
// the blended frame at draw time, so a sub-transition only checks that the
// target motion is drawable.
type AnimationRenderer struct{}

func (AnimationRenderer) Modality() phase.Modality { return phase.ModalityAnimation }

func (AnimationRenderer) StartPhaseTransition(ctx context.Context, entityID string, st transition.SubTransition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.To == nil || st.To.Animation == nil {
		return nil
	}
	a := st.To.Animation
	for _, v := range []float64{a.BobAmplitude, a.Rate, a.Sway, a.Pulse} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("render: %s/%s: animation %q is not finite", entityID, st.To.ID, a.Name)
		}
	}
	if a.Rate < 0 {
		return fmt.Errorf("render: %s/%s: animation %q has negative rate", entityID, st.To.ID, a.Name)
	}
	return nil
}
