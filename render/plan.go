package render

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/transition"
)

// ShapeLayer is one filled outline in the entity's local space, before
// placement and motion are applied.
type ShapeLayer struct {
	Outline []cp.Vector
	Fill    color.RGBA
	Accent  color.RGBA
	Alpha   float64
}

// CharacterLayers lists, back to front, the outlines a character frame is
// drawn with. Fully transparent layers are omitted.
func CharacterLayers(f transition.Frame, cache *GeometryCache) []ShapeLayer {
	to := layerOf(f.To, outlineOf(cache, f.ToPhase, f.To))
	if !f.Transitioning || f.Style == phase.StyleInstant {
		return visible(to)
	}
	from := layerOf(f.From, outlineOf(cache, f.FromPhase, f.From))
	// One-sided appearance: borrow the other side's outline so the entity
	// fades in place.
	if from.Outline == nil {
		from.Outline, from.Fill, from.Accent = to.Outline, to.Fill, to.Accent
	}
	if to.Outline == nil {
		to.Outline, to.Fill, to.Accent = from.Outline, from.Fill, from.Accent
	}

	w := f.Weight
	switch f.Style {
	case phase.StyleMorphing:
		return visible(ShapeLayer{
			Outline: MorphOutline(from.Outline, to.Outline, w),
			Fill:    f.Mixed.Fill,
			Accent:  f.Mixed.Accent,
			Alpha:   f.Mixed.Opacity,
		})
	case phase.StyleLayered:
		to.Alpha *= w
		return visible(from, to)
	case phase.StyleDissolve:
		from.Alpha *= 1 - w
		to.Alpha *= w
		to.Outline = scaleOutline(to.Outline, 1+0.25*(1-w))
		return visible(from, to)
	case phase.StyleWipe:
		minX, maxX := extentX(from.Outline, to.Outline)
		edge := minX + w*(maxX-minX)
		from.Outline = clampX(from.Outline, edge, math.Inf(1))
		to.Outline = clampX(to.Outline, math.Inf(-1), edge)
		return visible(from, to)
	default:
		from.Alpha *= 1 - w
		to.Alpha *= w
		return visible(from, to)
	}
}

func outlineOf(cache *GeometryCache, p *phase.Phase, s transition.Snapshot) []cp.Vector {
	if p == nil || p.Appearance == nil {
		return nil
	}
	if cache != nil {
		return cache.Outline(p)
	}
	return Outline(s.Shape, s.Width, s.Height)
}

func layerOf(s transition.Snapshot, outline []cp.Vector) ShapeLayer {
	return ShapeLayer{Outline: outline, Fill: s.Fill, Accent: s.Accent, Alpha: s.Opacity}
}

func visible(layers ...ShapeLayer) []ShapeLayer {
	out := layers[:0]
	for _, l := range layers {
		if l.Alpha > 0 && len(l.Outline) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func scaleOutline(pts []cp.Vector, k float64) []cp.Vector {
	out := make([]cp.Vector, len(pts))
	for i, p := range pts {
		out[i] = p.Mult(k)
	}
	return out
}

func extentX(a, b []cp.Vector) (minX, maxX float64) {
	minX, maxX = math.Inf(1), math.Inf(-1)
	for _, pts := range [][]cp.Vector{a, b} {
		for _, p := range pts {
			minX = math.Min(minX, p.X)
			maxX = math.Max(maxX, p.X)
		}
	}
	return minX, maxX
}

func clampX(pts []cp.Vector, lo, hi float64) []cp.Vector {
	out := make([]cp.Vector, len(pts))
	for i, p := range pts {
		out[i] = cp.Vector{X: math.Max(lo, math.Min(hi, p.X)), Y: p.Y}
	}
	return out
}

// Motion is the idle animation offset of a snapshot at time t: a vertical
// bob (negative is up), a rotation and a scale factor.
func Motion(s transition.Snapshot, t time.Duration) (dy, rot, scale float64) {
	if s.Rate <= 0 {
		return 0, 0, 1
	}
	a := 2 * math.Pi * s.Rate * t.Seconds()
	return -s.Bob * math.Abs(math.Sin(a)), s.Sway * math.Sin(a), 1 + s.Pulse*math.Sin(2*a)
}

// BackgroundLayer is one full-stage gradient, optionally with an image over
// it, limited to Clip. A nil Clip covers the whole stage.
type BackgroundLayer struct {
	Clip   []image.Rectangle
	Top    color.RGBA
	Bottom color.RGBA
	Image  string
	Alpha  float64
}

// DissolveCols and DissolveRows size the cell grid of a dissolving
// background.
const (
	DissolveCols = 8
	DissolveRows = 6
)

// BackgroundLayers lists, back to front, the layers a background frame is
// drawn with on a stage of the given size.
func BackgroundLayers(f transition.Frame, stage image.Rectangle) []BackgroundLayer {
	to := bgLayerOf(f.To)
	if !f.Transitioning || f.Style == phase.StyleInstant {
		return visibleBG(to)
	}
	from := bgLayerOf(f.From)
	w := f.Weight
	switch f.Style {
	case phase.StyleMorphing:
		return visibleBG(bgLayerOf(f.Mixed))
	case phase.StyleWipe:
		edge := stage.Min.X + int(math.Round(w*float64(stage.Dx())))
		to.Clip = []image.Rectangle{image.Rect(stage.Min.X, stage.Min.Y, edge, stage.Max.Y)}
		if edge <= stage.Min.X {
			to.Alpha = 0
		}
		return visibleBG(from, to)
	case phase.StyleDissolve:
		to.Clip = DissolveCells(stage, w)
		if len(to.Clip) == 0 {
			to.Alpha = 0
		}
		return visibleBG(from, to)
	default:
		// Backgrounds are opaque, so drawing the target over the source at
		// weight w is a true crossfade.
		to.Alpha *= w
		return visibleBG(from, to)
	}
}

func bgLayerOf(s transition.Snapshot) BackgroundLayer {
	return BackgroundLayer{Top: s.Fill, Bottom: s.Accent, Image: s.Image, Alpha: s.Opacity}
}

func visibleBG(layers ...BackgroundLayer) []BackgroundLayer {
	out := layers[:0]
	for _, l := range layers {
		if l.Alpha > 0 {
			out = append(out, l)
		}
	}
	return out
}

// DissolveCells returns the grid cells revealed at weight w. Cells appear in
// a fixed scattered order, so the set only grows with w and is complete at 1.
func DissolveCells(stage image.Rectangle, w float64) []image.Rectangle {
	const n = DissolveCols * DissolveRows
	revealed := int(math.Floor(w*n + 1e-9))
	if revealed <= 0 {
		return nil
	}
	if revealed > n {
		revealed = n
	}
	cells := make([]image.Rectangle, 0, revealed)
	for k := 0; k < revealed; k++ {
		// 29 is coprime with 48, so k -> idx is a permutation of the grid.
		idx := (k * 29) % n
		col, row := idx%DissolveCols, idx/DissolveCols
		x0 := stage.Min.X + col*stage.Dx()/DissolveCols
		x1 := stage.Min.X + (col+1)*stage.Dx()/DissolveCols
		y0 := stage.Min.Y + row*stage.Dy()/DissolveRows
		y1 := stage.Min.Y + (row+1)*stage.Dy()/DissolveRows
		cells = append(cells, image.Rect(x0, y0, x1, y1))
	}
	return cells
}
