package render

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/transition"
	"golang.org/x/image/colornames"
)

const checkerSize = 32

// BackgroundRenderer fills the stage with a phase's gradient and image and
// serves the background modality. An image that is still loading is drawn
// as a checkerboard.
type BackgroundRenderer struct {
	images *ImageCache
	stage  image.Rectangle
}

func NewBackgroundRenderer(images *ImageCache, stageW, stageH int) *BackgroundRenderer {
	if images == nil {
		images = NewImageCache(nil)
	}
	return &BackgroundRenderer{images: images, stage: image.Rect(0, 0, stageW, stageH)}
}

func (r *BackgroundRenderer) Images() *ImageCache { return r.images }

func (r *BackgroundRenderer) Modality() phase.Modality { return phase.ModalityBackground }

// StartPhaseTransition loads the target image. A decode failure fails the
// sub-transition; the frame loop never waits on it.
func (r *BackgroundRenderer) StartPhaseTransition(ctx context.Context, entityID string, st transition.SubTransition) error {
	if st.To == nil || st.To.Appearance == nil || st.To.Appearance.Image == "" {
		return ctx.Err()
	}
	if err := r.images.Wait(ctx, st.To.Appearance.Image); err != nil {
		return fmt.Errorf("render: %s/%s: %w", entityID, st.To.ID, err)
	}
	return nil
}

// Preload starts loading every image a phase set refers to.
func (r *BackgroundRenderer) Preload(phases []*phase.Phase) {
	for _, p := range phases {
		if p != nil && p.Appearance != nil && p.Appearance.Image != "" {
			r.images.Request(p.Appearance.Image)
		}
	}
}

func (r *BackgroundRenderer) Draw(dst *ebiten.Image, f transition.Frame) {
	for _, l := range BackgroundLayers(f, r.stage) {
		if l.Clip == nil {
			r.drawLayer(dst, l)
			continue
		}
		for _, clip := range l.Clip {
			r.drawLayer(dst.SubImage(clip).(*ebiten.Image), l)
		}
	}
}

func (r *BackgroundRenderer) drawLayer(dst *ebiten.Image, l BackgroundLayer) {
	r.drawGradient(dst, l)
	if l.Image == "" {
		return
	}
	img, ok := r.images.Image(l.Image)
	if !ok {
		r.drawPlaceholder(dst, l.Alpha)
		return
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(r.stage.Dx())/float64(b.Dx()), float64(r.stage.Dy())/float64(b.Dy()))
	op.GeoM.Translate(float64(r.stage.Min.X), float64(r.stage.Min.Y))
	op.ColorScale.ScaleAlpha(float32(l.Alpha))
	dst.DrawImage(img, op)
}

func (r *BackgroundRenderer) drawGradient(dst *ebiten.Image, l BackgroundLayer) {
	x0, y0 := float64(r.stage.Min.X), float64(r.stage.Min.Y)
	x1, y1 := float64(r.stage.Max.X), float64(r.stage.Max.Y)
	vs := []ebiten.Vertex{
		bgVertex(x0, y0, l.Top, l.Alpha),
		bgVertex(x1, y0, l.Top, l.Alpha),
		bgVertex(x1, y1, l.Bottom, l.Alpha),
		bgVertex(x0, y1, l.Bottom, l.Alpha),
	}
	dst.DrawTriangles(vs, []uint16{0, 1, 2, 0, 2, 3}, white(), &ebiten.DrawTrianglesOptions{})
}

func bgVertex(x, y float64, c color.RGBA, alpha float64) ebiten.Vertex {
	return vertex(cp.Vector{X: x, Y: y}, c, alpha)
}

func (r *BackgroundRenderer) drawPlaceholder(dst *ebiten.Image, alpha float64) {
	light := withAlpha(colornames.Lightgray, alpha)
	dark := withAlpha(colornames.Darkgray, alpha)
	for y := r.stage.Min.Y; y < r.stage.Max.Y; y += checkerSize {
		for x := r.stage.Min.X; x < r.stage.Max.X; x += checkerSize {
			c := light
			if ((x-r.stage.Min.X)/checkerSize+(y-r.stage.Min.Y)/checkerSize)%2 == 1 {
				c = dark
			}
			vector.FillRect(dst, float32(x), float32(y), checkerSize, checkerSize, c, false)
		}
	}
}

func withAlpha(c color.RGBA, alpha float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(float64(c.A)*alpha + 0.5)}
}
