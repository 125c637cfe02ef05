package render

import (
	"image"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/stagesync/common"
	"github.com/milk9111/stagesync/ecs/component"
)

var (
	whiteOnce sync.Once
	whiteSub  *ebiten.Image
)

func white() *ebiten.Image {
	whiteOnce.Do(func() {
		img := ebiten.NewImage(3, 3)
		img.Fill(color.White)
		whiteSub = img.SubImage(image.Rect(1, 1, 2, 2)).(*ebiten.Image)
	})
	return whiteSub
}

// transform maps a local outline point to stage space.
type transform struct {
	origin cp.Vector
	rot    cp.Vector
	scale  float64
}

func newTransform(pl component.Placement, dy, rot, scale float64) transform {
	s := pl.Scale
	if s == 0 {
		s = 1
	}
	return transform{
		origin: cp.Vector{X: pl.X, Y: pl.Y + dy},
		rot:    cp.ForAngle(pl.Rotation + rot),
		scale:  s * scale,
	}
}

func (t transform) apply(p cp.Vector) cp.Vector {
	return p.Mult(t.scale).Rotate(t.rot).Add(t.origin)
}

func vertex(p cp.Vector, c color.RGBA, alpha float64) ebiten.Vertex {
	return ebiten.Vertex{
		DstX:   float32(p.X),
		DstY:   float32(p.Y),
		SrcX:   1,
		SrcY:   1,
		ColorR: float32(c.R) / 255,
		ColorG: float32(c.G) / 255,
		ColorB: float32(c.B) / 255,
		ColorA: float32(c.A) / 255 * float32(alpha),
	}
}

// fillOutline draws a centre fan over a star-shaped outline. The centre takes
// the fill colour and the rim blends toward the accent.
func fillOutline(dst *ebiten.Image, l ShapeLayer, tr transform) {
	n := len(l.Outline)
	if n < 3 {
		return
	}
	rim := mix(l.Fill, l.Accent, 0.35)
	vs := make([]ebiten.Vertex, 0, n+1)
	vs = append(vs, vertex(tr.apply(cp.Vector{}), l.Fill, l.Alpha))
	for _, p := range l.Outline {
		vs = append(vs, vertex(tr.apply(p), rim, l.Alpha))
	}
	is := make([]uint16, 0, n*3)
	for i := 0; i < n; i++ {
		is = append(is, 0, uint16(i+1), uint16((i+1)%n+1))
	}
	dst.DrawTriangles(vs, is, white(), &ebiten.DrawTrianglesOptions{})
}

func strokeOutline(dst *ebiten.Image, l ShapeLayer, tr transform, width float32) {
	n := len(l.Outline)
	c := color.NRGBA{R: l.Accent.R, G: l.Accent.G, B: l.Accent.B, A: uint8(float64(l.Accent.A)*l.Alpha + 0.5)}
	for i := 0; i < n; i++ {
		a, b := tr.apply(l.Outline[i]), tr.apply(l.Outline[(i+1)%n])
		vector.StrokeLine(dst, float32(a.X), float32(a.Y), float32(b.X), float32(b.Y), width, c, true)
	}
}

func mix(a, b color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: common.LerpByte(a.R, b.R, t),
		G: common.LerpByte(a.G, b.G, t),
		B: common.LerpByte(a.B, b.B, t),
		A: common.LerpByte(a.A, b.A, t),
	}
}
