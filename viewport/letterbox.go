// Package viewport maps between client (window) coordinates and the fixed
// logical stage under letterboxed scaling.
package viewport

import "github.com/jakecoffman/cp"

const (
	DefaultStageWidth  = 800
	DefaultStageHeight = 600
)

// Letterbox is the geometry of the stage as drawn inside the client area.
// Render* is the drawn rectangle in client pixels; Stage* is the logical size.
type Letterbox struct {
	RenderX      float64
	RenderY      float64
	RenderWidth  float64
	RenderHeight float64
	StageWidth   float64
	StageHeight  float64
}

// Fit scales the stage into a viewW x viewH client area preserving its aspect
// ratio, centring it and leaving margins on the short axis.
func Fit(viewW, viewH, stageW, stageH float64) Letterbox {
	if stageW <= 0 {
		stageW = DefaultStageWidth
	}
	if stageH <= 0 {
		stageH = DefaultStageHeight
	}
	lb := Letterbox{StageWidth: stageW, StageHeight: stageH}
	if viewW <= 0 || viewH <= 0 {
		return lb
	}
	scale := min(viewW/stageW, viewH/stageH)
	lb.RenderWidth = stageW * scale
	lb.RenderHeight = stageH * scale
	lb.RenderX = (viewW - lb.RenderWidth) / 2
	lb.RenderY = (viewH - lb.RenderHeight) / 2
	return lb
}

// Scale is client pixels per stage unit.
func (l Letterbox) Scale() float64 {
	if l.StageWidth == 0 {
		return 0
	}
	return l.RenderWidth / l.StageWidth
}

// Valid reports whether the geometry can be inverted.
func (l Letterbox) Valid() bool {
	return l.RenderWidth > 0 && l.RenderHeight > 0 && l.StageWidth > 0 && l.StageHeight > 0
}

// ToStage converts a client point to stage coordinates. Points outside the
// rendered rectangle still transform, so drags can continue past the edge.
func (l Letterbox) ToStage(clientX, clientY float64) (x, y float64) {
	if !l.Valid() {
		return clientX, clientY
	}
	x = (clientX - l.RenderX) * l.StageWidth / l.RenderWidth
	y = (clientY - l.RenderY) * l.StageHeight / l.RenderHeight
	return x, y
}

// ToClient converts a stage point to client coordinates.
func (l Letterbox) ToClient(stageX, stageY float64) (x, y float64) {
	if !l.Valid() {
		return stageX, stageY
	}
	x = l.RenderX + stageX*l.RenderWidth/l.StageWidth
	y = l.RenderY + stageY*l.RenderHeight/l.StageHeight
	return x, y
}

// Bounds is the rendered rectangle in client coordinates.
func (l Letterbox) Bounds() cp.BB {
	return cp.BB{L: l.RenderX, B: l.RenderY, R: l.RenderX + l.RenderWidth, T: l.RenderY + l.RenderHeight}
}

// IsPointInStage reports whether a client point falls on the drawn stage.
func (l Letterbox) IsPointInStage(clientX, clientY float64) bool {
	if !l.Valid() {
		return false
	}
	return l.Bounds().ContainsVect(cp.Vector{X: clientX, Y: clientY})
}
