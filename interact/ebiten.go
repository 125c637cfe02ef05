package interact

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/milk9111/stagesync/viewport"
)

// Poller samples ebiten mouse and touch state once per tick and converts it
// to stage-space pointer events. The mouse is pointer 0; each touch gets its
// own pointer id for as long as it stays down.
type Poller struct {
	touches   map[ebiten.TouchID]int
	last      map[ebiten.TouchID][2]int
	nextTouch int
	mouseX    int
	mouseY    int
	mouseSeen bool

	touchBuf []ebiten.TouchID
}

func NewPoller() *Poller {
	return &Poller{
		touches:   make(map[ebiten.TouchID]int),
		last:      make(map[ebiten.TouchID][2]int),
		nextTouch: 1,
	}
}

// Poll returns this tick's events. Events that land outside the letterboxed
// stage are dropped, except Up, which always reaches the handler so drags
// finish.
func (p *Poller) Poll(lb viewport.Letterbox) []PointerEvent {
	var out []PointerEvent
	emit := func(pointer int, kind PointerKind, cx, cy int) {
		fx, fy := float64(cx), float64(cy)
		if kind != PointerUp && !lb.IsPointInStage(fx, fy) {
			return
		}
		x, y := lb.ToStage(fx, fy)
		out = append(out, PointerEvent{Pointer: pointer, Kind: kind, X: x, Y: y})
	}

	mx, my := ebiten.CursorPosition()
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		emit(0, PointerDown, mx, my)
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		emit(0, PointerUp, mx, my)
	case !p.mouseSeen || mx != p.mouseX || my != p.mouseY:
		emit(0, PointerMove, mx, my)
	}
	p.mouseX, p.mouseY, p.mouseSeen = mx, my, true

	p.touchBuf = inpututil.AppendJustPressedTouchIDs(p.touchBuf[:0])
	for _, id := range p.touchBuf {
		p.touches[id] = p.nextTouch
		p.nextTouch++
		x, y := ebiten.TouchPosition(id)
		p.last[id] = [2]int{x, y}
		emit(p.touches[id], PointerDown, x, y)
	}

	p.touchBuf = ebiten.AppendTouchIDs(p.touchBuf[:0])
	for _, id := range p.touchBuf {
		pointer, ok := p.touches[id]
		if !ok {
			continue
		}
		x, y := ebiten.TouchPosition(id)
		if prev := p.last[id]; prev[0] != x || prev[1] != y {
			p.last[id] = [2]int{x, y}
			emit(pointer, PointerMove, x, y)
		}
	}

	p.touchBuf = inpututil.AppendJustReleasedTouchIDs(p.touchBuf[:0])
	for _, id := range p.touchBuf {
		pointer, ok := p.touches[id]
		if !ok {
			continue
		}
		x, y := inpututil.TouchPositionInPreviousTick(id)
		emit(pointer, PointerUp, x, y)
		delete(p.touches, id)
		delete(p.last, id)
	}
	return out
}
