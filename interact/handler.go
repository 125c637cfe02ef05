// Package interact turns pointer events in stage coordinates into selection,
// hover and placement intents. It never moves an entity itself; the stage
// applies Move intents to the placement store and the handler reads the
// result back on the next event.
package interact

import (
	"fmt"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/stagesync/ecs"
	"github.com/milk9111/stagesync/ecs/component"
)

type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
)

func (k PointerKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	case PointerUp:
		return "up"
	}
	return fmt.Sprintf("pointer(%d)", int(k))
}

// PointerEvent is one pointer sample in stage coordinates. Pointer 0 is the
// mouse; touches use 1 and up.
type PointerEvent struct {
	Pointer int
	Kind    PointerKind
	X, Y    float64
}

type IntentKind int

const (
	IntentSelected IntentKind = iota
	IntentSelectionCleared
	IntentMove
	IntentDragCompleted
	IntentHoverChanged
)

func (k IntentKind) String() string {
	switch k {
	case IntentSelected:
		return "selected"
	case IntentSelectionCleared:
		return "selection-cleared"
	case IntentMove:
		return "move"
	case IntentDragCompleted:
		return "drag-completed"
	case IntentHoverChanged:
		return "hover-changed"
	}
	return fmt.Sprintf("intent(%d)", int(k))
}

// Intent is the handler's output. X/Y is the entity position requested by a
// Move or DragCompleted; EntityID is empty when hover leaves every entity.
type Intent struct {
	Kind     IntentKind
	EntityID string
	Pointer  int
	X, Y     float64
}

type dragState struct {
	pointer  int
	entity   ecs.Entity
	entityID string
	offset   cp.Vector
	last     cp.Vector
}

type Handler struct {
	world    *ecs.World
	drag     *dragState
	hover    map[int]ecs.Entity
	selected ecs.Entity
}

func NewHandler(w *ecs.World) *Handler {
	return &Handler{world: w, hover: make(map[int]ecs.Entity)}
}

// HitTest returns the topmost entity whose hit box contains the stage point.
// Entities without a HitBox are never hit.
func (h *Handler) HitTest(x, y float64) (ecs.Entity, bool) {
	order := ecs.DrawOrder(h.world)
	p := cp.Vector{X: x, Y: y}
	for i := len(order) - 1; i >= 0; i-- {
		e := order[i]
		box, ok := ecs.Get(h.world, e, component.HitBoxComponent.Kind())
		if !ok {
			continue
		}
		pl, ok := ecs.Get(h.world, e, component.PlacementComponent.Kind())
		if !ok {
			continue
		}
		if contains(pl, box, p) {
			return e, true
		}
	}
	return 0, false
}

func contains(pl *component.Placement, box *component.HitBox, p cp.Vector) bool {
	scale := pl.Scale
	if scale == 0 {
		scale = 1
	}
	local := p.Sub(cp.Vector{X: pl.X, Y: pl.Y}).Unrotate(cp.ForAngle(pl.Rotation)).Mult(1 / scale)
	return cp.NewBBForExtents(cp.Vector{}, box.Width/2, box.Height/2).ContainsVect(local)
}

func (h *Handler) stageID(e ecs.Entity) string {
	if se, ok := ecs.Get(h.world, e, component.StageEntityComponent.Kind()); ok {
		return se.ID
	}
	return ""
}

// Handle consumes one pointer event and returns the intents it produced, in
// order.
func (h *Handler) Handle(ev PointerEvent) []Intent {
	var out []Intent
	p := cp.Vector{X: ev.X, Y: ev.Y}

	switch ev.Kind {
	case PointerDown:
		hit, ok := h.HitTest(ev.X, ev.Y)
		out = h.updateHover(out, ev.Pointer, hit, ok)
		if h.drag != nil {
			// One pointer per drag; a second press only moves hover.
			break
		}
		if !ok {
			if h.selected.Valid() {
				out = append(out, Intent{Kind: IntentSelectionCleared, EntityID: h.stageID(h.selected), Pointer: ev.Pointer})
				h.setSelected(0)
			}
			break
		}
		pl, _ := ecs.Get(h.world, hit, component.PlacementComponent.Kind())
		id := h.stageID(hit)
		h.drag = &dragState{
			pointer:  ev.Pointer,
			entity:   hit,
			entityID: id,
			offset:   p.Sub(cp.Vector{X: pl.X, Y: pl.Y}),
			last:     cp.Vector{X: pl.X, Y: pl.Y},
		}
		h.setSelected(hit)
		out = append(out, Intent{Kind: IntentSelected, EntityID: id, Pointer: ev.Pointer, X: pl.X, Y: pl.Y})

	case PointerMove:
		if h.drag != nil && h.drag.pointer == ev.Pointer {
			pos := p.Sub(h.drag.offset)
			h.drag.last = pos
			out = append(out, Intent{Kind: IntentMove, EntityID: h.drag.entityID, Pointer: ev.Pointer, X: pos.X, Y: pos.Y})
			out = h.updateHover(out, ev.Pointer, h.drag.entity, true)
			break
		}
		hit, ok := h.HitTest(ev.X, ev.Y)
		out = h.updateHover(out, ev.Pointer, hit, ok)

	case PointerUp:
		if h.drag != nil && h.drag.pointer == ev.Pointer {
			pos := p.Sub(h.drag.offset)
			out = append(out, Intent{Kind: IntentDragCompleted, EntityID: h.drag.entityID, Pointer: ev.Pointer, X: pos.X, Y: pos.Y})
			h.drag = nil
		}
		if ev.Pointer != 0 {
			// A lifted touch stops hovering; the mouse keeps its cursor.
			out = h.updateHover(out, ev.Pointer, 0, false)
			delete(h.hover, ev.Pointer)
			break
		}
		hit, ok := h.HitTest(ev.X, ev.Y)
		out = h.updateHover(out, ev.Pointer, hit, ok)
	}
	return out
}

func (h *Handler) updateHover(out []Intent, pointer int, hit ecs.Entity, ok bool) []Intent {
	if !ok {
		hit = 0
	}
	if h.hover[pointer] == hit {
		return out
	}
	h.hover[pointer] = hit
	h.syncHoverTags()
	id := ""
	if hit.Valid() {
		id = h.stageID(hit)
	}
	return append(out, Intent{Kind: IntentHoverChanged, EntityID: id, Pointer: pointer})
}

func (h *Handler) syncHoverTags() {
	hovered := make(map[ecs.Entity]bool, len(h.hover))
	for _, e := range h.hover {
		if e.Valid() {
			hovered[e] = true
		}
	}
	ecs.ForEach(h.world, component.HoveredTagComponent.Kind(), func(e ecs.Entity, _ *component.HoveredTag) {
		if !hovered[e] {
			ecs.Remove(h.world, e, component.HoveredTagComponent.Kind())
		}
	})
	for e := range hovered {
		if !ecs.Has(h.world, e, component.HoveredTagComponent.Kind()) {
			_ = ecs.Add(h.world, e, component.HoveredTagComponent.Kind(), &component.HoveredTag{})
		}
	}
}

func (h *Handler) setSelected(e ecs.Entity) {
	if h.selected.Valid() && h.selected != e {
		ecs.Remove(h.world, h.selected, component.SelectedTagComponent.Kind())
	}
	h.selected = e
	if e.Valid() && !ecs.Has(h.world, e, component.SelectedTagComponent.Kind()) {
		_ = ecs.Add(h.world, e, component.SelectedTagComponent.Kind(), &component.SelectedTag{})
	}
}

// Selected is the stage id of the selected entity.
func (h *Handler) Selected() (string, bool) {
	if !h.selected.Valid() || !ecs.IsAlive(h.world, h.selected) {
		return "", false
	}
	return h.stageID(h.selected), true
}

// Dragging reports the entity under drag and the pointer holding it.
func (h *Handler) Dragging() (entityID string, pointer int, ok bool) {
	if h.drag == nil {
		return "", 0, false
	}
	return h.drag.entityID, h.drag.pointer, true
}

// Hovered is the entity under the mouse cursor.
func (h *Handler) Hovered() (string, bool) {
	e := h.hover[0]
	if !e.Valid() {
		return "", false
	}
	return h.stageID(e), true
}

// Reset drops drag, hover and selection state.
func (h *Handler) Reset() {
	h.drag = nil
	h.hover = make(map[int]ecs.Entity)
	h.syncHoverTags()
	h.setSelected(0)
}
