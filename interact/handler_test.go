package interact

import (
	"math"
	"testing"

	"github.com/milk9111/stagesync/ecs"
	"github.com/milk9111/stagesync/ecs/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placed struct {
	id     string
	x, y   float64
	rot    float64
	scale  float64
	layer  int
	w, h   float64
	hitbox bool
}

func buildWorld(t *testing.T, items ...placed) *ecs.World {
	t.Helper()
	w := ecs.NewWorld()
	for _, it := range items {
		e := ecs.CreateEntity(w)
		require.NoError(t, ecs.Add(w, e, component.StageEntityComponent.Kind(), &component.StageEntity{ID: it.id}))
		require.NoError(t, ecs.Add(w, e, component.PlacementComponent.Kind(), &component.Placement{X: it.x, Y: it.y, Rotation: it.rot, Scale: it.scale}))
		require.NoError(t, ecs.Add(w, e, component.RenderLayerComponent.Kind(), &component.RenderLayer{Index: it.layer}))
		if it.hitbox {
			require.NoError(t, ecs.Add(w, e, component.HitBoxComponent.Kind(), &component.HitBox{Width: it.w, Height: it.h}))
		}
	}
	return w
}

// apply mirrors what the stage does with Move intents.
func apply(t *testing.T, w *ecs.World, intents []Intent) {
	t.Helper()
	for _, in := range intents {
		if in.Kind != IntentMove && in.Kind != IntentDragCompleted {
			continue
		}
		e, ok := ecs.FindStageEntity(w, in.EntityID)
		require.True(t, ok)
		pl, ok := ecs.Get(w, e, component.PlacementComponent.Kind())
		require.True(t, ok)
		pl.X, pl.Y = in.X, in.Y
	}
}

func count(intents []Intent, kind IntentKind) int {
	n := 0
	for _, in := range intents {
		if in.Kind == kind {
			n++
		}
	}
	return n
}

func TestDragAcrossStage(t *testing.T) {
	w := buildWorld(t, placed{id: "char-1", x: 100, y: 100, scale: 1, layer: 1, w: 80, h: 120, hitbox: true})
	h := NewHandler(w)

	var all []Intent
	for _, ev := range []PointerEvent{
		{Kind: PointerDown, X: 100, Y: 100},
		{Kind: PointerMove, X: 150, Y: 100},
		{Kind: PointerMove, X: 250, Y: 100},
		{Kind: PointerMove, X: 300, Y: 100},
		{Kind: PointerUp, X: 300, Y: 100},
	} {
		out := h.Handle(ev)
		apply(t, w, out)
		all = append(all, out...)
	}

	assert.Equal(t, 1, count(all, IntentSelected))
	assert.Equal(t, 3, count(all, IntentMove))
	assert.Equal(t, 1, count(all, IntentDragCompleted))
	assert.Zero(t, count(all, IntentSelectionCleared))

	e, _ := ecs.FindStageEntity(w, "char-1")
	pl, _ := ecs.Get(w, e, component.PlacementComponent.Kind())
	assert.Equal(t, 300.0, pl.X)
	assert.Equal(t, 100.0, pl.Y)

	id, ok := h.Selected()
	require.True(t, ok)
	assert.Equal(t, "char-1", id)
	assert.True(t, ecs.Has(w, e, component.SelectedTagComponent.Kind()))
	_, _, dragging := h.Dragging()
	assert.False(t, dragging)
}

func TestDragKeepsGrabOffset(t *testing.T) {
	w := buildWorld(t, placed{id: "char-1", x: 100, y: 100, scale: 1, w: 80, h: 120, hitbox: true})
	h := NewHandler(w)

	h.Handle(PointerEvent{Kind: PointerDown, X: 120, Y: 90})
	out := h.Handle(PointerEvent{Kind: PointerMove, X: 220, Y: 90})
	require.Len(t, out, 1)
	assert.Equal(t, IntentMove, out[0].Kind)
	assert.Equal(t, 200.0, out[0].X)
	assert.Equal(t, 100.0, out[0].Y)
}

func TestHitTest(t *testing.T) {
	cases := []struct {
		name   string
		items  []placed
		x, y   float64
		wantID string
	}{
		{
			name: "topmost_layer_wins",
			items: []placed{
				{id: "back", x: 0, y: 0, scale: 1, layer: 0, w: 100, h: 100, hitbox: true},
				{id: "front", x: 10, y: 0, scale: 1, layer: 2, w: 100, h: 100, hitbox: true},
			},
			x: 5, y: 5, wantID: "front",
		},
		{
			name: "later_entity_wins_within_layer",
			items: []placed{
				{id: "a", scale: 1, w: 50, h: 50, hitbox: true},
				{id: "b", scale: 1, w: 50, h: 50, hitbox: true},
			},
			wantID: "b",
		},
		{
			name:  "rotated_box_hit",
			items: []placed{{id: "bar", rot: math.Pi / 2, scale: 1, w: 100, h: 20, hitbox: true}},
			x:     0, y: 40, wantID: "bar",
		},
		{
			name:  "rotated_box_miss",
			items: []placed{{id: "bar", rot: math.Pi / 2, scale: 1, w: 100, h: 20, hitbox: true}},
			x:     40, y: 0,
		},
		{
			name:  "scaled_box",
			items: []placed{{id: "big", scale: 4, w: 10, h: 10, hitbox: true}},
			x:     15, y: 0, wantID: "big",
		},
		{
			name:  "no_hitbox_never_hit",
			items: []placed{{id: "sky", scale: 1, layer: 0}},
			x:     0, y: 0,
		},
		{
			name:  "outside",
			items: []placed{{id: "char-1", x: 100, y: 100, scale: 1, w: 10, h: 10, hitbox: true}},
			x:     0, y: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := buildWorld(t, tc.items...)
			h := NewHandler(w)
			e, ok := h.HitTest(tc.x, tc.y)
			if tc.wantID == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.wantID, h.stageID(e))
		})
	}
}

func TestClickEmptyClearsSelection(t *testing.T) {
	w := buildWorld(t,
		placed{id: "sky", scale: 1, layer: 0},
		placed{id: "char-1", x: 100, y: 100, scale: 1, layer: 1, w: 40, h: 40, hitbox: true},
	)
	h := NewHandler(w)

	h.Handle(PointerEvent{Kind: PointerDown, X: 100, Y: 100})
	h.Handle(PointerEvent{Kind: PointerUp, X: 100, Y: 100})

	out := h.Handle(PointerEvent{Kind: PointerDown, X: 400, Y: 400})
	require.Equal(t, 1, count(out, IntentSelectionCleared))
	_, ok := h.Selected()
	assert.False(t, ok)

	e, _ := ecs.FindStageEntity(w, "char-1")
	assert.False(t, ecs.Has(w, e, component.SelectedTagComponent.Kind()))

	// Nothing selected: a second empty click is silent.
	h.Handle(PointerEvent{Kind: PointerUp, X: 400, Y: 400})
	out = h.Handle(PointerEvent{Kind: PointerDown, X: 400, Y: 400})
	assert.Zero(t, count(out, IntentSelectionCleared))
}

func TestSecondPointerDoesNotStealDrag(t *testing.T) {
	w := buildWorld(t,
		placed{id: "char-1", x: 100, y: 100, scale: 1, w: 40, h: 40, hitbox: true},
		placed{id: "char-2", x: 300, y: 100, scale: 1, w: 40, h: 40, hitbox: true},
	)
	h := NewHandler(w)

	h.Handle(PointerEvent{Pointer: 1, Kind: PointerDown, X: 100, Y: 100})
	out := h.Handle(PointerEvent{Pointer: 2, Kind: PointerDown, X: 300, Y: 100})
	assert.Zero(t, count(out, IntentSelected))

	id, pointer, ok := h.Dragging()
	require.True(t, ok)
	assert.Equal(t, "char-1", id)
	assert.Equal(t, 1, pointer)

	// Moves from the other pointer never move the dragged entity.
	out = h.Handle(PointerEvent{Pointer: 2, Kind: PointerMove, X: 310, Y: 100})
	assert.Zero(t, count(out, IntentMove))
}

func TestHoverTracking(t *testing.T) {
	w := buildWorld(t, placed{id: "char-1", x: 100, y: 100, scale: 1, w: 40, h: 40, hitbox: true})
	h := NewHandler(w)
	e, _ := ecs.FindStageEntity(w, "char-1")

	out := h.Handle(PointerEvent{Kind: PointerMove, X: 100, Y: 100})
	require.Len(t, out, 1)
	assert.Equal(t, IntentHoverChanged, out[0].Kind)
	assert.Equal(t, "char-1", out[0].EntityID)
	assert.True(t, ecs.Has(w, e, component.HoveredTagComponent.Kind()))

	// Same target: no new intent.
	assert.Empty(t, h.Handle(PointerEvent{Kind: PointerMove, X: 105, Y: 100}))

	out = h.Handle(PointerEvent{Kind: PointerMove, X: 500, Y: 500})
	require.Len(t, out, 1)
	assert.Equal(t, "", out[0].EntityID)
	assert.False(t, ecs.Has(w, e, component.HoveredTagComponent.Kind()))

	h.Handle(PointerEvent{Kind: PointerMove, X: 100, Y: 100})
	h.Reset()
	assert.False(t, ecs.Has(w, e, component.HoveredTagComponent.Kind()))
	_, ok := h.Hovered()
	assert.False(t, ok)
}
