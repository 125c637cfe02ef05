package ecs

import (
	"sort"

	"github.com/milk9111/stagesync/ecs/component"
)

// DrawOrder returns placed stage entities back to front: by render layer,
// then by entity id.
func DrawOrder(w *World) []Entity {
	var out []Entity
	ForEach2(w, component.StageEntityComponent.Kind(), component.PlacementComponent.Kind(), func(e Entity, _ *component.StageEntity, _ *component.Placement) {
		out = append(out, e)
	})
	layer := func(e Entity) int {
		if l, ok := Get(w, e, component.RenderLayerComponent.Kind()); ok {
			return l.Index
		}
		return 0
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := layer(out[i]), layer(out[j])
		if li != lj {
			return li < lj
		}
		return out[i].id() < out[j].id()
	})
	return out
}

// FindStageEntity returns the live entity registered under id.
func FindStageEntity(w *World, id string) (Entity, bool) {
	var found Entity
	ForEach(w, component.StageEntityComponent.Kind(), func(e Entity, se *component.StageEntity) {
		if !found.Valid() && se.ID == id {
			found = e
		}
	})
	return found, found.Valid()
}
