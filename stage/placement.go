package stage

import (
	"github.com/milk9111/stagesync/ecs"
	"github.com/milk9111/stagesync/ecs/component"
)

type Placement = component.Placement

// PlacementStore owns entity placements. The stage reads placements back
// from it every frame and writes only in response to move intents.
type PlacementStore interface {
	Placement(entityID string) (Placement, bool)
	SetPlacement(entityID string, p Placement)
}

// worldPlacements keeps placements on the stage's ECS entities.
type worldPlacements struct {
	world *ecs.World
	ents  map[string]ecs.Entity
}

func (w *worldPlacements) Placement(entityID string) (Placement, bool) {
	e, ok := w.ents[entityID]
	if !ok {
		return Placement{}, false
	}
	pl, ok := ecs.Get(w.world, e, component.PlacementComponent.Kind())
	if !ok {
		return Placement{}, false
	}
	return *pl, true
}

func (w *worldPlacements) SetPlacement(entityID string, p Placement) {
	e, ok := w.ents[entityID]
	if !ok {
		return
	}
	_ = ecs.Add(w.world, e, component.PlacementComponent.Kind(), &p)
}
