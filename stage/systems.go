package stage

import (
	"time"

	"github.com/milk9111/stagesync/ecs"
	"github.com/milk9111/stagesync/ecs/component"
	"github.com/milk9111/stagesync/render"
)

// placementSystem reads placements back from an external store so hit tests
// and drawing see what the store holds.
type placementSystem struct {
	store PlacementStore
	ents  map[string]ecs.Entity
}

func (p *placementSystem) Update(w *ecs.World, _ time.Duration) {
	for id, e := range p.ents {
		pl, ok := p.store.Placement(id)
		if !ok {
			continue
		}
		if cur, ok := ecs.Get(w, e, component.PlacementComponent.Kind()); ok {
			*cur = pl
			continue
		}
		_ = ecs.Add(w, e, component.PlacementComponent.Kind(), &pl)
	}
}

// hitBoxSystem sizes every character's hit box to the shape it draws this
// frame.
type hitBoxSystem struct {
	stage *Stage
}

func (h *hitBoxSystem) Update(w *ecs.World, _ time.Duration) {
	ecs.ForEach2(w, component.StageEntityComponent.Kind(), component.HitBoxComponent.Kind(), func(_ ecs.Entity, se *component.StageEntity, box *component.HitBox) {
		f, ok := h.stage.Frame(se.ID)
		if !ok {
			*box = component.HitBox{}
			return
		}
		box.Width, box.Height = render.HitSize(f)
	})
}

// audioSystem feeds each entity's audio frame to the mixer while playing.
type audioSystem struct {
	stage *Stage
}

func (a *audioSystem) Update(w *ecs.World, _ time.Duration) {
	if !a.stage.clock.Playing() {
		return
	}
	ecs.ForEach(w, component.StageEntityComponent.Kind(), func(_ ecs.Entity, se *component.StageEntity) {
		// A missing frame yields the zero frame, which silences the entity.
		f, _ := a.stage.Frame(se.ID)
		a.stage.audio.Apply(se.ID, f)
	})
}
