package stage

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/milk9111/stagesync/ecs"
	"github.com/milk9111/stagesync/ecs/component"
	"github.com/milk9111/stagesync/phase"
)

// Draw renders every placed entity back to front at the current performance
// time. It reads state only; Tick must have run first.
func (s *Stage) Draw(dst *ebiten.Image) {
	now := s.clock.Time()
	for _, e := range ecs.DrawOrder(s.world) {
		se, _ := ecs.Get(s.world, e, component.StageEntityComponent.Kind())
		pl, _ := ecs.Get(s.world, e, component.PlacementComponent.Kind())
		f, ok := s.Frame(se.ID)
		if !ok {
			continue
		}
		if phase.Kind(se.Kind) == phase.KindBackground {
			s.backgrounds.Draw(dst, f)
			continue
		}
		s.characters.Draw(dst, *pl, f, now)
		selected := ecs.Has(s.world, e, component.SelectedTagComponent.Kind())
		if selected || ecs.Has(s.world, e, component.HoveredTagComponent.Kind()) {
			s.characters.DrawHighlight(dst, *pl, f, now, selected)
		}
	}
}
