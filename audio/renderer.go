package audio

import (
	"context"
	"fmt"

	"github.com/milk9111/stagesync/phase"
	"github.com/milk9111/stagesync/transition"
)

// Renderer serves the audio modality. The crossfade itself is driven from
// the frame loop through Engine.Apply; a sub-transition only has to confirm
// the target track can be synthesised.
type Renderer struct{}

func (Renderer) Modality() phase.Modality { return phase.ModalityAudio }

func (Renderer) StartPhaseTransition(ctx context.Context, entityID string, st transition.SubTransition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.To == nil || st.To.Audio == nil || st.To.Audio.Track == "" {
		return nil
	}
	if _, err := ParseTrack(st.To.Audio.Track); err != nil {
		return fmt.Errorf("%s/%s: %w", entityID, st.To.ID, err)
	}
	return nil
}
