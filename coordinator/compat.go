package coordinator

import (
	"image/color"
	"math"

	"github.com/milk9111/stagesync/phase"
)

const (
	scoreExactMood      = 40
	scoreCompatibleMood = 20
	scoreIntensityMax   = 30
	scoreIntensityStep  = 10
	scorePerSharedTag   = 5
	scoreTagCap         = 15
	scorePaletteMax     = 10
)

// compatibleMoods is symmetric: each pair is listed from both sides.
var compatibleMoods = map[phase.Mood][]phase.Mood{
	phase.MoodCalm:       {phase.MoodPeaceful, phase.MoodRomantic, phase.MoodMelancholy},
	phase.MoodPeaceful:   {phase.MoodCalm, phase.MoodRomantic, phase.MoodHappy},
	phase.MoodEnergetic:  {phase.MoodHappy, phase.MoodPlayful, phase.MoodDramatic},
	phase.MoodHappy:      {phase.MoodEnergetic, phase.MoodPlayful, phase.MoodPeaceful, phase.MoodRomantic},
	phase.MoodPlayful:    {phase.MoodHappy, phase.MoodEnergetic},
	phase.MoodSad:        {phase.MoodMelancholy},
	phase.MoodMelancholy: {phase.MoodSad, phase.MoodCalm, phase.MoodMysterious},
	phase.MoodTense:      {phase.MoodDramatic, phase.MoodMysterious},
	phase.MoodDramatic:   {phase.MoodTense, phase.MoodEnergetic},
	phase.MoodMysterious: {phase.MoodTense, phase.MoodMelancholy},
	phase.MoodRomantic:   {phase.MoodCalm, phase.MoodPeaceful, phase.MoodHappy},
}

// MoodsCompatible reports whether a and b appear together in the mood table.
func MoodsCompatible(a, b phase.Mood) bool {
	for _, m := range compatibleMoods[a] {
		if m == b {
			return true
		}
	}
	return false
}

// Score rates how well candidate goes with source. Higher is better.
func Score(source, candidate *phase.Phase) float64 {
	if source == nil || candidate == nil {
		return 0
	}
	var s float64

	switch sm, cm := source.Meta.Mood, candidate.Meta.Mood; {
	case sm != "" && sm == cm:
		s += scoreExactMood
	case MoodsCompatible(sm, cm):
		s += scoreCompatibleMood
	}

	d := source.Meta.Intensity - candidate.Meta.Intensity
	if d < 0 {
		d = -d
	}
	s += math.Max(0, float64(scoreIntensityMax-scoreIntensityStep*d))

	shared := 0
	for _, t := range source.Meta.Tags {
		if candidate.HasTag(t) {
			shared++
		}
	}
	s += math.Min(float64(shared*scorePerSharedTag), scoreTagCap)

	s += scorePaletteMax * paletteSimilarity(colours(source), colours(candidate))
	return s
}

func colours(p *phase.Phase) []color.RGBA {
	if p.Appearance == nil {
		return nil
	}
	if len(p.Appearance.Palette) > 0 {
		return p.Appearance.Palette
	}
	var out []color.RGBA
	if p.Appearance.Fill.A > 0 {
		out = append(out, p.Appearance.Fill)
	}
	if p.Appearance.Accent.A > 0 {
		out = append(out, p.Appearance.Accent)
	}
	return out
}

// maxRGBDistance is the distance from black to white.
var maxRGBDistance = math.Sqrt(3 * 255 * 255)

// paletteSimilarity averages, over a's colours, how close the nearest colour
// in b is. The result is in [0,1]; empty palettes score 0.
func paletteSimilarity(a, b []color.RGBA) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var total float64
	for _, ca := range a {
		best := maxRGBDistance
		for _, cb := range b {
			dr := float64(ca.R) - float64(cb.R)
			dg := float64(ca.G) - float64(cb.G)
			db := float64(ca.B) - float64(cb.B)
			best = math.Min(best, math.Sqrt(dr*dr+dg*dg+db*db))
		}
		total += 1 - best/maxRGBDistance
	}
	return total / float64(len(a))
}

// BestMatch returns the candidate with the highest score against source, or
// the lowest when contrast is set. Ties keep the earliest candidate, so the
// catalog's definition order breaks them.
func BestMatch(source *phase.Phase, candidates []*phase.Phase, contrast bool) (*phase.Phase, bool) {
	var best *phase.Phase
	var bestScore float64
	for _, c := range candidates {
		if c == nil {
			continue
		}
		s := Score(source, c)
		if best == nil || (!contrast && s > bestScore) || (contrast && s < bestScore) {
			best, bestScore = c, s
		}
	}
	return best, best != nil
}

// FindCompatibleBackgroundPhase picks the background phase that best suits
// source. It depends only on its arguments.
func FindCompatibleBackgroundPhase(cat Catalog, source *phase.Phase, backgroundID string) (string, bool) {
	if cat == nil || source == nil {
		return "", false
	}
	if k, ok := cat.Kind(backgroundID); !ok || k != phase.KindBackground {
		return "", false
	}
	var candidates []*phase.Phase
	for _, p := range cat.Phases(backgroundID) {
		if p.Appearance != nil {
			candidates = append(candidates, p)
		}
	}
	best, ok := BestMatch(source, candidates, false)
	if !ok {
		return "", false
	}
	return best.ID, true
}
