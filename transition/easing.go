package transition

import (
	"math"

	"github.com/milk9111/stagesync/common"
	"github.com/milk9111/stagesync/phase"
)

// Ease maps linear progress t in [0,1] through the named curve. Every curve
// fixes 0 and 1.
func Ease(e phase.Easing, t float64) float64 {
	t = common.Clamp01(t)
	switch e {
	case phase.EaseIn:
		return t * t
	case phase.EaseOut:
		return 1 - (1-t)*(1-t)
	case phase.EaseInOut:
		return 0.5 - 0.5*math.Cos(math.Pi*t)
	case phase.EaseStep:
		if t < 1 {
			return 0
		}
		return 1
	}
	return t
}
