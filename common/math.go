package common

func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// LerpByte interpolates a colour channel, rounding to nearest.
func LerpByte(a, b uint8, t float64) uint8 {
	return uint8(Clamp(Lerp(float64(a), float64(b), t)+0.5, 0, 255))
}
