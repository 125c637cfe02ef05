package component

// HitBox is the unscaled, unrotated size of the region that accepts pointer
// hits, centred on the placement. The renderer refreshes it from the drawn
// shape every frame.
type HitBox struct {
	Width  float64
	Height float64
}

var HitBoxComponent = NewComponent[HitBox]("hitbox")
