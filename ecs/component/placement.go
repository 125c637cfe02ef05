package component

// Placement is an entity's position on the logical stage. X/Y is the centre.
type Placement struct {
	X        float64
	Y        float64
	Rotation float64
	Scale    float64
}

var PlacementComponent = NewComponent[Placement]("placement")
