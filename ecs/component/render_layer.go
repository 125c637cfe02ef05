package component

// RenderLayer is the stage file's layer value. Lower layers draw first;
// entities without one draw at layer zero.
type RenderLayer struct {
	Index int
}

var RenderLayerComponent = NewComponent[RenderLayer]("render-layer")
