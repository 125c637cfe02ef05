package component

// SelectedTag marks the entity the pointer last selected. At most one entity
// carries it.
type SelectedTag struct{}

var SelectedTagComponent = NewComponent[SelectedTag]("selected")

// HoveredTag marks the entity under the pointer.
type HoveredTag struct{}

var HoveredTagComponent = NewComponent[HoveredTag]("hovered")
