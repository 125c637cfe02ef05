package component

// StageEntity ties an ECS entity to its stage identity and catalog kind.
type StageEntity struct {
	ID   string
	Kind string
}

var StageEntityComponent = NewComponent[StageEntity]("stage-entity")
