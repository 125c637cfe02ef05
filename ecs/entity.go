package ecs

import "fmt"

// Entity is a world handle: the low 32 bits are a 1-based slot index and the
// high 32 bits the slot's generation. A destroyed entity's slot is reused with
// a higher generation, so old handles stop being alive.
type Entity uint64

type entityID uint32
type generation uint32

const entityIDBits = 32

func makeEntity(id entityID, gen generation) Entity {
	return Entity(uint64(gen)<<entityIDBits | uint64(id))
}

func (e Entity) id() entityID { return entityID(uint32(e)) }

func (e Entity) generation() generation { return generation(uint32(uint64(e) >> entityIDBits)) }

// String renders the handle as slot/generation, e.g. "3v1".
func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.id(), e.generation())
}

// Valid reports whether e could name a slot. The zero Entity never does.
func (e Entity) Valid() bool {
	return e.id() > 0
}
