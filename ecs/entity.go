package ecs

import "fmt"

// EntityId encodes both the generation (upper 32 bits) and the entity index (lower 32 bits).
// Generations start at 1, so the zero EntityId never names a live entity.
type EntityId uint64

// NewEntityId creates an EntityId from an entity index and generation
func NewEntityId(index uint32, generation uint32) EntityId {
	return EntityId(uint64(generation)<<32 | uint64(index))
}

// Index extracts the entity index from the entity ID
func (e EntityId) Index() uint32 {
	return uint32(e & 0xFFFFFFFF)
}

// Generation extracts the generation counter from the entity ID
func (e EntityId) Generation() uint32 {
	return uint32(e >> 32)
}

// IsZero reports whether e is the zero (placeholder) id.
func (e EntityId) IsZero() bool {
	return e == 0
}

func (e EntityId) String() string {
	return fmt.Sprintf("%dv%d", e.Index(), e.Generation())
}

// EntityLocation records where an entity's data currently lives.
type EntityLocation struct {
	Archetype    ArchetypeId
	ArchetypeRow uint32
	Table        TableId
	TableRow     uint32
}
