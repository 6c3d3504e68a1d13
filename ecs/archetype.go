package ecs

import (
	"iter"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/kamstrup/intmap"
)

// ArchetypeId identifies an Archetype within a Storage. Id 0 is the empty archetype.
type ArchetypeId uint32

// EmptyArchetype is the archetype of entities without components.
const EmptyArchetype ArchetypeId = 0

type archetypeEntity struct {
	entity   EntityId
	tableRow uint32
}

// Archetype represents a unique combination of component types.
// Its table-stored components live in a shared Table; its sparse components live
// in per-type sparse sets.
type Archetype struct {
	id         ArchetypeId
	table      *Table
	components []ComponentId
	sparse     []ComponentId
	mask       *bitset.BitSet
	entities   []archetypeEntity

	addEdges    *intmap.Map[ComponentId, ArchetypeId]
	removeEdges *intmap.Map[ComponentId, ArchetypeId]
}

func newArchetype(id ArchetypeId, components []ComponentId, sparse []ComponentId, table *Table) *Archetype {
	mask := bitset.New(0)
	for _, cid := range components {
		mask.Set(uint(cid))
	}
	return &Archetype{
		id:          id,
		table:       table,
		components:  components,
		sparse:      sparse,
		mask:        mask,
		addEdges:    intmap.New[ComponentId, ArchetypeId](4),
		removeEdges: intmap.New[ComponentId, ArchetypeId](4),
	}
}

// ID returns the archetype's unique identifier
func (a *Archetype) ID() ArchetypeId {
	return a.id
}

// Components returns the sorted component ids of this archetype
func (a *Archetype) Components() []ComponentId {
	return a.components
}

// SparseComponents returns the subset of components stored in sparse sets.
func (a *Archetype) SparseComponents() []ComponentId {
	return a.sparse
}

// Table returns the table holding this archetype's table-stored components.
func (a *Archetype) Table() *Table {
	return a.table
}

// HasComponent checks if this archetype has the given component type
func (a *Archetype) HasComponent(id ComponentId) bool {
	return a.mask.Test(uint(id))
}

// Mask returns the set of component ids as a bitset. Callers must not modify it.
func (a *Archetype) Mask() *bitset.BitSet {
	return a.mask
}

// Len returns the number of entities in the archetype.
func (a *Archetype) Len() int {
	return len(a.entities)
}

// Iter returns an iterator over all entities in this archetype
func (a *Archetype) Iter() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		for _, e := range a.entities {
			if !yield(e.entity) {
				return
			}
		}
	}
}

func (a *Archetype) allocate(entity EntityId, tableRow uint32) uint32 {
	a.entities = append(a.entities, archetypeEntity{entity: entity, tableRow: tableRow})
	return uint32(len(a.entities) - 1)
}

func (a *Archetype) swapRemove(row uint32) (EntityId, bool) {
	last := uint32(len(a.entities) - 1)
	var moved EntityId
	hasMoved := row != last
	if hasMoved {
		moved = a.entities[last].entity
		a.entities[row] = a.entities[last]
	}
	a.entities = a.entities[:last]
	return moved, hasMoved
}

func sameComponents(a, b []ComponentId) bool {
	return slices.Equal(a, b)
}
