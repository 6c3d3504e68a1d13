package ecs_test

import (
	"fmt"

	"github.com/plus3/tessera/ecs"
)

// ExampleArchetype demonstrates how despawning keeps archetype storage dense.
// Removing an entity swaps the last row into the freed slot, so iteration never
// visits gaps and no compaction step is needed. The entity that moved keeps its
// id; only its recorded location changes.
func ExampleArchetype() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Health](registry)
	w := ecs.NewWorld(registry)
	defer w.Close()

	entities := make([]ecs.EntityId, 5)
	for i := range 5 {
		entities[i] = w.Spawn(
			Position{X: float32(i * 10), Y: 0},
			Health{Current: 100, Max: 100},
		)
	}

	w.Despawn(entities[1])
	w.Despawn(entities[3])

	archetype := w.Archetype(entities[0])
	fmt.Printf("Rows: %d\n", archetype.Len())
	for id := range archetype.Iter() {
		pos := ecs.Get[Position](w, id)
		fmt.Printf("Position: (%.0f, %.0f)\n", pos.X, pos.Y)
	}

	// Output:
	// Rows: 3
	// Position: (0, 0)
	// Position: (40, 0)
	// Position: (20, 0)
}

// ExampleArchetype_sparse shows that sparse-set components change an entity's
// archetype without moving its table row. Tagging and untagging an entity with a
// sparse component is cheap, which suits short-lived markers.
func ExampleArchetype_sparse() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Frozen](registry, ecs.WithStorage(ecs.StorageSparseSet))
	w := ecs.NewWorld(registry)
	defer w.Close()

	entity := w.Spawn(Position{X: 1, Y: 2})
	before := w.Archetype(entity)

	w.Insert(entity, Frozen{Ticks: 3})
	after := w.Archetype(entity)

	fmt.Printf("Same archetype: %v\n", before == after)
	fmt.Printf("Same table: %v\n", before.Table() == after.Table())
	fmt.Printf("Sparse components: %d\n", len(after.SparseComponents()))

	// Output:
	// Same archetype: false
	// Same table: true
	// Sparse components: 1
}
