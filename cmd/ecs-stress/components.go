package main

import (
	"math/rand/v2"

	"github.com/plus3/tessera/ecs"
)

type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

// Lifetime counts down in seconds; the reaper despawns entities that reach zero.
type Lifetime struct {
	Remaining float64
}

type Energy struct {
	Value float32
}

// Burning is a short-lived marker, stored in a sparse set.
type Burning struct {
	Ticks int
}

// Population is the resource the spawner and the tally share.
type Population struct {
	Target  int
	Spawned int64
	Reaped  int64
}

// Reaped is sent for every entity the reaper despawns.
type Reaped struct {
	Entity ecs.EntityId
}

const componentCount = 5

func registerComponents(registry *ecs.ComponentRegistry) {
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Lifetime](registry)
	ecs.RegisterComponent[Energy](registry)
	ecs.RegisterComponent[Burning](registry, ecs.WithStorage(ecs.StorageSparseSet))
}

// randomComponents returns a Position and Lifetime plus a random subset of the
// other table components.
func randomComponents(rng *rand.Rand) []any {
	components := []any{
		Position{X: rng.Float32() * 1000, Y: rng.Float32() * 1000},
		Lifetime{Remaining: 1 + rng.Float64()*9},
	}
	if rng.IntN(4) != 0 {
		components = append(components, Velocity{DX: rng.Float32()*2 - 1, DY: rng.Float32()*2 - 1})
	}
	if rng.IntN(2) == 0 {
		components = append(components, Energy{Value: 50 + rng.Float32()*50})
	}
	return components
}
