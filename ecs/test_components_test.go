package ecs_test

import (
	"testing"

	"github.com/plus3/tessera/ecs"
	"github.com/stretchr/testify/require"
)

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Name struct {
	Value string
}

type Health struct {
	Current int
	Max     int
}

type PlayerController struct{}

type AI struct {
	State int
}

// Frozen is sparse-set stored
type Frozen struct {
	Ticks int
}

// Custom primitive types for testing non-struct components
type Score int32
type Tag string
type Temperature float64

type Inventory struct {
	Items []string
}

// Resources
type GameTime struct {
	Elapsed float64
	Frame   int
}

type Gravity struct {
	Y float32
}

type Paused bool

func newTestRegistry() *ecs.ComponentRegistry {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Name](registry)
	ecs.RegisterComponent[Health](registry)
	ecs.RegisterComponent[PlayerController](registry)
	ecs.RegisterComponent[AI](registry)
	ecs.RegisterComponent[Frozen](registry, ecs.WithStorage(ecs.StorageSparseSet))
	ecs.RegisterComponent[Score](registry)
	ecs.RegisterComponent[Tag](registry)
	ecs.RegisterComponent[Temperature](registry)
	ecs.RegisterComponent[Inventory](registry)
	return registry
}

func newTestWorld(t testing.TB) *ecs.World {
	t.Helper()
	w := ecs.NewWorld(newTestRegistry())
	t.Cleanup(w.Close)
	return w
}

func componentId[T any](t testing.TB, w *ecs.World) ecs.ComponentId {
	t.Helper()
	id, ok := ecs.ComponentIdFor[T](w.Registry())
	require.True(t, ok, "component not registered")
	return id
}
