package ecs

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statPos struct{ X, Y float32 }
type statVel struct{ DX, DY float32 }
type statMarker struct{ N int }
type statClock struct{ Tick int }

func newStatsWorld(t *testing.T) *World {
	t.Helper()
	registry := NewComponentRegistry()
	RegisterComponent[statPos](registry)
	RegisterComponent[statVel](registry)
	RegisterComponent[statMarker](registry, WithStorage(StorageSparseSet))
	w := NewWorld(registry)
	t.Cleanup(w.Close)
	return w
}

func TestCollectStats(t *testing.T) {
	w := newStatsWorld(t)

	stats := w.CollectStats()
	assert.Equal(t, 0, stats.ArchetypeCount)
	assert.Equal(t, 0, stats.TotalEntityCount)
	assert.Equal(t, 0, stats.ResourceCount)
	assert.Equal(t, 1, stats.TableCount, "the empty table always exists")

	w.Spawn(statPos{}, statVel{})
	w.Spawn(statPos{}, statVel{})
	w.Spawn(statPos{}, statVel{}, statMarker{})
	w.Spawn(statPos{})
	w.Spawn()
	w.InsertResource(statClock{})

	stats = w.CollectStats()
	assert.Equal(t, 3, stats.ArchetypeCount)
	assert.Equal(t, 3, stats.TableCount, "sparse archetypes share the pos+vel table")
	assert.Equal(t, 1, stats.SparseSetCount)
	assert.Equal(t, 5, stats.TotalEntityCount)
	assert.Equal(t, 1, stats.ResourceCount)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[statClock]()}, stats.ResourceTypes)

	counts := map[int]int{}
	for _, arch := range stats.ArchetypeBreakdown {
		counts[len(arch.ComponentTypes)] += arch.EntityCount
		if arch.SparseCount > 0 {
			assert.Equal(t, 1, arch.EntityCount)
			assert.Contains(t, arch.ComponentTypes, reflect.TypeFor[statMarker]())
		}
	}
	assert.Equal(t, map[int]int{1: 1, 2: 2, 3: 1}, counts)
}

func TestColumnSwapRemove(t *testing.T) {
	col := &typedColumn[statPos]{}
	require.True(t, col.push(statPos{X: 1}))
	require.True(t, col.push(&statPos{X: 2}))
	require.True(t, col.push(statPos{X: 3}))
	assert.False(t, col.push(statVel{}))

	col.swapRemove(0)
	assert.Equal(t, 2, col.len())
	assert.Equal(t, float32(3), col.get(0).(*statPos).X)
	assert.Equal(t, float32(2), col.get(1).(*statPos).X)
	assert.Nil(t, col.get(2))

	require.True(t, col.set(1, statPos{X: 9}))
	assert.Equal(t, float32(9), (*statPos)(col.ptr(1)).X)

	other := &typedColumn[statPos]{}
	other.pushFrom(col, 0)
	assert.Equal(t, statPos{X: 3}, other.data[0])
}

func TestSparseSetRemoveKeepsIndexConsistent(t *testing.T) {
	set := newTypedSparseSet[statMarker]()
	a, b, c := NewEntityId(0, 1), NewEntityId(5, 1), NewEntityId(2, 1)
	require.True(t, set.insert(a, statMarker{N: 1}))
	require.True(t, set.insert(b, statMarker{N: 2}))
	require.True(t, set.insert(c, &statMarker{N: 3}))
	assert.False(t, set.insert(a, statPos{}))

	require.True(t, set.remove(a))
	assert.False(t, set.remove(a))
	assert.False(t, set.has(a))
	assert.Equal(t, 2, set.len())
	assert.Equal(t, 2, set.get(b).(*statMarker).N)
	assert.Equal(t, 3, set.get(c).(*statMarker).N)
	assert.ElementsMatch(t, []EntityId{b, c}, set.entities())

	// a newer generation at the same index does not see the old value
	stale := NewEntityId(5, 2)
	assert.False(t, set.has(stale))
	assert.Nil(t, set.get(stale))
	assert.Nil(t, set.ptr(stale))
}

func TestStorageMoveFixesLocations(t *testing.T) {
	w := newStatsWorld(t)
	ids := make([]EntityId, 4)
	for i := range ids {
		ids[i] = w.Spawn(statPos{X: float32(i)})
	}
	// moving the first entity out swaps the last one into row 0
	require.NoError(t, w.Insert(ids[0], statVel{}))

	for i, id := range ids {
		loc, ok := w.entities.Location(id)
		require.True(t, ok)
		arch := w.storage.archetypes[loc.Archetype]
		assert.Equal(t, id, arch.table.entities[loc.TableRow])
		assert.Equal(t, id, arch.entities[loc.ArchetypeRow].entity)
		assert.Equal(t, loc.TableRow, arch.entities[loc.ArchetypeRow].tableRow)
		assert.Equal(t, float32(i), Get[statPos](w, id).X)
	}
}

func TestArchetypeEdgesAreCached(t *testing.T) {
	w := newStatsWorld(t)
	pos, _ := ComponentIdFor[statPos](w.registry)
	vel, _ := ComponentIdFor[statVel](w.registry)

	empty := w.storage.archetypes[EmptyArchetype]
	withPos := w.storage.archetypeWith(empty, pos)
	withBoth := w.storage.archetypeWith(withPos, vel)

	dst, ok := withPos.addEdges.Get(vel)
	require.True(t, ok)
	assert.Equal(t, withBoth.id, dst)
	back, ok := withBoth.removeEdges.Get(vel)
	require.True(t, ok)
	assert.Equal(t, withPos.id, back)

	assert.Same(t, withPos, w.storage.archetypeWithout(withBoth, vel))
	assert.Same(t, withBoth, w.storage.getArchetypeFor([]ComponentId{vel, pos, vel}))
}
