package ecs_test

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/plus3/tessera/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityIdEncoding(t *testing.T) {
	tests := []struct {
		index      uint32
		generation uint32
	}{
		{0, 1},
		{0xFFFFFFFF, 0xFFFFFFFF},
		{1, 1},
		{0x12345678, 0x9ABCDEF0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("index=%d,generation=%d", tt.index, tt.generation), func(t *testing.T) {
			id := ecs.NewEntityId(tt.index, tt.generation)
			assert.Equal(t, tt.index, id.Index())
			assert.Equal(t, tt.generation, id.Generation())
			assert.False(t, id.IsZero())
		})
	}

	assert.Equal(t, "3v2", ecs.NewEntityId(3, 2).String())
	assert.True(t, ecs.EntityId(0).IsZero())
}

func TestEntitiesAllocateAndFree(t *testing.T) {
	entities := ecs.NewEntities()

	a := entities.Allocate()
	b := entities.Allocate()
	assert.NotEqual(t, a, b)
	assert.Equal(t, uint32(1), a.Generation())
	assert.True(t, entities.IsAlive(a))
	assert.Equal(t, 2, entities.Len())

	require.True(t, entities.Free(a))
	assert.False(t, entities.IsAlive(a))
	assert.False(t, entities.Free(a), "double free must be rejected")
	assert.Equal(t, 1, entities.Len())

	// the freed index is reused with a bumped generation
	c := entities.Allocate()
	assert.Equal(t, a.Index(), c.Index())
	assert.Equal(t, a.Generation()+1, c.Generation())
	assert.False(t, entities.IsAlive(a), "stale id must stay dead after reuse")
	assert.True(t, entities.IsAlive(c))

	_, ok := entities.Location(a)
	assert.False(t, ok)
}

func TestEntitiesNeverAllocatedIsDead(t *testing.T) {
	entities := ecs.NewEntities()
	assert.False(t, entities.IsAlive(ecs.NewEntityId(42, 1)))
	assert.False(t, entities.IsAlive(0))
}

func TestEntitiesReserveConcurrently(t *testing.T) {
	w := newTestWorld(t)

	const goroutines, perGoroutine = 8, 250
	ids := make(chan ecs.EntityId, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				ids <- w.Entities().Reserve()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ecs.EntityId]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate reserved id %s", id)
		seen[id] = true
		assert.False(t, w.IsAlive(id), "reserved ids are not alive before flush")
	}

	w.Flush()
	for id := range seen {
		assert.True(t, w.IsAlive(id))
		assert.Equal(t, ecs.EmptyArchetype, w.Archetype(id).ID())
	}
	assert.Equal(t, goroutines*perGoroutine, w.Entities().Len())
}

func TestEntitiesRandomAllocateFree(t *testing.T) {
	entities := ecs.NewEntities()
	rng := rand.New(rand.NewPCG(3, 5))

	live := make(map[ecs.EntityId]bool)
	var order []ecs.EntityId
	var freed []ecs.EntityId
	for step := range 5000 {
		if len(order) == 0 || rng.IntN(3) != 0 {
			id := entities.Allocate()
			require.False(t, live[id], "step %d: %s handed out twice", step, id)
			require.False(t, id.IsZero())
			live[id] = true
			order = append(order, id)
		} else {
			i := rng.IntN(len(order))
			id := order[i]
			order[i] = order[len(order)-1]
			order = order[:len(order)-1]
			require.True(t, entities.Free(id), "step %d", step)
			delete(live, id)
			freed = append(freed, id)
		}
		require.Equal(t, len(live), entities.Len(), "step %d", step)
	}

	for id := range live {
		assert.True(t, entities.IsAlive(id))
	}
	for _, id := range freed {
		assert.False(t, entities.IsAlive(id), "freed %s came back", id)
	}
}
