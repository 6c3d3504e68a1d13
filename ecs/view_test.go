package ecs_test

import (
	"testing"

	"github.com/plus3/tessera/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestView(t *testing.T) {
	w := newTestWorld(t)
	entityId := w.Spawn(&Position{X: 1, Y: 2}, Temperature(32))

	view := ecs.NewView[struct {
		*Position
		*Temperature
	}](w)

	item := view.Get(entityId)
	require.NotNil(t, item)
	assert.Equal(t, Temperature(32), *item.Temperature)
	assert.Equal(t, float32(1), item.Position.X)
	assert.Equal(t, float32(2), item.Position.Y)
}

func TestViewMissingComponent(t *testing.T) {
	w := newTestWorld(t)
	entityId := w.Spawn(&Position{X: 5, Y: 10})

	view := ecs.NewView[struct {
		*Position
		*Velocity
	}](w)

	assert.Nil(t, view.Get(entityId))
	assert.Nil(t, view.Get(ecs.NewEntityId(999, 1)))
}

func TestViewFill(t *testing.T) {
	w := newTestWorld(t)
	entityId := w.Spawn(&Position{X: 3, Y: 4}, &Health{Current: 50, Max: 100})

	view := ecs.NewView[struct {
		*Position
		*Health
	}](w)

	var item struct {
		*Position
		*Health
	}
	require.True(t, view.Fill(entityId, &item))
	assert.Equal(t, 50, item.Health.Current)

	require.NoError(t, w.Despawn(entityId))
	assert.False(t, view.Fill(entityId, &item))
}

func TestViewComponentMutation(t *testing.T) {
	w := newTestWorld(t)
	entityId := w.Spawn(&Position{X: 1, Y: 1}, &Velocity{DX: 2, DY: 3})

	view := ecs.NewView[struct {
		*Position
		*Velocity
	}](w)

	for _, item := range view.Iter() {
		item.Position.X += item.Velocity.DX
		item.Position.Y += item.Velocity.DY
	}

	pos := ecs.Get[Position](w, entityId)
	assert.Equal(t, Position{X: 3, Y: 4}, *pos)
}

func TestViewIterMultipleArchetypes(t *testing.T) {
	w := newTestWorld(t)
	w.Spawn(&Position{X: 1}, &Velocity{})
	w.Spawn(&Position{X: 2}, &Velocity{}, &Health{})
	w.Spawn(&Position{X: 3}, &Velocity{}, Frozen{})
	w.Spawn(&Position{X: 4})

	view := ecs.NewView[struct {
		*Position
		*Velocity
	}](w)

	var xs []float32
	for item := range view.Values() {
		xs = append(xs, item.Position.X)
	}
	assert.ElementsMatch(t, []float32{1, 2, 3}, xs)
}

func TestViewWithAndWithoutFilters(t *testing.T) {
	w := newTestWorld(t)
	player := w.Spawn(&Position{X: 1}, PlayerController{})
	frozenPlayer := w.Spawn(&Position{X: 2}, PlayerController{}, Frozen{})
	npc := w.Spawn(&Position{X: 3}, AI{})

	view := ecs.NewView[struct {
		*Position
		_ ecs.With[PlayerController]
		_ ecs.Without[Frozen]
	}](w)

	var seen []ecs.EntityId
	for id := range view.Iter() {
		seen = append(seen, id)
	}
	assert.Equal(t, []ecs.EntityId{player}, seen)
	assert.Nil(t, view.Get(frozenPlayer))
	assert.Nil(t, view.Get(npc))

	access := view.Access().Access()
	assert.True(t, access.HasWrite(componentId[Position](t, w)))
	assert.True(t, access.HasArchetypal(componentId[PlayerController](t, w)))
	assert.True(t, access.HasArchetypal(componentId[Frozen](t, w)))
	assert.False(t, access.HasRead(componentId[PlayerController](t, w)))
}

func TestViewRequireAndExcludeSameComponent(t *testing.T) {
	w := newTestWorld(t)
	assert.Panics(t, func() {
		ecs.NewView[struct {
			*Position
			_ ecs.Without[Position]
		}](w)
	})
}

func TestViewEntityIdField(t *testing.T) {
	w := newTestWorld(t)
	a := w.Spawn(&Position{X: 1})
	b := w.Spawn(&Position{X: 2})

	view := ecs.NewView[struct {
		Entity ecs.EntityId
		*Position
	}](w)

	got := map[ecs.EntityId]float32{}
	for id, item := range view.Iter() {
		assert.Equal(t, id, item.Entity)
		got[item.Entity] = item.Position.X
	}
	assert.Equal(t, map[ecs.EntityId]float32{a: 1, b: 2}, got)
}

func TestViewOptionalComponent(t *testing.T) {
	w := newTestWorld(t)
	withName := w.Spawn(&Position{X: 1}, Name{Value: "named"})
	withoutName := w.Spawn(&Position{X: 2})

	view := ecs.NewView[struct {
		*Position
		Name *Name `ecs:"optional"`
	}](w)

	item := view.Get(withName)
	require.NotNil(t, item)
	require.NotNil(t, item.Name)
	assert.Equal(t, "named", item.Name.Value)

	item = view.Get(withoutName)
	require.NotNil(t, item)
	assert.Nil(t, item.Name)

	count := 0
	for _, it := range view.Iter() {
		if it.Position.X == 2 {
			assert.Nil(t, it.Name, "optional pointer must be reset between archetypes")
		}
		count++
	}
	assert.Equal(t, 2, count)

	assert.False(t, view.Access().Access().HasArchetypal(componentId[Name](t, w)))
	assert.True(t, view.Access().Access().HasWrite(componentId[Name](t, w)))
}

func TestViewOptionalSparseComponent(t *testing.T) {
	w := newTestWorld(t)
	frozen := w.Spawn(&Position{X: 1}, Frozen{Ticks: 4})
	thawed := w.Spawn(&Position{X: 2})

	view := ecs.NewView[struct {
		*Position
		Frozen *Frozen `ecs:"optional"`
	}](w)

	require.NotNil(t, view.Get(frozen).Frozen)
	assert.Equal(t, 4, view.Get(frozen).Frozen.Ticks)
	assert.Nil(t, view.Get(thawed).Frozen)

	view.Get(frozen).Frozen.Ticks--
	assert.Equal(t, 3, ecs.Get[Frozen](w, frozen).Ticks)
}

func TestViewReadTag(t *testing.T) {
	w := newTestWorld(t)
	view := ecs.NewView[struct {
		Position *Position `ecs:"read"`
		Velocity *Velocity
		Name     *Name `ecs:"read,optional"`
	}](w)

	access := view.Access().Access()
	assert.True(t, access.HasRead(componentId[Position](t, w)))
	assert.False(t, access.HasWrite(componentId[Position](t, w)))
	assert.True(t, access.HasWrite(componentId[Velocity](t, w)))
	assert.True(t, access.HasRead(componentId[Name](t, w)))
}

func TestViewInvalidTag(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.Contains(t, r.(string), "invalid ecs tag value")
	}()

	w := newTestWorld(t)
	_ = ecs.NewView[struct {
		Position *Position
		Velocity *Velocity `ecs:"invalid"`
	}](w)
}

func TestViewUnregisteredComponentPanics(t *testing.T) {
	type Unregistered struct{}
	w := newTestWorld(t)
	assert.Panics(t, func() {
		ecs.NewView[struct{ *Unregistered }](w)
	})
	assert.Panics(t, func() {
		ecs.NewView[struct{ Position Position }](w)
	})
}

func TestViewIterEarlyBreak(t *testing.T) {
	w := newTestWorld(t)
	for i := range 10 {
		w.Spawn(&Position{X: float32(i)})
	}

	view := ecs.NewView[struct{ *Position }](w)
	count := 0
	for range view.Iter() {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestViewSpawn(t *testing.T) {
	w := newTestWorld(t)
	view := ecs.NewView[struct {
		*Position
		*Velocity
		Name *Name `ecs:"optional"`
	}](w)

	id := view.Spawn(struct {
		*Position
		*Velocity
		Name *Name `ecs:"optional"`
	}{
		Position: &Position{X: 1, Y: 2},
		Velocity: &Velocity{DX: 3, DY: 4},
	})

	item := view.Get(id)
	require.NotNil(t, item)
	assert.Equal(t, float32(2), item.Position.Y)
	assert.Nil(t, item.Name)
	assert.False(t, ecs.Has[Name](w, id))

	assert.Panics(t, func() {
		view.Spawn(struct {
			*Position
			*Velocity
			Name *Name `ecs:"optional"`
		}{Position: &Position{}})
	})
}

func TestViewWithSliceComponent(t *testing.T) {
	w := newTestWorld(t)
	id := w.Spawn(&Position{X: 1.0, Y: 1.0}, &Inventory{Items: []string{"sword", "shield"}})

	view := ecs.NewView[struct {
		*Position
		*Inventory
	}](w)

	item := view.Get(id)
	require.NotNil(t, item)
	assert.Equal(t, []string{"sword", "shield"}, item.Inventory.Items)
}
