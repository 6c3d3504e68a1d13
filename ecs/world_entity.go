package ecs

import "reflect"

// EntityRef bundles an entity id with its World. It is a convenience for direct,
// exclusive World access; it does not keep the entity alive.
type EntityRef struct {
	world *World
	id    EntityId
}

// Entity returns a handle for id. The handle is valid even if id is dead.
func (w *World) Entity(id EntityId) EntityRef {
	return EntityRef{world: w, id: id}
}

// Id returns the entity id.
func (e EntityRef) Id() EntityId { return e.id }

// IsAlive reports whether the entity still exists.
func (e EntityRef) IsAlive() bool { return e.world.IsAlive(e.id) }

// Archetype returns the entity's archetype, or nil when it is dead.
func (e EntityRef) Archetype() *Archetype { return e.world.Archetype(e.id) }

// Components returns the types of every component of the entity.
func (e EntityRef) Components() []reflect.Type {
	arch := e.Archetype()
	if arch == nil {
		return nil
	}
	types := make([]reflect.Type, len(arch.components))
	for i, cid := range arch.components {
		types[i] = e.world.registry.Info(cid).typ
	}
	return types
}

// GetComponent returns a pointer (as any) to the component of type t, or nil.
func (e EntityRef) GetComponent(t reflect.Type) any {
	return e.world.GetComponent(e.id, t)
}

// Insert adds or overwrites components.
func (e EntityRef) Insert(components ...any) error {
	return e.world.Insert(e.id, components...)
}

// Remove removes the components of the given types.
func (e EntityRef) Remove(types ...reflect.Type) error {
	return e.world.RemoveTypes(e.id, types...)
}

// Despawn removes the entity.
func (e EntityRef) Despawn() error {
	return e.world.Despawn(e.id)
}
