package ecs

import (
	"reflect"

	"go.uber.org/zap"
)

// DeferredWorld is the World as seen from hooks and observers: component and
// resource values may be read and modified in place, but every structural change
// goes through Commands and is applied after the current operation completes.
type DeferredWorld struct {
	world *World
}

// ComponentReader is implemented by World and DeferredWorld.
type ComponentReader interface {
	GetComponent(id EntityId, t reflect.Type) any
}

// ReadComponent returns a pointer to the T component of id, or nil.
func ReadComponent[T any](r ComponentReader, id EntityId) *T {
	c, _ := r.GetComponent(id, reflect.TypeFor[T]()).(*T)
	return c
}

// Commands returns the World's queue. Commands pushed here run once the structural
// change that triggered the hook has finished.
func (d *DeferredWorld) Commands() *Commands { return d.world.queue }

// Registry returns the component registry.
func (d *DeferredWorld) Registry() *ComponentRegistry { return d.world.registry }

// Logger returns the World's logger.
func (d *DeferredWorld) Logger() *zap.Logger { return d.world.log }

// IsAlive reports whether id refers to a live entity.
func (d *DeferredWorld) IsAlive(id EntityId) bool { return d.world.IsAlive(id) }

// GetComponent returns a pointer (as any) to the component of type t on id, or nil.
func (d *DeferredWorld) GetComponent(id EntityId, t reflect.Type) any {
	return d.world.GetComponent(id, t)
}

// GetComponentById returns a pointer (as any) to component cid on id, or nil.
func (d *DeferredWorld) GetComponentById(id EntityId, cid ComponentId) any {
	return d.world.GetComponentById(id, cid)
}

// HasComponent reports whether id has component cid.
func (d *DeferredWorld) HasComponent(id EntityId, cid ComponentId) bool {
	return d.world.HasComponent(id, cid)
}

// GetResource returns a pointer (as any) to the resource of type t, or nil.
func (d *DeferredWorld) GetResource(t reflect.Type) any {
	return d.world.GetResource(t)
}

// Trigger runs the observers of event's type immediately. Observers receive a
// DeferredWorld too, so nothing is restructured until the current operation ends.
func (d *DeferredWorld) Trigger(event any, targets ...EntityId) {
	d.world.observers.fireCustom(d.world, reflect.TypeOf(event), event, targets)
}
