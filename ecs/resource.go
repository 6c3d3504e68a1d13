package ecs

import "reflect"

// ResourceReader is implemented by World and DeferredWorld.
type ResourceReader interface {
	GetResource(t reflect.Type) any
}

// InsertResource stores value (or *value) as the resource of its type, replacing
// the previous value in place so that outstanding pointers observe the update.
func (w *World) InsertResource(value any) ComponentId {
	w.checkOpen()
	t := componentType(value)
	id := w.registry.registerResourceType(t)
	v := reflect.Indirect(reflect.ValueOf(value))

	if existing, ok := w.resources.Get(id); ok {
		reflect.ValueOf(existing).Elem().Set(v)
		return id
	}
	ptr := reflect.New(t)
	ptr.Elem().Set(v)
	w.resources.Put(id, ptr.Interface())
	return id
}

// GetResource returns a pointer (as any) to the resource of type t, or nil.
func (w *World) GetResource(t reflect.Type) any {
	id, ok := w.registry.Lookup(t)
	if !ok {
		return nil
	}
	return w.resourceById(id)
}

func (w *World) resourceById(id ComponentId) any {
	v, _ := w.resources.Get(id)
	return v
}

// RemoveResourceType drops the resource of type t. It returns false if none was stored.
func (w *World) RemoveResourceType(t reflect.Type) bool {
	w.checkOpen()
	id, ok := w.registry.Lookup(t)
	if !ok {
		return false
	}
	return w.resources.Del(id)
}

// Resource returns a pointer to the T resource, or nil if it has not been inserted.
func Resource[T any](r ResourceReader) *T {
	v, _ := r.GetResource(reflect.TypeFor[T]()).(*T)
	return v
}

// HasResource reports whether a T resource is stored.
func HasResource[T any](r ResourceReader) bool {
	return Resource[T](r) != nil
}

// RemoveResource drops the T resource.
func RemoveResource[T any](w *World) bool {
	return w.RemoveResourceType(reflect.TypeFor[T]())
}

// InitResource returns the T resource, inserting initializer (or the zero value)
// first when it does not exist yet.
func InitResource[T any](w *World, initializer ...T) *T {
	if existing := Resource[T](w); existing != nil {
		return existing
	}
	var value T
	if len(initializer) > 0 {
		value = initializer[0]
	}
	w.InsertResource(&value)
	return Resource[T](w)
}

// Res is a system param giving shared access to the T resource.
type Res[T any] struct {
	world *World
	id    ComponentId
}

func (r *Res[T]) initParam(w *World) (*FilteredAccess, error) {
	r.world = w
	r.id = RegisterResource[T](w.registry)
	access := NewFilteredAccess()
	if err := access.Declare(r.id, ResourceRead); err != nil {
		return nil, err
	}
	return access, nil
}

// Get returns the resource, or nil if it does not exist. The value must not be modified.
func (r *Res[T]) Get() *T {
	v, _ := r.world.resourceById(r.id).(*T)
	return v
}

// Exists reports whether the resource is stored.
func (r *Res[T]) Exists() bool {
	return r.Get() != nil
}

// ResMut is a system param giving exclusive access to the T resource.
type ResMut[T any] struct {
	world *World
	id    ComponentId
}

func (r *ResMut[T]) initParam(w *World) (*FilteredAccess, error) {
	r.world = w
	r.id = RegisterResource[T](w.registry)
	access := NewFilteredAccess()
	if err := access.Declare(r.id, ResourceWrite); err != nil {
		return nil, err
	}
	return access, nil
}

// Get returns the resource, or nil if it does not exist.
func (r *ResMut[T]) Get() *T {
	v, _ := r.world.resourceById(r.id).(*T)
	return v
}

// Exists reports whether the resource is stored.
func (r *ResMut[T]) Exists() bool {
	return r.Get() != nil
}
