package ecs

import (
	"reflect"
	"slices"

	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// World owns all ECS state: the component registry, the entity index, component
// storage, resources, observers and a command queue for hook and observer output.
//
// Direct World methods need exclusive access. Systems that run concurrently see the
// World only through their declared params and defer structural changes through
// Commands.
type World struct {
	registry  *ComponentRegistry
	entities  *Entities
	storage   *Storage
	resources *intmap.Map[ComponentId, any]
	observers *observers
	queue     *Commands
	events    []eventUpdater
	log       *zap.Logger

	flushing bool
	closed   bool
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithLogger sets the logger used by the World and any Scheduler built on it.
func WithLogger(log *zap.Logger) WorldOption {
	return func(w *World) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWorld creates an empty World over registry.
func NewWorld(registry *ComponentRegistry, opts ...WorldOption) *World {
	entities := NewEntities()
	w := &World{
		registry:  registry,
		entities:  entities,
		storage:   newStorage(registry, entities),
		resources: intmap.New[ComponentId, any](16),
		observers: newObservers(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = NewCommands(w)
	return w
}

// Close releases the World's storage. Any use of the World afterwards panics.
func (w *World) Close() {
	if w.closed {
		return
	}
	w.log.Debug("closing world", zap.Int("entities", w.entities.Len()))
	w.storage = nil
	w.resources = nil
	w.observers = nil
	w.events = nil
	w.closed = true
}

func (w *World) checkOpen() {
	if w.closed {
		panic("ecs: world is closed")
	}
}

// Registry returns the component registry.
func (w *World) Registry() *ComponentRegistry { return w.registry }

// Entities returns the entity index.
func (w *World) Entities() *Entities { return w.entities }

// Storage returns the component storage.
func (w *World) Storage() *Storage { return w.storage }

// Logger returns the World's logger.
func (w *World) Logger() *zap.Logger { return w.log }

// Commands returns the World's own queue. It is applied by Flush.
func (w *World) Commands() *Commands { return w.queue }

// IsAlive reports whether id refers to a live entity.
func (w *World) IsAlive(id EntityId) bool {
	return w.entities.IsAlive(id)
}

// Archetype returns the archetype entity currently belongs to, or nil.
func (w *World) Archetype(id EntityId) *Archetype {
	loc, ok := w.entities.Location(id)
	if !ok {
		return nil
	}
	return w.storage.archetypes[loc.Archetype]
}

// Spawn creates a new entity with the given components (values or pointers to values).
func (w *World) Spawn(components ...any) EntityId {
	w.checkOpen()
	w.flushEntities()
	id := w.entities.Allocate()
	loc := w.storage.place(id, w.storage.archetypes[EmptyArchetype])
	if len(components) > 0 {
		w.insert(id, loc, components)
	}
	w.flush()
	return id
}

// Insert adds components to id, overwriting the values of components it already has.
func (w *World) Insert(id EntityId, components ...any) error {
	w.checkOpen()
	w.flushEntities()
	loc, ok := w.entities.Location(id)
	if !ok {
		return eris.Wrapf(ErrEntityNotAlive, "insert into %s", id)
	}
	w.insert(id, loc, components)
	w.flush()
	return nil
}

// RemoveByIds removes the given components from id. Ids the entity lacks are ignored.
func (w *World) RemoveByIds(id EntityId, ids ...ComponentId) error {
	w.checkOpen()
	w.flushEntities()
	loc, ok := w.entities.Location(id)
	if !ok {
		return eris.Wrapf(ErrEntityNotAlive, "remove from %s", id)
	}
	w.remove(id, loc, ids)
	w.flush()
	return nil
}

// RemoveTypes removes the components of the given types from id.
func (w *World) RemoveTypes(id EntityId, types ...reflect.Type) error {
	ids := make([]ComponentId, 0, len(types))
	for _, t := range types {
		if cid, ok := w.registry.Lookup(t); ok {
			ids = append(ids, cid)
		}
	}
	return w.RemoveByIds(id, ids...)
}

// Despawn removes id and all of its components.
func (w *World) Despawn(id EntityId) error {
	w.checkOpen()
	w.flushEntities()
	loc, ok := w.entities.Location(id)
	if !ok {
		return eris.Wrapf(ErrEntityNotAlive, "despawn %s", id)
	}
	w.despawn(id, loc)
	w.flush()
	return nil
}

// Flush places reserved entities and applies every queued command, including
// commands queued by hooks and observers while applying.
func (w *World) Flush() {
	w.checkOpen()
	w.flushEntities()
	w.flush()
}

// GetComponent returns a pointer (as any) to the component of type t on id, or nil.
func (w *World) GetComponent(id EntityId, t reflect.Type) any {
	cid, ok := w.registry.Lookup(t)
	if !ok {
		return nil
	}
	return w.GetComponentById(id, cid)
}

// GetComponentById returns a pointer (as any) to component cid on id, or nil.
func (w *World) GetComponentById(id EntityId, cid ComponentId) any {
	loc, ok := w.entities.Location(id)
	if !ok {
		return nil
	}
	return w.storage.get(id, loc, cid)
}

// HasComponent reports whether id has component cid.
func (w *World) HasComponent(id EntityId, cid ComponentId) bool {
	arch := w.Archetype(id)
	return arch != nil && arch.HasComponent(cid)
}

// Get returns a pointer to the T component of id, or nil when the entity is dead or lacks T.
func Get[T any](w *World, id EntityId) *T {
	return ReadComponent[T](w, id)
}

// Has reports whether id has a T component.
func Has[T any](w *World, id EntityId) bool {
	cid, ok := ComponentIdFor[T](w.registry)
	return ok && w.HasComponent(id, cid)
}

// Remove removes the T component from id.
func Remove[T any](w *World, id EntityId) error {
	cid, ok := ComponentIdFor[T](w.registry)
	if !ok {
		if !w.IsAlive(id) {
			return eris.Wrapf(ErrEntityNotAlive, "remove from %s", id)
		}
		return nil
	}
	return w.RemoveByIds(id, cid)
}

func (w *World) flushEntities() {
	for _, id := range w.entities.takePending() {
		w.storage.place(id, w.storage.archetypes[EmptyArchetype])
	}
}

// flush drains the internal queue. Re-entrant calls return immediately; the
// outermost call applies whatever the inner ones queued.
func (w *World) flush() {
	if w.flushing {
		return
	}
	w.flushing = true
	defer func() { w.flushing = false }()

	for w.queue.Len() > 0 {
		cmds := w.queue.take()
		for _, cmd := range cmds {
			w.flushEntities()
			cmd.Apply(w)
		}
	}
}

func (w *World) deferred() *DeferredWorld {
	return &DeferredWorld{world: w}
}

func (w *World) resolve(components []any) []*ComponentInfo {
	infos := make([]*ComponentInfo, len(components))
	for i, c := range components {
		info := w.registry.mustLookup(componentType(c))
		if info.isResource {
			panic("resource type " + info.Name() + " used as a component")
		}
		infos[i] = info
	}
	return infos
}

// insert replaces existing values (OnReplace first), writes everything, then fires
// OnAdd for newly added components and OnInsert for all of them.
func (w *World) insert(id EntityId, loc EntityLocation, components []any) {
	infos := w.resolve(components)
	src := w.storage.archetypes[loc.Archetype]

	var newIds []ComponentId
	added := make([]bool, len(infos))
	for i, info := range infos {
		if src.HasComponent(info.id) {
			w.trigger(OnReplace, id, info)
			continue
		}
		if !slices.Contains(newIds, info.id) {
			added[i] = true
			newIds = append(newIds, info.id)
		}
	}

	dst := src
	switch len(newIds) {
	case 0:
	case 1:
		dst = w.storage.archetypeWith(src, newIds[0])
	default:
		dst = w.storage.getArchetypeFor(append(slices.Clone(src.components), newIds...))
	}

	if dst != src {
		loc = w.storage.move(id, loc, dst)
	}
	for i, info := range infos {
		if !w.storage.write(id, loc, info.id, components[i]) {
			panic("component value does not match registered type " + info.Name())
		}
	}

	for i, info := range infos {
		if added[i] {
			w.trigger(OnAdd, id, info)
		}
	}
	for _, info := range infos {
		w.trigger(OnInsert, id, info)
	}
}

// remove fires OnReplace then OnRemove for every present component before the
// values are dropped, so hooks still see them.
func (w *World) remove(id EntityId, loc EntityLocation, ids []ComponentId) {
	src := w.storage.archetypes[loc.Archetype]
	present := make([]*ComponentInfo, 0, len(ids))
	for _, cid := range ids {
		if src.HasComponent(cid) && !containsInfo(present, cid) {
			present = append(present, w.registry.Info(cid))
		}
	}
	if len(present) == 0 {
		return
	}

	for _, info := range present {
		w.trigger(OnReplace, id, info)
	}
	for _, info := range present {
		w.trigger(OnRemove, id, info)
	}

	for _, info := range present {
		if info.storage == StorageSparseSet {
			w.storage.sparseSetFor(info.id).remove(id)
		}
	}
	var dst *Archetype
	if len(present) == 1 {
		dst = w.storage.archetypeWithout(src, present[0].id)
	} else {
		keep := make([]ComponentId, 0, len(src.components))
		for _, cid := range src.components {
			if !containsInfo(present, cid) {
				keep = append(keep, cid)
			}
		}
		dst = w.storage.getArchetypeFor(keep)
	}
	w.storage.move(id, loc, dst)
}

func (w *World) despawn(id EntityId, loc EntityLocation) {
	arch := w.storage.archetypes[loc.Archetype]
	for _, cid := range arch.components {
		w.trigger(OnReplace, id, w.registry.Info(cid))
	}
	for _, cid := range arch.components {
		w.trigger(OnRemove, id, w.registry.Info(cid))
	}
	// hooks cannot move entities, so loc is still valid
	w.storage.remove(id, loc)
	w.entities.Free(id)
}

func containsInfo(infos []*ComponentInfo, id ComponentId) bool {
	for _, info := range infos {
		if info.id == id {
			return true
		}
	}
	return false
}

// trigger runs the component hook for event, then the matching observers.
func (w *World) trigger(event LifecycleEvent, id EntityId, info *ComponentInfo) {
	var hook HookFunc
	switch event {
	case OnAdd:
		hook = info.hooks.OnAdd
	case OnInsert:
		hook = info.hooks.OnInsert
	case OnReplace:
		hook = info.hooks.OnReplace
	case OnRemove:
		hook = info.hooks.OnRemove
	}
	ctx := HookContext{Entity: id, Component: info.id}
	if hook != nil {
		hook(w.deferred(), ctx)
	}
	w.observers.fireLifecycle(w, event, ctx)
}
