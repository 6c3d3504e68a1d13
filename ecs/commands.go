package ecs

import (
	"reflect"

	"go.uber.org/zap"
)

// Command is a deferred World mutation.
type Command interface {
	Apply(w *World)
}

// CommandFunc adapts a function to Command.
type CommandFunc func(w *World)

// Apply calls f(w).
func (f CommandFunc) Apply(w *World) { f(w) }

// Commands buffers deferred World operations. They are applied in the order they
// were queued, so a later command always observes the effects of earlier ones.
//
// A Commands buffer is not safe for concurrent use; each system gets its own.
type Commands struct {
	entities *Entities
	queue    []Command
}

// NewCommands creates an empty buffer whose spawns reserve ids from w.
func NewCommands(w *World) *Commands {
	return &Commands{entities: w.entities}
}

// Push queues an arbitrary command.
func (c *Commands) Push(cmd Command) {
	c.queue = append(c.queue, cmd)
}

// Len returns the number of queued commands.
func (c *Commands) Len() int {
	return len(c.queue)
}

// IsEmpty reports whether nothing is queued.
func (c *Commands) IsEmpty() bool {
	return len(c.queue) == 0
}

// Clear drops every queued command without applying it.
func (c *Commands) Clear() {
	clear(c.queue)
	c.queue = c.queue[:0]
}

func (c *Commands) take() []Command {
	cmds := c.queue
	c.queue = nil
	return cmds
}

// Apply runs every queued command against w in order and empties the buffer.
// Output of hooks and observers triggered by a command is applied before the
// next command runs.
func (c *Commands) Apply(w *World) {
	if len(c.queue) == 0 {
		return
	}
	cmds := c.take()
	for _, cmd := range cmds {
		w.flushEntities()
		cmd.Apply(w)
		w.flush()
	}
	clear(cmds)
	if c.queue == nil {
		c.queue = cmds[:0]
	}
}

type spawnCommand struct {
	entity     EntityId
	components []any
}

func (cmd spawnCommand) Apply(w *World) {
	if err := w.Insert(cmd.entity, cmd.components...); err != nil {
		w.log.Debug("dropped spawn command", zap.Stringer("entity", cmd.entity), zap.Error(err))
	}
}

type despawnCommand struct {
	entity EntityId
}

func (cmd despawnCommand) Apply(w *World) {
	if err := w.Despawn(cmd.entity); err != nil {
		w.log.Debug("dropped despawn command", zap.Stringer("entity", cmd.entity), zap.Error(err))
	}
}

type insertCommand struct {
	entity     EntityId
	components []any
}

func (cmd insertCommand) Apply(w *World) {
	if err := w.Insert(cmd.entity, cmd.components...); err != nil {
		w.log.Debug("dropped insert command", zap.Stringer("entity", cmd.entity), zap.Error(err))
	}
}

type removeCommand struct {
	entity EntityId
	types  []reflect.Type
}

func (cmd removeCommand) Apply(w *World) {
	if err := w.RemoveTypes(cmd.entity, cmd.types...); err != nil {
		w.log.Debug("dropped remove command", zap.Stringer("entity", cmd.entity), zap.Error(err))
	}
}

type removeIdsCommand struct {
	entity EntityId
	ids    []ComponentId
}

func (cmd removeIdsCommand) Apply(w *World) {
	if err := w.RemoveByIds(cmd.entity, cmd.ids...); err != nil {
		w.log.Debug("dropped remove command", zap.Stringer("entity", cmd.entity), zap.Error(err))
	}
}

// Spawn reserves an entity id now and queues the insertion of its components.
// The id is valid for use in later commands of any buffer.
func (c *Commands) Spawn(components ...any) EntityId {
	id := c.entities.Reserve()
	c.Push(spawnCommand{entity: id, components: components})
	return id
}

// Despawn queues the removal of entity. It is a no-op if the entity is gone by then.
func (c *Commands) Despawn(entity EntityId) {
	c.Push(despawnCommand{entity: entity})
}

// Insert queues adding or overwriting components on entity.
func (c *Commands) Insert(entity EntityId, components ...any) {
	c.Push(insertCommand{entity: entity, components: components})
}

// Remove queues removing the components of the given types from entity.
func (c *Commands) Remove(entity EntityId, types ...reflect.Type) {
	c.Push(removeCommand{entity: entity, types: types})
}

// RemoveIds queues removing the given component ids from entity.
func (c *Commands) RemoveIds(entity EntityId, ids ...ComponentId) {
	c.Push(removeIdsCommand{entity: entity, ids: ids})
}

// RemoveComponent queues removing the T component from entity.
func RemoveComponent[T any](c *Commands, entity EntityId) {
	c.Remove(entity, reflect.TypeFor[T]())
}

// InsertResource queues storing value as a resource.
func (c *Commands) InsertResource(value any) {
	c.Push(CommandFunc(func(w *World) { w.InsertResource(value) }))
}

// RemoveResource queues dropping the resource of type t.
func (c *Commands) RemoveResource(t reflect.Type) {
	c.Push(CommandFunc(func(w *World) { w.RemoveResourceType(t) }))
}

// Defer queues fn to run with exclusive World access.
func (c *Commands) Defer(fn func(w *World)) {
	c.Push(CommandFunc(fn))
}
