package ecs

import (
	"slices"

	"go.uber.org/zap"
)

// Relationship is implemented by a component that points from its entity (the
// source) to another entity (the target).
type Relationship interface {
	RelationshipTarget() EntityId
}

// RelationshipSources is embedded in the collection component that lives on a
// relationship target and lists its sources. It is maintained by the
// relationship hooks; do not insert a collection component by hand.
type RelationshipSources struct {
	sources []EntityId
}

// Sources returns the sources in the order they were linked.
func (s *RelationshipSources) Sources() []EntityId { return s.sources }

// Len returns the number of sources.
func (s *RelationshipSources) Len() int { return len(s.sources) }

// Contains reports whether e is a source.
func (s *RelationshipSources) Contains(e EntityId) bool { return slices.Contains(s.sources, e) }

func (s *RelationshipSources) addSource(e EntityId) bool {
	if s.Contains(e) {
		return false
	}
	s.sources = append(s.sources, e)
	return true
}

func (s *RelationshipSources) removeSource(e EntityId) bool {
	idx := slices.Index(s.sources, e)
	if idx < 0 {
		return false
	}
	s.sources = slices.Delete(s.sources, idx, idx+1)
	return true
}

type relationshipCollection interface {
	Sources() []EntityId
	Len() int
	addSource(e EntityId) bool
	removeSource(e EntityId) bool
}

// RelationshipChanged is triggered, targeting the source, whenever a source is
// linked to or unlinked from a target. Exactly one of OldTarget and NewTarget is set.
type RelationshipChanged struct {
	Relationship ComponentId
	Source       EntityId
	OldTarget    EntityId
	NewTarget    EntityId
}

// RelationshipOption configures RegisterRelationship.
type RelationshipOption func(*relationshipConfig)

type relationshipConfig struct {
	linkedSpawn bool
}

// WithLinkedSpawn despawns the sources when their target is despawned or loses its collection.
func WithLinkedSpawn() RelationshipOption {
	return func(c *relationshipConfig) { c.linkedSpawn = true }
}

// RegisterRelationship registers the pointer component R and the collection component T
// and installs the hooks that keep them mirrored:
//
//   - inserting R on a source adds the source to T on the target, creating T if needed;
//   - replacing or removing R removes the source from the old target's T, and an
//     emptied T is removed;
//   - removing T (or despawning its entity) removes R from every source, or despawns
//     the sources with WithLinkedSpawn.
//
// An R that targets its own entity or a dead entity is removed again with a warning.
// All follow-up changes are applied as commands once the triggering operation is done.
func RegisterRelationship[R Relationship, T any, PT interface {
	*T
	relationshipCollection
}](r *ComponentRegistry, opts ...RelationshipOption) (relationship ComponentId, collection ComponentId) {
	var cfg relationshipConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if rid, ok := ComponentIdFor[R](r); ok && !r.Info(rid).hooks.isEmpty() {
		tid, _ := ComponentIdFor[T](r)
		return rid, tid
	}

	// ids are assigned below, before any hook can run
	var rid, tid ComponentId

	link := func(w *World, source, target EntityId) {
		if rel := Get[R](w, source); rel == nil || (*rel).RelationshipTarget() != target {
			return
		}
		if !w.IsAlive(target) {
			_ = w.RemoveByIds(source, rid)
			return
		}
		if coll := Get[T](w, target); coll != nil {
			if !PT(coll).addSource(source) {
				return
			}
		} else {
			var coll T
			PT(&coll).addSource(source)
			_ = w.Insert(target, &coll)
		}
		Trigger(w, RelationshipChanged{Relationship: rid, Source: source, NewTarget: target}, source)
	}

	unlink := func(w *World, source, target EntityId) {
		coll := Get[T](w, target)
		if coll == nil || !PT(coll).removeSource(source) {
			return
		}
		if PT(coll).Len() == 0 {
			_ = w.RemoveByIds(target, tid)
		}
		Trigger(w, RelationshipChanged{Relationship: rid, Source: source, OldTarget: target}, source)
	}

	rid = RegisterComponent[R](r, WithHooks(ComponentHooks{
		OnInsert: func(dw *DeferredWorld, ctx HookContext) {
			rel := ReadComponent[R](dw, ctx.Entity)
			if rel == nil {
				return
			}
			source, target := ctx.Entity, (*rel).RelationshipTarget()
			if target == source || !dw.IsAlive(target) {
				dw.Logger().Warn("relationship target rejected",
					zap.Stringer("source", source),
					zap.Stringer("target", target),
					zap.String("relationship", dw.Registry().Info(ctx.Component).Name()))
				dw.Commands().RemoveIds(source, ctx.Component)
				return
			}
			dw.Commands().Defer(func(w *World) { link(w, source, target) })
		},
		OnReplace: func(dw *DeferredWorld, ctx HookContext) {
			rel := ReadComponent[R](dw, ctx.Entity)
			if rel == nil {
				return
			}
			source, target := ctx.Entity, (*rel).RelationshipTarget()
			dw.Commands().Defer(func(w *World) { unlink(w, source, target) })
		},
	}))

	tid = RegisterComponent[T](r, WithHooks(ComponentHooks{
		OnReplace: func(dw *DeferredWorld, ctx HookContext) {
			coll := ReadComponent[T](dw, ctx.Entity)
			if coll == nil || PT(coll).Len() == 0 {
				return
			}
			target := ctx.Entity
			sources := slices.Clone(PT(coll).Sources())
			dw.Commands().Defer(func(w *World) {
				for _, source := range sources {
					rel := Get[R](w, source)
					if rel == nil || (*rel).RelationshipTarget() != target {
						continue
					}
					if cfg.linkedSpawn {
						_ = w.Despawn(source)
					} else {
						_ = w.RemoveByIds(source, rid)
					}
				}
			})
		},
	}))
	return rid, tid
}
