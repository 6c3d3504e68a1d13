package ecs

import "iter"

// Query wraps a View with a cache of matching archetypes, refreshed whenever new
// archetypes appear. As a system field it is initialised by the Scheduler and its
// access is derived from the view struct.
//
// Iteration is lazy: each call to Iter walks the cached archetypes again, so it
// observes the current rows and may be restarted any number of times.
type Query[T any] struct {
	view               *View[T]
	world              *World
	cachedArchetypes   []*Archetype
	cachedSources      [][]fieldSource
	lastArchetypeCount int
}

// NewQuery creates a new Query with archetype-level caching.
func NewQuery[T any](w *World) *Query[T] {
	q := &Query[T]{}
	q.Init(w)
	return q
}

// Init initializes or re-initializes the Query for a world. Panics on a malformed view type.
func (q *Query[T]) Init(w *World) {
	if _, err := q.initParam(w); err != nil {
		panic(err.Error())
	}
}

func (q *Query[T]) initParam(w *World) (*FilteredAccess, error) {
	view, err := newView[T](w)
	if err != nil {
		return nil, err
	}
	q.view = view
	q.world = w
	q.cachedArchetypes = nil
	q.cachedSources = nil
	q.lastArchetypeCount = 0
	return view.Access(), nil
}

// prepareParam refreshes the archetype cache before each run of the owning system.
func (q *Query[T]) prepareParam() {
	q.refresh()
}

// refresh only inspects archetypes created since the last call; archetypes are never removed.
func (q *Query[T]) refresh() {
	archetypes := q.world.storage.archetypes
	for _, archetype := range archetypes[q.lastArchetypeCount:] {
		if q.view.Matches(archetype) {
			q.cachedArchetypes = append(q.cachedArchetypes, archetype)
			q.cachedSources = append(q.cachedSources, q.view.sources(archetype))
		}
	}
	q.lastArchetypeCount = len(archetypes)
}

// View returns the underlying view.
func (q *Query[T]) View() *View[T] {
	return q.view
}

// Access returns the filtered access the query needs.
func (q *Query[T]) Access() *FilteredAccess {
	return q.view.Access()
}

// Iter returns an iterator over entity IDs and component data.
func (q *Query[T]) Iter() iter.Seq2[EntityId, T] {
	q.refresh()
	return func(yield func(EntityId, T) bool) {
		for i, archetype := range q.cachedArchetypes {
			for id, item := range q.view.iterArchetype(archetype, q.cachedSources[i]) {
				if !yield(id, item) {
					return
				}
			}
		}
	}
}

// Values returns an iterator over component data only.
func (q *Query[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range q.Iter() {
			if !yield(item) {
				return
			}
		}
	}
}

// Get returns the view struct for id, or nil if it does not match.
func (q *Query[T]) Get(id EntityId) *T {
	return q.view.Get(id)
}

// Count returns the number of matching entities.
func (q *Query[T]) Count() int {
	q.refresh()
	n := 0
	for _, archetype := range q.cachedArchetypes {
		n += archetype.Len()
	}
	return n
}

// Single returns the only matching entity. ok is false when there are zero or several.
func (q *Query[T]) Single() (id EntityId, item T, ok bool) {
	if q.Count() != 1 {
		return 0, item, false
	}
	for id, item = range q.Iter() {
		return id, item, true
	}
	return 0, item, false
}
