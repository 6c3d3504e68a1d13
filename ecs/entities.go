package ecs

import "sync"

type entityMeta struct {
	generation uint32
	alive      bool
	location   EntityLocation
}

// Entities allocates generational entity ids and tracks where each live entity is stored.
//
// Allocate, Free and location updates need exclusive World access. Reserve may be
// called from any goroutine; reserved ids become alive when the World next flushes.
type Entities struct {
	meta []entityMeta

	mu        sync.Mutex // guards freeList, nextIndex and pending
	freeList  []uint32
	nextIndex uint32
	pending   []EntityId
	alive     int
}

// NewEntities creates an empty entity index.
func NewEntities() *Entities {
	return &Entities{
		meta:     make([]entityMeta, 0, 1024),
		freeList: make([]uint32, 0, 256),
	}
}

func (e *Entities) nextLocked() EntityId {
	if n := len(e.freeList); n > 0 {
		idx := e.freeList[n-1]
		e.freeList = e.freeList[:n-1]
		// generation was bumped when the index was freed
		return NewEntityId(idx, e.meta[idx].generation)
	}
	idx := e.nextIndex
	e.nextIndex++
	return NewEntityId(idx, 1)
}

func (e *Entities) grow() {
	for uint32(len(e.meta)) < e.nextIndex {
		e.meta = append(e.meta, entityMeta{generation: 1})
	}
}

// Allocate returns a new live entity, reusing a freed index when one is available.
func (e *Entities) Allocate() EntityId {
	e.mu.Lock()
	id := e.nextLocked()
	e.grow()
	e.mu.Unlock()

	e.meta[id.Index()].alive = true
	e.alive++
	return id
}

// Reserve hands out an id that will become alive on the next flush.
// Safe for concurrent use while systems run.
func (e *Entities) Reserve() EntityId {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextLocked()
	e.pending = append(e.pending, id)
	return id
}

// takePending marks all reserved ids alive and returns them.
func (e *Entities) takePending() []EntityId {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.grow()
	e.mu.Unlock()

	for _, id := range pending {
		e.meta[id.Index()].alive = true
		e.alive++
	}
	return pending
}

// IsAlive reports whether id refers to a live entity of the current generation.
func (e *Entities) IsAlive(id EntityId) bool {
	idx := id.Index()
	if int(idx) >= len(e.meta) {
		return false
	}
	m := &e.meta[idx]
	return m.alive && m.generation == id.Generation()
}

// Free invalidates id and queues its index for reuse with the next generation.
// Returns false when id was already stale.
func (e *Entities) Free(id EntityId) bool {
	if !e.IsAlive(id) {
		return false
	}
	m := &e.meta[id.Index()]
	m.alive = false
	m.location = EntityLocation{}
	m.generation++
	if m.generation == 0 {
		m.generation = 1
	}
	e.alive--

	e.mu.Lock()
	e.freeList = append(e.freeList, id.Index())
	e.mu.Unlock()
	return true
}

// Location returns the storage location of a live entity.
func (e *Entities) Location(id EntityId) (EntityLocation, bool) {
	if !e.IsAlive(id) {
		return EntityLocation{}, false
	}
	return e.meta[id.Index()].location, true
}

func (e *Entities) setLocation(id EntityId, loc EntityLocation) {
	e.meta[id.Index()].location = loc
}

// Len returns the number of live entities.
func (e *Entities) Len() int {
	return e.alive
}
