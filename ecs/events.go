package ecs

import "iter"

type eventInstance[E any] struct {
	id    uint64
	event E
}

// Events is a double-buffered queue of one-shot events, stored as a resource.
// An event stays readable for the update it was sent in and the following one,
// after which Update drops it.
type Events[E any] struct {
	previous []eventInstance[E]
	current  []eventInstance[E]
	next     uint64
}

// Send appends event to the current buffer.
func (e *Events[E]) Send(event E) {
	e.current = append(e.current, eventInstance[E]{id: e.next, event: event})
	e.next++
}

// Update drops the previous buffer and makes the current one previous.
func (e *Events[E]) Update() {
	clear(e.previous)
	e.previous, e.current = e.current, e.previous[:0]
}

// Len returns the number of readable events.
func (e *Events[E]) Len() int {
	return len(e.previous) + len(e.current)
}

// oldest returns the id of the oldest readable event.
func (e *Events[E]) oldest() uint64 {
	if len(e.previous) > 0 {
		return e.previous[0].id
	}
	if len(e.current) > 0 {
		return e.current[0].id
	}
	return e.next
}

// readSince yields the events with id >= cursor and returns the cursor past them.
func (e *Events[E]) readSince(cursor uint64, yield func(E) bool) uint64 {
	cursor = max(cursor, e.oldest())
	for _, buf := range [2][]eventInstance[E]{e.previous, e.current} {
		for _, inst := range buf {
			if inst.id < cursor {
				continue
			}
			cursor = inst.id + 1
			if !yield(inst.event) {
				return cursor
			}
		}
	}
	return cursor
}

// eventUpdater lets the World swap every registered Events buffer without knowing E.
type eventUpdater interface {
	Update()
}

// AddEvent registers the Events[E] resource and returns it. The Scheduler updates
// every registered event buffer at the start of each run.
func AddEvent[E any](w *World) *Events[E] {
	if existing := Resource[Events[E]](w); existing != nil {
		return existing
	}
	w.InsertResource(&Events[E]{})
	events := Resource[Events[E]](w)
	w.events = append(w.events, events)
	return events
}

// UpdateEvents swaps the buffers of every registered event type.
func (w *World) UpdateEvents() {
	for _, e := range w.events {
		e.Update()
	}
}

// SendEvent sends event through the Events[E] resource, registering it if needed.
func SendEvent[E any](w *World, event E) {
	AddEvent[E](w).Send(event)
}

// EventWriter is a system param that sends E events.
type EventWriter[E any] struct {
	world *World
	id    ComponentId
}

func (p *EventWriter[E]) initParam(w *World) (*FilteredAccess, error) {
	AddEvent[E](w)
	p.world = w
	p.id = RegisterResource[Events[E]](w.registry)
	access := NewFilteredAccess()
	if err := access.Declare(p.id, ResourceWrite); err != nil {
		return nil, err
	}
	return access, nil
}

// Send queues event for readers.
func (p *EventWriter[E]) Send(event E) {
	p.world.resourceById(p.id).(*Events[E]).Send(event)
}

// EventReader is a system param that reads E events. Each reader has its own
// cursor, so every reader sees every event once.
type EventReader[E any] struct {
	world  *World
	id     ComponentId
	cursor uint64
}

func (p *EventReader[E]) initParam(w *World) (*FilteredAccess, error) {
	AddEvent[E](w)
	p.world = w
	p.id = RegisterResource[Events[E]](w.registry)
	access := NewFilteredAccess()
	if err := access.Declare(p.id, ResourceRead); err != nil {
		return nil, err
	}
	return access, nil
}

// Read yields the events this reader has not seen yet and advances its cursor.
func (p *EventReader[E]) Read() iter.Seq[E] {
	return func(yield func(E) bool) {
		events, _ := p.world.resourceById(p.id).(*Events[E])
		if events == nil {
			return
		}
		p.cursor = events.readSince(p.cursor, yield)
	}
}

// Len returns the number of unread events.
func (p *EventReader[E]) Len() int {
	events, _ := p.world.resourceById(p.id).(*Events[E])
	if events == nil {
		return 0
	}
	n := 0
	events.readSince(p.cursor, func(E) bool { n++; return true })
	return n
}
