package ecs

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/kamstrup/intmap"
)

// LifecycleEvent is a structural change observers can react to.
type LifecycleEvent uint8

const (
	OnAdd LifecycleEvent = iota
	OnInsert
	OnReplace
	OnRemove
	lifecycleEventCount
)

func (e LifecycleEvent) String() string {
	switch e {
	case OnAdd:
		return "OnAdd"
	case OnInsert:
		return "OnInsert"
	case OnReplace:
		return "OnReplace"
	case OnRemove:
		return "OnRemove"
	default:
		return fmt.Sprintf("LifecycleEvent(%d)", e)
	}
}

// ObserverId identifies a registered observer.
type ObserverId uint64

// ObserverFunc reacts to a lifecycle event. Like hooks, it gets deferred world access only.
type ObserverFunc func(w *DeferredWorld, ctx HookContext)

// ObserverOption configures an observer.
type ObserverOption func(*observerConfig)

type observerConfig struct {
	entity EntityId
}

// ForEntity limits an observer to events targeting entity.
func ForEntity(entity EntityId) ObserverOption {
	return func(c *observerConfig) {
		c.entity = entity
	}
}

type lifecycleObserver struct {
	id     ObserverId
	entity EntityId
	fn     ObserverFunc
}

type customObserver struct {
	id     ObserverId
	entity EntityId
	fn     func(w *DeferredWorld, event any, target EntityId)
}

type observers struct {
	next      ObserverId
	lifecycle [lifecycleEventCount]*intmap.Map[ComponentId, []lifecycleObserver]
	custom    map[reflect.Type][]customObserver
}

func newObservers() *observers {
	o := &observers{custom: make(map[reflect.Type][]customObserver)}
	for i := range o.lifecycle {
		o.lifecycle[i] = intmap.New[ComponentId, []lifecycleObserver](8)
	}
	return o
}

func (o *observers) nextId() ObserverId {
	o.next++
	return o.next
}

func (o *observers) fireLifecycle(w *World, event LifecycleEvent, ctx HookContext) {
	list, ok := o.lifecycle[event].Get(ctx.Component)
	if !ok {
		return
	}
	var dw *DeferredWorld
	for _, obs := range list {
		if obs.entity != 0 && obs.entity != ctx.Entity {
			continue
		}
		if dw == nil {
			dw = w.deferred()
		}
		obs.fn(dw, ctx)
	}
}

func (o *observers) fireCustom(w *World, t reflect.Type, event any, targets []EntityId) {
	list := o.custom[t]
	if len(list) == 0 {
		return
	}
	dw := w.deferred()
	if len(targets) == 0 {
		for _, obs := range list {
			if obs.entity == 0 {
				obs.fn(dw, event, 0)
			}
		}
		return
	}
	for _, target := range targets {
		for _, obs := range list {
			if obs.entity == 0 || obs.entity == target {
				obs.fn(dw, event, target)
			}
		}
	}
}

func (o *observers) remove(id ObserverId) bool {
	for _, m := range o.lifecycle {
		for cid, list := range m.All() {
			if idx := slices.IndexFunc(list, func(obs lifecycleObserver) bool { return obs.id == id }); idx >= 0 {
				m.Put(cid, slices.Delete(list, idx, idx+1))
				return true
			}
		}
	}
	for t, list := range o.custom {
		if idx := slices.IndexFunc(list, func(obs customObserver) bool { return obs.id == id }); idx >= 0 {
			o.custom[t] = slices.Delete(list, idx, idx+1)
			return true
		}
	}
	return false
}

// Observe registers fn to run after the hook of component for event.
// Observers run in registration order.
func (w *World) Observe(event LifecycleEvent, component ComponentId, fn ObserverFunc, opts ...ObserverOption) ObserverId {
	w.checkOpen()
	var cfg observerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	id := w.observers.nextId()
	m := w.observers.lifecycle[event]
	list, _ := m.Get(component)
	m.Put(component, append(list, lifecycleObserver{id: id, entity: cfg.entity, fn: fn}))
	return id
}

// RemoveObserver unregisters an observer. It returns false if id is unknown.
func (w *World) RemoveObserver(id ObserverId) bool {
	w.checkOpen()
	return w.observers.remove(id)
}

// AddObserver registers fn for custom events of type E sent with Trigger.
// A global observer (no ForEntity) sees every trigger; target is zero when the
// event was triggered without targets.
func AddObserver[E any](w *World, fn func(w *DeferredWorld, event E, target EntityId), opts ...ObserverOption) ObserverId {
	w.checkOpen()
	var cfg observerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	id := w.observers.nextId()
	t := reflect.TypeFor[E]()
	w.observers.custom[t] = append(w.observers.custom[t], customObserver{
		id:     id,
		entity: cfg.entity,
		fn: func(dw *DeferredWorld, event any, target EntityId) {
			fn(dw, event.(E), target)
		},
	})
	return id
}

// Trigger runs the observers of E for event, once per target, and then applies the
// commands they queued.
func Trigger[E any](w *World, event E, targets ...EntityId) {
	w.checkOpen()
	w.flushEntities()
	w.observers.fireCustom(w, reflect.TypeFor[E](), event, targets)
	w.flush()
}
