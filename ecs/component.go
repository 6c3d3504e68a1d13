package ecs

import (
	"fmt"
	"reflect"
	"sync"
)

// ComponentId is the dense, registry-assigned identity of a component or resource type.
type ComponentId uint32

// StorageKind selects how a component type is stored. It is fixed at registration.
type StorageKind uint8

const (
	// StorageTable keeps the component in archetype table columns: fast iteration,
	// but adding or removing it migrates the entity's row.
	StorageTable StorageKind = iota
	// StorageSparseSet keeps the component in a per-type sparse set keyed by entity
	// index: cheap insert/remove, no table migration.
	StorageSparseSet
)

func (k StorageKind) String() string {
	switch k {
	case StorageTable:
		return "table"
	case StorageSparseSet:
		return "sparse_set"
	default:
		return fmt.Sprintf("StorageKind(%d)", k)
	}
}

// HookContext describes the structural change a hook or observer is reacting to.
type HookContext struct {
	Entity    EntityId
	Component ComponentId
}

// HookFunc is a component lifecycle callback. It receives deferred world access only.
type HookFunc func(w *DeferredWorld, ctx HookContext)

// ComponentHooks is the per-type table of lifecycle callbacks.
//
// OnAdd runs when the component is added to an entity that did not have it.
// OnInsert runs after every insert, including replacements.
// OnReplace runs before an existing value is overwritten or removed.
// OnRemove runs before the component is removed from an entity.
type ComponentHooks struct {
	OnAdd     HookFunc
	OnInsert  HookFunc
	OnReplace HookFunc
	OnRemove  HookFunc
}

func (h ComponentHooks) isEmpty() bool {
	return h.OnAdd == nil && h.OnInsert == nil && h.OnReplace == nil && h.OnRemove == nil
}

// ComponentInfo is the registry metadata for one component or resource type.
type ComponentInfo struct {
	id         ComponentId
	typ        reflect.Type
	storage    StorageKind
	isResource bool
	hooks      ComponentHooks

	newColumn    func() column
	newSparseSet func() sparseSet
}

func (i *ComponentInfo) Id() ComponentId       { return i.id }
func (i *ComponentInfo) Type() reflect.Type    { return i.typ }
func (i *ComponentInfo) Name() string          { return i.typ.String() }
func (i *ComponentInfo) Size() uintptr         { return i.typ.Size() }
func (i *ComponentInfo) Align() uintptr        { return uintptr(i.typ.Align()) }
func (i *ComponentInfo) Storage() StorageKind  { return i.storage }
func (i *ComponentInfo) IsResource() bool      { return i.isResource }
func (i *ComponentInfo) Hooks() ComponentHooks { return i.hooks }

// ComponentRegistry manages component type registration for an ECS instance.
// Each World has its own registry view, allowing multiple independent worlds to
// coexist without interference.
type ComponentRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]ComponentId
	infos  []*ComponentInfo
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		byType: make(map[reflect.Type]ComponentId),
	}
}

// ComponentOption customises a component registration.
type ComponentOption func(*componentConfig)

type componentConfig struct {
	storage StorageKind
	hooks   ComponentHooks
}

// WithStorage selects the storage kind for the component type.
func WithStorage(kind StorageKind) ComponentOption {
	return func(c *componentConfig) {
		c.storage = kind
	}
}

// WithHooks attaches lifecycle hooks to the component type.
func WithHooks(hooks ComponentHooks) ComponentOption {
	return func(c *componentConfig) {
		c.hooks = hooks
	}
}

func checkComponentType(t reflect.Type) {
	switch t.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		panic("components cannot be pointers, maps, channels, functions or interfaces: " + t.String())
	}
}

// RegisterComponent registers a new component type with the given registry.
// This must be called for each component type before it can be used.
//
// Registering the same type again returns the existing id. Changing its storage
// kind, or attaching hooks to a type that already has them, panics.
func RegisterComponent[T any](r *ComponentRegistry, opts ...ComponentOption) ComponentId {
	cfg := componentConfig{storage: StorageTable}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := reflect.TypeFor[T]()
	checkComponentType(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byType[t]; ok {
		info := r.infos[id]
		if info.isResource {
			panic("type " + t.String() + " is already registered as a resource")
		}
		if info.storage != cfg.storage {
			panic(fmt.Sprintf("component %s already registered with %s storage", t, info.storage))
		}
		if !cfg.hooks.isEmpty() {
			if !info.hooks.isEmpty() {
				panic("component " + t.String() + " already has hooks")
			}
			info.hooks = cfg.hooks
		}
		return id
	}

	id := ComponentId(len(r.infos))
	r.infos = append(r.infos, &ComponentInfo{
		id:      id,
		typ:     t,
		storage: cfg.storage,
		hooks:   cfg.hooks,
		newColumn: func() column {
			return &typedColumn[T]{}
		},
		newSparseSet: func() sparseSet {
			return newTypedSparseSet[T]()
		},
	})
	r.byType[t] = id
	return id
}

// RegisterResource registers T as a resource type. Resources are singleton values
// keyed by type and share the id space with components.
func RegisterResource[T any](r *ComponentRegistry) ComponentId {
	return r.registerResourceType(reflect.TypeFor[T]())
}

func (r *ComponentRegistry) registerResourceType(t reflect.Type) ComponentId {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byType[t]; ok {
		if !r.infos[id].isResource {
			panic("type " + t.String() + " is already registered as a component")
		}
		return id
	}
	id := ComponentId(len(r.infos))
	r.infos = append(r.infos, &ComponentInfo{id: id, typ: t, isResource: true})
	r.byType[t] = id
	return id
}

// ComponentIdFor returns the id registered for T.
func ComponentIdFor[T any](r *ComponentRegistry) (ComponentId, bool) {
	return r.Lookup(reflect.TypeFor[T]())
}

// Lookup returns the id registered for t.
func (r *ComponentRegistry) Lookup(t reflect.Type) (ComponentId, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byType[t]
	return id, ok
}

// Info returns the metadata for id, or nil when id is unknown.
func (r *ComponentRegistry) Info(id ComponentId) *ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.infos) {
		return nil
	}
	return r.infos[id]
}

// Len returns the number of registered component and resource types.
func (r *ComponentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.infos)
}

// mustLookup resolves t or panics; used where an unregistered type is a programming error.
func (r *ComponentRegistry) mustLookup(t reflect.Type) *ComponentInfo {
	id, ok := r.Lookup(t)
	if !ok {
		panic("component type " + t.String() + " not registered")
	}
	return r.Info(id)
}

// componentType extracts the component type from a value, dereferencing pointers.
func componentType(value any) reflect.Type {
	t := reflect.TypeOf(value)
	if t == nil {
		panic("nil component value")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
