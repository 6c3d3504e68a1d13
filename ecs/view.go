package ecs

import (
	"iter"
	"reflect"
	"strings"
	"unsafe"

	"github.com/bits-and-blooms/bitset"
	"github.com/rotisserie/eris"
)

// With restricts a view to archetypes that have C, without fetching it.
// Use it as a blank field: `_ ecs.With[Player]`.
type With[C any] struct{}

// Without restricts a view to archetypes that lack C.
type Without[C any] struct{}

type queryFilter interface {
	filterTerm() (reflect.Type, bool)
}

func (With[C]) filterTerm() (reflect.Type, bool)    { return reflect.TypeFor[C](), true }
func (Without[C]) filterTerm() (reflect.Type, bool) { return reflect.TypeFor[C](), false }

var (
	queryFilterType = reflect.TypeFor[queryFilter]()
	entityIdType    = reflect.TypeFor[EntityId]()
)

type viewField struct {
	id       ComponentId
	offset   uintptr
	optional bool
	readOnly bool
	entity   bool
}

// fieldSource is where one view field reads from inside a given archetype.
type fieldSource struct {
	col column
	set sparseSet
}

// View represents a query for entities with a specific combination of components.
// The type T should be a struct with pointer fields for each component type.
//
// Embedded fields are always required. Named fields can be tagged:
//
//	`ecs:"optional"`       the field is nil when the entity lacks the component
//	`ecs:"read"`           the system only reads the component
//	`ecs:"read,optional"`  both
//
// A field of type EntityId receives the entity's id. Blank fields of type
// With[C] and Without[C] filter archetypes without fetching anything.
type View[T any] struct {
	world    *World
	fields   []viewField
	required *bitset.BitSet
	excluded *bitset.BitSet
	access   *FilteredAccess
}

// NewView creates a new view for the given struct type.
// It panics if T is malformed or names an unregistered component.
func NewView[T any](w *World) *View[T] {
	v, err := newView[T](w)
	if err != nil {
		panic(err.Error())
	}
	return v
}

func newView[T any](w *World) (*View[T], error) {
	structType := reflect.TypeFor[T]()
	if structType.Kind() != reflect.Struct {
		return nil, eris.Errorf("view type %s must be a struct", structType)
	}

	v := &View[T]{
		world:    w,
		required: bitset.New(0),
		excluded: bitset.New(0),
		access:   NewFilteredAccess(),
	}

	lookup := func(t reflect.Type) (ComponentId, error) {
		id, ok := w.registry.Lookup(t)
		if !ok || w.registry.Info(id).isResource {
			return 0, eris.Wrapf(ErrComponentNotRegistered, "%s in view %s", t, structType)
		}
		return id, nil
	}

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldType := field.Type

		if fieldType.Implements(queryFilterType) {
			compType, with := reflect.Zero(fieldType).Interface().(queryFilter).filterTerm()
			id, err := lookup(compType)
			if err != nil {
				return nil, err
			}
			if err := v.access.Declare(id, Archetypal); err != nil {
				return nil, err
			}
			if with {
				v.required.Set(uint(id))
				v.access.AndWith(id)
			} else {
				v.excluded.Set(uint(id))
				v.access.AndWithout(id)
			}
			continue
		}

		if fieldType == entityIdType {
			v.fields = append(v.fields, viewField{offset: field.Offset, entity: true})
			continue
		}

		if fieldType.Kind() != reflect.Ptr {
			return nil, eris.Errorf("view %s: field %s must be a pointer type", structType, field.Name)
		}

		vf := viewField{offset: field.Offset}
		if tag := field.Tag.Get("ecs"); tag != "" {
			for _, opt := range strings.Split(tag, ",") {
				switch opt {
				case "optional":
					vf.optional = true
				case "read":
					vf.readOnly = true
				default:
					return nil, eris.Errorf("invalid ecs tag value: %q (only \"optional\" and \"read\" are supported)", tag)
				}
			}
		}
		// embedded fields are always required
		if field.Anonymous && vf.optional {
			return nil, eris.Errorf("view %s: embedded field %s cannot be optional", structType, field.Name)
		}

		id, err := lookup(fieldType.Elem())
		if err != nil {
			return nil, err
		}
		vf.id = id

		mode := Write
		if vf.readOnly {
			mode = Read
		}
		if err := v.access.Declare(id, mode); err != nil {
			return nil, eris.Wrapf(err, "view %s", structType)
		}
		if !vf.optional {
			v.required.Set(uint(id))
			v.access.AndWith(id)
		}
		v.fields = append(v.fields, vf)
	}
	if v.required.IntersectionCardinality(v.excluded) > 0 {
		return nil, eris.Errorf("view %s both requires and excludes a component", structType)
	}
	return v, nil
}

// Access returns the filtered access the view needs.
func (v *View[T]) Access() *FilteredAccess {
	return v.access
}

// Matches reports whether every entity of archetype is visited by the view.
func (v *View[T]) Matches(archetype *Archetype) bool {
	return archetype.mask.IsSuperSet(v.required) &&
		archetype.mask.IntersectionCardinality(v.excluded) == 0
}

func (v *View[T]) sources(archetype *Archetype) []fieldSource {
	srcs := make([]fieldSource, len(v.fields))
	for i, f := range v.fields {
		if f.entity || !archetype.HasComponent(f.id) {
			continue
		}
		if col := archetype.table.column(f.id); col != nil {
			srcs[i].col = col
		} else {
			srcs[i].set = v.world.storage.sparseSet(f.id)
		}
	}
	return srcs
}

// populate writes the field pointers for one row using the precomputed sources.
func (v *View[T]) populate(resultPtr unsafe.Pointer, entity EntityId, tableRow uint32, srcs []fieldSource) {
	for i, f := range v.fields {
		fieldPtr := unsafe.Pointer(uintptr(resultPtr) + f.offset)
		if f.entity {
			*(*EntityId)(fieldPtr) = entity
			continue
		}
		src := srcs[i]
		switch {
		case src.col != nil:
			*(*unsafe.Pointer)(fieldPtr) = src.col.ptr(int(tableRow))
		case src.set != nil:
			*(*unsafe.Pointer)(fieldPtr) = src.set.ptr(entity)
		default:
			*(*unsafe.Pointer)(fieldPtr) = nil
		}
	}
}

// Fill populates the provided struct pointer with component data for the given entity.
// Returns false if the entity is dead or does not match the view.
// Optional components are set to nil if not present.
func (v *View[T]) Fill(id EntityId, ptr *T) bool {
	loc, ok := v.world.entities.Location(id)
	if !ok {
		return false
	}
	archetype := v.world.storage.archetypes[loc.Archetype]
	if !v.Matches(archetype) {
		return false
	}
	v.populate(unsafe.Pointer(ptr), id, loc.TableRow, v.sources(archetype))
	return true
}

// Get returns a populated view struct for the given entity, or nil if the entity
// doesn't match the view.
func (v *View[T]) Get(id EntityId) *T {
	var result T
	if !v.Fill(id, &result) {
		return nil
	}
	return &result
}

func (v *View[T]) iterArchetype(archetype *Archetype, srcs []fieldSource) iter.Seq2[EntityId, T] {
	return func(yield func(EntityId, T) bool) {
		var result T
		resultPtr := unsafe.Pointer(&result)
		for _, ae := range archetype.entities {
			v.populate(resultPtr, ae.entity, ae.tableRow, srcs)
			if !yield(ae.entity, result) {
				return
			}
		}
	}
}

// Iter returns an iterator over all entities that match the view.
// The iterator yields (EntityId, T) pairs where T is the populated view struct.
func (v *View[T]) Iter() iter.Seq2[EntityId, T] {
	return func(yield func(EntityId, T) bool) {
		for _, archetype := range v.world.storage.archetypes {
			if archetype.Len() == 0 || !v.Matches(archetype) {
				continue
			}
			for id, item := range v.iterArchetype(archetype, v.sources(archetype)) {
				if !yield(id, item) {
					return
				}
			}
		}
	}
}

// Values returns an iterator over just the view structs (without entity IDs).
func (v *View[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, value := range v.Iter() {
			if !yield(value) {
				return
			}
		}
	}
}

// Spawn creates a new entity with components copied from the non-nil pointer
// fields of data. Required fields must be set.
func (v *View[T]) Spawn(data T) EntityId {
	structPtr := unsafe.Pointer(&data)

	components := make([]any, 0, len(v.fields))
	for _, f := range v.fields {
		if f.entity {
			continue
		}
		componentPtr := *(*unsafe.Pointer)(unsafe.Pointer(uintptr(structPtr) + f.offset))
		if componentPtr == nil {
			if !f.optional {
				panic("required component is nil in View.Spawn")
			}
			continue
		}
		componentType := v.world.registry.Info(f.id).typ
		components = append(components, reflect.NewAt(componentType, componentPtr).Elem().Interface())
	}

	return v.world.Spawn(components...)
}
