package ecs

import (
	"reflect"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// System represents a behavior that operates on entities with specific components.
// User-defined systems should implement this interface and can include param fields
// (Query, Res, ResMut, EventReader, EventWriter, WorldMut) for accessing the World,
// as well as custom state fields that persist between frames.
//
// The Scheduler derives a system's access from its param fields. Structural changes
// must go through frame.Commands unless the system holds a WorldMut.
type System interface {
	Execute(frame *UpdateFrame) error
}

// UpdateFrame is passed to every system execution.
type UpdateFrame struct {
	DeltaTime float64
	// Commands is the system's own buffer, applied at the next sync point.
	Commands *Commands
	// System is the name the system was registered under.
	System string
	// RunID identifies the scheduler run.
	RunID uuid.UUID

	world *World
}

// World returns the World for systems with exclusive access and nil for all others.
func (f *UpdateFrame) World() *World {
	return f.world
}

type systemParam interface {
	initParam(w *World) (*FilteredAccess, error)
}

// paramPreparer is implemented by params that refresh state before each run.
type paramPreparer interface {
	prepareParam()
}

// WorldMut is a system param granting exclusive access to the whole World.
// A system holding it never runs concurrently with another system and may
// mutate the World directly.
type WorldMut struct {
	world *World
}

func (p *WorldMut) initParam(w *World) (*FilteredAccess, error) {
	p.world = w
	access := NewFilteredAccess()
	access.access.SetExclusive()
	return access, nil
}

// Get returns the World.
func (p *WorldMut) Get() *World {
	return p.world
}

// AccessDecl declares one access of a FuncSystem or Condition.
type AccessDecl func(w *World, access *FilteredAccess) error

func componentDecl[T any](mode AccessMode, with, without bool) AccessDecl {
	return func(w *World, access *FilteredAccess) error {
		id, ok := ComponentIdFor[T](w.registry)
		if !ok || w.registry.Info(id).isResource {
			return eris.Wrapf(ErrComponentNotRegistered, "%s", reflect.TypeFor[T]())
		}
		if err := access.Declare(id, mode); err != nil {
			return err
		}
		if with {
			access.AndWith(id)
		}
		if without {
			access.AndWithout(id)
		}
		return nil
	}
}

// Reads declares shared access to component T on entities that have it.
func Reads[T any]() AccessDecl { return componentDecl[T](Read, true, false) }

// Writes declares exclusive access to component T on entities that have it.
func Writes[T any]() AccessDecl { return componentDecl[T](Write, true, false) }

// Requires restricts the declared component access to entities that have T.
func Requires[T any]() AccessDecl { return componentDecl[T](Archetypal, true, false) }

// Excludes restricts the declared component access to entities that lack T.
func Excludes[T any]() AccessDecl { return componentDecl[T](Archetypal, false, true) }

// Restructures declares that the system adds or removes T while it runs.
func Restructures[T any]() AccessDecl { return componentDecl[T](Structural, false, false) }

// ReadsResource declares shared access to resource T.
func ReadsResource[T any]() AccessDecl {
	return func(w *World, access *FilteredAccess) error {
		return access.Declare(RegisterResource[T](w.registry), ResourceRead)
	}
}

// WritesResource declares exclusive access to resource T.
func WritesResource[T any]() AccessDecl {
	return func(w *World, access *FilteredAccess) error {
		return access.Declare(RegisterResource[T](w.registry), ResourceWrite)
	}
}

// Exclusive declares access to the whole World. The UpdateFrame of such a
// system carries the World.
func Exclusive() AccessDecl {
	return func(_ *World, access *FilteredAccess) error {
		access.access.SetExclusive()
		return nil
	}
}

func buildAccess(w *World, decls []AccessDecl) (*FilteredAccess, error) {
	access := NewFilteredAccess()
	for _, decl := range decls {
		if err := decl(w, access); err != nil {
			return nil, err
		}
	}
	return access, nil
}

type funcSystem struct {
	name  string
	fn    func(frame *UpdateFrame) error
	decls []AccessDecl
}

// FuncSystem wraps fn as a System whose access is given explicitly by decls.
func FuncSystem(name string, fn func(frame *UpdateFrame) error, decls ...AccessDecl) System {
	return &funcSystem{name: name, fn: fn, decls: decls}
}

func (s *funcSystem) Execute(frame *UpdateFrame) error { return s.fn(frame) }

func (s *funcSystem) systemName() string { return s.name }

type applyDeferred struct{}

// ApplyDeferred returns a sync point. When it runs, every buffer produced earlier
// in its stage is applied. Systems ordered after it observe those changes.
func ApplyDeferred() System {
	return &applyDeferred{}
}

func (*applyDeferred) Execute(*UpdateFrame) error { return nil }

func (*applyDeferred) systemName() string { return "ApplyDeferred" }

type namedSystem interface {
	systemName() string
}

// systemTypeName returns the name a system is registered under by default.
func systemTypeName(system System) string {
	if named, ok := system.(namedSystem); ok {
		return named.systemName()
	}
	systemType := reflect.TypeOf(system)
	if systemType.Kind() == reflect.Ptr {
		systemType = systemType.Elem()
	}
	return systemType.Name()
}

// initSystemParams initialises every param field of system and collects their access.
func initSystemParams(w *World, system System) ([]*FilteredAccess, []paramPreparer, error) {
	if fs, ok := system.(*funcSystem); ok {
		access, err := buildAccess(w, fs.decls)
		if err != nil {
			return nil, nil, err
		}
		return []*FilteredAccess{access}, nil, nil
	}

	systemValue := reflect.ValueOf(system)
	if systemValue.Kind() == reflect.Ptr {
		systemValue = systemValue.Elem()
	}
	if systemValue.Kind() != reflect.Struct {
		return nil, nil, nil
	}

	var accesses []*FilteredAccess
	var preparers []paramPreparer
	systemType := systemValue.Type()

	for i := 0; i < systemValue.NumField(); i++ {
		field := systemValue.Field(i)
		if !field.CanSet() || field.Kind() != reflect.Struct {
			continue
		}
		param, ok := field.Addr().Interface().(systemParam)
		if !ok {
			continue
		}
		access, err := param.initParam(w)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "field %s", systemType.Field(i).Name)
		}
		accesses = append(accesses, access)
		if p, ok := param.(paramPreparer); ok {
			preparers = append(preparers, p)
		}
	}
	return accesses, preparers, nil
}
