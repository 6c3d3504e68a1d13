package ecs

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var (
	// ErrEntityNotAlive is returned by direct World calls on a despawned or never-spawned entity.
	ErrEntityNotAlive = eris.New("entity is not alive")
	// ErrComponentNotRegistered is returned when a value's type has no registry entry.
	ErrComponentNotRegistered = eris.New("component type not registered")
	// ErrAccessConflict is returned when one access descriptor declares the same id twice and at least one declaration writes.
	ErrAccessConflict = eris.New("conflicting access declared")
	// ErrSelfConflict is returned at build time for a system whose params conflict with each other.
	ErrSelfConflict = eris.New("system parameters conflict with each other")
	// ErrScheduleCycle is returned when ordering constraints form a cycle.
	ErrScheduleCycle = eris.New("schedule ordering constraints form a cycle")
	// ErrUnknownLabel is returned when an ordering constraint names a system or set that does not exist.
	ErrUnknownLabel = eris.New("unknown system or set label")
	// ErrDuplicateSystem is returned when two systems share a name.
	ErrDuplicateSystem = eris.New("duplicate system name")
	// ErrAmbiguousSystems is returned when ambiguity detection is set to error and two conflicting systems lack an ordering.
	ErrAmbiguousSystems = eris.New("conflicting systems have no ordering")
	// ErrSystemFailed matches every SystemError via errors.Is.
	ErrSystemFailed = eris.New("system failed")
)

// SystemError reports a system that returned an error or panicked during a run.
type SystemError struct {
	System string
	RunID  uuid.UUID
	// Panic holds the recovered value when the system panicked.
	Panic any
	Err   error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system %s failed (run %s): %v", e.System, e.RunID, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

func (e *SystemError) Is(target error) bool { return target == ErrSystemFailed }
