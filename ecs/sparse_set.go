package ecs

import "unsafe"

// sparseSet is per-component storage keyed by entity index.
// It stores dense values alongside the owning entity and a sparse index lookup.
type sparseSet interface {
	// insert stores value for entity, returning false on a type mismatch.
	insert(entity EntityId, value any) bool
	get(entity EntityId) any
	ptr(entity EntityId) unsafe.Pointer
	has(entity EntityId) bool
	remove(entity EntityId) bool
	entities() []EntityId
	len() int
}

const sparseAbsent = -1

type typedSparseSet[T any] struct {
	dense  []T
	owners []EntityId
	sparse []int32 // entity index -> dense slot, or sparseAbsent
}

func newTypedSparseSet[T any]() *typedSparseSet[T] {
	return &typedSparseSet[T]{}
}

func (s *typedSparseSet[T]) slot(entity EntityId) int {
	idx := int(entity.Index())
	if idx >= len(s.sparse) {
		return sparseAbsent
	}
	slot := int(s.sparse[idx])
	if slot == sparseAbsent || s.owners[slot] != entity {
		return sparseAbsent
	}
	return slot
}

func (s *typedSparseSet[T]) insert(entity EntityId, value any) bool {
	v, ok := unwrapValue[T](value)
	if !ok {
		return false
	}
	idx := int(entity.Index())
	for idx >= len(s.sparse) {
		s.sparse = append(s.sparse, sparseAbsent)
	}
	if slot := s.sparse[idx]; slot != sparseAbsent {
		// the index may still point at a stale generation; either way the slot is reused
		s.dense[slot] = v
		s.owners[slot] = entity
		return true
	}
	s.dense = append(s.dense, v)
	s.owners = append(s.owners, entity)
	s.sparse[idx] = int32(len(s.dense) - 1)
	return true
}

func (s *typedSparseSet[T]) get(entity EntityId) any {
	slot := s.slot(entity)
	if slot == sparseAbsent {
		return nil
	}
	return &s.dense[slot]
}

func (s *typedSparseSet[T]) ptr(entity EntityId) unsafe.Pointer {
	slot := s.slot(entity)
	if slot == sparseAbsent {
		return nil
	}
	return unsafe.Pointer(&s.dense[slot])
}

func (s *typedSparseSet[T]) has(entity EntityId) bool {
	return s.slot(entity) != sparseAbsent
}

func (s *typedSparseSet[T]) remove(entity EntityId) bool {
	slot := s.slot(entity)
	if slot == sparseAbsent {
		return false
	}
	last := len(s.dense) - 1
	lastOwner := s.owners[last]

	s.dense[slot] = s.dense[last]
	s.owners[slot] = lastOwner
	s.sparse[lastOwner.Index()] = int32(slot)

	var zero T
	s.dense[last] = zero
	s.dense = s.dense[:last]
	s.owners = s.owners[:last]
	s.sparse[entity.Index()] = sparseAbsent
	return true
}

func (s *typedSparseSet[T]) entities() []EntityId {
	return s.owners
}

func (s *typedSparseSet[T]) len() int {
	return len(s.dense)
}
