package ecs

import "unsafe"

// column is a type-erased, densely packed array of one component type.
// Rows are kept contiguous: removal swaps the last row into the hole.
type column interface {
	// push appends a value (T or *T) and returns false on a type mismatch.
	push(value any) bool
	// pushFrom appends a copy of row from src, which must hold the same type.
	pushFrom(src column, row int)
	// set overwrites row with value (T or *T).
	set(row int, value any) bool
	// get returns a *T for row as an interface value.
	get(row int) any
	// ptr returns the address of row.
	ptr(row int) unsafe.Pointer
	// swapRemove drops row, moving the last row into its place.
	swapRemove(row int)
	len() int
}

// typedColumn is the generic implementation of column.
// Growth is amortized doubling through append.
type typedColumn[T any] struct {
	data []T
}

func unwrapValue[T any](value any) (T, bool) {
	if ptr, ok := value.(*T); ok {
		return *ptr, true
	}
	v, ok := value.(T)
	return v, ok
}

func (c *typedColumn[T]) push(value any) bool {
	v, ok := unwrapValue[T](value)
	if !ok {
		return false
	}
	c.data = append(c.data, v)
	return true
}

func (c *typedColumn[T]) pushFrom(src column, row int) {
	c.data = append(c.data, src.(*typedColumn[T]).data[row])
}

func (c *typedColumn[T]) set(row int, value any) bool {
	v, ok := unwrapValue[T](value)
	if !ok {
		return false
	}
	c.data[row] = v
	return true
}

func (c *typedColumn[T]) get(row int) any {
	if row < 0 || row >= len(c.data) {
		return nil
	}
	return &c.data[row]
}

func (c *typedColumn[T]) ptr(row int) unsafe.Pointer {
	return unsafe.Pointer(&c.data[row])
}

func (c *typedColumn[T]) swapRemove(row int) {
	last := len(c.data) - 1
	if row != last {
		c.data[row] = c.data[last]
	}
	var zero T
	c.data[last] = zero // release references held by the dropped value
	c.data = c.data[:last]
}

func (c *typedColumn[T]) len() int {
	return len(c.data)
}
