package ecs

import (
	"unsafe"

	"github.com/kamstrup/intmap"
)

// TableId identifies a Table within a Storage.
type TableId uint32

// Table is columnar storage for every entity whose archetypes share the same set of
// table-stored components. Column i holds components[i]; row r of every column and
// entities[r] describe the same entity.
type Table struct {
	id         TableId
	components []ComponentId
	columns    []column
	columnIdx  *intmap.Map[ComponentId, int]
	entities   []EntityId
}

func newTable(id TableId, components []ComponentId, registry *ComponentRegistry) *Table {
	t := &Table{
		id:         id,
		components: components,
		columns:    make([]column, len(components)),
		columnIdx:  intmap.New[ComponentId, int](len(components)),
	}
	for idx, cid := range components {
		info := registry.Info(cid)
		if info == nil {
			panic("component id not registered")
		}
		t.columns[idx] = info.newColumn()
		t.columnIdx.Put(cid, idx)
	}
	return t
}

// Id returns the table's identifier.
func (t *Table) Id() TableId { return t.id }

// Components returns the sorted component ids stored as columns.
func (t *Table) Components() []ComponentId { return t.components }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.entities) }

// Entities returns the entity stored in each row.
func (t *Table) Entities() []EntityId { return t.entities }

func (t *Table) column(id ComponentId) column {
	idx, ok := t.columnIdx.Get(id)
	if !ok {
		return nil
	}
	return t.columns[idx]
}

// HasColumn reports whether the table stores id.
func (t *Table) HasColumn(id ComponentId) bool {
	_, ok := t.columnIdx.Get(id)
	return ok
}

func (t *Table) get(row uint32, id ComponentId) any {
	col := t.column(id)
	if col == nil {
		return nil
	}
	return col.get(int(row))
}

func (t *Table) ptr(row uint32, id ComponentId) unsafe.Pointer {
	col := t.column(id)
	if col == nil {
		return nil
	}
	return col.ptr(int(row))
}

// allocate appends a row for entity. The caller pushes one value into every column.
func (t *Table) allocate(entity EntityId) uint32 {
	t.entities = append(t.entities, entity)
	return uint32(len(t.entities) - 1)
}

// swapRemove drops row from every column. When another entity was moved into
// row to fill the hole, it is returned with true.
func (t *Table) swapRemove(row uint32) (EntityId, bool) {
	for _, col := range t.columns {
		col.swapRemove(int(row))
	}
	return t.swapRemoveEntity(row)
}

func (t *Table) swapRemoveEntity(row uint32) (EntityId, bool) {
	last := uint32(len(t.entities) - 1)
	var moved EntityId
	hasMoved := row != last
	if hasMoved {
		moved = t.entities[last]
		t.entities[row] = moved
	}
	t.entities = t.entities[:last]
	return moved, hasMoved
}

// moveRow copies the columns dst shares with t into a new row of dst, drops the
// rest, and swap-removes row from t. Columns dst has but t lacks are left for
// the caller to push.
func (t *Table) moveRow(row uint32, dst *Table) (uint32, EntityId, bool) {
	entity := t.entities[row]
	dstRow := dst.allocate(entity)
	for idx, cid := range t.components {
		if dstCol := dst.column(cid); dstCol != nil {
			dstCol.pushFrom(t.columns[idx], int(row))
		}
		t.columns[idx].swapRemove(int(row))
	}
	moved, hasMoved := t.swapRemoveEntity(row)
	return dstRow, moved, hasMoved
}
