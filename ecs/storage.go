package ecs

import (
	"slices"
	"unsafe"

	"github.com/kamstrup/intmap"
)

// Storage owns all component bytes: archetype tables and sparse sets.
// It keeps Entities' locations in sync as rows move.
type Storage struct {
	registry *ComponentRegistry
	entities *Entities

	tables         []*Table
	tableIndex     *intmap.Map[uint64, []TableId]
	archetypes     []*Archetype
	archetypeIndex *intmap.Map[uint64, []ArchetypeId]
	sparseSets     *intmap.Map[ComponentId, sparseSet]
}

func newStorage(registry *ComponentRegistry, entities *Entities) *Storage {
	s := &Storage{
		registry:       registry,
		entities:       entities,
		tableIndex:     intmap.New[uint64, []TableId](64),
		archetypeIndex: intmap.New[uint64, []ArchetypeId](64),
		sparseSets:     intmap.New[ComponentId, sparseSet](16),
	}
	// table 0 and archetype 0 are the empty set
	s.getArchetypeFor(nil)
	return s
}

// hashComponentIds generates an FNV-1a hash for a sorted slice of component ids
func hashComponentIds(ids []ComponentId) uint64 {
	var h uint64 = 14695981039346656037 // FNV-1a 64-bit offset basis
	const prime uint64 = 1099511628211  // FNV-1a 64-bit prime

	for _, id := range ids {
		for shift := 0; shift < 32; shift += 8 {
			h ^= uint64(byte(id >> shift))
			h *= prime
		}
	}
	return h
}

func normalizeIds(ids []ComponentId) []ComponentId {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Archetypes returns every archetype, indexed by ArchetypeId.
func (s *Storage) Archetypes() []*Archetype {
	return s.archetypes
}

// Archetype returns the archetype with the given id, or nil.
func (s *Storage) Archetype(id ArchetypeId) *Archetype {
	if int(id) >= len(s.archetypes) {
		return nil
	}
	return s.archetypes[id]
}

// Tables returns every table, indexed by TableId.
func (s *Storage) Tables() []*Table {
	return s.tables
}

func (s *Storage) getTableFor(ids []ComponentId) *Table {
	hash := hashComponentIds(ids)
	candidates, _ := s.tableIndex.Get(hash)
	for _, tid := range candidates {
		if sameComponents(s.tables[tid].components, ids) {
			return s.tables[tid]
		}
	}
	table := newTable(TableId(len(s.tables)), ids, s.registry)
	s.tables = append(s.tables, table)
	s.tableIndex.Put(hash, append(candidates, table.id))
	return table
}

// getArchetypeFor returns the archetype for exactly the given component set,
// creating it (and its table, if needed) on first use.
func (s *Storage) getArchetypeFor(ids []ComponentId) *Archetype {
	ids = normalizeIds(ids)
	hash := hashComponentIds(ids)
	candidates, _ := s.archetypeIndex.Get(hash)
	for _, aid := range candidates {
		if sameComponents(s.archetypes[aid].components, ids) {
			return s.archetypes[aid]
		}
	}

	tableIds := make([]ComponentId, 0, len(ids))
	var sparse []ComponentId
	for _, cid := range ids {
		info := s.registry.Info(cid)
		if info == nil || info.isResource {
			panic("component id is not a registered component")
		}
		if info.storage == StorageSparseSet {
			sparse = append(sparse, cid)
			s.sparseSetFor(cid)
		} else {
			tableIds = append(tableIds, cid)
		}
	}

	arch := newArchetype(ArchetypeId(len(s.archetypes)), ids, sparse, s.getTableFor(tableIds))
	s.archetypes = append(s.archetypes, arch)
	s.archetypeIndex.Put(hash, append(candidates, arch.id))
	return arch
}

// archetypeWith follows (or creates) the add edge of src for id.
func (s *Storage) archetypeWith(src *Archetype, id ComponentId) *Archetype {
	if src.HasComponent(id) {
		return src
	}
	if dst, ok := src.addEdges.Get(id); ok {
		return s.archetypes[dst]
	}
	ids := append(slices.Clone(src.components), id)
	dst := s.getArchetypeFor(ids)
	src.addEdges.Put(id, dst.id)
	dst.removeEdges.Put(id, src.id)
	return dst
}

// archetypeWithout follows (or creates) the remove edge of src for id.
func (s *Storage) archetypeWithout(src *Archetype, id ComponentId) *Archetype {
	if !src.HasComponent(id) {
		return src
	}
	if dst, ok := src.removeEdges.Get(id); ok {
		return s.archetypes[dst]
	}
	ids := make([]ComponentId, 0, len(src.components))
	for _, cid := range src.components {
		if cid != id {
			ids = append(ids, cid)
		}
	}
	dst := s.getArchetypeFor(ids)
	src.removeEdges.Put(id, dst.id)
	dst.addEdges.Put(id, src.id)
	return dst
}

func (s *Storage) sparseSetFor(id ComponentId) sparseSet {
	set, ok := s.sparseSets.Get(id)
	if !ok {
		set = s.registry.Info(id).newSparseSet()
		s.sparseSets.Put(id, set)
	}
	return set
}

// sparseSet returns the set for id without creating it.
func (s *Storage) sparseSet(id ComponentId) sparseSet {
	set, _ := s.sparseSets.Get(id)
	return set
}

// place adds a new row for entity to arch. The caller pushes table column values.
func (s *Storage) place(entity EntityId, arch *Archetype) EntityLocation {
	tableRow := arch.table.allocate(entity)
	archRow := arch.allocate(entity, tableRow)
	loc := EntityLocation{
		Archetype:    arch.id,
		ArchetypeRow: archRow,
		Table:        arch.table.id,
		TableRow:     tableRow,
	}
	s.entities.setLocation(entity, loc)
	return loc
}

// move migrates entity from its current archetype to dst. Retained table columns are
// copied, removed ones dropped; columns new to dst must be pushed by the caller.
// Sparse-set values are untouched. The cost is proportional to the number of
// components involved, not to the table size.
func (s *Storage) move(entity EntityId, loc EntityLocation, dst *Archetype) EntityLocation {
	src := s.archetypes[loc.Archetype]
	if src == dst {
		return loc
	}

	newLoc := EntityLocation{Archetype: dst.id, Table: dst.table.id}
	if src.table == dst.table {
		newLoc.TableRow = loc.TableRow
	} else {
		dstRow, moved, hasMoved := src.table.moveRow(loc.TableRow, dst.table)
		newLoc.TableRow = dstRow
		if hasMoved {
			s.fixTableRow(moved, loc.TableRow)
		}
	}

	newLoc.ArchetypeRow = dst.allocate(entity, newLoc.TableRow)
	if moved, hasMoved := src.swapRemove(loc.ArchetypeRow); hasMoved {
		s.fixArchetypeRow(moved, loc.ArchetypeRow)
	}
	s.entities.setLocation(entity, newLoc)
	return newLoc
}

// remove drops every stored value of entity, including sparse components.
func (s *Storage) remove(entity EntityId, loc EntityLocation) {
	arch := s.archetypes[loc.Archetype]
	for _, cid := range arch.sparse {
		s.sparseSetFor(cid).remove(entity)
	}
	if moved, hasMoved := arch.table.swapRemove(loc.TableRow); hasMoved {
		s.fixTableRow(moved, loc.TableRow)
	}
	if moved, hasMoved := arch.swapRemove(loc.ArchetypeRow); hasMoved {
		s.fixArchetypeRow(moved, loc.ArchetypeRow)
	}
}

func (s *Storage) fixTableRow(entity EntityId, row uint32) {
	loc, ok := s.entities.Location(entity)
	if !ok {
		return
	}
	loc.TableRow = row
	s.archetypes[loc.Archetype].entities[loc.ArchetypeRow].tableRow = row
	s.entities.setLocation(entity, loc)
}

func (s *Storage) fixArchetypeRow(entity EntityId, row uint32) {
	loc, ok := s.entities.Location(entity)
	if !ok {
		return
	}
	loc.ArchetypeRow = row
	s.entities.setLocation(entity, loc)
}

// get returns a *T (as any) for component id of entity, or nil.
func (s *Storage) get(entity EntityId, loc EntityLocation, id ComponentId) any {
	arch := s.archetypes[loc.Archetype]
	if !arch.HasComponent(id) {
		return nil
	}
	if set := s.sparseSet(id); set != nil && !arch.table.HasColumn(id) {
		return set.get(entity)
	}
	return arch.table.get(loc.TableRow, id)
}

func (s *Storage) ptr(entity EntityId, loc EntityLocation, id ComponentId) unsafe.Pointer {
	arch := s.archetypes[loc.Archetype]
	if !arch.HasComponent(id) {
		return nil
	}
	if arch.table.HasColumn(id) {
		return arch.table.ptr(loc.TableRow, id)
	}
	if set := s.sparseSet(id); set != nil {
		return set.ptr(entity)
	}
	return nil
}

// write stores value for id on an entity whose archetype already contains id.
func (s *Storage) write(entity EntityId, loc EntityLocation, id ComponentId, value any) bool {
	arch := s.archetypes[loc.Archetype]
	if col := arch.table.column(id); col != nil {
		if int(loc.TableRow) < col.len() {
			return col.set(int(loc.TableRow), value)
		}
		return col.push(value)
	}
	return s.sparseSetFor(id).insert(entity, value)
}
