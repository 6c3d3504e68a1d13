package ecs

import (
	"reflect"
	"slices"
)

// StorageStats is a snapshot of what a World stores.
type StorageStats struct {
	ArchetypeCount   int
	TableCount       int
	SparseSetCount   int
	TotalEntityCount int
	ResourceCount    int

	ArchetypeBreakdown []ArchetypeStats
	ResourceTypes      []reflect.Type
}

// ArchetypeStats describes one non-empty-set archetype.
type ArchetypeStats struct {
	ID             ArchetypeId
	ComponentTypes []reflect.Type
	SparseCount    int
	EntityCount    int
}

// CollectStats gathers storage statistics. The empty archetype is not counted.
func (w *World) CollectStats() StorageStats {
	w.checkOpen()
	stats := StorageStats{
		TableCount:       len(w.storage.tables),
		SparseSetCount:   w.storage.sparseSets.Len(),
		TotalEntityCount: w.entities.Len(),
		ResourceCount:    w.resources.Len(),
	}

	for _, arch := range w.storage.archetypes {
		if arch.id == EmptyArchetype {
			continue
		}
		types := make([]reflect.Type, len(arch.components))
		for i, cid := range arch.components {
			types[i] = w.registry.Info(cid).typ
		}
		stats.ArchetypeBreakdown = append(stats.ArchetypeBreakdown, ArchetypeStats{
			ID:             arch.id,
			ComponentTypes: types,
			SparseCount:    len(arch.sparse),
			EntityCount:    arch.Len(),
		})
	}
	stats.ArchetypeCount = len(stats.ArchetypeBreakdown)

	for id := range w.resources.Keys() {
		stats.ResourceTypes = append(stats.ResourceTypes, w.registry.Info(id).typ)
	}
	slices.SortFunc(stats.ResourceTypes, func(a, b reflect.Type) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return stats
}
