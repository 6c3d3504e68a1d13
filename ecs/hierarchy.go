package ecs

import "iter"

// ChildOf points from a child entity to its parent.
type ChildOf struct {
	Parent EntityId
}

// RelationshipTarget returns the parent.
func (c ChildOf) RelationshipTarget() EntityId { return c.Parent }

// Children lists the entities whose ChildOf points here. It is maintained automatically.
type Children struct {
	RelationshipSources
}

// RegisterHierarchy registers ChildOf and Children with linked spawn: despawning a
// parent despawns its whole subtree.
func RegisterHierarchy(r *ComponentRegistry) (childOf ComponentId, children ComponentId) {
	return RegisterRelationship[ChildOf, Children](r, WithLinkedSpawn())
}

// Parent returns the parent of e.
func Parent(r ComponentReader, e EntityId) (EntityId, bool) {
	c := ReadComponent[ChildOf](r, e)
	if c == nil {
		return 0, false
	}
	return c.Parent, true
}

// ChildrenOf returns the children of e, or nil.
func ChildrenOf(r ComponentReader, e EntityId) []EntityId {
	c := ReadComponent[Children](r, e)
	if c == nil {
		return nil
	}
	return c.Sources()
}

// Descendants yields every entity below e, depth first.
func Descendants(r ComponentReader, e EntityId) iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		stack := append([]EntityId(nil), ChildrenOf(r, e)...)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(cur) {
				return
			}
			stack = append(stack, ChildrenOf(r, cur)...)
		}
	}
}
