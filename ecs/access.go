package ecs

import (
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/rotisserie/eris"
)

// AccessMode is the kind of access a system declares for one id.
type AccessMode uint8

const (
	// Read declares shared access to a component's values.
	Read AccessMode = iota
	// Write declares exclusive access to a component's values.
	Write
	// Archetypal declares a dependency on which entities have the component,
	// not on its values (With/Without filters).
	Archetypal
	// Structural declares that the system adds or removes the component on
	// entities while it runs, changing archetype membership.
	Structural
	// ResourceRead declares shared access to a resource.
	ResourceRead
	// ResourceWrite declares exclusive access to a resource.
	ResourceWrite
)

func (m AccessMode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case Archetypal:
		return "archetypal"
	case Structural:
		return "structural"
	case ResourceRead:
		return "resource_read"
	case ResourceWrite:
		return "resource_write"
	default:
		return fmt.Sprintf("AccessMode(%d)", m)
	}
}

// Access is the set of ids a system reads, writes, filters on or restructures.
// Archetypal and structural declarations are tracked apart from data access, so a
// component may be both value-accessed and membership-filtered by one system.
type Access struct {
	reads      *bitset.BitSet
	writes     *bitset.BitSet
	archetypal *bitset.BitSet
	structural *bitset.BitSet
	resReads   *bitset.BitSet
	resWrites  *bitset.BitSet
	exclusive  bool
}

// NewAccess creates an empty access descriptor.
func NewAccess() *Access {
	return &Access{
		reads:      bitset.New(0),
		writes:     bitset.New(0),
		archetypal: bitset.New(0),
		structural: bitset.New(0),
		resReads:   bitset.New(0),
		resWrites:  bitset.New(0),
	}
}

// Declare adds (id, mode). Declaring an id twice where either declaration writes
// is a conflict inside this descriptor; a system that needs both must declare
// the write alone.
func (a *Access) Declare(id ComponentId, mode AccessMode) error {
	i := uint(id)
	conflict := func() error {
		return eris.Wrapf(ErrAccessConflict, "component %d declared %s", id, mode)
	}
	switch mode {
	case Read:
		if a.writes.Test(i) || a.structural.Test(i) {
			return conflict()
		}
		a.reads.Set(i)
	case Write:
		if a.reads.Test(i) || a.writes.Test(i) || a.structural.Test(i) {
			return conflict()
		}
		a.writes.Set(i)
	case Archetypal:
		a.archetypal.Set(i)
	case Structural:
		if a.reads.Test(i) || a.writes.Test(i) {
			return conflict()
		}
		a.structural.Set(i)
	case ResourceRead:
		if a.resWrites.Test(i) {
			return conflict()
		}
		a.resReads.Set(i)
	case ResourceWrite:
		if a.resReads.Test(i) || a.resWrites.Test(i) {
			return conflict()
		}
		a.resWrites.Set(i)
	default:
		return eris.Errorf("unknown access mode %d", mode)
	}
	return nil
}

// SetExclusive marks the descriptor as needing the whole World. It conflicts with everything.
func (a *Access) SetExclusive() { a.exclusive = true }

// IsExclusive reports whether the descriptor needs the whole World.
func (a *Access) IsExclusive() bool { return a.exclusive }

func (a *Access) HasRead(id ComponentId) bool          { return a.reads.Test(uint(id)) }
func (a *Access) HasWrite(id ComponentId) bool         { return a.writes.Test(uint(id)) }
func (a *Access) HasArchetypal(id ComponentId) bool    { return a.archetypal.Test(uint(id)) }
func (a *Access) HasStructural(id ComponentId) bool    { return a.structural.Test(uint(id)) }
func (a *Access) HasResourceRead(id ComponentId) bool  { return a.resReads.Test(uint(id)) }
func (a *Access) HasResourceWrite(id ComponentId) bool { return a.resWrites.Test(uint(id)) }

// IsEmpty reports whether nothing has been declared.
func (a *Access) IsEmpty() bool {
	return !a.exclusive && a.reads.None() && a.writes.None() && a.archetypal.None() &&
		a.structural.None() && a.resReads.None() && a.resWrites.None()
}

// Extend merges other into a without conflict checks.
func (a *Access) Extend(other *Access) {
	a.reads.InPlaceUnion(other.reads)
	a.writes.InPlaceUnion(other.writes)
	a.archetypal.InPlaceUnion(other.archetypal)
	a.structural.InPlaceUnion(other.structural)
	a.resReads.InPlaceUnion(other.resReads)
	a.resWrites.InPlaceUnion(other.resWrites)
	a.exclusive = a.exclusive || other.exclusive
}

// Clone returns a deep copy.
func (a *Access) Clone() *Access {
	return &Access{
		reads:      a.reads.Clone(),
		writes:     a.writes.Clone(),
		archetypal: a.archetypal.Clone(),
		structural: a.structural.Clone(),
		resReads:   a.resReads.Clone(),
		resWrites:  a.resWrites.Clone(),
		exclusive:  a.exclusive,
	}
}

func (a *Access) dataTouched() *bitset.BitSet {
	return a.reads.Union(a.writes)
}

func (a *Access) anyTouched() *bitset.BitSet {
	return a.reads.Union(a.writes).Union(a.archetypal).Union(a.structural)
}

// dataCompatible: neither side writes a value the other reads or writes.
func (a *Access) dataCompatible(other *Access) bool {
	return a.writes.IntersectionCardinality(other.dataTouched()) == 0 &&
		other.writes.IntersectionCardinality(a.dataTouched()) == 0
}

// structuralCompatible: neither side restructures a component the other touches in any way.
func (a *Access) structuralCompatible(other *Access) bool {
	return a.structural.IntersectionCardinality(other.anyTouched()) == 0 &&
		other.structural.IntersectionCardinality(a.anyTouched()) == 0
}

func (a *Access) resourcesCompatible(other *Access) bool {
	return a.resWrites.IntersectionCardinality(other.resReads.Union(other.resWrites)) == 0 &&
		other.resWrites.IntersectionCardinality(a.resReads.Union(a.resWrites)) == 0
}

// ConflictsWith reports whether a and other may not run at the same time.
// Shared reads never conflict; archetypal dependencies conflict only with structural changes.
func (a *Access) ConflictsWith(other *Access) bool {
	if a.exclusive || other.exclusive {
		return true
	}
	return !a.dataCompatible(other) || !a.structuralCompatible(other) || !a.resourcesCompatible(other)
}

// Conflicts lists the ids on which a and other conflict, for diagnostics.
// It is empty for exclusive conflicts.
func (a *Access) Conflicts(other *Access) []ComponentId {
	set := bitset.New(0)
	set.InPlaceUnion(a.writes.Intersection(other.dataTouched()))
	set.InPlaceUnion(other.writes.Intersection(a.dataTouched()))
	set.InPlaceUnion(a.structural.Intersection(other.anyTouched()))
	set.InPlaceUnion(other.structural.Intersection(a.anyTouched()))
	set.InPlaceUnion(a.resWrites.Intersection(other.resReads.Union(other.resWrites)))
	set.InPlaceUnion(other.resWrites.Intersection(a.resReads.Union(a.resWrites)))

	var out []ComponentId
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		out = append(out, ComponentId(i))
	}
	return out
}

type filterSet struct {
	with    *bitset.BitSet
	without *bitset.BitSet
}

func newFilterSet() filterSet {
	return filterSet{with: bitset.New(0), without: bitset.New(0)}
}

func (f filterSet) clone() filterSet {
	return filterSet{with: f.with.Clone(), without: f.without.Clone()}
}

// isRuledOutBy: no archetype can match both f and other.
func (f filterSet) isRuledOutBy(other filterSet) bool {
	return f.with.IntersectionCardinality(other.without) > 0 ||
		f.without.IntersectionCardinality(other.with) > 0
}

// FilteredAccess is an Access plus the archetype filter of the query that produced it,
// kept in disjunctive normal form (an OR of with/without conjunctions).
type FilteredAccess struct {
	access  *Access
	filters []filterSet
}

// NewFilteredAccess creates an access that matches every archetype.
func NewFilteredAccess() *FilteredAccess {
	return &FilteredAccess{
		access:  NewAccess(),
		filters: []filterSet{newFilterSet()},
	}
}

// Access returns the unfiltered access.
func (f *FilteredAccess) Access() *Access { return f.access }

// Declare forwards to the underlying Access.
func (f *FilteredAccess) Declare(id ComponentId, mode AccessMode) error {
	return f.access.Declare(id, mode)
}

// AndWith requires id to be present in every filter conjunction.
func (f *FilteredAccess) AndWith(id ComponentId) {
	for _, fs := range f.filters {
		fs.with.Set(uint(id))
	}
}

// AndWithout requires id to be absent in every filter conjunction.
func (f *FilteredAccess) AndWithout(id ComponentId) {
	for _, fs := range f.filters {
		fs.without.Set(uint(id))
	}
}

// AppendOr adds other's conjunctions as alternatives and merges its access.
func (f *FilteredAccess) AppendOr(other *FilteredAccess) {
	for _, fs := range other.filters {
		f.filters = append(f.filters, fs.clone())
	}
	f.access.Extend(other.access)
}

// IsCompatible reports whether f and other can be active at the same time.
// Component value conflicts are forgiven when the filters prove the matched
// archetypes disjoint; resource, structural and exclusive conflicts never are.
func (f *FilteredAccess) IsCompatible(other *FilteredAccess) bool {
	a, b := f.access, other.access
	if a.exclusive || b.exclusive {
		return false
	}
	if !a.resourcesCompatible(b) || !a.structuralCompatible(b) {
		return false
	}
	if a.dataCompatible(b) {
		return true
	}
	for _, fs := range f.filters {
		for _, ofs := range other.filters {
			if !fs.isRuledOutBy(ofs) {
				return false
			}
		}
	}
	return true
}

// FilteredAccessSet is the combined access of every param of one system.
type FilteredAccessSet struct {
	combined *Access
	filtered []*FilteredAccess
}

// NewFilteredAccessSet creates an empty set.
func NewFilteredAccessSet() *FilteredAccessSet {
	return &FilteredAccessSet{combined: NewAccess()}
}

// Combined returns the union of every member access.
func (s *FilteredAccessSet) Combined() *Access { return s.combined }

// Add appends f after checking it against every member. A conflict means the
// system's own params contradict each other.
func (s *FilteredAccessSet) Add(f *FilteredAccess) error {
	for _, existing := range s.filtered {
		if !existing.IsCompatible(f) {
			ids := existing.access.Conflicts(f.access)
			return eris.Wrapf(ErrSelfConflict, "conflicting ids %v", ids)
		}
	}
	s.Merge(f)
	return nil
}

// Merge appends f without checks.
func (s *FilteredAccessSet) Merge(f *FilteredAccess) {
	s.filtered = append(s.filtered, f)
	s.combined.Extend(f.access)
}

// IsCompatible reports whether the systems owning s and other may run concurrently.
func (s *FilteredAccessSet) IsCompatible(other *FilteredAccessSet) bool {
	a, b := s.combined, other.combined
	if a.exclusive || b.exclusive {
		return false
	}
	if !a.resourcesCompatible(b) || !a.structuralCompatible(b) {
		return false
	}
	if a.dataCompatible(b) {
		return true
	}
	for _, fa := range s.filtered {
		for _, fb := range other.filtered {
			if !fa.IsCompatible(fb) {
				return false
			}
		}
	}
	return true
}

// ConflictsWith is the negation of IsCompatible.
func (s *FilteredAccessSet) ConflictsWith(other *FilteredAccessSet) bool {
	return !s.IsCompatible(other)
}

// Conflicts lists the ids the two sets conflict on.
func (s *FilteredAccessSet) Conflicts(other *FilteredAccessSet) []ComponentId {
	if s.IsCompatible(other) {
		return nil
	}
	return s.combined.Conflicts(other.combined)
}

// PartitionCompatible greedily groups descriptors into waves of pairwise
// compatible members, preserving input order inside each wave.
func PartitionCompatible(sets []*FilteredAccessSet) [][]int {
	var waves [][]int
	remaining := make([]int, len(sets))
	for i := range sets {
		remaining[i] = i
	}

	for len(remaining) > 0 {
		var wave, next []int
		for _, idx := range remaining {
			fits := true
			for _, member := range wave {
				if sets[idx].ConflictsWith(sets[member]) {
					fits = false
					break
				}
			}
			if fits {
				wave = append(wave, idx)
			} else {
				next = append(next, idx)
			}
		}
		waves = append(waves, wave)
		remaining = slices.Clip(next)
	}
	return waves
}
