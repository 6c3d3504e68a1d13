package ecs

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SystemSet labels a group of systems. A set without a parent is a stage: stages
// run one after another with a sync point in between.
type SystemSet string

// DefaultSet is the stage systems are registered in when no set is given.
const DefaultSet SystemSet = "Update"

// SystemOption configures one registered system.
type SystemOption func(*systemConfig)

type systemConfig struct {
	name          string
	set           SystemSet
	before        []string
	after         []string
	conditions    []Condition
	ambiguousWith []string
}

// Named overrides the name a system is registered under (its type name by default).
func Named(name string) SystemOption {
	return func(c *systemConfig) { c.name = name }
}

// InSet places the system in set. A system belongs to exactly one set.
func InSet(set SystemSet) SystemOption {
	return func(c *systemConfig) { c.set = set }
}

// Before orders the system before the system or set named label.
func Before[L ~string](label L) SystemOption {
	return func(c *systemConfig) { c.before = append(c.before, string(label)) }
}

// After orders the system after the system or set named label.
func After[L ~string](label L) SystemOption {
	return func(c *systemConfig) { c.after = append(c.after, string(label)) }
}

// RunIf gates the system on cond. Multiple conditions must all hold.
func RunIf(cond Condition) SystemOption {
	return func(c *systemConfig) { c.conditions = append(c.conditions, cond) }
}

// AmbiguousWith silences ambiguity reports between this system and the system or set named label.
func AmbiguousWith[L ~string](label L) SystemOption {
	return func(c *systemConfig) { c.ambiguousWith = append(c.ambiguousWith, string(label)) }
}

// SetOption configures a SystemSet.
type SetOption func(*setConfig)

type setConfig struct {
	parent     SystemSet
	before     []string
	after      []string
	conditions []Condition
}

// SetIn nests the set inside parent. Nested sets share their stage's sync points.
func SetIn(parent SystemSet) SetOption {
	return func(c *setConfig) { c.parent = parent }
}

// SetBefore orders every system of the set before label.
func SetBefore[L ~string](label L) SetOption {
	return func(c *setConfig) { c.before = append(c.before, string(label)) }
}

// SetAfter orders every system of the set after label.
func SetAfter[L ~string](label L) SetOption {
	return func(c *setConfig) { c.after = append(c.after, string(label)) }
}

// SetRunIf gates every system of the set on cond, evaluated when the stage starts.
func SetRunIf(cond Condition) SetOption {
	return func(c *setConfig) { c.conditions = append(c.conditions, cond) }
}

// AmbiguityDetection selects what Build does with conflicting systems that have no
// explicit ordering between them.
type AmbiguityDetection uint8

const (
	AmbiguityIgnore AmbiguityDetection = iota
	AmbiguityWarn
	AmbiguityError
)

// Ambiguity is a pair of conflicting systems whose relative order was only fixed
// by registration order.
type Ambiguity struct {
	First      string
	Second     string
	Components []string
}

type setNode struct {
	name   SystemSet
	config setConfig
	order  int
}

type systemNode struct {
	index     int
	name      string
	system    System
	config    systemConfig
	access    *FilteredAccessSet
	preparers []paramPreparer
	exclusive bool
	sync      bool
	commands  *Commands
	stats     *systemStatsInternal

	// chain is the node's set followed by its ancestors, ending with its stage.
	chain []SystemSet
}

type compiledStage struct {
	set SystemSet
	// nodes in topological order; preds, succs and waves index into it.
	nodes []*systemNode
	preds [][]int
	succs [][]int
	waves [][]int
	// sets lists the stage and its nested sets, parents before children.
	sets []SystemSet
}

type compiledSchedule struct {
	stages      []*compiledStage
	ambiguities []Ambiguity
}

type scheduleBuilder struct {
	world    *World
	log      *zap.Logger
	level    AmbiguityDetection
	nodes    []*systemNode
	sets     map[SystemSet]*setNode
	setOrder []SystemSet

	byName map[string]*systemNode
	chains map[SystemSet][]SystemSet
}

func (b *scheduleBuilder) ensureSet(name SystemSet) *setNode {
	if s, ok := b.sets[name]; ok {
		return s
	}
	s := &setNode{name: name, order: len(b.setOrder)}
	b.sets[name] = s
	b.setOrder = append(b.setOrder, name)
	return s
}

// resolveChains computes the ancestor chain of every set and rejects parent cycles.
func (b *scheduleBuilder) resolveChains() error {
	for _, n := range b.nodes {
		b.ensureSet(n.config.set)
	}
	for _, name := range slices.Clone(b.setOrder) {
		if parent := b.sets[name].config.parent; parent != "" {
			b.ensureSet(parent)
		}
	}

	b.chains = make(map[SystemSet][]SystemSet, len(b.sets))
	for _, name := range b.setOrder {
		var chain []SystemSet
		for cur := name; cur != ""; cur = b.sets[cur].config.parent {
			if slices.Contains(chain, cur) {
				return eris.Wrapf(ErrScheduleCycle, "set %s is nested in itself", cur)
			}
			chain = append(chain, cur)
		}
		b.chains[name] = chain
	}
	for _, n := range b.nodes {
		n.chain = b.chains[n.config.set]
	}
	return nil
}

func stageOf(chain []SystemSet) SystemSet {
	return chain[len(chain)-1]
}

// members resolves a label to the systems it covers.
func (b *scheduleBuilder) members(label string) ([]*systemNode, SystemSet, error) {
	if n, ok := b.byName[label]; ok {
		return []*systemNode{n}, stageOf(n.chain), nil
	}
	set := SystemSet(label)
	chain, ok := b.chains[set]
	if !ok {
		return nil, "", eris.Wrapf(ErrUnknownLabel, "%q", label)
	}
	var out []*systemNode
	for _, n := range b.nodes {
		if slices.Contains(n.chain, set) {
			out = append(out, n)
		}
	}
	return out, stageOf(chain), nil
}

type constraint struct {
	before, after string
}

func (b *scheduleBuilder) constraints() []constraint {
	var out []constraint
	for _, n := range b.nodes {
		for _, l := range n.config.before {
			out = append(out, constraint{before: n.name, after: l})
		}
		for _, l := range n.config.after {
			out = append(out, constraint{before: l, after: n.name})
		}
	}
	for _, name := range b.setOrder {
		s := b.sets[name]
		for _, l := range s.config.before {
			out = append(out, constraint{before: string(name), after: l})
		}
		for _, l := range s.config.after {
			out = append(out, constraint{before: l, after: string(name)})
		}
	}
	return out
}

// topoSort orders 0..n-1 along succs, breaking ties by index. ok is false on a cycle.
func topoSort(n int, succs [][]int) ([]int, bool) {
	indegree := make([]int, n)
	for _, ss := range succs {
		for _, s := range ss {
			indegree[s]++
		}
	}
	var ready, order []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		slices.Sort(ready)
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, s := range succs[cur] {
			indegree[s]--
			if indegree[s] == 0 {
				ready = append(ready, s)
			}
		}
	}
	return order, len(order) == n
}

func addEdge(succs [][]int, from, to int) {
	if !slices.Contains(succs[from], to) {
		succs[from] = append(succs[from], to)
	}
}

func (b *scheduleBuilder) build() (*compiledSchedule, error) {
	b.byName = make(map[string]*systemNode, len(b.nodes))
	for _, n := range b.nodes {
		if _, dup := b.byName[n.name]; dup {
			return nil, eris.Wrapf(ErrDuplicateSystem, "%q", n.name)
		}
		if _, clash := b.sets[SystemSet(n.name)]; clash {
			return nil, eris.Wrapf(ErrDuplicateSystem, "%q names both a system and a set", n.name)
		}
		b.byName[n.name] = n
	}
	if err := b.resolveChains(); err != nil {
		return nil, err
	}

	// stages in configuration order
	var stageNames []SystemSet
	stageIdx := make(map[SystemSet]int)
	for _, name := range b.setOrder {
		if b.sets[name].config.parent == "" {
			stageIdx[name] = len(stageNames)
			stageNames = append(stageNames, name)
		}
	}
	stageSuccs := make([][]int, len(stageNames))
	nodeSuccs := make([][]int, len(b.nodes))

	for _, c := range b.constraints() {
		before, beforeStage, err := b.members(c.before)
		if err != nil {
			return nil, err
		}
		after, afterStage, err := b.members(c.after)
		if err != nil {
			return nil, err
		}
		if beforeStage != afterStage {
			addEdge(stageSuccs, stageIdx[beforeStage], stageIdx[afterStage])
			continue
		}
		for _, x := range before {
			for _, y := range after {
				if x == y {
					return nil, eris.Wrapf(ErrScheduleCycle, "%s is ordered relative to itself (%s before %s)", x.name, c.before, c.after)
				}
				addEdge(nodeSuccs, x.index, y.index)
			}
		}
	}

	stageOrder, ok := topoSort(len(stageNames), stageSuccs)
	if !ok {
		return nil, eris.Wrapf(ErrScheduleCycle, "between stages %v", stageNames)
	}

	compiled := &compiledSchedule{}
	for _, si := range stageOrder {
		stage, err := b.buildStage(stageNames[si], nodeSuccs, compiled)
		if err != nil {
			return nil, err
		}
		compiled.stages = append(compiled.stages, stage)
	}

	b.log.Debug("schedule built",
		zap.Int("systems", len(b.nodes)),
		zap.Int("stages", len(compiled.stages)),
		zap.Int("ambiguities", len(compiled.ambiguities)))
	return compiled, nil
}

func (b *scheduleBuilder) ambiguityAllowed(x, y *systemNode) bool {
	if x.sync || y.sync {
		return true
	}
	allows := func(a, other *systemNode) bool {
		for _, l := range a.config.ambiguousWith {
			if l == other.name || slices.Contains(other.chain, SystemSet(l)) {
				return true
			}
		}
		return false
	}
	return allows(x, y) || allows(y, x)
}

func (b *scheduleBuilder) componentNames(ids []ComponentId) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = b.world.registry.Info(id).Name()
	}
	return names
}

func (b *scheduleBuilder) buildStage(name SystemSet, globalSuccs [][]int, compiled *compiledSchedule) (*compiledStage, error) {
	var nodes []*systemNode
	local := make(map[int]int)
	for _, n := range b.nodes {
		if stageOf(n.chain) == name {
			local[n.index] = len(nodes)
			nodes = append(nodes, n)
		}
	}

	succs := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, g := range globalSuccs[n.index] {
			addEdge(succs, i, local[g])
		}
	}

	order, ok := topoSort(len(nodes), succs)
	if !ok {
		return nil, eris.Wrapf(ErrScheduleCycle, "in stage %s", name)
	}

	// transitive reachability, filled in reverse topological order
	reach := make([]*bitset.BitSet, len(nodes))
	for i := len(order) - 1; i >= 0; i-- {
		v := order[i]
		reach[v] = bitset.New(uint(len(nodes)))
		for _, s := range succs[v] {
			reach[v].Set(uint(s))
			reach[v].InPlaceUnion(reach[s])
		}
	}

	// conflicting pairs without an explicit path between them are ambiguous
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			x, y := nodes[i], nodes[j]
			if x.access.IsCompatible(y.access) || b.ambiguityAllowed(x, y) {
				continue
			}
			if reach[i].Test(uint(j)) || reach[j].Test(uint(i)) {
				continue
			}
			amb := Ambiguity{
				First:      x.name,
				Second:     y.name,
				Components: b.componentNames(x.access.Conflicts(y.access)),
			}
			compiled.ambiguities = append(compiled.ambiguities, amb)
			switch b.level {
			case AmbiguityWarn:
				b.log.Warn("ambiguous system order",
					zap.String("first", amb.First),
					zap.String("second", amb.Second),
					zap.Strings("components", amb.Components))
			case AmbiguityError:
				return nil, eris.Wrapf(ErrAmbiguousSystems, "%s and %s (components %v)", amb.First, amb.Second, amb.Components)
			}
		}
	}

	// then order whatever still has no path by registration
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			if nodes[i].access.IsCompatible(nodes[j].access) {
				continue
			}
			if reach[i].Test(uint(j)) || reach[j].Test(uint(i)) {
				continue
			}
			addEdge(succs, i, j)
			for k := range nodes {
				if k == i || reach[k].Test(uint(i)) {
					reach[k].Set(uint(j))
					reach[k].InPlaceUnion(reach[j])
				}
			}
		}
	}

	order, _ = topoSort(len(nodes), succs)
	pos := make([]int, len(nodes))
	for p, v := range order {
		pos[v] = p
	}

	stage := &compiledStage{
		set:   name,
		nodes: make([]*systemNode, len(nodes)),
		preds: make([][]int, len(nodes)),
		succs: make([][]int, len(nodes)),
	}
	for v, ss := range succs {
		stage.nodes[pos[v]] = nodes[v]
		for _, s := range ss {
			stage.succs[pos[v]] = append(stage.succs[pos[v]], pos[s])
			stage.preds[pos[s]] = append(stage.preds[pos[s]], pos[v])
		}
	}

	// level of a node is one past the deepest predecessor; each level is then
	// split into waves of mutually compatible systems
	level := make([]int, len(nodes))
	var levels [][]int
	for v := range stage.nodes {
		for _, p := range stage.preds[v] {
			level[v] = max(level[v], level[p]+1)
		}
		for len(levels) <= level[v] {
			levels = append(levels, nil)
		}
		levels[level[v]] = append(levels[level[v]], v)
	}
	for _, members := range levels {
		sets := make([]*FilteredAccessSet, len(members))
		for i, v := range members {
			sets[i] = stage.nodes[v].access
		}
		for _, group := range PartitionCompatible(sets) {
			wave := make([]int, len(group))
			for i, g := range group {
				wave[i] = members[g]
			}
			stage.waves = append(stage.waves, wave)
		}
	}

	for _, setName := range b.setOrder {
		if stageOf(b.chains[setName]) == name {
			stage.sets = append(stage.sets, setName)
		}
	}
	// parents first
	slices.SortStableFunc(stage.sets, func(a, c SystemSet) int {
		return len(b.chains[a]) - len(b.chains[c])
	})
	return stage, nil
}
