package ecs

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SchedulerStats provides statistics about scheduler execution.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Runs            int64
	Stages          int
	Waves           int
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system.
type SystemStats struct {
	Name           string
	Set            SystemSet
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	name           string
	executionCount int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

func (s *systemStatsInternal) record(duration time.Duration) {
	s.executionCount++
	s.lastDuration = duration
	s.totalDuration += duration
	if duration < s.minDuration {
		s.minDuration = duration
	}
	if duration > s.maxDuration {
		s.maxDuration = duration
	}
}

// Scheduler orders systems into stages, derives their access from their params and
// runs them with the configured executor.
type Scheduler struct {
	world    *World
	log      *zap.Logger
	nodes    []*systemNode
	sets     map[SystemSet]*setNode
	setOrder []SystemSet

	kind      ExecutorKind
	workers   int
	policy    ApplyPolicy
	ambiguity AmbiguityDetection
	executor  executor

	compiled *compiledSchedule
	dirty    bool
	syncs    int

	mu      sync.Mutex // guards stats, runs and lastRun
	runs    int64
	lastRun *RunReport
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithExecutor selects the executor. The default is SingleThreaded.
func WithExecutor(kind ExecutorKind) SchedulerOption {
	return func(s *Scheduler) { s.kind = kind }
}

// WithWorkers sets the worker pool size of the MultiThreaded executor.
// The default is GOMAXPROCS.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) { s.workers = n }
}

// WithApplyPolicy sets when the SingleThreaded executor applies command buffers.
func WithApplyPolicy(policy ApplyPolicy) SchedulerOption {
	return func(s *Scheduler) { s.policy = policy }
}

// WithAmbiguityDetection sets how Build treats conflicting systems without an
// explicit order. The default is AmbiguityWarn.
func WithAmbiguityDetection(level AmbiguityDetection) SchedulerOption {
	return func(s *Scheduler) { s.ambiguity = level }
}

// WithSchedulerLogger replaces the logger inherited from the World.
func WithSchedulerLogger(log *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// NewScheduler creates a new scheduler for the given world.
func NewScheduler(world *World, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		world:     world,
		log:       world.log.Named("scheduler"),
		sets:      make(map[SystemSet]*setNode),
		workers:   runtime.GOMAXPROCS(0),
		ambiguity: AmbiguityWarn,
		dirty:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sets[DefaultSet] = &setNode{name: DefaultSet}
	s.setOrder = append(s.setOrder, DefaultSet)

	switch s.kind {
	case MultiThreaded:
		s.executor = &parallelExecutor{workers: s.workers}
	default:
		s.executor = &singleThreadedExecutor{policy: s.policy}
	}
	return s
}

// World returns the scheduler's world.
func (s *Scheduler) World() *World {
	return s.world
}

// Register adds a system to the scheduler and initializes its param fields.
// The error reports params that are malformed or conflict with each other.
func (s *Scheduler) Register(system System, opts ...SystemOption) error {
	cfg := systemConfig{name: systemTypeName(system), set: DefaultSet}
	for _, opt := range opts {
		opt(&cfg)
	}

	node := &systemNode{
		index:    len(s.nodes),
		name:     cfg.name,
		system:   system,
		config:   cfg,
		access:   NewFilteredAccessSet(),
		commands: NewCommands(s.world),
	}
	if _, ok := system.(*applyDeferred); ok {
		node.sync = true
		s.syncs++
		if node.name == "ApplyDeferred" && s.syncs > 1 {
			node.name = node.name + "#" + strconv.Itoa(s.syncs)
		}
	}
	node.stats = &systemStatsInternal{
		name:        node.name,
		minDuration: time.Duration(1<<63 - 1),
	}

	accesses, preparers, err := initSystemParams(s.world, system)
	if err != nil {
		return eris.Wrapf(err, "system %s", node.name)
	}
	node.preparers = preparers
	for _, access := range accesses {
		if err := node.access.Add(access); err != nil {
			return eris.Wrapf(err, "system %s", node.name)
		}
	}
	if node.sync {
		exclusive := NewFilteredAccess()
		exclusive.access.SetExclusive()
		node.access.Merge(exclusive)
	}
	// conditions are evaluated right before the system on the same worker
	for _, cond := range cfg.conditions {
		access, err := buildAccess(s.world, cond.decls)
		if err != nil {
			return eris.Wrapf(err, "system %s condition %s", node.name, cond.name)
		}
		node.access.Merge(access)
	}
	node.exclusive = node.access.Combined().IsExclusive()

	s.nodes = append(s.nodes, node)
	s.dirty = true
	return nil
}

// ConfigureSet creates or updates a system set.
func (s *Scheduler) ConfigureSet(set SystemSet, opts ...SetOption) {
	node, ok := s.sets[set]
	if !ok {
		node = &setNode{name: set, order: len(s.setOrder)}
		s.sets[set] = node
		s.setOrder = append(s.setOrder, set)
	}
	for _, opt := range opts {
		opt(&node.config)
	}
	s.dirty = true
}

// Build validates the schedule and computes the execution graph. Once calls it
// automatically after registration changes.
func (s *Scheduler) Build() error {
	b := &scheduleBuilder{
		world:    s.world,
		log:      s.log,
		level:    s.ambiguity,
		nodes:    s.nodes,
		sets:     s.sets,
		setOrder: s.setOrder,
	}
	compiled, err := b.build()
	// sets referenced but never configured are now known
	s.setOrder = b.setOrder
	if err != nil {
		return err
	}
	s.compiled = compiled
	s.dirty = false
	return nil
}

// Stages returns the stage order of the built schedule.
func (s *Scheduler) Stages() []SystemSet {
	if s.compiled == nil {
		return nil
	}
	out := make([]SystemSet, len(s.compiled.stages))
	for i, stage := range s.compiled.stages {
		out[i] = stage.set
	}
	return out
}

// Waves returns the system names of the built schedule grouped into waves of
// mutually compatible systems, stage after stage.
func (s *Scheduler) Waves() [][]string {
	if s.compiled == nil {
		return nil
	}
	var out [][]string
	for _, stage := range s.compiled.stages {
		for _, wave := range stage.waves {
			names := make([]string, len(wave))
			for i, idx := range wave {
				names[i] = stage.nodes[idx].name
			}
			out = append(out, names)
		}
	}
	return out
}

// Ambiguities returns the conflicting pairs found by the last Build.
func (s *Scheduler) Ambiguities() []Ambiguity {
	if s.compiled == nil {
		return nil
	}
	return s.compiled.ambiguities
}

func (s *Scheduler) evalSets(stage *compiledStage) func(*systemNode) bool {
	enabled := make(map[SystemSet]bool, len(stage.sets))
	for _, name := range stage.sets {
		set := s.sets[name]
		ok := set.config.parent == "" || enabled[set.config.parent]
		enabled[name] = ok && evalConditions(s.world, set.config.conditions)
	}
	return func(node *systemNode) bool {
		return enabled[node.chain[0]]
	}
}

// Once executes all registered systems once with the given delta time.
// It returns the first SystemError of the run; later stages are not run then.
func (s *Scheduler) Once(dt float64) error {
	if s.dirty || s.compiled == nil {
		if err := s.Build(); err != nil {
			return err
		}
	}

	report := &RunReport{
		RunID:  uuid.New(),
		States: make(map[string]SystemState, len(s.nodes)),
	}
	for _, node := range s.nodes {
		report.States[node.name] = StatePending
	}
	rc := &runContext{
		world:   s.world,
		dt:      dt,
		runID:   report.RunID,
		log:     s.log,
		report:  report,
		statsMu: &s.mu,
	}

	start := time.Now()
	s.world.Flush()
	s.world.UpdateEvents()

	var runErr error
	for _, stage := range s.compiled.stages {
		enabled := s.evalSets(stage)
		if err := s.executor.runStage(rc, stage, enabled); err != nil {
			runErr = err
			break
		}
	}
	report.Duration = time.Since(start)
	report.Err = runErr

	s.mu.Lock()
	s.runs++
	s.lastRun = report
	s.mu.Unlock()

	if runErr != nil {
		s.log.Error("run failed", zap.Stringer("run", report.RunID), zap.Error(runErr))
	}
	return runErr
}

// Run executes all systems repeatedly at the given interval until the context is
// cancelled or a run fails. Cancellation takes effect between runs.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			if err := s.Once(dt); err != nil {
				return err
			}
		}
	}
}

// LastRun returns the report of the most recent run, or nil.
func (s *Scheduler) LastRun() *RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// GetStats returns statistics about system execution.
func (s *Scheduler) GetStats() *SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &SchedulerStats{
		SystemCount: len(s.nodes),
		Runs:        s.runs,
		Systems:     make([]SystemStats, len(s.nodes)),
	}
	if s.compiled != nil {
		stats.Stages = len(s.compiled.stages)
		for _, stage := range s.compiled.stages {
			stats.Waves += len(stage.waves)
		}
	}

	var totalExecs int64
	for i, node := range s.nodes {
		internal := node.stats
		avgDuration := time.Duration(0)
		minDuration := internal.minDuration
		if internal.executionCount > 0 {
			avgDuration = internal.totalDuration / time.Duration(internal.executionCount)
		} else {
			minDuration = 0
		}

		stats.Systems[i] = SystemStats{
			Name:           internal.name,
			Set:            node.config.set,
			ExecutionCount: internal.executionCount,
			MinDuration:    minDuration,
			MaxDuration:    internal.maxDuration,
			AvgDuration:    avgDuration,
			LastDuration:   internal.lastDuration,
			TotalDuration:  internal.totalDuration,
		}
		totalExecs += internal.executionCount
	}

	stats.TotalExecutions = totalExecs
	return stats
}
