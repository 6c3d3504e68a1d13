package ecs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ExecutorKind selects how a Scheduler runs the systems of a stage.
type ExecutorKind uint8

const (
	// SingleThreaded runs systems one at a time in topological order.
	SingleThreaded ExecutorKind = iota
	// MultiThreaded runs non-conflicting systems concurrently on a worker pool.
	MultiThreaded
)

func (k ExecutorKind) String() string {
	switch k {
	case SingleThreaded:
		return "single"
	case MultiThreaded:
		return "parallel"
	default:
		return fmt.Sprintf("ExecutorKind(%d)", k)
	}
}

// ApplyPolicy selects when the single-threaded executor applies command buffers.
type ApplyPolicy uint8

const (
	// ApplyAtBoundary applies buffers at the end of each wave, so a system always sees
	// the commands of everything ordered before it.
	ApplyAtBoundary ApplyPolicy = iota
	// ApplyImmediate applies each system's buffer as soon as it returns.
	ApplyImmediate
)

// SystemState is the progress of one system within one run.
type SystemState uint8

const (
	StatePending SystemState = iota
	StateConditionsEvaluated
	StateSkipped
	StateRan
	StateBufferPending
	StateApplied
	StateFailed
)

func (s SystemState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateConditionsEvaluated:
		return "ConditionsEvaluated"
	case StateSkipped:
		return "Skipped"
	case StateRan:
		return "Ran"
	case StateBufferPending:
		return "BufferPending"
	case StateApplied:
		return "Applied"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("SystemState(%d)", s)
	}
}

// RunReport describes one scheduler run.
type RunReport struct {
	RunID    uuid.UUID
	States   map[string]SystemState
	Duration time.Duration
	Err      error
}

// State returns the final state of the named system.
func (r *RunReport) State(name string) SystemState {
	return r.States[name]
}

type executor interface {
	runStage(rc *runContext, stage *compiledStage, enabled func(*systemNode) bool) error
}

// runContext is the per-run state shared by the executors.
type runContext struct {
	world *World
	dt    float64
	runID uuid.UUID
	log   *zap.Logger

	mu      sync.Mutex // guards report.States and node stats
	report  *RunReport
	statsMu *sync.Mutex
}

func (rc *runContext) setState(node *systemNode, state SystemState) {
	rc.mu.Lock()
	rc.report.States[node.name] = state
	rc.mu.Unlock()
}

func (rc *runContext) state(node *systemNode) SystemState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.report.States[node.name]
}

// runSystem evaluates the node's conditions and runs it. Panics are recovered into
// a SystemError. ran is false when a condition skipped the system.
func (rc *runContext) runSystem(node *systemNode) (ran bool, duration time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			ran = true
			err = &SystemError{
				System: node.name,
				RunID:  rc.runID,
				Panic:  r,
				Err:    eris.Errorf("panic: %v", r),
			}
		}
	}()

	if !evalConditions(rc.world, node.config.conditions) {
		rc.setState(node, StateSkipped)
		return false, 0, nil
	}
	rc.setState(node, StateConditionsEvaluated)

	for _, p := range node.preparers {
		p.prepareParam()
	}
	frame := &UpdateFrame{
		DeltaTime: rc.dt,
		Commands:  node.commands,
		System:    node.name,
		RunID:     rc.runID,
	}
	if node.exclusive {
		frame.world = rc.world
	}

	start := time.Now()
	execErr := node.system.Execute(frame)
	duration = time.Since(start)
	if execErr != nil {
		return true, duration, &SystemError{System: node.name, RunID: rc.runID, Err: execErr}
	}
	rc.setState(node, StateRan)
	return true, duration, nil
}

// finish records a successful run and moves the node to BufferPending or Applied.
func (rc *runContext) finish(node *systemNode, duration time.Duration) {
	rc.statsMu.Lock()
	node.stats.record(duration)
	rc.statsMu.Unlock()

	if node.commands.IsEmpty() {
		rc.setState(node, StateApplied)
	} else {
		rc.setState(node, StateBufferPending)
	}
}

// fail discards the node's buffer.
func (rc *runContext) fail(node *systemNode) {
	node.commands.Clear()
	rc.setState(node, StateFailed)
}

func (rc *runContext) apply(node *systemNode) {
	node.commands.Apply(rc.world)
	rc.setState(node, StateApplied)
}

// applyPending applies every pending buffer of the stage in stage order.
func (rc *runContext) applyPending(stage *compiledStage) {
	for _, node := range stage.nodes {
		if rc.state(node) == StateBufferPending {
			rc.apply(node)
		}
	}
}
