package ecs

import (
	"time"

	"golang.org/x/sync/errgroup"
)

// parallelExecutor runs a stage wave by wave on a fixed pool of workers. Systems of
// one wave never conflict, so they all run at once; the coordinator applies the
// wave's buffers once the last of them finishes, before any later wave starts.
type parallelExecutor struct {
	workers int
}

type systemResult struct {
	index    int
	ran      bool
	duration time.Duration
	err      error
}

func (e *parallelExecutor) runStage(rc *runContext, stage *compiledStage, enabled func(*systemNode) bool) error {
	n := len(stage.nodes)
	if n == 0 {
		return nil
	}
	workers := max(1, min(e.workers, n))

	tasks := make(chan int)
	results := make(chan systemResult, n)
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for idx := range tasks {
				ran, duration, err := rc.runSystem(stage.nodes[idx])
				results <- systemResult{index: idx, ran: ran, duration: duration, err: err}
			}
			return nil
		})
	}

	var failure error
	for _, wave := range stage.waves {
		if failure != nil {
			break
		}

		inflight := 0
		queue := wave
		for (failure == nil && len(queue) > 0) || inflight > 0 {
			// dispatch as many of the wave as there are free workers
			for failure == nil && len(queue) > 0 && inflight < workers {
				idx := queue[0]
				queue = queue[1:]
				node := stage.nodes[idx]
				switch {
				case !enabled(node):
					rc.setState(node, StateSkipped)
				case node.sync:
					// a sync point is alone in its wave
					rc.applyPending(stage)
					rc.setState(node, StateApplied)
				default:
					tasks <- idx
					inflight++
				}
			}
			if inflight == 0 {
				continue
			}

			res := <-results
			inflight--
			node := stage.nodes[res.index]
			switch {
			case res.err != nil:
				rc.fail(node)
				if failure == nil {
					failure = res.err
				}
			case res.ran:
				rc.finish(node, res.duration)
			}
		}
		rc.applyPending(stage)
	}

	close(tasks)
	_ = g.Wait()
	return failure
}
