package ecs

type singleThreadedExecutor struct {
	policy ApplyPolicy
}

func (e *singleThreadedExecutor) runStage(rc *runContext, stage *compiledStage, enabled func(*systemNode) bool) error {
	for _, wave := range stage.waves {
		for _, idx := range wave {
			node := stage.nodes[idx]
			if !enabled(node) {
				rc.setState(node, StateSkipped)
				continue
			}
			if node.sync {
				rc.applyPending(stage)
				rc.setState(node, StateApplied)
				continue
			}

			ran, duration, err := rc.runSystem(node)
			if err != nil {
				rc.fail(node)
				rc.applyPending(stage)
				return err
			}
			if !ran {
				continue
			}
			rc.finish(node, duration)
			if e.policy == ApplyImmediate && rc.state(node) == StateBufferPending {
				rc.apply(node)
			}
		}
		// dependents in later waves see every buffer of this one
		rc.applyPending(stage)
	}
	return nil
}
