package engine

import (
	"context"

	"github.com/gantry-io/gantry/internal/model"
)

// ComputeProgress returns the completion rollup over a task's direct
// sub-tasks. A task with no sub-tasks is 0%, not an error. The rollup is
// shallow: callers recurse themselves for multi-level aggregation.
func (e *Engine) ComputeProgress(ctx context.Context, taskID int64) (model.Progress, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return model.Progress{}, err
	}
	if task == nil {
		return model.Progress{}, notFound("task %d not found", taskID)
	}

	total, done, err := e.store.ProgressCounts(ctx, taskID)
	if err != nil {
		return model.Progress{}, err
	}

	p := model.Progress{Total: total, Completed: done}
	if total > 0 {
		p.Percentage = float64(done) / float64(total) * 100
	}
	return p, nil
}
