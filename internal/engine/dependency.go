package engine

import (
	"context"

	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

// TaskDependencies is a task's full neighborhood in the blocking graph.
type TaskDependencies struct {
	Blocking []model.Task `json:"blocking"` // tasks that must close before this one
	Blocked  []model.Task `json:"blocked"`  // tasks waiting on this one
}

// AddDependency inserts the edge "blocking must close before blocked".
// The cycle check and the insert share one IMMEDIATE transaction: the
// single-writer lock serializes concurrent insertions and the check runs
// against a consistent edge snapshot. No mutex is taken here; a lock
// acquired inside an open transaction inverts order against paths that
// lock before beginning one.
func (e *Engine) AddDependency(ctx context.Context, blockingID, blockedID int64, actorID *int64) (model.Edge, error) {
	if blockingID == blockedID {
		return model.Edge{}, newError(CodeSelfDependency, "task %d cannot block itself", blockingID)
	}

	var edge model.Edge
	err := e.mutate(ctx, func(tx *store.Tx, rec *recorder) error {
		blocking, err := tx.GetTask(ctx, blockingID)
		if err != nil {
			return err
		}
		if blocking == nil {
			return notFound("task %d not found", blockingID)
		}
		blocked, err := tx.GetTask(ctx, blockedID)
		if err != nil {
			return err
		}
		if blocked == nil {
			return notFound("task %d not found", blockedID)
		}
		if blocking.ProjectID != blocked.ProjectID {
			return newError(CodeCrossProjectReference,
				"tasks %d and %d belong to different projects", blockingID, blockedID)
		}
		rec.projectID = blocking.ProjectID

		exists, err := tx.EdgeExists(ctx, blockingID, blockedID)
		if err != nil {
			return err
		}
		if exists {
			return newError(CodeDuplicateEdge,
				"task %d already blocks task %d", blockingID, blockedID)
		}

		// The new edge would close a cycle iff the blocking task is already
		// reachable from the blocked task over existing blocks-edges.
		edges, err := tx.ProjectEdges(ctx, blocking.ProjectID)
		if err != nil {
			return err
		}
		if reachable(edges, blockedID, blockingID) {
			return newError(CodeCycleDetected,
				"task %d already blocks task %d through existing dependencies", blockedID, blockingID)
		}

		edge, err = tx.InsertEdge(ctx, blockingID, blockedID)
		if err != nil {
			return err
		}

		for _, taskID := range []int64{blockingID, blockedID} {
			ev := model.Event{
				TaskID:   taskID,
				Type:     model.EventDependencyAdded,
				AuthorID: actorID,
				Metadata: edgeMetadata(blockingID, blockedID),
			}
			if err := rec.add(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Edge{}, err
	}

	e.log.Infof("dependency_added blocking=%d blocked=%d", blockingID, blockedID)
	return edge, nil
}

// RemoveDependency deletes the edge, failing with EdgeNotFound when absent.
func (e *Engine) RemoveDependency(ctx context.Context, blockingID, blockedID int64, actorID *int64) error {
	err := e.mutate(ctx, func(tx *store.Tx, rec *recorder) error {
		blocking, err := tx.GetTask(ctx, blockingID)
		if err != nil {
			return err
		}
		if blocking == nil {
			return notFound("task %d not found", blockingID)
		}
		rec.projectID = blocking.ProjectID

		found, err := tx.DeleteEdge(ctx, blockingID, blockedID)
		if err != nil {
			return err
		}
		if !found {
			return newError(CodeEdgeNotFound,
				"task %d does not block task %d", blockingID, blockedID)
		}

		for _, taskID := range []int64{blockingID, blockedID} {
			ev := model.Event{
				TaskID:   taskID,
				Type:     model.EventDependencyRemoved,
				AuthorID: actorID,
				Metadata: edgeMetadata(blockingID, blockedID),
			}
			if err := rec.add(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Infof("dependency_removed blocking=%d blocked=%d", blockingID, blockedID)
	return nil
}

// Dependencies returns both blocking sets of a task.
func (e *Engine) Dependencies(ctx context.Context, taskID int64) (*TaskDependencies, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, notFound("task %d not found", taskID)
	}

	blocking, err := e.store.ListBlocking(ctx, taskID)
	if err != nil {
		return nil, err
	}
	blocked, err := e.store.ListBlocked(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskDependencies{Blocking: blocking, Blocked: blocked}, nil
}

// reachable walks blocks-edges breadth-first from src and reports whether
// dst is reachable. O(V+E) on the project's edge set.
func reachable(edges []model.Edge, src, dst int64) bool {
	forward := make(map[int64][]int64, len(edges))
	for _, e := range edges {
		forward[e.BlockingID] = append(forward[e.BlockingID], e.BlockedID)
	}

	visited := map[int64]bool{src: true}
	queue := []int64{src}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == dst {
			return true
		}
		for _, next := range forward[node] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

func edgeMetadata(blockingID, blockedID int64) map[string]any {
	return map[string]any{
		"blocking_id": blockingID,
		"blocked_id":  blockedID,
	}
}
