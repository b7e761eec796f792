package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gantry-io/gantry/internal/model"
)

func (q queries) InsertEdge(ctx context.Context, blockingID, blockedID int64) (model.Edge, error) {
	edge := model.Edge{
		BlockingID: blockingID,
		BlockedID:  blockedID,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO dependencies (blocking_id, blocked_id, created_at) VALUES (?, ?, ?)`,
		edge.BlockingID, edge.BlockedID, edge.CreatedAt)
	if err != nil {
		return model.Edge{}, fmt.Errorf("insert edge %d->%d: %w", blockingID, blockedID, err)
	}
	return edge, nil
}

// DeleteEdge reports whether the edge existed.
func (q queries) DeleteEdge(ctx context.Context, blockingID, blockedID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM dependencies WHERE blocking_id = ? AND blocked_id = ?`,
		blockingID, blockedID)
	if err != nil {
		return false, fmt.Errorf("delete edge %d->%d: %w", blockingID, blockedID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete edge rows: %w", err)
	}
	return n > 0, nil
}

func (q queries) EdgeExists(ctx context.Context, blockingID, blockedID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM dependencies WHERE blocking_id = ? AND blocked_id = ?)`,
		blockingID, blockedID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("edge exists %d->%d: %w", blockingID, blockedID, err)
	}
	return exists, nil
}

// ProjectEdges returns every dependency edge between tasks of one project,
// the snapshot the cycle check traverses.
func (q queries) ProjectEdges(ctx context.Context, projectID int64) ([]model.Edge, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT d.blocking_id, d.blocked_id, d.created_at
		FROM dependencies d
		JOIN tasks t ON t.id = d.blocking_id
		WHERE t.project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("project edges %d: %w", projectID, err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.BlockingID, &e.BlockedID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ListBlocking returns the tasks that block the given task.
func (q queries) ListBlocking(ctx context.Context, taskID int64) ([]model.Task, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+taskColumnsT+` FROM tasks t
		JOIN dependencies d ON d.blocking_id = t.id
		WHERE d.blocked_id = ? ORDER BY t.id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list blocking of %d: %w", taskID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListBlocked returns the tasks the given task blocks.
func (q queries) ListBlocked(ctx context.Context, taskID int64) ([]model.Task, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+taskColumnsT+` FROM tasks t
		JOIN dependencies d ON d.blocked_id = t.id
		WHERE d.blocking_id = ? ORDER BY t.id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list blocked by %d: %w", taskID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// HasOpenBlockers reports whether any open task blocks the given task.
func (q queries) HasOpenBlockers(ctx context.Context, taskID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN tasks b ON b.id = d.blocking_id
			WHERE d.blocked_id = ? AND b.status NOT IN (?, ?))`,
		taskID, model.StatusDone, model.StatusNotNeeded).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("open blockers of %d: %w", taskID, err)
	}
	return exists, nil
}
