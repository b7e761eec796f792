package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gantry-io/gantry/internal/model"
)

const taskColumns = `id, project_id, subproject_id, parent_id, title, description,
	tag, priority, status, author_id, owner_id, due_date,
	estimated_hours, actual_hours, created_at, updated_at`

// InsertTask persists a new task and fills in its ID and timestamps.
func (q queries) InsertTask(ctx context.Context, t *model.Task) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (project_id, subproject_id, parent_id, title, description,
			tag, priority, status, author_id, owner_id, due_date,
			estimated_hours, actual_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ProjectID, t.SubprojectID, t.ParentID, t.Title, t.Description,
		t.Tag, t.Priority, t.Status, t.AuthorID, t.OwnerID, nullTime(t.DueDate),
		t.EstimatedHours, t.ActualHours, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert task id: %w", err)
	}
	t.ID = id
	return nil
}

// GetTask returns nil when the task does not exist.
func (q queries) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// UpdateTask writes every mutable column of t and bumps updated_at.
func (q queries) UpdateTask(ctx context.Context, t *model.Task) error {
	t.UpdatedAt = time.Now().UTC()
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET subproject_id = ?, parent_id = ?, title = ?, description = ?,
			tag = ?, priority = ?, status = ?, author_id = ?, owner_id = ?,
			due_date = ?, estimated_hours = ?, actual_hours = ?, updated_at = ?
		WHERE id = ?`,
		t.SubprojectID, t.ParentID, t.Title, t.Description,
		t.Tag, t.Priority, t.Status, t.AuthorID, t.OwnerID,
		nullTime(t.DueDate), t.EstimatedHours, t.ActualHours, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	return nil
}

// DeleteTask removes the task. Edges, comments, events, and descendant
// sub-tasks go with it via foreign-key cascade.
func (q queries) DeleteTask(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// ListChildren returns the direct sub-tasks of a parent.
func (q queries) ListChildren(ctx context.Context, parentID int64) ([]model.Task, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? ORDER BY id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children of %d: %w", parentID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ProgressCounts returns direct sub-task totals for the shallow progress
// rollup: all children, and children whose status is done.
func (q queries) ProgressCounts(ctx context.Context, parentID int64) (total, done int, err error) {
	err = q.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM tasks WHERE parent_id = ?`,
		model.StatusDone, parentID).Scan(&total, &done)
	if err != nil {
		return 0, 0, fmt.Errorf("progress counts for %d: %w", parentID, err)
	}
	return total, done, nil
}

// TaskFilter scopes task listings. Nil/zero fields are ignored.
// SubprojectNone selects tasks not assigned to any sub-project and wins
// over SubprojectID.
type TaskFilter struct {
	ProjectID      *int64
	SubprojectID   *int64
	SubprojectNone bool
	OwnerID        *int64
	Status         *model.Status
	Tag            *model.Tag
	Priority       *model.Priority
	Search         string
	DueBefore      *time.Time
	DueAfter       *time.Time
	Overdue        bool

	// ActionableOnly keeps tasks with an open status and no open blocking
	// task. Evaluated in SQL against current stored facts.
	ActionableOnly bool
}

func (f TaskFilter) where() (string, []any) {
	var conds []string
	var args []any

	if f.ProjectID != nil {
		conds = append(conds, "t.project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.SubprojectNone {
		conds = append(conds, "t.subproject_id IS NULL")
	} else if f.SubprojectID != nil {
		conds = append(conds, "t.subproject_id = ?")
		args = append(args, *f.SubprojectID)
	}
	if f.OwnerID != nil {
		conds = append(conds, "t.owner_id = ?")
		args = append(args, *f.OwnerID)
	}
	if f.Status != nil {
		conds = append(conds, "t.status = ?")
		args = append(args, *f.Status)
	}
	if f.Tag != nil {
		conds = append(conds, "t.tag = ?")
		args = append(args, *f.Tag)
	}
	if f.Priority != nil {
		conds = append(conds, "t.priority = ?")
		args = append(args, *f.Priority)
	}
	if f.Search != "" {
		conds = append(conds, "(t.title LIKE ? OR t.description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.DueBefore != nil {
		conds = append(conds, "t.due_date IS NOT NULL AND t.due_date <= ?")
		args = append(args, f.DueBefore.UTC())
	}
	if f.DueAfter != nil {
		conds = append(conds, "t.due_date IS NOT NULL AND t.due_date >= ?")
		args = append(args, f.DueAfter.UTC())
	}
	if f.Overdue {
		conds = append(conds, "t.due_date IS NOT NULL AND t.due_date < ? AND t.status NOT IN (?, ?)")
		args = append(args, time.Now().UTC(), model.StatusDone, model.StatusNotNeeded)
	}
	if f.ActionableOnly {
		conds = append(conds, `t.status NOT IN (?, ?) AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN tasks b ON b.id = d.blocking_id
			WHERE d.blocked_id = t.id AND b.status NOT IN (?, ?))`)
		args = append(args,
			model.StatusDone, model.StatusNotNeeded,
			model.StatusDone, model.StatusNotNeeded)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q queries) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	where, args := f.where()
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+taskColumnsT+` FROM tasks t`+where+` ORDER BY t.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

const taskColumnsT = `t.id, t.project_id, t.subproject_id, t.parent_id, t.title, t.description,
	t.tag, t.priority, t.status, t.author_id, t.owner_id, t.due_date,
	t.estimated_hours, t.actual_hours, t.created_at, t.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var subproject, parent, author, owner sql.NullInt64
	var due sql.NullTime
	var est, act sql.NullFloat64

	err := row.Scan(&t.ID, &t.ProjectID, &subproject, &parent, &t.Title, &t.Description,
		&t.Tag, &t.Priority, &t.Status, &author, &owner, &due, &est, &act,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.SubprojectID = nullableInt(subproject)
	t.ParentID = nullableInt(parent)
	t.AuthorID = nullableInt(author)
	t.OwnerID = nullableInt(owner)
	if due.Valid {
		utc := due.Time.UTC()
		t.DueDate = &utc
	}
	if est.Valid {
		t.EstimatedHours = &est.Float64
	}
	if act.Valid {
		t.ActualHours = &act.Float64
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func nullableInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
