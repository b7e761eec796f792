package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gantry-io/gantry/internal/model"
)

// InsertEvent appends one audit record. The timestamp is assigned here so
// every event carries store wall-clock time; ordering queries use the row id,
// which is monotonic within the log.
func (q queries) InsertEvent(ctx context.Context, ev *model.Event) error {
	ev.CreatedAt = time.Now().UTC()

	var metadata any
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		metadata = string(data)
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO events (task_id, type, field, old_value, new_value, author_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.TaskID, ev.Type, ev.Field, ev.OldValue, ev.NewValue, ev.AuthorID, metadata, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert event id: %w", err)
	}
	ev.ID = id
	return nil
}

// EventFilter narrows event queries. Limit 0 means the default page size.
type EventFilter struct {
	Type   *model.EventType
	Limit  int
	Offset int
}

const defaultEventPageSize = 50

// TaskEvents returns one reverse-chronological page of a task's events plus
// the unpaginated total.
func (q queries) TaskEvents(ctx context.Context, taskID int64, f EventFilter) (model.EventPage, error) {
	return q.eventPage(ctx, "e.task_id = ?", []any{taskID}, f)
}

// ProjectEvents returns one reverse-chronological page of events across all
// tasks of a project plus the unpaginated total.
func (q queries) ProjectEvents(ctx context.Context, projectID int64, f EventFilter) (model.EventPage, error) {
	return q.eventPage(ctx,
		"e.task_id IN (SELECT id FROM tasks WHERE project_id = ?)",
		[]any{projectID}, f)
}

func (q queries) eventPage(ctx context.Context, scope string, scopeArgs []any, f EventFilter) (model.EventPage, error) {
	conds := []string{scope}
	args := append([]any{}, scopeArgs...)
	if f.Type != nil {
		conds = append(conds, "e.type = ?")
		args = append(args, *f.Type)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var page model.EventPage
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events e`+where, args...).Scan(&page.TotalCount)
	if err != nil {
		return page, fmt.Errorf("count events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventPageSize
	}
	args = append(args, limit, f.Offset)

	rows, err := q.db.QueryContext(ctx, `
		SELECT e.id, e.task_id, e.type, e.field, e.old_value, e.new_value,
			e.author_id, e.metadata, e.created_at
		FROM events e`+where+`
		ORDER BY e.id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return page, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return page, fmt.Errorf("scan event: %w", err)
		}
		page.Events = append(page.Events, *ev)
	}
	return page, rows.Err()
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var ev model.Event
	var field, oldVal, newVal, metadata sql.NullString
	var author sql.NullInt64

	err := row.Scan(&ev.ID, &ev.TaskID, &ev.Type, &field, &oldVal, &newVal,
		&author, &metadata, &ev.CreatedAt)
	if err != nil {
		return nil, err
	}
	if field.Valid {
		ev.Field = &field.String
	}
	if oldVal.Valid {
		ev.OldValue = &oldVal.String
	}
	if newVal.Valid {
		ev.NewValue = &newVal.String
	}
	ev.AuthorID = nullableInt(author)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return &ev, nil
}
