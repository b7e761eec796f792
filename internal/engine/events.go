package engine

import (
	"context"

	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

// EventQuery narrows an event listing. Type empty means all types; Limit 0
// means the store's default page size.
type EventQuery struct {
	Type   string
	Limit  int
	Offset int
}

func (q EventQuery) filter() (store.EventFilter, error) {
	f := store.EventFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Type != "" {
		et, ok := model.ParseEventType(q.Type)
		if !ok {
			return f, validation("type", "unknown event type %q", q.Type)
		}
		f.Type = &et
	}
	return f, nil
}

// TaskEvents returns one page of a task's audit trail, newest first.
func (e *Engine) TaskEvents(ctx context.Context, taskID int64, q EventQuery) (model.EventPage, error) {
	f, err := q.filter()
	if err != nil {
		return model.EventPage{}, err
	}
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return model.EventPage{}, err
	}
	if task == nil {
		return model.EventPage{}, notFound("task %d not found", taskID)
	}
	return e.store.TaskEvents(ctx, taskID, f)
}

// ProjectEvents returns one page of a project's audit trail across all its
// tasks, newest first.
func (e *Engine) ProjectEvents(ctx context.Context, projectID int64, q EventQuery) (model.EventPage, error) {
	f, err := q.filter()
	if err != nil {
		return model.EventPage{}, err
	}
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return model.EventPage{}, err
	}
	if project == nil {
		return model.EventPage{}, notFound("project %d not found", projectID)
	}
	return e.store.ProjectEvents(ctx, projectID, f)
}
