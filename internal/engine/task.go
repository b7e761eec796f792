package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gantry-io/gantry/internal/events"
	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

// CreateTaskRequest carries the fields accepted at task creation. Status
// defaults to backlog when empty.
type CreateTaskRequest struct {
	ProjectID      int64
	SubprojectID   *int64
	ParentID       *int64
	Title          string
	Description    string
	Tag            string
	Priority       string
	Status         string
	AuthorID       *int64
	OwnerID        *int64
	DueDate        *time.Time
	EstimatedHours *float64
	ActualHours    *float64
}

func (e *Engine) CreateTask(ctx context.Context, req CreateTaskRequest) (*model.TaskView, error) {
	if req.Title == "" {
		return nil, validation("title", "must not be empty")
	}
	tag, ok := model.ParseTag(req.Tag)
	if !ok {
		return nil, validation("tag", "unknown tag %q", req.Tag)
	}
	priority, ok := model.ParsePriority(req.Priority)
	if !ok {
		return nil, validation("priority", "unknown priority %q", req.Priority)
	}
	status := model.StatusBacklog
	if req.Status != "" {
		var err error
		if status, err = parseRequestedStatus(req.Status); err != nil {
			return nil, err
		}
	}

	task := &model.Task{
		ProjectID:      req.ProjectID,
		SubprojectID:   req.SubprojectID,
		ParentID:       req.ParentID,
		Title:          req.Title,
		Description:    req.Description,
		Tag:            tag,
		Priority:       priority,
		Status:         status,
		AuthorID:       req.AuthorID,
		OwnerID:        req.OwnerID,
		DueDate:        req.DueDate,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
	}

	err := e.mutate(ctx, func(tx *store.Tx, rec *recorder) error {
		rec.projectID = req.ProjectID
		project, err := tx.GetProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return notFound("project %d not found", req.ProjectID)
		}
		if err := validateTaskRefs(ctx, tx, task, nil); err != nil {
			return err
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		return rec.add(ctx, tx, model.Event{
			TaskID:   task.ID,
			Type:     model.EventCreated,
			AuthorID: req.AuthorID,
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("task_created id=%d project=%d title=%q", task.ID, task.ProjectID, task.Title)
	view := model.TaskView{Task: *task, DisplayStatus: task.Status}
	view.Actionable = !model.IsClosed(task.Status)
	return &view, nil
}

// Opt wraps an optional update field that distinguishes "absent" from
// "set to null": Set false means leave the field alone, Set true with a nil
// Value clears it.
type Opt[T any] struct {
	Set   bool
	Value *T
}

// TaskUpdate is a partial update; nil pointer fields are untouched.
type TaskUpdate struct {
	Title          *string
	Description    *string
	Tag            *string
	Priority       *string
	Status         *string
	Owner          Opt[int64]
	Parent         Opt[int64]
	Subproject     Opt[int64]
	DueDate        Opt[time.Time]
	EstimatedHours Opt[float64]
	ActualHours    Opt[float64]

	// ActorID attributes the resulting audit events.
	ActorID *int64
}

// UpdateTask applies a partial field set to a task, recording one audit
// event per changed field, all in one transaction. Owner changes through
// this path carry forced-take semantics: a differing non-null owner
// overwrites, null releases.
func (e *Engine) UpdateTask(ctx context.Context, id int64, upd TaskUpdate) (*model.TaskView, error) {
	var task *model.Task

	run := func(tx *store.Tx, rec *recorder) error {
		var err error
		task, err = tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if task == nil {
			return notFound("task %d not found", id)
		}
		rec.projectID = task.ProjectID

		changed := false

		if upd.Title != nil && *upd.Title != task.Title {
			if *upd.Title == "" {
				return validation("title", "must not be empty")
			}
			if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "title", task.Title, *upd.Title)); err != nil {
				return err
			}
			task.Title = *upd.Title
			changed = true
		}
		if upd.Description != nil && *upd.Description != task.Description {
			if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "description", task.Description, *upd.Description)); err != nil {
				return err
			}
			task.Description = *upd.Description
			changed = true
		}
		if upd.Tag != nil {
			tag, ok := model.ParseTag(*upd.Tag)
			if !ok {
				return validation("tag", "unknown tag %q", *upd.Tag)
			}
			if tag != task.Tag {
				if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "tag", string(task.Tag), string(tag))); err != nil {
					return err
				}
				task.Tag = tag
				changed = true
			}
		}
		if upd.Priority != nil {
			priority, ok := model.ParsePriority(*upd.Priority)
			if !ok {
				return validation("priority", "unknown priority %q", *upd.Priority)
			}
			if priority != task.Priority {
				if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "priority", string(task.Priority), string(priority))); err != nil {
					return err
				}
				task.Priority = priority
				changed = true
			}
		}
		if upd.Status != nil {
			status, err := parseRequestedStatus(*upd.Status)
			if err != nil {
				return err
			}
			if status != task.Status {
				ev := model.Event{
					TaskID:   task.ID,
					Type:     model.EventStatusChange,
					Field:    strPtr("status"),
					OldValue: strPtr(string(task.Status)),
					NewValue: strPtr(string(status)),
					AuthorID: upd.ActorID,
				}
				if err := rec.add(ctx, tx, ev); err != nil {
					return err
				}
				task.Status = status
				changed = true
			}
		}
		if upd.Owner.Set {
			ownerChanged, err := e.applyOwner(ctx, tx, rec, task, upd.Owner.Value, upd.ActorID)
			if err != nil {
				return err
			}
			changed = changed || ownerChanged
		}
		if upd.Parent.Set && !int64PtrEqual(upd.Parent.Value, task.ParentID) {
			if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "parent_id",
				formatID(task.ParentID), formatID(upd.Parent.Value))); err != nil {
				return err
			}
			task.ParentID = upd.Parent.Value
			changed = true
		}
		if upd.Subproject.Set && !int64PtrEqual(upd.Subproject.Value, task.SubprojectID) {
			ev := model.Event{
				TaskID:   task.ID,
				Type:     model.EventSubprojectChanged,
				Field:    strPtr("subproject_id"),
				OldValue: optStr(formatID(task.SubprojectID)),
				NewValue: optStr(formatID(upd.Subproject.Value)),
				AuthorID: upd.ActorID,
			}
			if err := rec.add(ctx, tx, ev); err != nil {
				return err
			}
			task.SubprojectID = upd.Subproject.Value
			changed = true
		}
		if upd.DueDate.Set && !timePtrEqual(upd.DueDate.Value, task.DueDate) {
			if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "due_date",
				formatTime(task.DueDate), formatTime(upd.DueDate.Value))); err != nil {
				return err
			}
			task.DueDate = upd.DueDate.Value
			changed = true
		}
		if upd.EstimatedHours.Set && !floatPtrEqual(upd.EstimatedHours.Value, task.EstimatedHours) {
			if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "estimated_hours",
				formatFloat(task.EstimatedHours), formatFloat(upd.EstimatedHours.Value))); err != nil {
				return err
			}
			task.EstimatedHours = upd.EstimatedHours.Value
			changed = true
		}
		if upd.ActualHours.Set && !floatPtrEqual(upd.ActualHours.Value, task.ActualHours) {
			if err := rec.add(ctx, tx, fieldEvent(task.ID, upd.ActorID, "actual_hours",
				formatFloat(task.ActualHours), formatFloat(upd.ActualHours.Value))); err != nil {
				return err
			}
			task.ActualHours = upd.ActualHours.Value
			changed = true
		}

		if !changed {
			return nil
		}
		if err := validateTaskRefs(ctx, tx, task, &id); err != nil {
			return err
		}
		return tx.UpdateTask(ctx, task)
	}

	if err := e.mutate(ctx, run); err != nil {
		return nil, err
	}

	return e.viewOf(ctx, task)
}

// DeleteTask removes a task; edges, comments, events, and descendant
// sub-tasks cascade in the store. The deletion notice goes out on the bus
// only, since an audit row cannot outlive its task.
func (e *Engine) DeleteTask(ctx context.Context, id int64, actorID *int64) error {
	var projectID int64
	err := e.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if task == nil {
			return notFound("task %d not found", id)
		}
		projectID = task.ProjectID
		return tx.DeleteTask(ctx, id)
	})
	if err != nil {
		return err
	}

	if e.bus != nil {
		e.bus.Publish(events.Notice{
			ProjectID: projectID,
			Event: model.Event{
				TaskID:    id,
				Type:      model.EventDeleted,
				AuthorID:  actorID,
				CreatedAt: time.Now().UTC(),
			},
		})
	}
	e.log.Infof("task_deleted id=%d project=%d", id, projectID)
	return nil
}

// GetTask returns the task with its read-time derivations.
func (e *Engine) GetTask(ctx context.Context, id int64) (*model.TaskView, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, notFound("task %d not found", id)
	}
	return e.viewOf(ctx, task)
}

// ListTasks returns filtered tasks with derivations applied.
func (e *Engine) ListTasks(ctx context.Context, f store.TaskFilter) ([]model.TaskView, error) {
	tasks, err := e.store.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	views := make([]model.TaskView, 0, len(tasks))
	for i := range tasks {
		v, err := e.viewOf(ctx, &tasks[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// ListActionable returns tasks whose status is open and whose blocking
// dependencies are all closed, under optional scoping filters. Concurrent
// identical queries share one computation.
func (e *Engine) ListActionable(ctx context.Context, projectID int64, subprojectID, ownerID *int64) ([]model.TaskView, error) {
	key := fmt.Sprintf("actionable:%d:%s:%s", projectID, formatID(subprojectID), formatID(ownerID))
	// The computation is shared across callers, so it must not die with the
	// first caller's context.
	shared := context.WithoutCancel(ctx)
	v, err, _ := e.reads.Do(key, func() (any, error) {
		f := store.TaskFilter{
			ProjectID:      &projectID,
			SubprojectID:   subprojectID,
			OwnerID:        ownerID,
			ActionableOnly: true,
		}
		tasks, err := e.store.ListTasks(shared, f)
		if err != nil {
			return nil, err
		}
		views := make([]model.TaskView, 0, len(tasks))
		for i := range tasks {
			views = append(views, model.TaskView{
				Task:          tasks[i],
				DisplayStatus: tasks[i].Status,
				Actionable:    true,
			})
		}
		return views, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.TaskView), nil
}

// IsActionable reports whether a single task is currently actionable.
func (e *Engine) IsActionable(ctx context.Context, id int64) (bool, error) {
	view, err := e.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	return view.Actionable, nil
}

// viewOf layers the blocked presentation and actionability onto a stored
// task. Recomputed on every read so a blocking task's status change flips
// the derivation immediately.
func (e *Engine) viewOf(ctx context.Context, task *model.Task) (*model.TaskView, error) {
	view := model.TaskView{Task: *task, DisplayStatus: task.Status}
	if model.IsClosed(task.Status) {
		return &view, nil
	}
	blocked, err := e.store.HasOpenBlockers(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		view.DisplayStatus = model.StatusBlocked
	}
	view.Actionable = !blocked
	return &view, nil
}

// parseRequestedStatus validates a status string from a request. Unknown
// values fail InvalidStatus; "blocked" is refused because the blocked
// presentation is derived, never stored by request.
func parseRequestedStatus(s string) (model.Status, error) {
	status, ok := model.ParseStatus(s)
	if !ok {
		return "", newError(CodeInvalidStatus, "unknown status %q", s)
	}
	if status == model.StatusBlocked {
		return "", validation("status", "blocked is derived from dependencies and cannot be set directly")
	}
	return status, nil
}

// validateTaskRefs checks the referential invariants on every write path:
// sub-project and parent must exist and belong to the task's project, the
// parent must not be the task itself, and author/owner must exist.
func validateTaskRefs(ctx context.Context, tx *store.Tx, task *model.Task, selfID *int64) error {
	if task.SubprojectID != nil {
		sp, err := tx.GetSubproject(ctx, *task.SubprojectID)
		if err != nil {
			return err
		}
		if sp == nil {
			return notFound("subproject %d not found", *task.SubprojectID)
		}
		if sp.ProjectID != task.ProjectID {
			return newError(CodeCrossProjectReference,
				"subproject %d belongs to project %d, not %d", sp.ID, sp.ProjectID, task.ProjectID)
		}
	}
	if task.ParentID != nil {
		if selfID != nil && *task.ParentID == *selfID {
			return validation("parent_id", "task cannot be its own parent")
		}
		parent, err := tx.GetTask(ctx, *task.ParentID)
		if err != nil {
			return err
		}
		if parent == nil {
			return notFound("parent task %d not found", *task.ParentID)
		}
		if parent.ProjectID != task.ProjectID {
			return newError(CodeCrossProjectReference,
				"parent task %d belongs to project %d, not %d", parent.ID, parent.ProjectID, task.ProjectID)
		}
		// The parent tree must stay acyclic: reject when the task is an
		// ancestor of its new parent, not just the parent itself.
		if selfID != nil {
			seen := map[int64]bool{parent.ID: true}
			for parent.ParentID != nil {
				ancestorID := *parent.ParentID
				if ancestorID == *selfID {
					return validation("parent_id", "task %d is an ancestor of task %d", *selfID, *task.ParentID)
				}
				if seen[ancestorID] {
					break
				}
				seen[ancestorID] = true
				if parent, err = tx.GetTask(ctx, ancestorID); err != nil {
					return err
				}
				if parent == nil {
					break
				}
			}
		}
	}
	for _, ref := range []struct {
		id    *int64
		field string
	}{{task.AuthorID, "author_id"}, {task.OwnerID, "owner_id"}} {
		if ref.id == nil {
			continue
		}
		author, err := tx.GetAuthor(ctx, *ref.id)
		if err != nil {
			return err
		}
		if author == nil {
			return notFound("author %d not found (%s)", *ref.id, ref.field)
		}
	}
	return nil
}

func fieldEvent(taskID int64, actorID *int64, field, oldVal, newVal string) model.Event {
	return model.Event{
		TaskID:   taskID,
		Type:     model.EventFieldChanged,
		Field:    strPtr(field),
		OldValue: optStr(oldVal),
		NewValue: optStr(newVal),
		AuthorID: actorID,
	}
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
