package engine

import (
	"context"

	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

// TakeOwnership assigns a task to candidateID. The check-then-write runs in
// one IMMEDIATE transaction, so of two concurrent non-forced claims on an
// unowned task exactly one observes "no owner" and wins; the other fails
// with OwnershipConflict. A forced claim overwrites whatever owner it finds
// (last writer wins). Claiming a task already owned by the candidate is an
// idempotent no-op.
func (e *Engine) TakeOwnership(ctx context.Context, taskID, candidateID int64, force bool) (*model.TaskView, error) {
	var task *model.Task
	err := e.mutate(ctx, func(tx *store.Tx, rec *recorder) error {
		var err error
		task, err = tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return notFound("task %d not found", taskID)
		}
		rec.projectID = task.ProjectID

		candidate, err := tx.GetAuthor(ctx, candidateID)
		if err != nil {
			return err
		}
		if candidate == nil {
			return notFound("author %d not found", candidateID)
		}

		if task.OwnerID != nil {
			if *task.OwnerID == candidateID {
				return nil // already owned by the candidate
			}
			if !force {
				return newError(CodeOwnershipConflict,
					"task %d is owned by author %d", taskID, *task.OwnerID)
			}
		}

		owner := candidateID
		if _, err := e.setOwner(ctx, tx, rec, task, &owner, &candidateID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("ownership_take task=%d owner=%d force=%t", taskID, candidateID, force)
	return e.viewOf(ctx, task)
}

// ReleaseOwnership clears a task's owner. It always succeeds and records an
// event carrying the prior owner.
func (e *Engine) ReleaseOwnership(ctx context.Context, taskID int64, actorID *int64) (*model.TaskView, error) {
	var task *model.Task
	err := e.mutate(ctx, func(tx *store.Tx, rec *recorder) error {
		var err error
		task, err = tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return notFound("task %d not found", taskID)
		}
		rec.projectID = task.ProjectID

		_, err = e.setOwner(ctx, tx, rec, task, nil, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("ownership_release task=%d", taskID)
	return e.viewOf(ctx, task)
}

// applyOwner handles the generic task-update path: a differing non-null
// owner behaves as a forced take, null as a release. Same-owner writes are
// no-ops.
func (e *Engine) applyOwner(ctx context.Context, tx *store.Tx, rec *recorder, task *model.Task, owner *int64, actorID *int64) (bool, error) {
	if int64PtrEqual(owner, task.OwnerID) {
		return false, nil
	}
	if owner != nil {
		candidate, err := tx.GetAuthor(ctx, *owner)
		if err != nil {
			return false, err
		}
		if candidate == nil {
			return false, notFound("author %d not found", *owner)
		}
	}
	return e.setOwner(ctx, tx, rec, task, owner, actorID)
}

// setOwner writes the owner column and its ownership_changed event.
func (e *Engine) setOwner(ctx context.Context, tx *store.Tx, rec *recorder, task *model.Task, owner *int64, actorID *int64) (bool, error) {
	ev := model.Event{
		TaskID:   task.ID,
		Type:     model.EventOwnershipChanged,
		Field:    strPtr("owner_id"),
		OldValue: optStr(formatID(task.OwnerID)),
		NewValue: optStr(formatID(owner)),
		AuthorID: actorID,
	}
	if err := rec.add(ctx, tx, ev); err != nil {
		return false, err
	}
	task.OwnerID = owner
	if err := tx.UpdateTask(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}
