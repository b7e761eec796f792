package engine

import (
	"context"

	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

// AddComment attaches a comment to a task. Comments cascade with their task.
func (e *Engine) AddComment(ctx context.Context, taskID int64, authorID *int64, body string) (*model.Comment, error) {
	if body == "" {
		return nil, validation("body", "must not be empty")
	}

	comment := &model.Comment{TaskID: taskID, AuthorID: authorID, Body: body}
	err := e.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return notFound("task %d not found", taskID)
		}
		if authorID != nil {
			author, err := tx.GetAuthor(ctx, *authorID)
			if err != nil {
				return err
			}
			if author == nil {
				return notFound("author %d not found", *authorID)
			}
		}
		return tx.InsertComment(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (e *Engine) Comments(ctx context.Context, taskID int64) ([]model.Comment, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, notFound("task %d not found", taskID)
	}
	return e.store.ListComments(ctx, taskID)
}
