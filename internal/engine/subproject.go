package engine

import (
	"context"
	"fmt"

	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

const defaultSubprojectName = "Default"

// CreateProject creates a project together with its default sub-project
// (number 1), atomically. The default flag is immutable and the default
// sub-project cannot be deleted.
func (e *Engine) CreateProject(ctx context.Context, name string) (*model.Project, error) {
	if name == "" {
		return nil, validation("name", "must not be empty")
	}

	var project *model.Project
	err := e.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		var err error
		project, err = tx.InsertProject(ctx, name)
		if err != nil {
			return err
		}
		_, err = tx.InsertSubproject(ctx, project.ID, 1, defaultSubprojectName, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("project_created id=%d name=%q", project.ID, project.Name)
	return project, nil
}

func (e *Engine) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	project, err := e.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, notFound("project %d not found", id)
	}
	return project, nil
}

// DeleteProject removes a project and everything under it.
func (e *Engine) DeleteProject(ctx context.Context, id int64) error {
	err := e.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		project, err := tx.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if project == nil {
			return notFound("project %d not found", id)
		}
		return tx.DeleteProject(ctx, id)
	})
	if err != nil {
		return err
	}
	e.log.Infof("project_deleted id=%d", id)
	return nil
}

func (e *Engine) CreateAuthor(ctx context.Context, name string) (*model.Author, error) {
	if name == "" {
		return nil, validation("name", "must not be empty")
	}
	return e.store.InsertAuthor(ctx, name)
}

func (e *Engine) GetAuthor(ctx context.Context, id int64) (*model.Author, error) {
	author, err := e.store.GetAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	if author == nil {
		return nil, notFound("author %d not found", id)
	}
	return author, nil
}

// CreateSubproject adds a non-default sub-project with the next sequential
// number in its project. Numbering runs under the project lock so
// concurrent creations cannot collide.
func (e *Engine) CreateSubproject(ctx context.Context, projectID int64, name string) (*model.Subproject, error) {
	if name == "" {
		return nil, validation("name", "must not be empty")
	}

	e.locks.Lock(projectID)
	defer e.locks.Unlock(projectID)

	var sp *model.Subproject
	err := e.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return notFound("project %d not found", projectID)
		}
		number, err := tx.NextSubprojectNumber(ctx, projectID)
		if err != nil {
			return err
		}
		sp, err = tx.InsertSubproject(ctx, projectID, number, name, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("subproject_created id=%d project=%d number=%d", sp.ID, projectID, sp.Number)
	return sp, nil
}

// GetSubproject returns the sub-project with its derived activity flag.
func (e *Engine) GetSubproject(ctx context.Context, id int64) (*model.SubprojectView, error) {
	sp, err := e.store.GetSubproject(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return nil, notFound("subproject %d not found", id)
	}
	active, err := e.store.SubprojectHasOpenTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.SubprojectView{Subproject: *sp, IsActive: active}, nil
}

func (e *Engine) RenameSubproject(ctx context.Context, id int64, name string) (*model.SubprojectView, error) {
	if name == "" {
		return nil, validation("name", "must not be empty")
	}
	err := e.store.RunInTransaction(ctx, func(tx *store.Tx) error {
		sp, err := tx.GetSubproject(ctx, id)
		if err != nil {
			return err
		}
		if sp == nil {
			return notFound("subproject %d not found", id)
		}
		return tx.RenameSubproject(ctx, id, name)
	})
	if err != nil {
		return nil, err
	}
	return e.GetSubproject(ctx, id)
}

// DeleteSubproject removes a non-default sub-project. Its tasks survive
// with subproject_id cleared, each clearing recorded as an audit event in
// the same transaction. Deleting the default sub-project fails with
// DefaultSubprojectProtected.
func (e *Engine) DeleteSubproject(ctx context.Context, id int64, actorID *int64) error {
	err := e.mutate(ctx, func(tx *store.Tx, rec *recorder) error {
		sp, err := tx.GetSubproject(ctx, id)
		if err != nil {
			return err
		}
		if sp == nil {
			return notFound("subproject %d not found", id)
		}
		if sp.IsDefault {
			return newError(CodeDefaultSubprojectProtected,
				"subproject %d is the default of project %d and cannot be deleted", id, sp.ProjectID)
		}
		rec.projectID = sp.ProjectID

		tasks, err := tx.ListTasks(ctx, store.TaskFilter{SubprojectID: &id})
		if err != nil {
			return err
		}
		for i := range tasks {
			task := &tasks[i]
			ev := model.Event{
				TaskID:   task.ID,
				Type:     model.EventSubprojectChanged,
				Field:    strPtr("subproject_id"),
				OldValue: strPtr(fmt.Sprintf("%d", id)),
				AuthorID: actorID,
			}
			if err := rec.add(ctx, tx, ev); err != nil {
				return err
			}
			task.SubprojectID = nil
			if err := tx.UpdateTask(ctx, task); err != nil {
				return err
			}
		}

		return tx.DeleteSubproject(ctx, id)
	})
	if err != nil {
		return err
	}

	e.log.Infof("subproject_deleted id=%d", id)
	return nil
}

// ListSubprojects returns a project's sub-projects, each with is_active
// computed from current stored facts.
func (e *Engine) ListSubprojects(ctx context.Context, projectID int64) ([]model.SubprojectView, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, notFound("project %d not found", projectID)
	}

	sps, err := e.store.ListSubprojects(ctx, projectID)
	if err != nil {
		return nil, err
	}
	views := make([]model.SubprojectView, 0, len(sps))
	for _, sp := range sps {
		active, err := e.store.SubprojectHasOpenTasks(ctx, sp.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, model.SubprojectView{Subproject: sp, IsActive: active})
	}
	return views, nil
}

// ActiveSubprojects returns only the sub-projects that currently have open
// work. Concurrent identical queries share one computation.
func (e *Engine) ActiveSubprojects(ctx context.Context, projectID int64) ([]model.SubprojectView, error) {
	key := fmt.Sprintf("active-subprojects:%d", projectID)
	// Shared across callers; detach from the first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, err, _ := e.reads.Do(key, func() (any, error) {
		views, err := e.ListSubprojects(shared, projectID)
		if err != nil {
			return nil, err
		}
		active := make([]model.SubprojectView, 0, len(views))
		for _, sp := range views {
			if sp.IsActive {
				active = append(active, sp)
			}
		}
		return active, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.SubprojectView), nil
}
