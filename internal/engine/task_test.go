package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

func TestCreateTask_Defaults(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)

	view := mkTask(t, eng, ctx, projectID, "first")
	assert.Equal(t, model.StatusBacklog, view.Status)
	assert.Equal(t, model.StatusBacklog, view.DisplayStatus)
	assert.True(t, view.Actionable)
	assert.Nil(t, view.OwnerID)

	page, err := eng.TaskEvents(ctx, view.ID, EventQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	assert.Equal(t, model.EventCreated, page.Events[0].Type)
}

func TestCreateTask_Validation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)

	tests := []struct {
		name string
		req  CreateTaskRequest
		code Code
	}{
		{
			name: "empty title",
			req:  CreateTaskRequest{ProjectID: projectID, Tag: "bug", Priority: "P1"},
			code: CodeValidation,
		},
		{
			name: "unknown tag",
			req:  CreateTaskRequest{ProjectID: projectID, Title: "x", Tag: "chore", Priority: "P1"},
			code: CodeValidation,
		},
		{
			name: "unknown priority",
			req:  CreateTaskRequest{ProjectID: projectID, Title: "x", Tag: "bug", Priority: "P9"},
			code: CodeValidation,
		},
		{
			name: "unknown status",
			req:  CreateTaskRequest{ProjectID: projectID, Title: "x", Tag: "bug", Priority: "P1", Status: "parked"},
			code: CodeInvalidStatus,
		},
		{
			name: "blocked is not settable",
			req:  CreateTaskRequest{ProjectID: projectID, Title: "x", Tag: "bug", Priority: "P1", Status: "blocked"},
			code: CodeValidation,
		},
		{
			name: "missing project",
			req:  CreateTaskRequest{ProjectID: 999, Title: "x", Tag: "bug", Priority: "P1"},
			code: CodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.CreateTask(ctx, tt.req)
			assert.Equal(t, tt.code, CodeOf(err))
		})
	}
}

func TestUpdateTask_FieldEvents(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "before")

	title := "after"
	status := "in_progress"
	est := 4.5
	view, err := eng.UpdateTask(ctx, task.ID, TaskUpdate{
		Title:          &title,
		Status:         &status,
		EstimatedHours: Opt[float64]{Set: true, Value: &est},
		ActorID:        &authorID,
	})
	require.NoError(t, err)
	assert.Equal(t, "after", view.Title)
	assert.Equal(t, model.StatusInProgress, view.Status)

	// One event per changed field plus the creation event.
	page, err := eng.TaskEvents(ctx, task.ID, EventQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalCount)

	statusPage, err := eng.TaskEvents(ctx, task.ID, EventQuery{Type: "status_change"})
	require.NoError(t, err)
	require.Equal(t, 1, statusPage.TotalCount)
	ev := statusPage.Events[0]
	assert.Equal(t, "backlog", *ev.OldValue)
	assert.Equal(t, "in_progress", *ev.NewValue)
	require.NotNil(t, ev.AuthorID)
	assert.Equal(t, authorID, *ev.AuthorID)
}

func TestUpdateTask_NoopRecordsNothing(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "steady")

	title := "steady"
	_, err := eng.UpdateTask(ctx, task.ID, TaskUpdate{Title: &title})
	require.NoError(t, err)

	page, err := eng.TaskEvents(ctx, task.ID, EventQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount) // only the creation event
}

func TestUpdateTask_RejectsBlockedStatus(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "t")

	blocked := "blocked"
	_, err := eng.UpdateTask(ctx, task.ID, TaskUpdate{Status: &blocked})
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestUpdateTask_ParentCannotBeSelf(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "loop")

	_, err := eng.UpdateTask(ctx, task.ID, TaskUpdate{Parent: Opt[int64]{Set: true, Value: &task.ID}})
	assert.Equal(t, CodeValidation, CodeOf(err))
}

func TestUpdateTask_ParentCrossProject(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	other, err := eng.CreateProject(ctx, "beta")
	require.NoError(t, err)

	task := mkTask(t, eng, ctx, projectID, "here")
	foreign := mkTask(t, eng, ctx, other.ID, "there")

	_, err = eng.UpdateTask(ctx, task.ID, TaskUpdate{Parent: Opt[int64]{Set: true, Value: &foreign.ID}})
	assert.Equal(t, CodeCrossProjectReference, CodeOf(err))
}

func TestUpdateTask_ParentCycle(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)

	a := mkTask(t, eng, ctx, projectID, "a")
	b := mkTask(t, eng, ctx, projectID, "b")
	c := mkTask(t, eng, ctx, projectID, "c")

	_, err := eng.UpdateTask(ctx, a.ID, TaskUpdate{Parent: Opt[int64]{Set: true, Value: &b.ID}})
	require.NoError(t, err)

	// b already sits above a, so a cannot become b's parent.
	_, err = eng.UpdateTask(ctx, b.ID, TaskUpdate{Parent: Opt[int64]{Set: true, Value: &a.ID}})
	assert.Equal(t, CodeValidation, CodeOf(err))

	// Same through an intermediate: a -> b -> c, then c under a.
	_, err = eng.UpdateTask(ctx, b.ID, TaskUpdate{Parent: Opt[int64]{Set: true, Value: &c.ID}})
	require.NoError(t, err)
	_, err = eng.UpdateTask(ctx, c.ID, TaskUpdate{Parent: Opt[int64]{Set: true, Value: &a.ID}})
	assert.Equal(t, CodeValidation, CodeOf(err))

	view, err := eng.GetTask(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, view.ParentID)
}

func TestUpdateTask_ClearDueDate(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "deadline")

	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	view, err := eng.UpdateTask(ctx, task.ID, TaskUpdate{DueDate: Opt[time.Time]{Set: true, Value: &due}})
	require.NoError(t, err)
	require.NotNil(t, view.DueDate)

	view, err = eng.UpdateTask(ctx, task.ID, TaskUpdate{DueDate: Opt[time.Time]{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, view.DueDate)
}

func TestDeleteTask_CascadesChildren(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	parent := mkTask(t, eng, ctx, projectID, "parent")

	child, err := eng.CreateTask(ctx, CreateTaskRequest{
		ProjectID: projectID,
		ParentID:  &parent.ID,
		Title:     "child",
		Tag:       "feature",
		Priority:  "P1",
	})
	require.NoError(t, err)

	require.NoError(t, eng.DeleteTask(ctx, parent.ID, nil))

	_, err = eng.GetTask(ctx, parent.ID)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	_, err = eng.GetTask(ctx, child.ID)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	err = eng.DeleteTask(ctx, parent.ID, nil)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestListTasks_Filters(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)

	_, err := eng.CreateTask(ctx, CreateTaskRequest{
		ProjectID: projectID, Title: "login crash", Tag: "bug", Priority: "P0", Status: "in_progress",
		OwnerID: &authorID,
	})
	require.NoError(t, err)
	_, err = eng.CreateTask(ctx, CreateTaskRequest{
		ProjectID: projectID, Title: "dark mode", Tag: "idea", Priority: "P0",
	})
	require.NoError(t, err)

	status := model.StatusInProgress
	views, err := eng.ListTasks(ctx, store.TaskFilter{ProjectID: &projectID, Status: &status})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "login crash", views[0].Title)

	tag := model.TagIdea
	views, err = eng.ListTasks(ctx, store.TaskFilter{ProjectID: &projectID, Tag: &tag})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "dark mode", views[0].Title)

	views, err = eng.ListTasks(ctx, store.TaskFilter{ProjectID: &projectID, Search: "crash"})
	require.NoError(t, err)
	require.Len(t, views, 1)

	views, err = eng.ListTasks(ctx, store.TaskFilter{ProjectID: &projectID, OwnerID: &authorID})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "login crash", views[0].Title)
}

func TestListActionable(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)

	free := mkStatusTask(t, eng, ctx, projectID, "free", "todo")
	blocker := mkStatusTask(t, eng, ctx, projectID, "blocker", "in_progress")
	blocked := mkStatusTask(t, eng, ctx, projectID, "gated", "todo")
	mkStatusTask(t, eng, ctx, projectID, "finished", "done")

	_, err := eng.AddDependency(ctx, blocker.ID, blocked.ID, nil)
	require.NoError(t, err)

	views, err := eng.ListActionable(ctx, projectID, nil, nil)
	require.NoError(t, err)

	titles := make(map[string]bool, len(views))
	for _, v := range views {
		titles[v.Title] = true
	}
	assert.True(t, titles["free"], "unblocked open task is actionable")
	assert.True(t, titles["blocker"], "a blocker with no blockers of its own is actionable")
	assert.False(t, titles["gated"], "blocked task is not actionable")
	assert.False(t, titles["finished"], "closed task is not actionable")

	ok, err := eng.IsActionable(ctx, free.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = eng.IsActionable(ctx, blocked.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListActionable_SurvivesCallerCancel(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	mkStatusTask(t, eng, ctx, projectID, "ready", "todo")

	// The shared computation must outlive the caller that started it.
	gone, cancel := context.WithCancel(ctx)
	cancel()

	views, err := eng.ListActionable(gone, projectID, nil, nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "ready", views[0].Title)
}
