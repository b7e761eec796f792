package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-io/gantry/internal/model"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	st, err := Open(ctx, filepath.Join(t.TempDir(), "gantry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, ctx
}

func seedTask(t *testing.T, st *Store, ctx context.Context, projectID int64, title string, status model.Status) *model.Task {
	t.Helper()
	task := &model.Task{
		ProjectID: projectID,
		Title:     title,
		Tag:       model.TagFeature,
		Priority:  model.PriorityP1,
		Status:    status,
	}
	require.NoError(t, st.InsertTask(ctx, task))
	return task
}

func TestTaskRoundtrip(t *testing.T) {
	st, ctx := newTestStore(t)
	project, err := st.InsertProject(ctx, "alpha")
	require.NoError(t, err)
	author, err := st.InsertAuthor(ctx, "dev")
	require.NoError(t, err)

	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	est := 3.5
	task := &model.Task{
		ProjectID:      project.ID,
		Title:          "wire the API",
		Description:    "routes and handlers",
		Tag:            model.TagFeature,
		Priority:       model.PriorityP0,
		Status:         model.StatusTodo,
		AuthorID:       &author.ID,
		DueDate:        &due,
		EstimatedHours: &est,
	}
	require.NoError(t, st.InsertTask(ctx, task))
	require.NotZero(t, task.ID)

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.Title, got.Title)
	assert.Equal(t, model.StatusTodo, got.Status)
	require.NotNil(t, got.AuthorID)
	assert.Equal(t, author.ID, *got.AuthorID)
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))
	require.NotNil(t, got.EstimatedHours)
	assert.Equal(t, est, *got.EstimatedHours)
	assert.Nil(t, got.OwnerID)
	assert.Nil(t, got.SubprojectID)

	got.Status = model.StatusDone
	require.NoError(t, st.UpdateTask(ctx, got))
	got, err = st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.Status)
}

func TestGetTask_Missing(t *testing.T) {
	st, ctx := newTestStore(t)
	got, err := st.GetTask(ctx, 12345)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteTask_CascadesEdgesAndEvents(t *testing.T) {
	st, ctx := newTestStore(t)
	project, err := st.InsertProject(ctx, "alpha")
	require.NoError(t, err)

	a := seedTask(t, st, ctx, project.ID, "a", model.StatusTodo)
	b := seedTask(t, st, ctx, project.ID, "b", model.StatusTodo)
	_, err = st.InsertEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, st.InsertEvent(ctx, &model.Event{TaskID: b.ID, Type: model.EventCreated}))

	require.NoError(t, st.DeleteTask(ctx, b.ID))

	exists, err := st.EdgeExists(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	page, err := st.ProjectEvents(ctx, project.ID, EventFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)
}

func TestTaskFilter_SubprojectAndOverdue(t *testing.T) {
	st, ctx := newTestStore(t)
	project, err := st.InsertProject(ctx, "alpha")
	require.NoError(t, err)
	sp, err := st.InsertSubproject(ctx, project.ID, 2, "backend", false)
	require.NoError(t, err)

	assigned := seedTask(t, st, ctx, project.ID, "assigned", model.StatusTodo)
	assigned.SubprojectID = &sp.ID
	require.NoError(t, st.UpdateTask(ctx, assigned))

	loose := seedTask(t, st, ctx, project.ID, "loose", model.StatusTodo)

	past := time.Now().UTC().Add(-48 * time.Hour)
	late := seedTask(t, st, ctx, project.ID, "late", model.StatusInProgress)
	late.DueDate = &past
	require.NoError(t, st.UpdateTask(ctx, late))

	closedLate := seedTask(t, st, ctx, project.ID, "closed late", model.StatusDone)
	closedLate.DueDate = &past
	require.NoError(t, st.UpdateTask(ctx, closedLate))

	tasks, err := st.ListTasks(ctx, TaskFilter{ProjectID: &project.ID, SubprojectID: &sp.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, assigned.ID, tasks[0].ID)

	tasks, err = st.ListTasks(ctx, TaskFilter{ProjectID: &project.ID, SubprojectNone: true})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, loose.ID, tasks[0].ID)

	// Overdue excludes closed tasks even with a past due date.
	tasks, err = st.ListTasks(ctx, TaskFilter{ProjectID: &project.ID, Overdue: true})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, late.ID, tasks[0].ID)
}

func TestActionableFilter(t *testing.T) {
	st, ctx := newTestStore(t)
	project, err := st.InsertProject(ctx, "alpha")
	require.NoError(t, err)

	blocker := seedTask(t, st, ctx, project.ID, "blocker", model.StatusInProgress)
	gated := seedTask(t, st, ctx, project.ID, "gated", model.StatusTodo)
	freed := seedTask(t, st, ctx, project.ID, "freed", model.StatusTodo)
	closedBlocker := seedTask(t, st, ctx, project.ID, "closed blocker", model.StatusDone)

	_, err = st.InsertEdge(ctx, blocker.ID, gated.ID)
	require.NoError(t, err)
	_, err = st.InsertEdge(ctx, closedBlocker.ID, freed.ID)
	require.NoError(t, err)

	tasks, err := st.ListTasks(ctx, TaskFilter{ProjectID: &project.ID, ActionableOnly: true})
	require.NoError(t, err)

	ids := make(map[int64]bool, len(tasks))
	for _, task := range tasks {
		ids[task.ID] = true
	}
	assert.True(t, ids[blocker.ID])
	assert.True(t, ids[freed.ID], "a task whose only blocker is closed is actionable")
	assert.False(t, ids[gated.ID])
	assert.False(t, ids[closedBlocker.ID])
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	st, ctx := newTestStore(t)
	project, err := st.InsertProject(ctx, "alpha")
	require.NoError(t, err)

	wantErr := assert.AnError
	err = st.RunInTransaction(ctx, func(tx *Tx) error {
		task := &model.Task{
			ProjectID: project.ID,
			Title:     "phantom",
			Tag:       model.TagBug,
			Priority:  model.PriorityP0,
			Status:    model.StatusTodo,
		}
		if err := tx.InsertTask(ctx, task); err != nil {
			return err
		}
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	tasks, err := st.ListTasks(ctx, TaskFilter{ProjectID: &project.ID})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestNextSubprojectNumber(t *testing.T) {
	st, ctx := newTestStore(t)
	project, err := st.InsertProject(ctx, "alpha")
	require.NoError(t, err)

	n, err := st.NextSubprojectNumber(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = st.InsertSubproject(ctx, project.ID, n, "Default", true)
	require.NoError(t, err)

	n, err = st.NextSubprojectNumber(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEventPagination(t *testing.T) {
	st, ctx := newTestStore(t)
	project, err := st.InsertProject(ctx, "alpha")
	require.NoError(t, err)
	task := seedTask(t, st, ctx, project.ID, "loud", model.StatusTodo)

	for i := 0; i < 7; i++ {
		require.NoError(t, st.InsertEvent(ctx, &model.Event{
			TaskID: task.ID,
			Type:   model.EventFieldChanged,
		}))
	}

	page, err := st.TaskEvents(ctx, task.ID, EventFilter{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, page.TotalCount)
	require.Len(t, page.Events, 3)
	assert.Greater(t, page.Events[0].ID, page.Events[1].ID)

	page, err = st.TaskEvents(ctx, task.ID, EventFilter{Limit: 3, Offset: 6})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
}
