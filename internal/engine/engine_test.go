package engine

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gantry-io/gantry/internal/events"
	"github.com/gantry-io/gantry/internal/logging"
	"github.com/gantry-io/gantry/internal/model"
	"github.com/gantry-io/gantry/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, context.Context) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "gantry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	logger := logging.New(log.New(io.Discard, "", 0), "test", logging.LevelError)
	return New(st, bus, logger), ctx
}

// fixture creates a project with an author and returns both IDs.
func fixture(t *testing.T, eng *Engine, ctx context.Context) (projectID, authorID int64) {
	t.Helper()
	project, err := eng.CreateProject(ctx, "alpha")
	require.NoError(t, err)
	author, err := eng.CreateAuthor(ctx, "dev")
	require.NoError(t, err)
	return project.ID, author.ID
}

func mkTask(t *testing.T, eng *Engine, ctx context.Context, projectID int64, title string) *model.TaskView {
	t.Helper()
	task, err := eng.CreateTask(ctx, CreateTaskRequest{
		ProjectID: projectID,
		Title:     title,
		Tag:       "feature",
		Priority:  "P1",
	})
	require.NoError(t, err)
	return task
}

func mkStatusTask(t *testing.T, eng *Engine, ctx context.Context, projectID int64, title, status string) *model.TaskView {
	t.Helper()
	task, err := eng.CreateTask(ctx, CreateTaskRequest{
		ProjectID: projectID,
		Title:     title,
		Tag:       "feature",
		Priority:  "P1",
		Status:    status,
	})
	require.NoError(t, err)
	return task
}
