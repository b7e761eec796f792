package engine

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-io/gantry/internal/model"
)

func TestTakeOwnership_Unowned(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "claim me")

	view, err := eng.TakeOwnership(ctx, task.ID, authorID, false)
	require.NoError(t, err)
	require.NotNil(t, view.OwnerID)
	assert.Equal(t, authorID, *view.OwnerID)
}

func TestTakeOwnership_Conflict(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	rival, err := eng.CreateAuthor(ctx, "rival")
	require.NoError(t, err)
	task := mkTask(t, eng, ctx, projectID, "contested")

	_, err = eng.TakeOwnership(ctx, task.ID, authorID, false)
	require.NoError(t, err)

	_, err = eng.TakeOwnership(ctx, task.ID, rival.ID, false)
	assert.Equal(t, CodeOwnershipConflict, CodeOf(err))

	// The losing claim must not disturb the stored owner.
	view, err := eng.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, view.OwnerID)
	assert.Equal(t, authorID, *view.OwnerID)
}

func TestTakeOwnership_SameOwnerNoop(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "mine")

	_, err := eng.TakeOwnership(ctx, task.ID, authorID, false)
	require.NoError(t, err)
	eventsBefore, err := eng.TaskEvents(ctx, task.ID, EventQuery{})
	require.NoError(t, err)

	_, err = eng.TakeOwnership(ctx, task.ID, authorID, false)
	require.NoError(t, err)

	// The repeated claim records no event.
	eventsAfter, err := eng.TaskEvents(ctx, task.ID, EventQuery{})
	require.NoError(t, err)
	assert.Equal(t, eventsBefore.TotalCount, eventsAfter.TotalCount)
}

func TestTakeOwnership_Force(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	rival, err := eng.CreateAuthor(ctx, "rival")
	require.NoError(t, err)
	task := mkTask(t, eng, ctx, projectID, "contested")

	_, err = eng.TakeOwnership(ctx, task.ID, authorID, false)
	require.NoError(t, err)

	view, err := eng.TakeOwnership(ctx, task.ID, rival.ID, true)
	require.NoError(t, err)
	require.NotNil(t, view.OwnerID)
	assert.Equal(t, rival.ID, *view.OwnerID)

	// The transfer event records both owners.
	page, err := eng.TaskEvents(ctx, task.ID, EventQuery{Type: "ownership_changed"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, page.TotalCount, 2)
	latest := page.Events[0]
	require.NotNil(t, latest.OldValue)
	require.NotNil(t, latest.NewValue)
	assert.Equal(t, strconv.FormatInt(authorID, 10), *latest.OldValue)
	assert.Equal(t, strconv.FormatInt(rival.ID, 10), *latest.NewValue)
}

func TestTakeOwnership_ConcurrentClaims(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "raced")

	const claimants = 8
	ids := make([]int64, claimants)
	for i := range ids {
		author, err := eng.CreateAuthor(ctx, "worker")
		require.NoError(t, err)
		ids[i] = author.ID
	}

	errs := make([]error, claimants)
	var wg sync.WaitGroup
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.TakeOwnership(ctx, task.ID, ids[i], false)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.Equal(t, CodeOwnershipConflict, CodeOf(err))
		}
	}
	assert.Equal(t, 1, wins, "exactly one claim must win")
}

func TestReleaseOwnership(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "held")

	_, err := eng.TakeOwnership(ctx, task.ID, authorID, false)
	require.NoError(t, err)

	view, err := eng.ReleaseOwnership(ctx, task.ID, &authorID)
	require.NoError(t, err)
	assert.Nil(t, view.OwnerID)

	// Releasing an unowned task still succeeds.
	view, err = eng.ReleaseOwnership(ctx, task.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, view.OwnerID)
}

func TestUpdateTask_OwnerCarriesForceSemantics(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	rival, err := eng.CreateAuthor(ctx, "rival")
	require.NoError(t, err)
	task := mkTask(t, eng, ctx, projectID, "generic update")

	_, err = eng.TakeOwnership(ctx, task.ID, authorID, false)
	require.NoError(t, err)

	// Setting a different owner through the generic update path overwrites.
	view, err := eng.UpdateTask(ctx, task.ID, TaskUpdate{Owner: Opt[int64]{Set: true, Value: &rival.ID}})
	require.NoError(t, err)
	require.NotNil(t, view.OwnerID)
	assert.Equal(t, rival.ID, *view.OwnerID)

	// Null owner releases.
	view, err = eng.UpdateTask(ctx, task.ID, TaskUpdate{Owner: Opt[int64]{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, view.OwnerID)

	page, err := eng.TaskEvents(ctx, task.ID, EventQuery{Type: string(model.EventOwnershipChanged)})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
}
