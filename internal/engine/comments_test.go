package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComments(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, authorID := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "discussed")

	first, err := eng.AddComment(ctx, task.ID, &authorID, "looks off on mobile")
	require.NoError(t, err)
	assert.Equal(t, task.ID, first.TaskID)

	_, err = eng.AddComment(ctx, task.ID, nil, "repro steps attached")
	require.NoError(t, err)

	comments, err := eng.Comments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "looks off on mobile", comments[0].Body)
	assert.Nil(t, comments[1].AuthorID)
}

func TestAddComment_Validation(t *testing.T) {
	eng, ctx := newTestEngine(t)
	projectID, _ := fixture(t, eng, ctx)
	task := mkTask(t, eng, ctx, projectID, "t")

	_, err := eng.AddComment(ctx, task.ID, nil, "")
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = eng.AddComment(ctx, 999, nil, "hello")
	assert.Equal(t, CodeNotFound, CodeOf(err))

	missing := int64(999)
	_, err = eng.AddComment(ctx, task.ID, &missing, "hello")
	assert.Equal(t, CodeNotFound, CodeOf(err))
}
