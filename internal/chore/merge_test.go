package chore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/coolive/internal/model"
)

func TestMerge(t *testing.T) {
	tasks := []model.Task{{ID: 10, Title: "Fregar"}, {ID: 11, Title: "Escombrar"}, {ID: 12, Title: "Rentar"}}
	assignments := []model.TaskAssignment{
		{TaskID: 10, UserID: 1, FullName: "Alice"},
		{TaskID: 10, UserID: 2, FullName: "Bob"},
		{TaskID: 11, UserID: 2, FullName: "Bob"},
	}
	completions := []model.Completion{
		{ID: 1, TaskID: 10, UserID: 2},
		{ID: 2, TaskID: 11, UserID: 2},
		{ID: 3, TaskID: 10, UserID: 1},
	}

	got := Merge(tasks, assignments, completions, 1)
	require.Len(t, got, 3)

	assert.Equal(t, []int64{10, 11, 12}, ids(got))
	assert.Len(t, got[0].AssignedTo, 2)
	assert.Len(t, got[0].Completions, 2)
	assert.True(t, got[0].Completed, "viewer completed task 10")
	assert.False(t, got[1].Completed, "only bob completed task 11")

	assert.NotNil(t, got[2].AssignedTo)
	assert.NotNil(t, got[2].Completions)
	assert.Empty(t, got[2].AssignedTo)
	assert.False(t, got[2].Completed)
}

func TestMergeEmpty(t *testing.T) {
	got := Merge(nil, nil, nil, 1)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
