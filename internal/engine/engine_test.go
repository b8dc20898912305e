package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlysaid/agentd/internal/domain"
)

func TestNextTask_PicksFirstNotStartedAfterStep(t *testing.T) {
	tasks := []domain.Task{
		{ID: "t1", StepNumber: 1, Status: domain.TaskStatusSuccess},
		{ID: "t2", StepNumber: 2, Status: domain.TaskStatusNotStarted},
		{ID: "t3", StepNumber: 3, Status: domain.TaskStatusNotStarted},
	}

	next := nextTask(tasks, 1)
	require.NotNil(t, next)
	assert.Equal(t, "t2", next.ID)
}

func TestNextTask_SkipsAlreadyPendingOrRunning(t *testing.T) {
	tasks := []domain.Task{
		{ID: "t1", StepNumber: 1, Status: domain.TaskStatusSuccess},
		{ID: "t2", StepNumber: 2, Status: domain.TaskStatusPending},
		{ID: "t3", StepNumber: 3, Status: domain.TaskStatusNotStarted},
	}

	next := nextTask(tasks, 1)
	require.NotNil(t, next)
	assert.Equal(t, "t3", next.ID)
}

func TestNextTask_NoneLeft(t *testing.T) {
	tasks := []domain.Task{
		{ID: "t1", StepNumber: 1, Status: domain.TaskStatusSuccess},
	}
	assert.Nil(t, nextTask(tasks, 1))
}

func TestBuildStepContext(t *testing.T) {
	conversation := []domain.ConversationMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
	}
	tasks := []domain.Task{
		{StepNumber: 1, TaskName: "gather logs", Status: domain.TaskStatusSuccess},
		{StepNumber: 2, TaskName: "restart pod", Status: domain.TaskStatusNotStarted},
	}
	next := &tasks[1]

	out := buildStepContext(conversation, tasks, next)

	assert.Contains(t, out, "[assistant] second")
	// Reverse chronological: the most recent message appears before the first.
	assert.True(t, strIndex(out, "second") < strIndex(out, "first"))
	assert.Contains(t, out, "Step 1: gather logs (success)")
	assert.NotContains(t, out, "Step 2: restart pod")
	assert.Contains(t, out, "Now perform step 2: restart pod")
}

func strIndex(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
