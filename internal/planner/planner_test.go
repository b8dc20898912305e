package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlysaid/agentd/internal/domain"
	"github.com/onlysaid/agentd/internal/llmgateway"
	"github.com/onlysaid/agentd/internal/persistence"
)

func TestNormalizeConversation(t *testing.T) {
	messages := []persistence.ChatMessage{
		{Sender: "alice", Content: "hello"},
		{Sender: "agent", Content: "hi there"},
	}

	out := normalizeConversation(messages, "@agent please help")

	require.Len(t, out, 3)
	assert.Equal(t, domain.ConversationMessage{Role: "user", Content: "hello"}, out[0])
	assert.Equal(t, domain.ConversationMessage{Role: "assistant", Content: "hi there"}, out[1])
	assert.Equal(t, domain.ConversationMessage{Role: "user", Content: " please help"}, out[2])
}

func TestNormalizeConversation_EmptyHistory(t *testing.T) {
	out := normalizeConversation(nil, "do the thing")
	require.Len(t, out, 1)
	assert.Equal(t, "do the thing", out[0].Content)
}

func TestDeriveTasks(t *testing.T) {
	plan := &llmgateway.PlanResult{
		Steps: map[string]llmgateway.PlanStep{
			"step_2": {Name: "second", Assignee: "runbook_server", Explanation: "do second", ExpectedResult: "done"},
			"step_1": {Name: "first", Assignee: "k8s_server", Explanation: "do first", ExpectedResult: "done"},
			"step_3": {Name: "skipped", Assignee: "none"},
			"step_4": {Name: "also skipped", Assignee: ""},
		},
	}

	tasks := deriveTasks(plan, "plan-1")

	require.Len(t, tasks, 2)
	assert.Equal(t, 1, tasks[0].StepNumber)
	assert.Equal(t, "first", tasks[0].TaskName)
	assert.Equal(t, "k8s_server", tasks[0].MCPServer)
	assert.Equal(t, domain.TaskStatusNotStarted, tasks[0].Status)
	assert.Equal(t, "plan-1", tasks[0].PlanID)
	assert.Empty(t, tasks[0].Skills)

	assert.Equal(t, 2, tasks[1].StepNumber)
	assert.Equal(t, "second", tasks[1].TaskName)
}

func TestDeriveTasks_NoSteps(t *testing.T) {
	plan := &llmgateway.PlanResult{Steps: map[string]llmgateway.PlanStep{}}
	assert.Empty(t, deriveTasks(plan, "plan-1"))
}

func TestDeriveTasks_AllAssigneesNone(t *testing.T) {
	plan := &llmgateway.PlanResult{
		Steps: map[string]llmgateway.PlanStep{
			"step_1": {Name: "x", Assignee: "None"},
		},
	}
	assert.Empty(t, deriveTasks(plan, "plan-1"))
}

func TestStepIndex(t *testing.T) {
	n, err := stepIndex("step_7")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = stepIndex("malformed")
	assert.Error(t, err)
}
