package adminhandler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlysaid/agentd/internal/domain"
	"github.com/onlysaid/agentd/internal/persistence"
)

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "", capitalize(""))
	assert.Equal(t, "User", capitalize("user"))
	assert.Equal(t, "Assistant", capitalize("assistant"))
}

func TestFormatUsers(t *testing.T) {
	assert.Equal(t, "[]", formatUsers(nil))

	users := []persistence.RoomUser{
		{ID: "u1", Username: "alice"},
		{ID: "u2", Username: "bob"},
	}
	assert.Equal(t, "[{user_id: u1, username: alice}, {user_id: u2, username: bob}]", formatUsers(users))
}

func TestFormatConversation(t *testing.T) {
	messages := []persistence.ChatMessage{
		{Sender: "alice", Content: "@agent ping"},
		{Sender: "agent", Content: "pong"},
	}
	out := formatConversation(messages)

	assert.Contains(t, out, "CONVERSATION START")
	assert.Contains(t, out, "User (alice): ping")
	assert.Contains(t, out, "Assistant (agent): pong")
	assert.Contains(t, out, "CONVERSATION END")
}

func TestGroupActions_GroupingEnabled(t *testing.T) {
	h := &Handler{groupByPlanID: true}

	skills := []domain.Skill{
		{Name: "a", Args: map[string]domain.SkillArg{"plan_id": {Value: "shared-plan"}}},
		{Name: "b", Args: map[string]domain.SkillArg{"plan_id": {Value: "shared-plan"}}},
		{Name: "c", Args: map[string]domain.SkillArg{}},
	}

	groups := h.groupActions(skills)

	require.Contains(t, groups, "shared-plan")
	assert.Len(t, groups["shared-plan"], 2)

	// The third skill has no plan_id arg, so it gets its own generated group.
	require.Len(t, groups, 2)
	for id, g := range groups {
		if id != "shared-plan" {
			assert.Len(t, g, 1)
			assert.Equal(t, "c", g[0].Name)
		}
	}
}

func TestGroupActions_GroupingDisabled(t *testing.T) {
	h := &Handler{groupByPlanID: false}

	skills := []domain.Skill{
		{Name: "a", Args: map[string]domain.SkillArg{"plan_id": {Value: "shared-plan"}}},
		{Name: "b", Args: map[string]domain.SkillArg{"plan_id": {Value: "shared-plan"}}},
	}

	groups := h.groupActions(skills)

	// Grouping disabled: each skill mints its own plan id even though
	// both name the same plan_id argument.
	require.Len(t, groups, 2)
	for _, g := range groups {
		assert.Len(t, g, 1)
	}
}
