// Package adminhandler implements ask_admin: an owner directive is
// turned directly into Skills awaiting approval against the
// administrative MCP server's tool catalog, bypassing plan synthesis.
package adminhandler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onlysaid/agentd/internal/catalog"
	"github.com/onlysaid/agentd/internal/chatmsg"
	"github.com/onlysaid/agentd/internal/domain"
	"github.com/onlysaid/agentd/internal/llmgateway"
	"github.com/onlysaid/agentd/internal/persistence"
	"github.com/onlysaid/agentd/internal/socketclient"
)

// AdminServerName is the MCP server an owner directive is always
// evaluated against.
const AdminServerName = "onlysaid_admin"

// idleToolName is the sentinel tool call meaning "no action needed".
const idleToolName = "idle"

const adminSystemPrompt = `You are an agent to work with a chatroom's owner, to help them manage their chatroom.

You will be given a conversation history, the chatroom id, its participants, and the owner's message.
Analyze the conversation and the owner's message, and perform an administrative action if one is needed.`

const adminUserPromptTemplate = `Conversation History
%s

Chatroom ID
%s

Chatroom Participants
%s

Owner's Message
%s`

// OwnerMessage mirrors spec.md §4.7's OwnerMessage.
type OwnerMessage struct {
	RoomID       string
	OwnerID      string
	OwnerMessage string
	Trust        bool
}

// Handler synthesizes and persists admin-directed Skills.
type Handler struct {
	persistence   *persistence.Client
	gateway       *llmgateway.Gateway
	catalog       *catalog.Catalog
	socket        *socketclient.Client
	groupByPlanID bool
	logger        *slog.Logger
}

// New builds a Handler. groupByPlanID resolves design note (a): when
// true, actions that name the same plan_id argument are grouped under
// one approval batch instead of each minting its own plan id.
func New(p *persistence.Client, g *llmgateway.Gateway, c *catalog.Catalog, s *socketclient.Client, groupByPlanID bool) *Handler {
	return &Handler{
		persistence:   p,
		gateway:       g,
		catalog:       c,
		socket:        s,
		groupByPlanID: groupByPlanID,
		logger:        slog.Default().With("component", "adminhandler"),
	}
}

// Process runs the full ask_admin flow of spec.md §4.7.
func (h *Handler) Process(ctx context.Context, msg OwnerMessage) error {
	messages, err := h.persistence.GetMessages(ctx, msg.RoomID, 100)
	if err != nil {
		h.logger.Warn("failed to fetch room messages, proceeding with empty history", "error", err)
	}
	users, err := h.persistence.GetRoomUsers(ctx, msg.RoomID)
	if err != nil {
		h.logger.Warn("failed to fetch room participants, proceeding with empty list", "error", err)
	}

	tools, err := h.catalog.FunctionDescriptors(ctx, AdminServerName)
	if err != nil {
		return fmt.Errorf("load admin catalog: %w", err)
	}

	userPrompt := fmt.Sprintf(adminUserPromptTemplate,
		formatConversation(messages), msg.RoomID, formatUsers(users), msg.OwnerMessage)

	lookupSchema := func(name string) (map[string]interface{}, bool) {
		schema, err := h.catalog.ToolSchema(ctx, AdminServerName, name)
		return schema, err == nil
	}

	skills, err := h.gateway.SynthesizeSkills(ctx, AdminServerName, tools, adminSystemPrompt+"\n\n"+userPrompt, lookupSchema)
	if err != nil {
		return fmt.Errorf("synthesize admin skills: %w", err)
	}
	if len(skills) == 0 {
		return nil
	}
	if len(skills) == 1 && skills[0].Name == idleToolName {
		h.logger.Info("admin directive resolved to idle, no action taken")
		return nil
	}

	groups := h.groupActions(skills)

	for planID, group := range groups {
		for _, skill := range group {
			if err := h.approveOne(ctx, msg, planID, skill); err != nil {
				h.logger.Error("failed to raise approval for admin skill", "skill", skill.Name, "error", err)
			}
		}
	}

	if msg.Trust {
		// Direct execution bypassing approval is left unimplemented per
		// spec.md §4.7 note (5); trust is recorded but not acted on.
		h.logger.Warn("trust=true admin directive received, direct execution is not implemented", "room_id", msg.RoomID)
	}
	return nil
}

// groupActions partitions skills by the plan_id carried in their args,
// minting a fresh one per skill when absent or grouping disabled.
func (h *Handler) groupActions(skills []domain.Skill) map[string][]domain.Skill {
	groups := make(map[string][]domain.Skill)
	for _, skill := range skills {
		planID := uuid.NewString()
		if h.groupByPlanID {
			if arg, ok := skill.Args["plan_id"]; ok {
				if s, ok := arg.Value.(string); ok && s != "" {
					planID = s
				}
			}
		}
		groups[planID] = append(groups[planID], skill)
	}
	return groups
}

func (h *Handler) approveOne(ctx context.Context, msg OwnerMessage, planID string, skill domain.Skill) error {
	created, err := h.persistence.CreateSkill(ctx, persistence.CreateSkillRequest{
		Name:        skill.Name,
		MCPServer:   skill.MCPServer,
		Description: skill.Description,
		Type:        skill.Type,
		Args:        skill.Args,
	})
	if err != nil {
		return fmt.Errorf("create skill: %w", err)
	}

	log, err := h.persistence.CreatePlanLog(ctx, persistence.CreatePlanLogRequest{
		Type:    domain.LogTypeApprovalRequested,
		PlanID:  planID,
		SkillID: created.ID,
		Content: fmt.Sprintf("Approval requested for action: %s", created.Name),
	})
	if err != nil {
		return fmt.Errorf("create approval_requested log: %w", err)
	}

	return h.postApprovalMessage(ctx, msg, *created, log.ID)
}

func (h *Handler) postApprovalMessage(ctx context.Context, msg OwnerMessage, skill domain.Skill, logID string) error {
	user, err := h.persistence.GetUserByID(ctx, msg.OwnerID)
	if err != nil {
		return err
	}
	return h.socket.SendMessage(ctx, socketclient.Message{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Format(time.RFC3339),
		Sender:    user,
		Content:   chatmsg.SkillApproval(skill, logID),
		Avatar:    user.Avatar,
		RoomID:    msg.RoomID,
		Mentions:  []interface{}{},
	})
}

func formatConversation(messages []persistence.ChatMessage) string {
	var b strings.Builder
	b.WriteString("CONVERSATION START\n\n")
	for _, m := range messages {
		role := "user"
		if m.Sender == "agent" {
			role = "assistant"
		}
		content := strings.TrimPrefix(m.Content, "@agent")
		fmt.Fprintf(&b, "%s (%s): %s\n", capitalize(role), m.Sender, strings.TrimSpace(content))
	}
	b.WriteString("\nCONVERSATION END")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatUsers(users []persistence.RoomUser) string {
	if len(users) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(users))
	for _, u := range users {
		parts = append(parts, fmt.Sprintf("{user_id: %s, username: %s}", u.ID, u.Username))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
