// Package planner implements the create_plan flow: synthesize a plan
// from a room's conversation, persist it, and derive its tasks.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
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

// Request mirrors spec.md §4.6's PlanRequest.
type Request struct {
	RoomID   string
	Query    string
	Summoner string
	Assigner string
	Assignee string
	Reviewer string
}

// Planner drives plan synthesis, persistence, and task derivation.
type Planner struct {
	persistence *persistence.Client
	gateway     *llmgateway.Gateway
	catalog     *catalog.Catalog
	socket      *socketclient.Client
	logger      *slog.Logger
}

// New builds a Planner.
func New(p *persistence.Client, g *llmgateway.Gateway, c *catalog.Catalog, s *socketclient.Client) *Planner {
	return &Planner{persistence: p, gateway: g, catalog: c, socket: s, logger: slog.Default().With("component", "planner")}
}

// CreatePlan runs the full flow of spec.md §4.6.
func (p *Planner) CreatePlan(ctx context.Context, req Request) error {
	// Step 1: fetch messages, normalize roles, strip @agent, append query.
	messages, err := p.persistence.GetMessages(ctx, req.RoomID, 100)
	if err != nil {
		p.logger.Warn("failed to fetch room messages, proceeding with empty history", "error", err)
	}
	conversations := normalizeConversation(messages, req.Query)

	// Step 2: LLM plan synthesis.
	assistants, descriptions, err := p.assistantCatalog(ctx)
	if err != nil {
		return fmt.Errorf("load assistant catalog: %w", err)
	}
	plan, err := p.gateway.SynthesizePlan(ctx, conversations, assistants, descriptions)
	if err != nil {
		return fmt.Errorf("synthesize plan: %w", err)
	}

	planID := uuid.NewString()

	// Step 3: POST the Plan record.
	created, err := p.persistence.CreatePlan(ctx, persistence.CreatePlanRequest{
		ID:           planID,
		PlanName:     plan.PlanName,
		PlanOverview: plan.PlanOverview,
		RoomID:       req.RoomID,
		Context: domain.PlanContext{
			Plan:          plan.Raw,
			Conversations: conversations,
			Query:         req.Query,
		},
		Assigner:       req.Assigner,
		Assignee:       req.Assignee,
		Reviewer:       req.Reviewer,
		NoSkillsNeeded: plan.NoSkillsNeeded,
	})
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}

	// Step 4: plan_created log.
	log, err := p.persistence.CreatePlanLog(ctx, persistence.CreatePlanLogRequest{
		Type:    domain.LogTypePlanCreated,
		PlanID:  created.ID,
		Content: fmt.Sprintf("Plan **%s** has been created", plan.PlanName),
	})
	if err != nil {
		return fmt.Errorf("create plan_created log: %w", err)
	}
	if err := p.persistence.UpdatePlan(ctx, persistence.UpdatePlanRequest{PlanID: created.ID, Logs: []string{log.ID}}); err != nil {
		p.logger.Warn("failed to link plan_created log onto plan", "error", err)
	}

	// Step 5: fetch assignee, post chat notification.
	if err := p.postPlanCreatedMessage(ctx, req, created, plan.PlanOverview); err != nil {
		p.logger.Warn("failed to post plan_created chat message", "error", err)
	}

	// Step 6: derive and persist tasks.
	tasks := deriveTasks(plan, created.ID)
	if len(tasks) == 0 {
		return p.markPlanAutoSuccess(ctx, created.ID)
	}

	if _, err := p.persistence.CreateTasks(ctx, persistence.CreateTasksRequest{PlanID: created.ID, Tasks: tasks}); err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}
	return nil
}

func (p *Planner) assistantCatalog(ctx context.Context) ([]string, string, error) {
	desc, err := p.catalog.FormatServerDescriptions(ctx)
	if err != nil {
		return nil, "", err
	}
	var names []string
	for _, line := range strings.Split(desc, "\n") {
		if strings.HasPrefix(line, "## ") {
			names = append(names, strings.TrimPrefix(line, "## "))
		}
	}
	return names, desc, nil
}

func (p *Planner) postPlanCreatedMessage(ctx context.Context, req Request, plan *domain.Plan, overview string) error {
	user, err := p.persistence.GetUserByID(ctx, req.Assignee)
	if err != nil {
		return err
	}
	msg := socketclient.Message{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Format(time.RFC3339),
		Sender:    user,
		Content:   chatmsg.PlanCreated(plan.PlanName, plan.ID, overview),
		Avatar:    user.Avatar,
		RoomID:    req.RoomID,
		Mentions:  []interface{}{},
	}
	return p.socket.SendMessage(ctx, msg)
}

func (p *Planner) markPlanAutoSuccess(ctx context.Context, planID string) error {
	progress := 100
	return p.persistence.UpdatePlan(ctx, persistence.UpdatePlanRequest{
		PlanID:      planID,
		Status:      domain.PlanStatusSuccess,
		Progress:    &progress,
		CompletedAt: time.Now().Format(time.RFC3339),
	})
}

func normalizeConversation(messages []persistence.ChatMessage, query string) []domain.ConversationMessage {
	out := make([]domain.ConversationMessage, 0, len(messages)+1)
	for _, m := range messages {
		role := "user"
		if m.Sender == "agent" {
			role = "assistant"
		}
		out = append(out, domain.ConversationMessage{Role: role, Content: m.Content})
	}
	cleaned := strings.ReplaceAll(query, "@agent", "")
	out = append(out, domain.ConversationMessage{Role: "user", Content: cleaned})
	return out
}

// deriveTasks implements spec.md §4.6's task-derivation rule: sorted
// step_* keys, 1-based step_number, steps with an absent/"none"
// assignee are skipped.
func deriveTasks(plan *llmgateway.PlanResult, planID string) []domain.Task {
	keys := make([]string, 0, len(plan.Steps))
	for k := range plan.Steps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now()
	var tasks []domain.Task
	stepNum := 0
	for _, key := range keys {
		step := plan.Steps[key]
		if step.Assignee == "" || strings.EqualFold(step.Assignee, "none") {
			continue
		}
		stepNum++
		tasks = append(tasks, domain.Task{
			ID:              uuid.NewString(),
			PlanID:          planID,
			StepNumber:      stepNum,
			TaskName:        step.Name,
			TaskExplanation: step.Explanation,
			ExpectedResult:  step.ExpectedResult,
			MCPServer:       step.Assignee,
			Skills:          []string{},
			Status:          domain.TaskStatusNotStarted,
			CreatedAt:       now,
		})
	}
	return tasks
}

// stepIndex parses the numeric suffix of a "step_N" key, used only to
// validate manifest-derived ordering in tests.
func stepIndex(key string) (int, error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed step key %q", key)
	}
	return strconv.Atoi(parts[1])
}
