// Package engine implements the approval & execution engine: perform
// resolves an approval_requested log into running skills, records
// their outcomes, advances task/plan state, and either synthesizes
// the next step's skills or finalizes the plan with a summary.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/onlysaid/agentd/internal/catalog"
	"github.com/onlysaid/agentd/internal/chatmsg"
	"github.com/onlysaid/agentd/internal/domain"
	"github.com/onlysaid/agentd/internal/llmgateway"
	"github.com/onlysaid/agentd/internal/masking"
	"github.com/onlysaid/agentd/internal/mcphost"
	"github.com/onlysaid/agentd/internal/persistence"
	"github.com/onlysaid/agentd/internal/socketclient"
)

// ErrAlreadyProcessed signals that a log no longer references a
// pending task and perform should be rejected upstream (spec.md §4.8
// idempotency note).
var ErrAlreadyProcessed = fmt.Errorf("engine: log's task is no longer pending")

// Engine drives perform(log_id).
type Engine struct {
	persistence *persistence.Client
	gateway     *llmgateway.Gateway
	catalog     *catalog.Catalog
	host        *mcphost.Host
	socket      *socketclient.Client
	masker      *masking.Service
	logger      *slog.Logger
}

// New builds an Engine.
func New(p *persistence.Client, g *llmgateway.Gateway, c *catalog.Catalog, h *mcphost.Host, s *socketclient.Client, m *masking.Service) *Engine {
	return &Engine{persistence: p, gateway: g, catalog: c, host: h, socket: s, masker: m, logger: slog.Default().With("component", "engine")}
}

// Perform runs the full advance-plan flow of spec.md §4.8.
func (e *Engine) Perform(ctx context.Context, logID string) error {
	log, err := e.persistence.GetPlanLog(ctx, logID)
	if err != nil {
		return fmt.Errorf("load log %s: %w", logID, err)
	}

	task, skills, err := e.resolveTaskAndSkills(ctx, log)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskStatusPending {
		return ErrAlreadyProcessed
	}

	if err := e.persistence.UpdateTask(ctx, persistence.UpdateTaskRequest{
		TaskID:    task.ID,
		Status:    domain.TaskStatusRunning,
		StartTime: time.Now().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}

	for _, skill := range skills {
		e.appendLog(ctx, log.PlanID, task.ID, skill.ID, domain.LogTypePerformingSkill,
			fmt.Sprintf("Performing %s on %s", skill.Name, skill.MCPServer))
	}

	results := e.executeSkills(ctx, skills)

	allSucceeded := true
	for i, skill := range skills {
		result := results[i]
		e.appendLog(ctx, log.PlanID, task.ID, skill.ID, domain.LogTypeSkillExecuted, result.text)
		if result.isError {
			allSucceeded = false
		}
	}

	finalStatus := domain.TaskStatusSuccess
	if !allSucceeded {
		finalStatus = domain.TaskStatusFailed
	}
	if err := e.persistence.UpdateTask(ctx, persistence.UpdateTaskRequest{
		TaskID:      task.ID,
		Status:      finalStatus,
		CompletedAt: time.Now().Format(time.RFC3339),
	}); err != nil {
		e.logger.Error("failed to record task completion", "task_id", task.ID, "error", err)
	}

	return e.advancePlan(ctx, log.PlanID, task)
}

func (e *Engine) resolveTaskAndSkills(ctx context.Context, log *domain.PlanLog) (*domain.Task, []domain.Skill, error) {
	if log.TaskID == "" {
		return nil, nil, fmt.Errorf("log %s has no task_id", log.ID)
	}
	task, err := e.persistence.GetTask(ctx, log.TaskID)
	if err != nil {
		return nil, nil, fmt.Errorf("load task %s: %w", log.TaskID, err)
	}

	var ids []string
	if log.SkillID != "" {
		ids = []string{log.SkillID}
	} else {
		ids = task.Skills
	}

	skills := make([]domain.Skill, 0, len(ids))
	for _, id := range ids {
		skill, err := e.persistence.GetSkill(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load skill %s: %w", id, err)
		}
		skills = append(skills, *skill)
	}
	return task, skills, nil
}

type skillResult struct {
	text    string
	isError bool
}

// executeSkills invokes every skill in parallel against its declared
// mcp_server. A subprocess tool error fails that skill's result but
// never aborts the siblings (spec.md §7's subprocess-tool-error class).
func (e *Engine) executeSkills(ctx context.Context, skills []domain.Skill) []skillResult {
	results := make([]skillResult, len(skills))

	g, gctx := errgroup.WithContext(ctx)
	for i, skill := range skills {
		i, skill := i, skill
		g.Go(func() error {
			result, err := e.host.CallTool(gctx, skill.MCPServer, skill.Name, skill.BareArgs())
			if err != nil {
				results[i] = skillResult{text: err.Error(), isError: true}
				return nil
			}
			text := mcphost.ExtractTextContent(result)
			if e.masker != nil {
				text = e.masker.MaskToolResult(text, skill.MCPServer)
			}
			results[i] = skillResult{text: text, isError: result.IsError}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) appendLog(ctx context.Context, planID, taskID, skillID string, typ domain.LogType, content string) {
	if _, err := e.persistence.CreatePlanLog(ctx, persistence.CreatePlanLogRequest{
		Type:    typ,
		PlanID:  planID,
		TaskID:  taskID,
		SkillID: skillID,
		Content: content,
	}); err != nil {
		e.logger.Error("failed to append log", "type", typ, "plan_id", planID, "error", err)
	}
}

// advancePlan recomputes progress, then either finalizes the plan with
// a summary or synthesizes the next step's skills, per spec.md §4.8
// steps 6-8.
func (e *Engine) advancePlan(ctx context.Context, planID string, completedTask *domain.Task) error {
	tasks, err := e.persistence.GetTasks(ctx, planID)
	if err != nil {
		return fmt.Errorf("load tasks for plan %s: %w", planID, err)
	}

	progress := domain.ComputeProgress(tasks)
	status := domain.PlanStatusRunning
	if progress == 100 {
		status = domain.FinalPlanStatus(tasks)
	}

	update := persistence.UpdatePlanRequest{PlanID: planID, Status: status, Progress: &progress}
	if progress == 100 {
		update.CompletedAt = time.Now().Format(time.RFC3339)
	}
	if err := e.persistence.UpdatePlan(ctx, update); err != nil {
		e.logger.Error("failed to update plan progress", "plan_id", planID, "error", err)
	}

	if progress == 100 {
		return e.finalizePlan(ctx, planID)
	}
	return e.advanceNextTask(ctx, planID, tasks, completedTask)
}

func (e *Engine) finalizePlan(ctx context.Context, planID string) error {
	logs, err := e.persistence.GetPlanLogs(ctx, planID)
	if err != nil {
		return fmt.Errorf("load logs for summary: %w", err)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })

	var b strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", l.CreatedAt.Format(time.RFC3339), l.Type, l.Content)
	}

	summary, err := e.gateway.SynthesizeSummary(ctx, b.String())
	if err != nil {
		e.logger.Error("failed to synthesize plan summary", "plan_id", planID, "error", err)
		summary = "Plan complete."
	}

	e.appendLog(ctx, planID, "", "", domain.LogTypePlanCompleted, summary)

	plan, err := e.persistence.GetPlanByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("load plan %s for completion message: %w", planID, err)
	}
	user, err := e.persistence.GetUserByID(ctx, plan.Assignee)
	if err != nil {
		return fmt.Errorf("load assignee %s: %w", plan.Assignee, err)
	}
	return e.socket.SendMessage(ctx, socketclient.Message{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Format(time.RFC3339),
		Sender:    user,
		Content:   chatmsg.PlanCompleted(summary),
		Avatar:    user.Avatar,
		RoomID:    plan.RoomID,
		Mentions:  []interface{}{},
	})
}

// advanceNextTask finds the task following completedTask by
// step_number and not yet pending/running/terminal, synthesizes its
// skills, and raises a new approval.
func (e *Engine) advanceNextTask(ctx context.Context, planID string, tasks []domain.Task, completedTask *domain.Task) error {
	next := nextTask(tasks, completedTask.StepNumber)
	if next == nil {
		return nil
	}

	plan, err := e.persistence.GetPlanByID(ctx, planID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", planID, err)
	}

	userPrompt := buildStepContext(plan.Context.Conversations, tasks, next)

	tools, err := e.catalog.FunctionDescriptors(ctx, next.MCPServer)
	if err != nil {
		return fmt.Errorf("load catalog for %s: %w", next.MCPServer, err)
	}
	lookupSchema := func(name string) (map[string]interface{}, bool) {
		schema, err := e.catalog.ToolSchema(ctx, next.MCPServer, name)
		return schema, err == nil
	}

	skills, err := e.gateway.SynthesizeSkills(ctx, next.MCPServer, tools, userPrompt, lookupSchema)
	if err != nil {
		// LLM protocol error for skill synthesis is surfaced, not
		// degraded, per spec.md §7's error taxonomy.
		return fmt.Errorf("synthesize next step skills: %w", err)
	}

	ids := make([]string, 0, len(skills))
	for _, skill := range skills {
		created, err := e.persistence.CreateSkill(ctx, persistence.CreateSkillRequest{
			Name:        skill.Name,
			MCPServer:   skill.MCPServer,
			Description: skill.Description,
			Type:        skill.Type,
			Args:        skill.Args,
		})
		if err != nil {
			return fmt.Errorf("create skill for next step: %w", err)
		}
		ids = append(ids, created.ID)
	}

	if err := e.persistence.UpdateTask(ctx, persistence.UpdateTaskRequest{
		TaskID: next.ID,
		Status: domain.TaskStatusPending,
		Skills: ids,
	}); err != nil {
		return fmt.Errorf("update next task: %w", err)
	}

	log, err := e.persistence.CreatePlanLog(ctx, persistence.CreatePlanLogRequest{
		Type:    domain.LogTypeApprovalRequested,
		PlanID:  planID,
		TaskID:  next.ID,
		Content: fmt.Sprintf("Approval requested for task: %s", next.TaskName),
	})
	if err != nil {
		return fmt.Errorf("create approval_requested log: %w", err)
	}

	user, err := e.persistence.GetUserByID(ctx, plan.Assignee)
	if err != nil {
		return fmt.Errorf("load assignee %s: %w", plan.Assignee, err)
	}
	return e.socket.SendMessage(ctx, socketclient.Message{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().Format(time.RFC3339),
		Sender:    user,
		Content:   chatmsg.TaskApproval(*next, log.ID),
		Avatar:    user.Avatar,
		RoomID:    plan.RoomID,
		Mentions:  []interface{}{},
	})
}

func nextTask(tasks []domain.Task, afterStep int) *domain.Task {
	sorted := make([]domain.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StepNumber < sorted[j].StepNumber })

	for i := range sorted {
		if sorted[i].StepNumber > afterStep && sorted[i].Status == domain.TaskStatusNotStarted {
			return &sorted[i]
		}
	}
	return nil
}

// buildStepContext renders the background prompt for next-step skill
// synthesis: the conversation in reverse chronological order, then
// prior steps' logs as "Step k: ...", per spec.md §4.8 step 8.
func buildStepContext(conversation []domain.ConversationMessage, tasks []domain.Task, next *domain.Task) string {
	var b strings.Builder
	b.WriteString("Conversation (most recent first):\n")
	for i := len(conversation) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "[%s] %s\n", conversation[i].Role, conversation[i].Content)
	}

	b.WriteString("\nPrior steps:\n")
	sorted := make([]domain.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StepNumber < sorted[j].StepNumber })
	for _, t := range sorted {
		if t.StepNumber >= next.StepNumber {
			continue
		}
		fmt.Fprintf(&b, "Step %d: %s (%s)\n", t.StepNumber, t.TaskName, t.Status)
	}

	fmt.Fprintf(&b, "\nNow perform step %d: %s\nExpected result: %s\n", next.StepNumber, next.TaskName, next.ExpectedResult)
	return b.String()
}
