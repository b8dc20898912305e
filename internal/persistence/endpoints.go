package persistence

import (
	"context"
	"fmt"

	"github.com/onlysaid/agentd/internal/domain"
)

// ChatMessage is the shape returned by chat/get_messages.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// GetMessages fetches up to `limit` recent messages for a room.
func (c *Client) GetMessages(ctx context.Context, roomID string, limit int) ([]ChatMessage, error) {
	var out []ChatMessage
	err := c.post(ctx, "/api/chat/get_messages", map[string]interface{}{
		"roomId": roomID,
		"limit":  limit,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}

// User is the shape returned by user/get_user_by_id.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// GetUserByID resolves a user for message sender/avatar payloads.
func (c *Client) GetUserByID(ctx context.Context, id string) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/api/user/get_user_by_id?id="+id, &out); err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &out.User, nil
}

// RoomUser is one entry of chat/get_users's participant list.
type RoomUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// GetRoomUsers fetches every participant of a room, used by the admin
// handler to describe chatroom participants to the LLM.
func (c *Client) GetRoomUsers(ctx context.Context, roomID string) ([]RoomUser, error) {
	var out struct {
		Users []RoomUser `json:"users"`
	}
	err := c.post(ctx, "/api/user/get_users", map[string]interface{}{
		"room_id": roomID,
		"limit":   50,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("get room users for %s: %w", roomID, err)
	}
	return out.Users, nil
}

// CreatePlanRequest is the payload of plan/create_plan.
type CreatePlanRequest struct {
	ID             string             `json:"id"`
	PlanName       string             `json:"plan_name"`
	PlanOverview   string             `json:"plan_overview"`
	RoomID         string             `json:"room_id"`
	Context        domain.PlanContext `json:"context"`
	Assigner       string             `json:"assigner"`
	Assignee       string             `json:"assignee"`
	Reviewer       string             `json:"reviewer,omitempty"`
	NoSkillsNeeded bool               `json:"no_skills_needed"`
}

// CreatePlan persists a new Plan record.
func (c *Client) CreatePlan(ctx context.Context, req CreatePlanRequest) (*domain.Plan, error) {
	var out struct {
		Plan domain.Plan `json:"plan"`
	}
	if err := c.post(ctx, "/api/plan/create_plan", req, &out); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return &out.Plan, nil
}

// UpdatePlanRequest is the payload of plan/update_plan. Only non-zero
// fields are meaningful to the persistence service.
type UpdatePlanRequest struct {
	PlanID      string            `json:"plan_id"`
	Status      domain.PlanStatus `json:"status,omitempty"`
	Progress    *int              `json:"progress,omitempty"`
	CompletedAt string            `json:"completed_at,omitempty"`
	Logs        []string          `json:"logs,omitempty"`
}

// UpdatePlan patches a Plan record.
func (c *Client) UpdatePlan(ctx context.Context, req UpdatePlanRequest) error {
	if err := c.put(ctx, "/api/plan/update_plan", req, nil); err != nil {
		return fmt.Errorf("update plan %s: %w", req.PlanID, err)
	}
	return nil
}

// GetPlanByID fetches a single plan, including its context blob — used
// by task synthesis to backfill explanation/expected_result.
func (c *Client) GetPlanByID(ctx context.Context, planID string) (*domain.Plan, error) {
	var out struct {
		Plan domain.Plan `json:"plan"`
	}
	if err := c.get(ctx, "/api/plan/get_plan_by_id?id="+planID, &out); err != nil {
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}
	return &out.Plan, nil
}

// GetTasks fetches every task belonging to a plan.
func (c *Client) GetTasks(ctx context.Context, planID string) ([]domain.Task, error) {
	var out struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := c.get(ctx, "/api/plan/get_tasks?plan_id="+planID, &out); err != nil {
		return nil, fmt.Errorf("get tasks for plan %s: %w", planID, err)
	}
	return out.Tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var out struct {
		Task domain.Task `json:"task"`
	}
	if err := c.get(ctx, "/api/plan/get_task?id="+taskID, &out); err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return &out.Task, nil
}

// UpdateTaskRequest is the payload of plan/update_task.
type UpdateTaskRequest struct {
	TaskID      string            `json:"task_id"`
	Status      domain.TaskStatus `json:"status,omitempty"`
	Skills      []string          `json:"skills,omitempty"`
	StartTime   string            `json:"start_time,omitempty"`
	CompletedAt string            `json:"completed_at,omitempty"`
}

// UpdateTask patches a Task record.
func (c *Client) UpdateTask(ctx context.Context, req UpdateTaskRequest) error {
	if err := c.put(ctx, "/api/plan/update_task", req, nil); err != nil {
		return fmt.Errorf("update task %s: %w", req.TaskID, err)
	}
	return nil
}

// CreateTasksRequest is the payload of plan/create_tasks.
type CreateTasksRequest struct {
	PlanID string        `json:"plan_id"`
	Tasks  []domain.Task `json:"tasks"`
}

// CreateTasks persists the plan's derived task set.
func (c *Client) CreateTasks(ctx context.Context, req CreateTasksRequest) ([]domain.Task, error) {
	var out struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := c.post(ctx, "/api/plan/create_tasks", req, &out); err != nil {
		return nil, fmt.Errorf("create tasks for plan %s: %w", req.PlanID, err)
	}
	return out.Tasks, nil
}

// CreatePlanLogRequest is the payload of plan/create_plan_log.
type CreatePlanLogRequest struct {
	Type    domain.LogType `json:"type"`
	PlanID  string         `json:"plan_id"`
	TaskID  string         `json:"task_id,omitempty"`
	SkillID string         `json:"skill_id,omitempty"`
	Content string         `json:"content"`
}

// CreatePlanLog appends a PlanLog — the only channel by which an
// approval_requested log becomes externally approvable, per spec.md §3.
func (c *Client) CreatePlanLog(ctx context.Context, req CreatePlanLogRequest) (*domain.PlanLog, error) {
	var out struct {
		Log domain.PlanLog `json:"log"`
	}
	if err := c.post(ctx, "/api/plan/create_plan_log", req, &out); err != nil {
		return nil, fmt.Errorf("create plan log: %w", err)
	}
	return &out.Log, nil
}

// GetPlanLog fetches a single log by id, the entry point for perform(log_id).
func (c *Client) GetPlanLog(ctx context.Context, logID string) (*domain.PlanLog, error) {
	var out struct {
		Log domain.PlanLog `json:"log"`
	}
	if err := c.get(ctx, "/api/plan/get_plan_log?id="+logID, &out); err != nil {
		return nil, fmt.Errorf("get plan log %s: %w", logID, err)
	}
	return &out.Log, nil
}

// CreateSkillRequest is the payload of skill/create_skill.
type CreateSkillRequest struct {
	Name        string                     `json:"name"`
	MCPServer   string                     `json:"mcp_server"`
	Description string                     `json:"description"`
	Type        string                     `json:"type"`
	Args        map[string]domain.SkillArg `json:"args"`
}

// CreateSkill persists a Skill record.
func (c *Client) CreateSkill(ctx context.Context, req CreateSkillRequest) (*domain.Skill, error) {
	var out struct {
		Skill domain.Skill `json:"skill"`
	}
	if err := c.post(ctx, "/api/skill/create_skill", req, &out); err != nil {
		return nil, fmt.Errorf("create skill: %w", err)
	}
	return &out.Skill, nil
}

// GetPlanLogs fetches every log belonging to a plan, used to build the
// chronological context for the completion summary.
func (c *Client) GetPlanLogs(ctx context.Context, planID string) ([]domain.PlanLog, error) {
	var out struct {
		Logs []domain.PlanLog `json:"logs"`
	}
	if err := c.get(ctx, "/api/plan/get_plan_logs?plan_id="+planID, &out); err != nil {
		return nil, fmt.Errorf("get plan logs for %s: %w", planID, err)
	}
	return out.Logs, nil
}

// GetSkill fetches a single skill by id.
func (c *Client) GetSkill(ctx context.Context, skillID string) (*domain.Skill, error) {
	var out struct {
		Skill domain.Skill `json:"skill"`
	}
	if err := c.get(ctx, "/api/skill/get_skill?id="+skillID, &out); err != nil {
		return nil, fmt.Errorf("get skill %s: %w", skillID, err)
	}
	return &out.Skill, nil
}
