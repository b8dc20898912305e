package domain

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusNotStarted TaskStatus = "not_started"
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusRunning    TaskStatus = "running"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
)

// CanTransition reports whether moving from `from` to `to` is a legal
// step in the task's monotonic state machine.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusNotStarted:
		return to == TaskStatusPending
	case TaskStatusPending:
		return to == TaskStatusRunning
	case TaskStatusRunning:
		return to == TaskStatusSuccess || to == TaskStatusFailed
	default:
		return false
	}
}

// Task is one step of a Plan, bound to a single MCP server.
type Task struct {
	ID              string     `json:"id"`
	PlanID          string     `json:"plan_id"`
	StepNumber      int        `json:"step_number"`
	TaskName        string     `json:"task_name"`
	TaskExplanation string     `json:"task_explanation"`
	ExpectedResult  string     `json:"expected_result"`
	MCPServer       string     `json:"mcp_server"`
	Skills          []string   `json:"skills"`
	Status          TaskStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// SkillArg is one enriched argument of a Skill invocation.
type SkillArg struct {
	Value       interface{} `json:"value"`
	Type        string      `json:"type"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Skill is a concrete, immutable tool invocation proposal.
type Skill struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	MCPServer   string              `json:"mcp_server"`
	Description string              `json:"description"`
	Type        string              `json:"type"`
	Args        map[string]SkillArg `json:"args"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// BareArgs strips the envelope of each enriched arg down to a plain
// {name: value} map suitable for an MCP call_tool invocation.
func (s Skill) BareArgs() map[string]interface{} {
	bare := make(map[string]interface{}, len(s.Args))
	for name, arg := range s.Args {
		bare[name] = arg.Value
	}
	return bare
}

// LogType enumerates the PlanLog audit record kinds.
type LogType string

const (
	LogTypePlanCreated       LogType = "plan_created"
	LogTypeApprovalRequested LogType = "approval_requested"
	LogTypePerformingSkill   LogType = "performing_skill"
	LogTypeSkillExecuted     LogType = "skill_executed"
	LogTypeTaskCompleted     LogType = "task_completed"
	LogTypePlanCompleted     LogType = "plan_completed"
	LogTypePlanFailed        LogType = "plan_failed"
)

// PlanLog is an append-only audit/control record. Logs are the only
// approved channel by which an external UI triggers execution: the
// log-id of an approval_requested log is what gets POSTed to perform.
type PlanLog struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"plan_id"`
	TaskID    string    `json:"task_id,omitempty"`
	SkillID   string    `json:"skill_id,omitempty"`
	Type      LogType   `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
