// Package chatmsg formats the markdown chat messages the engine posts
// back into the room: plan-created notices, approval requests carrying
// a machine-parseable log reference, and completion summaries.
package chatmsg

import (
	"fmt"
	"strings"

	"github.com/onlysaid/agentd/internal/domain"
)

// logMarkerPrefix/logMarkerSuffix bracket the embedded log reference a
// UI extracts from free-form message text to know which log-id to
// POST back to /api/perform when a user clicks approve.
const (
	logMarkerPrefix = "<!--agentd:log:"
	logMarkerSuffix = "-->"
)

// LogMarker renders the embedded, UI-extractable reference to an
// approval_requested log.
func LogMarker(logID string) string {
	return logMarkerPrefix + logID + logMarkerSuffix
}

// ExtractLogID parses a LogMarker out of free-form message text, or
// returns false if none is present.
func ExtractLogID(content string) (string, bool) {
	start := strings.Index(content, logMarkerPrefix)
	if start < 0 {
		return "", false
	}
	start += len(logMarkerPrefix)
	end := strings.Index(content[start:], logMarkerSuffix)
	if end < 0 {
		return "", false
	}
	return content[start : start+end], true
}

// PlanCreated renders the notification posted right after a Plan is
// written, grounded on the original's format_plan_created_message.
func PlanCreated(planName, planID, planOverview string) string {
	return fmt.Sprintf(
		"A new plan **%s** has been created.\n\n"+
			"| Detail | Value |\n"+
			"|---|---|\n"+
			"| Plan ID | `%s` |\n"+
			"| Overview | %s |\n",
		planName, planID, planOverview,
	)
}

// SkillApproval renders an approval-seeking message for a single
// skill, grounded on the original's seek_approval_message.
func SkillApproval(skill domain.Skill, logID string) string {
	actionName := strings.ReplaceAll(skill.Name, "_", " ")

	var b strings.Builder
	fmt.Fprintf(&b, "I'd like to %s. May I proceed?\n\n", actionName)

	if len(skill.Args) > 0 {
		b.WriteString("| Argument | Value | Description |\n")
		b.WriteString("|---|---|---|\n")
		for name, arg := range skill.Args {
			fmt.Fprintf(&b, "| %s | `%v` | %s |\n", name, arg.Value, arg.Description)
		}
	}

	b.WriteString("\nPlease review and let me know if I can proceed.\n\n")
	b.WriteString(LogMarker(logID))
	return b.String()
}

// TaskApproval renders an approval-seeking message for a task's whole
// skill set, grounded on the original's seek_task_approval_message.
func TaskApproval(task domain.Task, logID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s. May I proceed?\n\n", task.TaskName)
	b.WriteString("| Field | Value |\n|---|---|\n")
	if task.TaskExplanation != "" {
		fmt.Fprintf(&b, "| Explanation | %s |\n", task.TaskExplanation)
	}
	if task.ExpectedResult != "" {
		fmt.Fprintf(&b, "| Expected result | %s |\n", task.ExpectedResult)
	}
	if task.MCPServer != "" {
		fmt.Fprintf(&b, "| MCP server | `%s` |\n", task.MCPServer)
	}
	b.WriteString("\nPlease review and let me know if I can proceed with this task.\n\n")
	b.WriteString(LogMarker(logID))
	return b.String()
}

// PlanCompleted renders the final summary message posted when a plan
// reaches progress 100, per spec.md §4.8 step 7.
func PlanCompleted(summary string) string {
	return fmt.Sprintf("Plan complete.\n\n%s", summary)
}
