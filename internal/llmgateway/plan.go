package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/onlysaid/agentd/internal/domain"
)

const planSystemPrompt = `You are a planning assistant for a team of tool-providing assistants.
Given a conversation and a request, produce a strictly JSON plan describing the steps needed to
satisfy the request. Respond with JSON only, matching this shape:
{"plan_name": string, "plan_overview": string, "plan": {"step_1": {"name": string, "assignee": string, "explanation": string, "expected_result": string}, ...}}
If no tools are needed, respond with {"plan_name": "null_plan", "plan_overview": string, "plan": {}}.`

const planUserPromptTemplate = `Conversation so far:
%s

Current datetime: %s

Available assistants: %s

Assistant descriptions and tools:
%s`

// PlanResult is the parsed, decision-ready shape of a plan-synthesis
// response.
type PlanResult struct {
	PlanName       string
	PlanOverview   string
	Steps          map[string]PlanStep
	NoSkillsNeeded bool
	Raw            map[string]interface{}
}

// PlanStep is one entry of the plan's step_N map.
type PlanStep struct {
	Name           string
	Assignee       string
	Explanation    string
	ExpectedResult string
}

// SynthesizePlan calls the chat backend with the plan system/user
// prompts and parses the result, per spec.md §4.3.
func (g *Gateway) SynthesizePlan(ctx context.Context, conversations []domain.ConversationMessage, assistants []string, assistantDescriptions string) (*PlanResult, error) {
	formatted := formatConversation(conversations)
	now := time.Now().Format(time.RFC3339)

	userPrompt := fmt.Sprintf(planUserPromptTemplate, formatted, now, strings.Join(assistants, ", "), assistantDescriptions)

	completion, err := g.chatOnce(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(planSystemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("plan synthesis call: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("plan synthesis: empty response")
	}

	content := completion.Choices[0].Message.Content
	planJSON, ok := extractJSON(content)
	if !ok {
		// LLM protocol error: unparseable JSON plan. Per spec.md §7,
		// degrade to "no plan" rather than failing the request.
		g.logger.Warn("plan synthesis returned unparseable content, degrading to no-plan")
		return &PlanResult{PlanName: "null_plan", NoSkillsNeeded: true, Steps: map[string]PlanStep{}}, nil
	}

	return parsePlanJSON(planJSON), nil
}

func parsePlanJSON(raw map[string]interface{}) *PlanResult {
	result := &PlanResult{
		Raw:   raw,
		Steps: map[string]PlanStep{},
	}

	if v, ok := raw["plan_name"].(string); ok {
		result.PlanName = v
	}
	if v, ok := raw["plan_overview"].(string); ok {
		result.PlanOverview = v
	}
	if v, ok := raw["no_skills_needed"].(bool); ok && v {
		result.NoSkillsNeeded = true
	}
	if strings.EqualFold(result.PlanName, "null_plan") {
		result.NoSkillsNeeded = true
	}

	planField, _ := raw["plan"].(map[string]interface{})
	if len(planField) == 0 {
		result.NoSkillsNeeded = true
		return result
	}

	for key, v := range planField {
		step, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		ps := PlanStep{}
		if s, ok := step["name"].(string); ok {
			ps.Name = s
		}
		if s, ok := step["assignee"].(string); ok {
			ps.Assignee = s
		}
		if s, ok := step["explanation"].(string); ok {
			ps.Explanation = s
		}
		if s, ok := step["expected_result"].(string); ok {
			ps.ExpectedResult = s
		}
		result.Steps[key] = ps
	}
	return result
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON implements the "first try a fenced block, else parse the
// whole body" rule of spec.md §4.3.
func extractJSON(content string) (map[string]interface{}, bool) {
	if m := fencedJSONPattern.FindStringSubmatch(content); m != nil {
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(m[1]), &out); err == nil {
			return out, true
		}
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err == nil {
		return out, true
	}
	return nil, false
}

func formatConversation(msgs []domain.ConversationMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}
