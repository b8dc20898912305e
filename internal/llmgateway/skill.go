package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/onlysaid/agentd/internal/domain"
)

// SchemaLookup resolves a tool's JSON schema by name, used to enrich
// synthesized skill arguments with their declared types.
type SchemaLookup func(toolName string) (map[string]interface{}, bool)

// SynthesizeSkills calls the chat backend with a server's tool catalog
// and forced tool choice, converting each returned function call into
// an enriched Skill, per spec.md §4.3.
func (g *Gateway) SynthesizeSkills(ctx context.Context, server string, tools []domain.FunctionDescriptor, userPrompt string, lookupSchema SchemaLookup) ([]domain.Skill, error) {
	if len(tools) == 0 {
		return nil, fmt.Errorf("no tools available on server %q", server)
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(userPrompt),
		},
		Tools:      toOpenAITools(tools),
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")},
	}

	completion, err := g.chatOnce(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("skill synthesis call: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("skill synthesis: empty response")
	}

	calls := completion.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		// LLM protocol error per spec.md §7: no tool call when one was required.
		return nil, fmt.Errorf("skill synthesis: model returned no tool call despite forced tool choice")
	}

	skillDescByName := make(map[string]string, len(tools))
	for _, t := range tools {
		skillDescByName[t.Function.Name] = t.Function.Description
	}

	now := time.Now()
	skills := make([]domain.Skill, 0, len(calls))
	for _, call := range calls {
		var rawArgs map[string]interface{}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &rawArgs); err != nil {
			rawArgs = map[string]interface{}{}
		}

		schema, _ := lookupSchema(call.Function.Name)
		if schema != nil {
			if err := validateAgainstSchema(schema, rawArgs); err != nil {
				// Schema mismatch per spec.md §7: never refuse the skill,
				// just record that its args didn't match the declared
				// shape — enrichArgs below still falls back to inferred
				// types for anything the schema can't account for.
				g.logger.Warn("tool call arguments did not match declared schema",
					"tool", call.Function.Name, "error", err)
			}
		}

		skills = append(skills, domain.Skill{
			Name:        call.Function.Name,
			MCPServer:   server,
			Description: skillDescByName[call.Function.Name],
			Type:        "function",
			Args:        enrichArgs(rawArgs, schema),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return skills, nil
}

// validateAgainstSchema checks a tool call's arguments against its
// declared JSON Schema. It only reports whether the arguments matched —
// callers never refuse a skill over a mismatch, per spec.md §7.
func validateAgainstSchema(schema map[string]interface{}, args map[string]interface{}) error {
	compiler := jsonschema.NewCompiler()
	const resourceID = "tool-arguments.json"
	if err := compiler.AddResource(resourceID, schema); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return compiled.Validate(args)
}

func toOpenAITools(tools []domain.FunctionDescriptor) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  shared.FunctionParameters(t.Function.Parameters),
		}))
	}
	return out
}

// enrichArgs produces an {value, type, title, description} record per
// argument: the declared schema type when known, else a type inferred
// from the value's native kind — the unknown-arg fallback of spec.md §4.3.
func enrichArgs(raw map[string]interface{}, schema map[string]interface{}) map[string]domain.SkillArg {
	props, _ := schemaProperties(schema)

	out := make(map[string]domain.SkillArg, len(raw))
	for name, value := range raw {
		arg := domain.SkillArg{Value: value}
		if prop, ok := props[name]; ok {
			arg.Type = propertyType(prop)
			if title, ok := prop["title"].(string); ok {
				arg.Title = title
			}
			if desc, ok := prop["description"].(string); ok {
				arg.Description = desc
			}
		} else {
			arg.Type = inferType(value)
		}
		out[name] = arg
	}
	return out
}

func schemaProperties(schema map[string]interface{}) (map[string]map[string]interface{}, bool) {
	if schema == nil {
		return nil, false
	}
	raw, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	out := make(map[string]map[string]interface{}, len(raw))
	for k, v := range raw {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = m
		}
	}
	return out, true
}

func propertyType(prop map[string]interface{}) string {
	t, _ := prop["type"].(string)
	if t == "array" {
		itemType := "unknown"
		if items, ok := prop["items"].(map[string]interface{}); ok {
			if it, ok := items["type"].(string); ok {
				itemType = it
			}
		}
		return fmt.Sprintf("array[%s]", itemType)
	}
	if t == "" {
		return "unknown"
	}
	return t
}

func inferType(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case string:
		return "string"
	default:
		return "unknown"
	}
}
