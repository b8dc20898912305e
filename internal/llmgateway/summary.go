package llmgateway

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

const summarySystemPrompt = `You summarize a completed plan for the people who requested it.
Write a short, friendly chat message describing what was done and the outcome. Do not use JSON.`

// SynthesizeSummary asks the chat backend for a final plan summary,
// given the chronological log text built by the engine, per spec.md
// §4.8 step 7.
func (g *Gateway) SynthesizeSummary(ctx context.Context, formattedLogs string) (string, error) {
	completion, err := g.chatOnce(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystemPrompt),
			openai.UserMessage(formattedLogs),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary synthesis call: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("summary synthesis: empty response")
	}
	return completion.Choices[0].Message.Content, nil
}
