// Package llmgateway talks to the two model backends the engine needs:
// an OpenAI-compatible chat/completion API for plan and skill
// synthesis, and an Ollama-compatible embeddings API for the optional
// bypasser path.
package llmgateway

import (
	"context"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/onlysaid/agentd/internal/config"
)

// Gateway wraps the chat backend used for plan and skill synthesis.
type Gateway struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// New builds a Gateway from runtime LLM configuration.
func New(cfg config.LLMConfig) *Gateway {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	)
	return &Gateway{
		client: client,
		model:  cfg.Model,
		logger: slog.Default().With("component", "llmgateway"),
	}
}

// chatOnce sends a chat completion request and returns the raw
// completion. Shared by plan synthesis (no forced tools) and skill
// synthesis (forced tool choice).
func (g *Gateway) chatOnce(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	params.Model = g.model
	return g.client.Chat.Completions.New(ctx, params)
}
