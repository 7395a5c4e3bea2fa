// Package narrative asks an LLM for the human-readable parts of an
// assessment and falls back to fixed copy whenever the model cannot help.
package narrative

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/maruonline/leadgen/pkg/anthropic"
)

// Model generates text from a system prompt and a user prompt.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

const defaultMaxTokens = 3000

// GeminiModel drives Google Gemini through langchaingo in JSON mode.
type GeminiModel struct {
	llm   llms.Model
	model string
}

// NewGeminiModel creates a Gemini-backed Model.
func NewGeminiModel(ctx context.Context, apiKey, model string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, eris.New("narrative: gemini api key required")
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, eris.Wrap(err, "narrative: create gemini model")
	}
	return &GeminiModel{llm: llm, model: model}, nil
}

// NewGeminiModelFromLLM wraps an existing langchaingo model.
func NewGeminiModelFromLLM(llm llms.Model, model string) *GeminiModel {
	return &GeminiModel{llm: llm, model: model}
}

// Name implements Model.
func (m *GeminiModel) Name() string { return "gemini" }

// Generate implements Model. The system prompt is prepended to the user
// prompt because Gemini has no separate system turn in single-prompt mode.
func (m *GeminiModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	full := prompt
	if system != "" {
		full = system + "\n\n" + prompt
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, m.llm, full,
		llms.WithModel(m.model),
		llms.WithJSONMode(),
		llms.WithMaxTokens(defaultMaxTokens),
	)
	if err != nil {
		return "", eris.Wrap(err, "narrative: gemini generate")
	}
	return out, nil
}

// AnthropicModel drives Claude through pkg/anthropic.
type AnthropicModel struct {
	client anthropic.Client
	model  string
}

// NewAnthropicModel creates a Claude-backed Model.
func NewAnthropicModel(client anthropic.Client, model string) *AnthropicModel {
	return &AnthropicModel{client: client, model: model}
}

// Name implements Model.
func (m *AnthropicModel) Name() string { return "anthropic" }

// Generate implements Model.
func (m *AnthropicModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := m.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     m.model,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "narrative: anthropic generate")
	}
	resp.Usage.LogCost(m.model, "narrative")
	return resp.Text(), nil
}
