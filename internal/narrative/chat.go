package narrative

import (
	"context"
	_ "embed"
	"strings"

	"github.com/maruonline/leadgen/internal/model"
)

//go:embed chat_prompt.md
var chatSystem string

// maxChatTurns bounds how much history is sent to the model.
const maxChatTurns = 20

// ChatMessage is one turn of a website chat.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is the assistant's reply plus its provenance.
type ChatResult struct {
	Reply    string
	Provider string
	Degraded []model.Degradation
}

func chatPrompt(history []ChatMessage) string {
	if len(history) > maxChatTurns {
		history = history[len(history)-maxChatTurns:]
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n\n")
	for _, m := range history {
		speaker := "Visitor"
		if m.Role == "assistant" {
			speaker = "Assistant"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n\n")
	}
	b.WriteString("Write the assistant's next reply.")
	return b.String()
}

// Chat answers the last visitor message. Without a model, or when the model
// fails, a canned reply matched on the last message is served instead.
func (g *Generator) Chat(ctx context.Context, history []ChatMessage) ChatResult {
	var last string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "assistant" {
			last = history[i].Content
			break
		}
	}

	var wire struct {
		Reply string `json:"reply"`
	}
	reason := g.generateJSON(ctx, chatSystem, chatPrompt(history), &wire)
	if reason == "" && strings.TrimSpace(wire.Reply) == "" {
		reason = "empty model response"
	}
	if reason != "" {
		return ChatResult{
			Reply:    FallbackChatReply(last),
			Provider: ProviderFallback,
			Degraded: []model.Degradation{{Stage: stage, Reason: reason}},
		}
	}
	return ChatResult{Reply: strings.TrimSpace(wire.Reply), Provider: g.Provider()}
}
