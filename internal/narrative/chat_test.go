package narrative

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_ModelReply(t *testing.T) {
	m := &fakeModel{out: "```json\n{\"reply\": \"  Happy to help! What slows your sales team down most?  \"}\n```"}
	res := NewGenerator(m).Chat(context.Background(), []ChatMessage{
		{Role: "assistant", Content: "Hi! How can I help?"},
		{Role: "user", Content: "We lose deals to slow follow-up"},
	})

	assert.Equal(t, "Happy to help! What slows your sales team down most?", res.Reply)
	assert.Equal(t, "fake", res.Provider)
	assert.Empty(t, res.Degraded)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "Maru Online AI Assistant")
	assert.Contains(t, m.prompts[0], "Assistant: Hi! How can I help?")
	assert.Contains(t, m.prompts[0], "Visitor: We lose deals to slow follow-up")
}

func TestChat_HistoryIsBounded(t *testing.T) {
	m := &fakeModel{out: `{"reply":"ok"}`}
	history := make([]ChatMessage, 0, maxChatTurns+5)
	for i := 0; i < maxChatTurns+5; i++ {
		history = append(history, ChatMessage{Role: "user", Content: "turn"})
	}
	history[0].Content = "oldest"

	NewGenerator(m).Chat(context.Background(), history)
	assert.NotContains(t, m.prompts[0], "oldest")
}

func TestChat_Fallbacks(t *testing.T) {
	tests := []struct {
		name    string
		model   Model
		message string
		reason  string
		want    string
	}{
		{"no model pricing", nil, "What does it cost?", "no model configured", "R4,950/month"},
		{"no model crm", nil, "Can you fix our CRM?", "no model configured", "Sales Systems Automation"},
		{"lead wins over sales", nil, "I need more leads for sales", "no model configured", "Lead Generation Automation"},
		{"model error", &fakeModel{err: errors.New("HTTP 500")}, "hello", "model request failed", "Maru AI Chatbot"},
		{"empty reply", &fakeModel{out: `{"reply":"  "}`}, "hello", "empty model response", "Maru AI Chatbot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewGenerator(tt.model).Chat(context.Background(), []ChatMessage{{Role: "user", Content: tt.message}})
			assert.Equal(t, ProviderFallback, res.Provider)
			assert.Contains(t, res.Reply, tt.want)
			require.Len(t, res.Degraded, 1)
			assert.Equal(t, tt.reason, res.Degraded[0].Reason)
		})
	}
}

func TestChat_Timeout(t *testing.T) {
	res := NewGenerator(&fakeModel{block: true}, WithTimeout(10*time.Millisecond)).
		Chat(context.Background(), []ChatMessage{{Role: "user", Content: "office paperwork"}})
	assert.Contains(t, res.Reply, "Office Operations Automation")
	assert.Equal(t, "model timed out", res.Degraded[0].Reason)
}
