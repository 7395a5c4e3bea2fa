package narrative

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/resilience"
	"github.com/maruonline/leadgen/internal/scorer"
	"github.com/maruonline/leadgen/pkg/anthropic"
)

type fakeModel struct {
	mu      sync.Mutex
	out     string
	err     error
	block   bool
	calls   int
	prompts []string
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, system+"\n"+prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.out, f.err
}

func websiteInput() WebsiteInput {
	return WebsiteInput{
		URL:        "https://acme.com",
		Company:    "Acme",
		Challenges: []string{"Low traffic", "No follow-up system"},
		Snapshot:   model.ScrapeSnapshot{Title: "Acme Anvils", Technologies: []string{"WordPress"}},
		Score:      59,
		Subscores:  scorer.Subscores{WebsiteQuality: 21, ConversionPoints: 11, LeadCapture: 11, FollowupSystem: 14},
	}
}

func TestWebsite_ParsesFlatJSON(t *testing.T) {
	m := &fakeModel{out: "```json\n" + `{
		"strengths": ["s1", "s2", "s3", "s4", "s5"],
		"gaps": ["g1", "g2", "g3", "g4"],
		"phase1": ["a"], "phase2": ["b"], "phase3": ["c"]
	}` + "\n```"}

	res := NewGenerator(m).Website(context.Background(), websiteInput())

	assert.Equal(t, "fake", res.Provider)
	assert.Empty(t, res.Degraded)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, res.Narrative.Strengths)
	assert.Equal(t, []string{"g1", "g2", "g3", "g4"}, res.Narrative.Gaps)
	assert.Equal(t, Phases{Phase1: []string{"a"}, Phase2: []string{"b"}, Phase3: []string{"c"}}, res.Narrative.Recommendations)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "WEBSITE: https://acme.com")
	assert.Contains(t, m.prompts[0], "Total Score: 59/100")
	assert.Contains(t, m.prompts[0], "- Follow-up System: 14/25")
	assert.Contains(t, m.prompts[0], "CHALLENGES: Low traffic, No follow-up system")
	assert.Contains(t, m.prompts[0], "Technologies: WordPress")
}

func TestWebsite_NestedRecommendationsAndPadding(t *testing.T) {
	m := &fakeModel{out: `Here you go: {"strengths": ["Clear pricing", " "], "gaps": [],
		"recommendations": {"phase1": ["Add chat"], "phase2": [], "phase3": ["Referrals"]}} Thanks!`}

	res := NewGenerator(m).Website(context.Background(), websiteInput())
	fb := FallbackWebsite()

	assert.Empty(t, res.Degraded)
	require.Len(t, res.Narrative.Strengths, 4)
	assert.Equal(t, "Clear pricing", res.Narrative.Strengths[0])
	assert.Equal(t, fb.Strengths[:3], res.Narrative.Strengths[1:])
	assert.Equal(t, fb.Gaps, res.Narrative.Gaps)
	assert.Equal(t, []string{"Add chat"}, res.Narrative.Recommendations.Phase1)
	assert.Equal(t, fb.Recommendations.Phase2, res.Narrative.Recommendations.Phase2)
	assert.Equal(t, []string{"Referrals"}, res.Narrative.Recommendations.Phase3)
}

func TestWebsite_Fallbacks(t *testing.T) {
	tests := []struct {
		name   string
		model  Model
		reason string
	}{
		{"no model", nil, "no model configured"},
		{"model error", &fakeModel{err: errors.New("HTTP 500")}, "model request failed"},
		{"not json", &fakeModel{out: "I cannot help with that"}, "invalid model response"},
		{"bad shape", &fakeModel{out: `{"strengths": "great"}`}, "invalid model response"},
		{"empty object", &fakeModel{out: `{}`}, "invalid model response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewGenerator(tt.model).Website(context.Background(), websiteInput())
			assert.Equal(t, ProviderFallback, res.Provider)
			assert.Equal(t, FallbackWebsite(), res.Narrative)
			assert.Equal(t, []model.Degradation{{Stage: "narrative", Reason: tt.reason}}, res.Degraded)
		})
	}
}

func TestWebsite_Timeout(t *testing.T) {
	m := &fakeModel{block: true}
	res := NewGenerator(m, WithTimeout(10*time.Millisecond)).Website(context.Background(), websiteInput())
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, "model timed out", res.Degraded[0].Reason)
}

func TestWebsite_BreakerOpens(t *testing.T) {
	m := &fakeModel{err: errors.New("quota")}
	b := resilience.NewBreaker("fake", resilience.Config{FailureThreshold: 1, ResetTimeout: time.Hour})
	g := NewGenerator(m, WithBreaker(b))

	g.Website(context.Background(), websiteInput())
	res := g.Website(context.Background(), websiteInput())

	assert.Equal(t, 1, m.calls)
	assert.Equal(t, "model unavailable", res.Degraded[0].Reason)
}

func TestFallbackWebsite_Shape(t *testing.T) {
	fb := FallbackWebsite()
	assert.Len(t, fb.Strengths, 4)
	assert.Len(t, fb.Gaps, 4)
	assert.Len(t, fb.Recommendations.All(), 12)
	assert.Equal(t, "Add exit-intent popup with compelling offer", fb.Recommendations.All()[0])
}

func TestProposal(t *testing.T) {
	in := ProposalInput{Company: "Acme", Industry: "Manufacturing", Services: []string{"CRM setup"}, PrimaryContact: "Ada"}

	m := &fakeModel{out: `{"executive_summary":"E","solution_overview":"S","implementation_plan":"I","pricing":"P"}`}
	res := NewGenerator(m).Proposal(context.Background(), in)
	assert.True(t, res.Generated())
	assert.Equal(t, ProposalSections{ExecutiveSummary: "E", SolutionOverview: "S", ImplementationPlan: "I", Pricing: "P"}, res.Sections)
	assert.Contains(t, m.prompts[0], "Company: Acme")
	assert.Contains(t, m.prompts[0], "Services Requested: CRM setup")
	assert.Contains(t, m.prompts[0], "Timeline: Unknown")

	partial := &fakeModel{out: `{"executive_summary":"E"}`}
	res = NewGenerator(partial).Proposal(context.Background(), in)
	assert.False(t, res.Generated())
	assert.Equal(t, "invalid model response", res.Degraded[0].Reason)
	assert.Equal(t, "We propose a comprehensive automation solution for Acme to streamline operations and drive growth. Our proven approach will deliver measurable ROI within 90 days.", res.Sections.ExecutiveSummary)

	res = NewGenerator(nil).Proposal(context.Background(), ProposalInput{})
	assert.Contains(t, res.Sections.ExecutiveSummary, "for your company")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	require.NoError(t, DecodeJSON(`{"a":1}`, &v))
	assert.Equal(t, 1, v.A)
	require.NoError(t, DecodeJSON("```\n{\"a\":2}\n```", &v))
	assert.Equal(t, 2, v.A)
	require.NoError(t, DecodeJSON(`Sure! {"a":3} Hope this helps.`, &v))
	assert.Equal(t, 3, v.A)
	assert.ErrorIs(t, DecodeJSON("no braces here", &v), errNoJSON)
	assert.Error(t, DecodeJSON(`{"a": }`, &v))
}

// fakeLLM implements llms.Model.
type fakeLLM struct {
	gotPrompt string
	gotOpts   llms.CallOptions
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&f.gotOpts)
	}
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if tp, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.gotPrompt = tp.Text
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: `{"ok":true}`}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestGeminiModel_Generate(t *testing.T) {
	llm := &fakeLLM{}
	m := NewGeminiModelFromLLM(llm, "gemini-2.0-flash")

	out, err := m.Generate(context.Background(), "SYSTEM", "PROMPT")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "SYSTEM\n\nPROMPT", llm.gotPrompt)
	assert.True(t, llm.gotOpts.JSONMode)
	assert.Equal(t, "gemini-2.0-flash", llm.gotOpts.Model)
	assert.Equal(t, "gemini", m.Name())
}

func TestNewGeminiModel_RequiresKey(t *testing.T) {
	_, err := NewGeminiModel(context.Background(), "", "gemini-2.0-flash")
	assert.Error(t, err)
}

type fakeAnthropic struct {
	req anthropic.MessageRequest
	err error
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: `{"x":1}`}}}, nil
}

func TestAnthropicModel_Generate(t *testing.T) {
	client := &fakeAnthropic{}
	m := NewAnthropicModel(client, "claude-haiku-4-5")

	out, err := m.Generate(context.Background(), "SYS", "USER")
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, out)
	assert.Equal(t, "SYS", client.req.System)
	assert.Equal(t, []anthropic.Message{{Role: "user", Content: "USER"}}, client.req.Messages)
	assert.Equal(t, "anthropic", m.Name())

	client.err = errors.New("overloaded")
	_, err = m.Generate(context.Background(), "SYS", "USER")
	assert.ErrorContains(t, err, "overloaded")
}
