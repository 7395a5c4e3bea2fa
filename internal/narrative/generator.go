package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/resilience"
	"github.com/maruonline/leadgen/internal/scorer"
)

// ProviderFallback marks output that came from the fixed copy.
const ProviderFallback = "fallback"

const (
	stage          = "narrative"
	defaultTimeout = 30 * time.Second
)

var errNoJSON = eris.New("narrative: no JSON object in model output")

// Generator produces narratives. It never returns an error; failures are
// logged and reported as degradations.
type Generator struct {
	model   Model
	breaker *resilience.Breaker
	timeout time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithBreaker guards model calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(g *Generator) { g.breaker = b }
}

// WithTimeout bounds a single model call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGenerator creates a Generator. A nil model always yields fallbacks.
func NewGenerator(m Model, opts ...Option) *Generator {
	g := &Generator{model: m, timeout: defaultTimeout}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Provider names the configured model, or "fallback" when there is none.
func (g *Generator) Provider() string {
	if g.model == nil {
		return ProviderFallback
	}
	return g.model.Name()
}

// WebsiteInput is the context for a lead score narrative.
type WebsiteInput struct {
	URL         string
	Company     string
	CompanySize string
	Industry    string
	Challenges  []string
	Snapshot    model.ScrapeSnapshot
	Score       int
	Subscores   scorer.Subscores
}

// WebsiteResult is a website narrative plus its provenance.
type WebsiteResult struct {
	Narrative Website
	Provider  string
	Degraded  []model.Degradation
}

const websiteSystem = "You are a B2B lead generation expert. Respond with a single JSON object and nothing else."

func websitePrompt(in WebsiteInput) string {
	s := in.Snapshot
	var b strings.Builder
	b.WriteString("Analyze this website and provide recommendations.\n\n")
	fmt.Fprintf(&b, "WEBSITE: %s\n", in.URL)
	fmt.Fprintf(&b, "COMPANY: %s (%s)\n", orUnknown(in.Company), orUnknown(in.CompanySize))
	if in.Industry != "" {
		fmt.Fprintf(&b, "INDUSTRY: %s\n", in.Industry)
	}
	fmt.Fprintf(&b, "CHALLENGES: %s\n\n", strings.Join(in.Challenges, ", "))

	b.WriteString("PAGE SUMMARY:\n")
	fmt.Fprintf(&b, "- Title: %s\n", s.Title)
	fmt.Fprintf(&b, "- Meta description: %s\n", s.MetaDescription)
	fmt.Fprintf(&b, "- Headings: %s\n", strings.Join(firstN(append(append([]string{}, s.Headings.H1...), s.Headings.H2...), 8), " | "))
	fmt.Fprintf(&b, "- CTA buttons: %d, forms: %d, lead magnets: %d, email capture points: %d\n",
		len(s.CTAButtons), len(s.Forms), len(s.LeadMagnets), s.EmailCapturePoints)
	fmt.Fprintf(&b, "- Live chat: %t, exit popup: %t, video: %t, mobile responsive: %t\n",
		s.LiveChat, s.ExitPopup, s.HasVideo, s.MobileResponsive)
	fmt.Fprintf(&b, "- Trust signals: %d/4, social proof elements: %d\n", s.TrustSignals.Count(), s.SocialProof.Total())
	if len(s.Technologies) > 0 {
		fmt.Fprintf(&b, "- Technologies: %s\n", strings.Join(s.Technologies, ", "))
	}

	b.WriteString("\nSCORING AUDIT:\n")
	fmt.Fprintf(&b, "Total Score: %d/100\n", in.Score)
	fmt.Fprintf(&b, "- Website Quality: %d/25\n", in.Subscores.WebsiteQuality)
	fmt.Fprintf(&b, "- Conversion Points: %d/25\n", in.Subscores.ConversionPoints)
	fmt.Fprintf(&b, "- Lead Capture: %d/25\n", in.Subscores.LeadCapture)
	fmt.Fprintf(&b, "- Follow-up System: %d/25\n\n", in.Subscores.FollowupSystem)

	b.WriteString(`Provide analysis in this exact JSON format:
{
  "strengths": ["strength1", "strength2", "strength3", "strength4"],
  "gaps": ["gap1", "gap2", "gap3", "gap4"],
  "phase1": ["action1", "action2", "action3", "action4"],
  "phase2": ["action1", "action2", "action3", "action4"],
  "phase3": ["action1", "action2", "action3", "action4"]
}`)
	return b.String()
}

// websiteWire accepts both the flat phase layout the prompt asks for and a
// nested recommendations object.
type websiteWire struct {
	Strengths       []string `json:"strengths"`
	Gaps            []string `json:"gaps"`
	Phase1          []string `json:"phase1"`
	Phase2          []string `json:"phase2"`
	Phase3          []string `json:"phase3"`
	Recommendations *Phases  `json:"recommendations"`
}

func (w websiteWire) toWebsite() Website {
	out := Website{
		Strengths:       w.Strengths,
		Gaps:            w.Gaps,
		Recommendations: Phases{Phase1: w.Phase1, Phase2: w.Phase2, Phase3: w.Phase3},
	}
	if w.Recommendations != nil {
		r := *w.Recommendations
		if len(r.Phase1) > 0 {
			out.Recommendations.Phase1 = r.Phase1
		}
		if len(r.Phase2) > 0 {
			out.Recommendations.Phase2 = r.Phase2
		}
		if len(r.Phase3) > 0 {
			out.Recommendations.Phase3 = r.Phase3
		}
	}
	return out
}

// Website returns strengths, gaps and a phased plan for a scored site.
func (g *Generator) Website(ctx context.Context, in WebsiteInput) WebsiteResult {
	var wire websiteWire
	if reason := g.generateJSON(ctx, websiteSystem, websitePrompt(in), &wire); reason != "" {
		return WebsiteResult{
			Narrative: FallbackWebsite(),
			Provider:  ProviderFallback,
			Degraded:  []model.Degradation{{Stage: stage, Reason: reason}},
		}
	}
	w := wire.toWebsite()
	if len(clean(w.Strengths)) == 0 && len(clean(w.Gaps)) == 0 {
		zap.L().Warn("narrative: model returned an empty website narrative, serving fallback",
			zap.String("provider", g.Provider()))
		return WebsiteResult{
			Narrative: FallbackWebsite(),
			Provider:  ProviderFallback,
			Degraded:  []model.Degradation{{Stage: stage, Reason: "invalid model response"}},
		}
	}
	return WebsiteResult{Narrative: normalize(w), Provider: g.Provider()}
}

// ProposalInput is the context for a proposal.
type ProposalInput struct {
	Company        string
	Industry       string
	Size           string
	Challenges     []string
	Services       []string
	Timeline       string
	BudgetRange    string
	PrimaryContact string
	Stakeholders   []string
	Description    string
}

// ProposalResult is a proposal plus its provenance.
type ProposalResult struct {
	Sections ProposalSections
	Provider string
	Degraded []model.Degradation
}

// Generated reports whether the sections came from the model.
func (r ProposalResult) Generated() bool {
	return r.Provider != ProviderFallback
}

const proposalSystem = "You write professional business proposals. Respond with a single JSON object and nothing else."

func proposalPrompt(in ProposalInput) string {
	var b strings.Builder
	b.WriteString("Generate a professional business proposal for:\n\n")
	fmt.Fprintf(&b, "Company: %s\n", in.Company)
	fmt.Fprintf(&b, "Industry: %s\n", orUnknown(in.Industry))
	fmt.Fprintf(&b, "Size: %s\n", orUnknown(in.Size))
	fmt.Fprintf(&b, "Challenges: %s\n\n", strings.Join(in.Challenges, ", "))
	fmt.Fprintf(&b, "Services Requested: %s\n", strings.Join(in.Services, ", "))
	fmt.Fprintf(&b, "Timeline: %s\n", orUnknown(in.Timeline))
	fmt.Fprintf(&b, "Budget Range: %s\n\n", orUnknown(in.BudgetRange))
	if in.Description != "" {
		fmt.Fprintf(&b, "Project Description: %s\n\n", in.Description)
	}
	fmt.Fprintf(&b, "Decision Makers: %s\n", in.PrimaryContact)
	fmt.Fprintf(&b, "Stakeholders: %s\n\n", strings.Join(in.Stakeholders, ", "))
	b.WriteString(`Generate a JSON response with these sections:
{
  "executive_summary": "<compelling 2-paragraph summary>",
  "solution_overview": "<detailed solution description>",
  "implementation_plan": "<step-by-step implementation approach>",
  "pricing": "<pricing structure and value justification>"
}

Make it professional, specific to their industry, and focused on ROI.`)
	return b.String()
}

// Proposal returns the four proposal sections.
func (g *Generator) Proposal(ctx context.Context, in ProposalInput) ProposalResult {
	fallback := func(reason string) ProposalResult {
		return ProposalResult{
			Sections: FallbackProposal(in.Company),
			Provider: ProviderFallback,
			Degraded: []model.Degradation{{Stage: stage, Reason: reason}},
		}
	}

	var sections ProposalSections
	if reason := g.generateJSON(ctx, proposalSystem, proposalPrompt(in), &sections); reason != "" {
		return fallback(reason)
	}
	if !sections.complete() {
		zap.L().Warn("narrative: model returned incomplete proposal, serving fallback",
			zap.String("provider", g.Provider()))
		return fallback("invalid model response")
	}
	return ProposalResult{Sections: sections, Provider: g.Provider()}
}

// generateJSON calls the model and decodes its JSON into dst. It returns a
// degradation reason, or "" on success.
func (g *Generator) generateJSON(ctx context.Context, system, prompt string, dst any) string {
	if g.model == nil {
		return "no model configured"
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	call := func(ctx context.Context) (string, error) {
		return g.model.Generate(ctx, system, prompt)
	}

	var (
		text string
		err  error
	)
	if g.breaker != nil {
		text, err = resilience.DoVal(ctx, g.breaker, call)
	} else {
		text, err = call(ctx)
	}
	if err != nil {
		reason := failureReason(err)
		zap.L().Warn("narrative: model call failed, serving fallback",
			zap.String("provider", g.model.Name()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return reason
	}

	if err := DecodeJSON(text, dst); err != nil {
		zap.L().Warn("narrative: unparseable model output, serving fallback",
			zap.String("provider", g.model.Name()),
			zap.Int("length", len(text)),
			zap.Error(err),
		)
		return "invalid model response"
	}
	return ""
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, resilience.ErrOpen):
		return "model unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "model timed out"
	default:
		return "model request failed"
	}
}

// DecodeJSON parses model output as a JSON object. Markdown code fences are
// ignored, and when the text is not pure JSON the span from the first "{"
// to the last "}" is tried.
func DecodeJSON(text string, dst any) error {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), dst); err == nil {
		return nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), dst); err != nil {
		return eris.Wrap(err, "narrative: decode model JSON")
	}
	return nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func firstN(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}
