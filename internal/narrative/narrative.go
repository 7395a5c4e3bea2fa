package narrative

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

// Phases is a three-stage action plan.
type Phases struct {
	Phase1 []string `json:"phase1" yaml:"phase1"`
	Phase2 []string `json:"phase2" yaml:"phase2"`
	Phase3 []string `json:"phase3" yaml:"phase3"`
}

// All flattens the plan in phase order.
func (p Phases) All() []string {
	out := make([]string, 0, len(p.Phase1)+len(p.Phase2)+len(p.Phase3))
	out = append(out, p.Phase1...)
	out = append(out, p.Phase2...)
	return append(out, p.Phase3...)
}

// Website is the narrative for a lead score assessment.
type Website struct {
	Strengths       []string `json:"strengths" yaml:"strengths"`
	Gaps            []string `json:"gaps" yaml:"gaps"`
	Recommendations Phases   `json:"recommendations" yaml:"recommendations"`
}

// ProposalSections are the generated sections of a proposal.
type ProposalSections struct {
	ExecutiveSummary   string `json:"executive_summary" yaml:"executive_summary"`
	SolutionOverview   string `json:"solution_overview" yaml:"solution_overview"`
	ImplementationPlan string `json:"implementation_plan" yaml:"implementation_plan"`
	Pricing            string `json:"pricing" yaml:"pricing"`
}

func (s ProposalSections) complete() bool {
	return strings.TrimSpace(s.ExecutiveSummary) != "" &&
		strings.TrimSpace(s.SolutionOverview) != "" &&
		strings.TrimSpace(s.ImplementationPlan) != "" &&
		strings.TrimSpace(s.Pricing) != ""
}

//go:embed fallback.yaml
var fallbackYAML []byte

type chatTopic struct {
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

type chatFallback struct {
	Default string      `yaml:"default"`
	Topics  []chatTopic `yaml:"topics"`
}

type fallbacks struct {
	Website  Website          `yaml:"website"`
	Proposal ProposalSections `yaml:"proposal"`
	Chat     chatFallback     `yaml:"chat"`
}

func loadFallbacks() fallbacks {
	var f fallbacks
	if err := yaml.Unmarshal(fallbackYAML, &f); err != nil {
		panic("narrative: decode fallback.yaml: " + err.Error())
	}
	return f
}

// FallbackWebsite returns the fixed website narrative.
func FallbackWebsite() Website {
	return loadFallbacks().Website
}

// FallbackProposal returns the fixed proposal addressed to company.
func FallbackProposal(company string) ProposalSections {
	p := loadFallbacks().Proposal
	if company == "" {
		company = "your company"
	}
	p.ExecutiveSummary = strings.ReplaceAll(p.ExecutiveSummary, "{company}", company)
	return p
}

// FallbackChatReply picks the canned reply whose topic keywords appear in
// the visitor's message, in topic order.
func FallbackChatReply(message string) string {
	c := loadFallbacks().Chat
	lower := strings.ToLower(message)
	for _, t := range c.Topics {
		for _, k := range t.Keywords {
			if strings.Contains(lower, k) {
				return t.Reply
			}
		}
	}
	return c.Default
}

const listSize = 4

// normalize trims entries and forces exactly four strengths and gaps and a
// non-empty list per phase, topping up from the fallback copy.
func normalize(w Website) Website {
	fb := FallbackWebsite()
	w.Strengths = fill(clean(w.Strengths), fb.Strengths, listSize)
	w.Gaps = fill(clean(w.Gaps), fb.Gaps, listSize)

	w.Recommendations.Phase1 = orDefault(clean(w.Recommendations.Phase1), fb.Recommendations.Phase1)
	w.Recommendations.Phase2 = orDefault(clean(w.Recommendations.Phase2), fb.Recommendations.Phase2)
	w.Recommendations.Phase3 = orDefault(clean(w.Recommendations.Phase3), fb.Recommendations.Phase3)
	return w
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func fill(have, pad []string, n int) []string {
	if len(have) >= n {
		return have[:n]
	}
	seen := make(map[string]bool, len(have))
	for _, s := range have {
		seen[strings.ToLower(s)] = true
	}
	for _, s := range pad {
		if len(have) == n {
			break
		}
		if !seen[strings.ToLower(s)] {
			have = append(have, s)
		}
	}
	return have
}

func orDefault(have, def []string) []string {
	if len(have) == 0 {
		return def
	}
	return have
}
