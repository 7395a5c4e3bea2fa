package assessment

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/maruonline/leadgen/internal/model"
)

// Tool is one entry of the software catalog.
type Tool struct {
	ID             string  `json:"id" yaml:"id"`
	Name           string  `json:"name" yaml:"name"`
	Category       string  `json:"category" yaml:"category"`
	Subcategory    string  `json:"subcategory,omitempty" yaml:"subcategory"`
	AvgMonthlyCost float64 `json:"avg_monthly_cost" yaml:"avg_monthly_cost"`
	PricingModel   string  `json:"pricing_model" yaml:"pricing_model"`
	Description    string  `json:"description,omitempty" yaml:"description"`
}

// PerSeat reports whether the tool is billed per user.
func (t Tool) PerSeat() bool {
	return t.PricingModel == "per_seat"
}

// Catalog is the set of tools the auditor knows about.
type Catalog struct {
	tools []Tool
	byID  map[string]Tool
}

// NewCatalog indexes tools by ID, sorted by name.
func NewCatalog(tools []Tool) *Catalog {
	sorted := append([]Tool(nil), tools...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})
	c := &Catalog{tools: sorted, byID: make(map[string]Tool, len(sorted))}
	for _, t := range sorted {
		c.byID[t.ID] = t
	}
	return c
}

//go:embed tools.yaml
var toolsYAML []byte

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded tool catalog.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		var tools []Tool
		if err := yaml.Unmarshal(toolsYAML, &tools); err != nil {
			zap.L().Error("assessment: decode embedded tool catalog", zap.Error(err))
		}
		defaultCatalog = NewCatalog(tools)
	})
	return defaultCatalog
}

// Tools lists every tool ordered by name.
func (c *Catalog) Tools() []Tool {
	return append([]Tool(nil), c.tools...)
}

// Lookup finds a tool by ID.
func (c *Catalog) Lookup(id string) (Tool, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Redundancy is a category where more than one tool is paid for.
type Redundancy struct {
	Category         string   `json:"category"`
	Tools            []string `json:"tools"`
	PotentialSavings float64  `json:"potential_savings"`
}

// UnderutilizedTool is a paid tool with no users, or with more seats than
// the team has people.
type UnderutilizedTool struct {
	ToolID     string  `json:"tool_id"`
	Name       string  `json:"name"`
	UsersCount int     `json:"users_count"`
	Reason     string  `json:"reason"`
	WastedCost float64 `json:"wasted_cost"`
}

// TechAuditResult is the analysis_data of a tech audit assessment.
type TechAuditResult struct {
	Score              int                 `json:"score"`
	TotalMonthlyCost   float64             `json:"total_monthly_cost"`
	RedundanciesFound  []Redundancy        `json:"redundancies_found"`
	PotentialSavings   float64             `json:"potential_savings"`
	OptimizationScore  int                 `json:"optimization_score"`
	UnderutilizedTools []UnderutilizedTool `json:"underutilized_tools"`
	UnknownTools       []string            `json:"unknown_tools,omitempty"`
	Recommendations    []string            `json:"recommendations"`
}

// TechAudit finds overlapping and idle subscriptions in a tool stack.
type TechAudit struct {
	catalog *Catalog
}

// NewTechAudit creates a TechAudit processor. A nil catalog means the
// embedded one.
func NewTechAudit(catalog *Catalog) *TechAudit {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &TechAudit{catalog: catalog}
}

func (a *TechAudit) AppType() model.AppType { return model.AppTypeTechAudit }

func (a *TechAudit) Process(_ context.Context, p model.Payload) (model.Outcome, error) {
	in, err := payloadAs[*model.TechAuditPayload](p)
	if err != nil {
		return model.Outcome{}, err
	}
	res, err := a.Audit(in.SelectedTools, in.TeamSize, in.CompanySize)
	if err != nil {
		return model.Outcome{}, err
	}
	return model.Outcome{
		Score:           res.Score,
		Recommendations: res.Recommendations,
		Analysis:        res,
	}, nil
}

type pricedTool struct {
	model.SelectedTool
	Tool
}

func (t pricedTool) cost() float64 {
	return t.MonthlyCost * float64(t.UsersCount)
}

// Audit scores a tool selection. Tools missing from the catalog count toward
// cost and tool count but cannot be grouped into redundancies.
func (a *TechAudit) Audit(selected []model.SelectedTool, teamSize int, companySize string) (TechAuditResult, error) {
	if len(selected) == 0 {
		return TechAuditResult{}, eris.Wrap(ErrInvalidInput, "tech audit: no tools selected for audit")
	}

	var (
		total   float64
		known   []pricedTool
		unknown []string
	)
	for _, s := range selected {
		total += s.MonthlyCost * float64(s.UsersCount)
		tool, ok := a.catalog.Lookup(s.ToolID)
		if !ok {
			unknown = append(unknown, s.ToolID)
			continue
		}
		known = append(known, pricedTool{SelectedTool: s, Tool: tool})
	}

	redundancies := findRedundancies(known)
	var savings float64
	for _, r := range redundancies {
		savings += r.PotentialSavings
	}

	return TechAuditResult{
		Score:              overallScore(len(selected), len(redundancies), total),
		TotalMonthlyCost:   total,
		RedundanciesFound:  redundancies,
		PotentialSavings:   savings,
		OptimizationScore:  max(0, 100-15*len(redundancies)),
		UnderutilizedTools: findUnderutilized(known, teamSize),
		UnknownTools:       unknown,
		Recommendations:    auditRecommendations(redundancies, savings, total, companySize),
	}, nil
}

// findRedundancies keeps the most expensive tool of each category and
// proposes dropping the rest.
func findRedundancies(tools []pricedTool) []Redundancy {
	byCategory := make(map[string][]pricedTool)
	var order []string
	for _, t := range tools {
		if _, ok := byCategory[t.Category]; !ok {
			order = append(order, t.Category)
		}
		byCategory[t.Category] = append(byCategory[t.Category], t)
	}

	out := []Redundancy{}
	for _, category := range order {
		group := byCategory[category]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].cost() > group[j].cost() })

		r := Redundancy{Category: category}
		for _, t := range group[1:] {
			r.Tools = append(r.Tools, t.Name)
			r.PotentialSavings += t.cost()
		}
		if r.PotentialSavings > 0 {
			out = append(out, r)
		}
	}
	return out
}

func findUnderutilized(tools []pricedTool, teamSize int) []UnderutilizedTool {
	out := []UnderutilizedTool{}
	for _, t := range tools {
		switch {
		case t.UsersCount == 0 && t.MonthlyCost > 0:
			out = append(out, UnderutilizedTool{
				ToolID:     t.ToolID,
				Name:       t.Name,
				Reason:     "paid subscription with no active users",
				WastedCost: t.MonthlyCost,
			})
		case t.PerSeat() && teamSize > 0 && t.UsersCount > teamSize && t.MonthlyCost > 0:
			out = append(out, UnderutilizedTool{
				ToolID:     t.ToolID,
				Name:       t.Name,
				UsersCount: t.UsersCount,
				Reason:     fmt.Sprintf("%d seats for a team of %d", t.UsersCount, teamSize),
				WastedCost: t.MonthlyCost * float64(t.UsersCount-teamSize),
			})
		}
	}
	return out
}

func overallScore(toolCount, redundancies int, total float64) int {
	score := 100.0
	switch {
	case toolCount > 20:
		score -= 20
	case toolCount > 15:
		score -= 10
	}
	score -= float64(redundancies * 15)
	switch {
	case total > 5000:
		score -= 20
	case total > 2000:
		score -= 10
	}
	return int(math.Round(math.Max(0, score)))
}

func auditRecommendations(redundancies []Redundancy, savings, total float64, companySize string) []string {
	var recs []string
	if len(redundancies) > 0 {
		recs = append(recs, fmt.Sprintf("Eliminate %d tool redundancies to save $%s/month", len(redundancies), formatMoney(savings)))
	}
	if total > 3000 {
		recs = append(recs, "Consider negotiating volume discounts with key vendors")
	}
	recs = append(recs,
		"Implement usage tracking to identify underutilized tools",
		"Set up automated license management to prevent over-provisioning",
	)
	if strings.EqualFold(companySize, "startup") {
		recs = append(recs, "Focus on free/freemium tools until you reach product-market fit")
	}
	return recs
}

// formatMoney drops the fraction for whole amounts.
func formatMoney(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
