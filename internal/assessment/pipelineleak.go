package assessment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/maruonline/leadgen/internal/model"
)

const (
	stalledAfterDays  = 30
	velocityAfterDays = 90
	bottleneckFactor  = 1.5
	defaultDealStatus = "open"
	hoursPerDay       = 24
)

// dealRow is one CSV row. Each logical column may arrive under several
// header names; the first non-empty alias wins.
type dealRow struct {
	ID string `csv:"id"`

	Stage         string `csv:"stage"`
	DealStage     string `csv:"dealstage"`
	PipelineStage string `csv:"pipeline_stage"`

	Amount     string `csv:"amount"`
	DealAmount string `csv:"deal_amount"`
	Value      string `csv:"value"`

	CreatedDate string `csv:"created_date"`
	CreateDate  string `csv:"createdate"`
	DateCreated string `csv:"date_created"`

	LastActivity string `csv:"last_activity"`
	LastModified string `csv:"last_modified"`
	UpdatedDate  string `csv:"updated_date"`

	CloseDate     string `csv:"close_date"`
	CloseDateAlt  string `csv:"closedate"`
	ExpectedClose string `csv:"expected_close"`

	Status     string `csv:"status"`
	DealStatus string `csv:"deal_status"`
}

// Deal is a normalised pipeline row.
type Deal struct {
	ID           string
	Stage        string
	Amount       float64
	CreatedAt    time.Time
	LastActivity time.Time
	CloseDate    time.Time
	Status       string
}

func (r dealRow) toDeal(index int) Deal {
	d := Deal{
		ID:           strings.TrimSpace(r.ID),
		Stage:        firstNonEmpty(r.Stage, r.DealStage, r.PipelineStage),
		CreatedAt:    parseDate(firstNonEmpty(r.CreatedDate, r.CreateDate, r.DateCreated)),
		LastActivity: parseDate(firstNonEmpty(r.LastActivity, r.LastModified, r.UpdatedDate)),
		CloseDate:    parseDate(firstNonEmpty(r.CloseDate, r.CloseDateAlt, r.ExpectedClose)),
		Status:       firstNonEmpty(r.Status, r.DealStatus),
	}
	if d.ID == "" {
		d.ID = fmt.Sprintf("deal_%d", index)
	}
	if d.Status == "" {
		d.Status = defaultDealStatus
	}
	d.Amount = parseAmount(firstNonEmpty(r.Amount, r.DealAmount, r.Value))
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseAmount accepts plain numbers plus currency symbols and thousands
// separators. Anything else is 0.
func parseAmount(s string) float64 {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// parseDate returns the zero time for empty or unrecognised input.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseDeals decodes a CRM deal export. Header names are matched case
// insensitively. Rows without a stage or a positive amount are dropped.
func ParseDeals(data string) ([]Deal, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.Wrap(ErrInvalidInput, "pipeline leak: empty csv")
		}
		return nil, eris.Wrapf(ErrInvalidInput, "pipeline leak: read header: %v", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidInput, "pipeline leak: csv header: %v", err)
	}

	var deals []Deal
	for index := 0; ; index++ {
		var row dealRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(ErrInvalidInput, "pipeline leak: csv row %d: %v", index+1, err)
		}
		d := row.toDeal(index)
		if d.Stage == "" || d.Amount <= 0 {
			continue
		}
		deals = append(deals, d)
	}
	return deals, nil
}

// LeakCounts are the number of deals behind each leak kind.
type LeakCounts struct {
	StalledDeals     int `json:"stalled_deals"`
	StageBottlenecks int `json:"stage_bottlenecks"`
	VelocityIssues   int `json:"velocity_issues"`
}

// Total sums the three counts. A deal can be counted more than once.
func (c LeakCounts) Total() int {
	return c.StalledDeals + c.StageBottlenecks + c.VelocityIssues
}

// StageStat summarises one pipeline stage.
type StageStat struct {
	Stage      string  `json:"stage"`
	Deals      int     `json:"deals"`
	Value      float64 `json:"value"`
	Bottleneck bool    `json:"bottleneck"`
}

// PipelineLeakResult is the analysis_data of a pipeline leak assessment.
type PipelineLeakResult struct {
	Score           int         `json:"score"`
	TotalDeals      int         `json:"total_deals"`
	LeaksDetected   LeakCounts  `json:"leaks_detected"`
	RevenueAtRisk   float64     `json:"revenue_at_risk"`
	PipelineValue   float64     `json:"pipeline_value"`
	Stages          []StageStat `json:"stages"`
	Recommendations []string    `json:"recommendations"`
}

// PipelineLeak finds stalled, congested and slow deals in a CRM export.
type PipelineLeak struct {
	now func() time.Time
}

// PipelineLeakOption configures a PipelineLeak.
type PipelineLeakOption func(*PipelineLeak)

// WithPipelineClock overrides the reference time used for deal ages.
func WithPipelineClock(now func() time.Time) PipelineLeakOption {
	return func(p *PipelineLeak) { p.now = now }
}

// NewPipelineLeak creates a PipelineLeak processor.
func NewPipelineLeak(opts ...PipelineLeakOption) *PipelineLeak {
	p := &PipelineLeak{now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *PipelineLeak) AppType() model.AppType { return model.AppTypePipelineLeak }

func (p *PipelineLeak) Process(_ context.Context, payload model.Payload) (model.Outcome, error) {
	in, err := payloadAs[*model.PipelineLeakPayload](payload)
	if err != nil {
		return model.Outcome{}, err
	}
	deals, err := ParseDeals(in.CSVData)
	if err != nil {
		return model.Outcome{}, err
	}
	res, err := AnalyzeDeals(deals, p.now())
	if err != nil {
		return model.Outcome{}, err
	}
	return model.Outcome{
		Score:           res.Score,
		Recommendations: res.Recommendations,
		Analysis:        res,
	}, nil
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / hoursPerDay
}

func closedStatus(status string) bool {
	switch strings.ToLower(status) {
	case "closed", "won", "lost":
		return true
	}
	return false
}

// AnalyzeDeals scores a set of deals as of now. It fails with
// ErrInvalidInput when there are no deals to score.
func AnalyzeDeals(deals []Deal, now time.Time) (PipelineLeakResult, error) {
	if len(deals) == 0 {
		return PipelineLeakResult{}, eris.Wrap(ErrInvalidInput, "pipeline leak: no valid deals (need a stage and a positive amount)")
	}

	var stalled, velocity []Deal
	for _, d := range deals {
		if !closedStatus(d.Status) && !d.LastActivity.IsZero() && daysBetween(d.LastActivity, now) > stalledAfterDays {
			stalled = append(stalled, d)
		}
		if !strings.EqualFold(d.Status, "closed") && !d.CreatedAt.IsZero() && daysBetween(d.CreatedAt, now) > velocityAfterDays {
			velocity = append(velocity, d)
		}
	}

	stages, bottlenecks := stageBottlenecks(deals)

	counts := LeakCounts{
		StalledDeals:     len(stalled),
		StageBottlenecks: len(bottlenecks),
		VelocityIssues:   len(velocity),
	}

	var pipelineValue float64
	for _, d := range deals {
		pipelineValue += d.Amount
	}

	score := 100 - float64(counts.Total())/float64(len(deals))*100
	return PipelineLeakResult{
		Score:           int(math.Round(math.Max(0, score))),
		TotalDeals:      len(deals),
		LeaksDetected:   counts,
		RevenueAtRisk:   revenueAtRisk(stalled, bottlenecks, velocity),
		PipelineValue:   pipelineValue,
		Stages:          stages,
		Recommendations: pipelineRecommendations(counts),
	}, nil
}

// stageBottlenecks flags every deal in a stage holding more than 1.5x the
// mean number of deals per stage.
func stageBottlenecks(deals []Deal) ([]StageStat, []Deal) {
	byStage := make(map[string][]Deal)
	var order []string
	for _, d := range deals {
		if _, ok := byStage[d.Stage]; !ok {
			order = append(order, d.Stage)
		}
		byStage[d.Stage] = append(byStage[d.Stage], d)
	}

	threshold := float64(len(deals)) / float64(len(byStage)) * bottleneckFactor

	stats := make([]StageStat, 0, len(order))
	var flagged []Deal
	for _, stage := range order {
		group := byStage[stage]
		st := StageStat{Stage: stage, Deals: len(group)}
		for _, d := range group {
			st.Value += d.Amount
		}
		if float64(len(group)) > threshold {
			st.Bottleneck = true
			flagged = append(flagged, group...)
		}
		stats = append(stats, st)
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Deals > stats[j].Deals })
	return stats, flagged
}

// revenueAtRisk sums each risky deal once, whatever number of leaks it has.
func revenueAtRisk(groups ...[]Deal) float64 {
	seen := make(map[string]bool)
	var total float64
	for _, g := range groups {
		for _, d := range g {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			total += d.Amount
		}
	}
	return total
}

func pipelineRecommendations(c LeakCounts) []string {
	var recs []string
	if c.StalledDeals > 0 {
		recs = append(recs, fmt.Sprintf("Re-engage %d stalled deals with automated follow-up sequences", c.StalledDeals))
	}
	if c.StageBottlenecks > 0 {
		recs = append(recs, fmt.Sprintf("Address stage bottlenecks affecting %d deals", c.StageBottlenecks))
	}
	if c.VelocityIssues > 0 {
		recs = append(recs, fmt.Sprintf("Accelerate %d slow-moving deals with targeted interventions", c.VelocityIssues))
	}
	return append(recs,
		"Implement automated pipeline health monitoring",
		"Set up deal progression alerts for sales team",
	)
}
