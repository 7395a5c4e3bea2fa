package monitoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/store"
)

const pageSize = 1000

// Source is the slice of the store the collector reads.
type Source interface {
	ListLeads(ctx context.Context, filter store.LeadFilter) ([]model.Lead, int, error)
	ListAssessments(ctx context.Context, filter store.AssessmentFilter) ([]model.Assessment, error)
	CountEvents(ctx context.Context, since, until time.Time) (map[string]int, error)
}

// Timeframes maps the dashboard's timeframe parameter to a day count.
var Timeframes = map[string]int{"7d": 7, "30d": 30, "90d": 90}

// DefaultTimeframe is used for unknown or missing timeframes.
const DefaultTimeframe = "30d"

// Overview holds the dashboard's headline numbers.
type Overview struct {
	TotalAssessments int    `json:"totalAssessments"`
	TotalLeads       int    `json:"totalLeads"`
	ConversionRate   string `json:"conversionRate"`
	AvgLeadScore     string `json:"avgLeadScore"`
}

// DailyStat is one day of the dashboard's series.
type DailyStat struct {
	Date        string `json:"date"`
	Assessments int    `json:"assessments"`
	Leads       int    `json:"leads"`
	Conversion  string `json:"conversion"`
}

// TopPerformer is one of the highest scoring assessments.
type TopPerformer struct {
	ID        string        `json:"id"`
	Type      model.AppType `json:"type"`
	Score     int           `json:"score"`
	CreatedAt time.Time     `json:"created_at"`
}

// Dashboard is the analytics dashboard payload.
type Dashboard struct {
	Timeframe           string         `json:"timeframe"`
	Overview            Overview       `json:"overview"`
	AssessmentBreakdown map[string]int `json:"assessmentBreakdown"`
	DailyStats          []DailyStat    `json:"dailyStats"`
	TopPerformers       []TopPerformer `json:"topPerformers"`
	Events              map[string]int `json:"events"`
}

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	AssessmentsTotal     int     `json:"assessments_total"`
	AssessmentsCompleted int     `json:"assessments_completed"`
	AssessmentsFailed    int     `json:"assessments_failed"`
	AssessmentsPending   int     `json:"assessments_pending"`
	FailureRate          float64 `json:"failure_rate"`
	AvgScore             float64 `json:"avg_score"`
	BlockedIPs           int     `json:"blocked_ips"`
	SlowRoutes           int     `json:"slow_routes"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers dashboard and health metrics from the store and the
// in-process monitors.
type Collector struct {
	source   Source
	logs     *LogBuffer
	security *SecurityMonitor
	perf     *PerformanceMonitor
	slowAt   time.Duration
	now      func() time.Time
}

// NewCollector creates a collector. Any monitor may be nil.
func NewCollector(src Source, logs *LogBuffer, security *SecurityMonitor, perf *PerformanceMonitor) *Collector {
	return &Collector{
		source:   src,
		logs:     logs,
		security: security,
		perf:     perf,
		slowAt:   2 * time.Second,
		now:      time.Now,
	}
}

// Logs returns the log buffer, which may be nil.
func (c *Collector) Logs() *LogBuffer { return c.logs }

// Security returns the security monitor, which may be nil.
func (c *Collector) Security() *SecurityMonitor { return c.security }

// Performance returns the performance monitor, which may be nil.
func (c *Collector) Performance() *PerformanceMonitor { return c.perf }

func (c *Collector) allAssessments(ctx context.Context, f store.AssessmentFilter) ([]model.Assessment, error) {
	var out []model.Assessment
	f.Limit = pageSize
	for {
		page, err := c.source.ListAssessments(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		f.Offset += pageSize
	}
}

func (c *Collector) allLeads(ctx context.Context, f store.LeadFilter) ([]model.Lead, error) {
	var out []model.Lead
	f.Limit = pageSize
	for {
		page, _, err := c.source.ListLeads(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		f.Offset += pageSize
	}
}

func percent(num, den int) string {
	if num == 0 || den == 0 {
		return "0"
	}
	return fmt.Sprintf("%.1f", float64(num)/float64(den)*100)
}

// Dashboard aggregates assessments, leads and events created within the
// timeframe, optionally restricted to one tool.
func (c *Collector) Dashboard(ctx context.Context, timeframe string, appType model.AppType) (*Dashboard, error) {
	days, ok := Timeframes[timeframe]
	if !ok {
		timeframe, days = DefaultTimeframe, Timeframes[DefaultTimeframe]
	}
	end := c.now().UTC()
	start := end.AddDate(0, 0, -days)

	var (
		assessments []model.Assessment
		leads       []model.Lead
		events      map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assessments, err = c.allAssessments(gctx, store.AssessmentFilter{AppType: appType, CreatedAfter: start, CreatedBefore: end})
		return eris.Wrap(err, "monitoring: list assessments")
	})
	g.Go(func() error {
		var err error
		leads, err = c.allLeads(gctx, store.LeadFilter{CreatedAfter: start, CreatedBefore: end})
		return eris.Wrap(err, "monitoring: list leads")
	})
	g.Go(func() error {
		var err error
		events, err = c.source.CountEvents(gctx, start, end)
		return eris.Wrap(err, "monitoring: count events")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &Dashboard{
		Timeframe:           timeframe,
		AssessmentBreakdown: map[string]int{},
		DailyStats:          []DailyStat{},
		TopPerformers:       []TopPerformer{},
		Events:              events,
	}
	if d.Events == nil {
		d.Events = map[string]int{}
	}

	d.Overview.TotalAssessments = len(assessments)
	d.Overview.TotalLeads = len(leads)
	d.Overview.ConversionRate = percent(len(leads), len(assessments))
	d.Overview.AvgLeadScore = "0"
	if len(leads) > 0 {
		sum := 0
		for _, l := range leads {
			if l.LeadScore != nil {
				sum += *l.LeadScore
			}
		}
		d.Overview.AvgLeadScore = fmt.Sprintf("%.1f", float64(sum)/float64(len(leads)))
	}

	perDay := map[string][2]int{}
	for _, a := range assessments {
		d.AssessmentBreakdown[string(a.AppType)]++
		day := a.CreatedAt.UTC().Format(time.DateOnly)
		v := perDay[day]
		v[0]++
		perDay[day] = v
		if a.Score != nil && *a.Score > 0 {
			d.TopPerformers = append(d.TopPerformers, TopPerformer{ID: a.ID, Type: a.AppType, Score: *a.Score, CreatedAt: a.CreatedAt})
		}
	}
	for _, l := range leads {
		day := l.CreatedAt.UTC().Format(time.DateOnly)
		v := perDay[day]
		v[1]++
		perDay[day] = v
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		v := perDay[key]
		d.DailyStats = append(d.DailyStats, DailyStat{Date: key, Assessments: v[0], Leads: v[1], Conversion: percent(v[1], v[0])})
	}

	sort.SliceStable(d.TopPerformers, func(i, j int) bool { return d.TopPerformers[i].Score > d.TopPerformers[j].Score })
	if len(d.TopPerformers) > 10 {
		d.TopPerformers = d.TopPerformers[:10]
	}
	return d, nil
}

// Collect gathers a health snapshot over the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}

	assessments, err := c.allAssessments(ctx, store.AssessmentFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list assessments")
	}

	snap.AssessmentsTotal = len(assessments)
	var totalScore, scored int
	for _, a := range assessments {
		switch a.Status {
		case model.AssessmentCompleted:
			snap.AssessmentsCompleted++
		case model.AssessmentFailed:
			snap.AssessmentsFailed++
		case model.AssessmentInProgress:
			snap.AssessmentsPending++
		}
		if a.Score != nil {
			totalScore += *a.Score
			scored++
		}
	}
	if finished := snap.AssessmentsCompleted + snap.AssessmentsFailed; finished > 0 {
		snap.FailureRate = float64(snap.AssessmentsFailed) / float64(finished)
	}
	if scored > 0 {
		snap.AvgScore = float64(totalScore) / float64(scored)
	}
	if c.security != nil {
		snap.BlockedIPs = len(c.security.Blocked())
	}
	if c.perf != nil {
		snap.SlowRoutes = len(c.perf.Slow(c.slowAt))
	}
	return snap, nil
}

// SecurityOverview is the security section of the monitoring overview.
type SecurityOverview struct {
	BlockedIPs    int      `json:"blockedIPs"`
	SuspiciousIPs int      `json:"suspiciousIPs"`
	RecentBlocked []string `json:"recentBlocked"`
}

// PerformanceOverview is the performance section of the monitoring overview.
type PerformanceOverview struct {
	SlowEndpoints []SlowRoute             `json:"slowEndpoints"`
	AllMetrics    map[string]RouteMetrics `json:"allMetrics"`
}

// MonitoringOverview is the admin monitoring landing view.
type MonitoringOverview struct {
	Logs        LogStats            `json:"logs"`
	Security    SecurityOverview    `json:"security"`
	Performance PerformanceOverview `json:"performance"`
}

// Overview summarises logs, security and performance.
func (c *Collector) Overview() MonitoringOverview {
	out := MonitoringOverview{
		Logs:     LogStats{ByLevel: map[string]int{}, RecentErrors: []LogEntry{}},
		Security: SecurityOverview{RecentBlocked: []string{}},
		Performance: PerformanceOverview{
			SlowEndpoints: []SlowRoute{},
			AllMetrics:    map[string]RouteMetrics{},
		},
	}
	if c.logs != nil {
		out.Logs = c.logs.Stats()
	}
	if c.security != nil {
		blocked := c.security.Blocked()
		out.Security.BlockedIPs = len(blocked)
		out.Security.SuspiciousIPs = len(c.security.Suspicious())
		out.Security.RecentBlocked = blocked[:min(5, len(blocked))]
	}
	if c.perf != nil {
		slow := c.perf.Slow(c.slowAt)
		out.Performance.SlowEndpoints = slow[:min(5, len(slow))]
		out.Performance.AllMetrics = c.perf.Metrics()
	}
	return out
}
