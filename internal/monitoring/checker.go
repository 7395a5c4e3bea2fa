package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackHours = 24
	// alertCooldown is the quiet period before an alert of the same type is
	// sent again.
	alertCooldown = time.Hour
)

// Checker evaluates a health snapshot on a fixed interval and posts alerts to
// the webhook. Repeats of an alert type are suppressed for alertCooldown.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
	last     *MetricsSnapshot
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
}

func (c *Checker) lookback() int {
	if c.cfg.LookbackWindowHours <= 0 {
		return defaultLookbackHours
	}
	return c.cfg.LookbackWindowHours
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run checks once immediately, then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", c.interval()),
		zap.Int("lookback_hours", c.lookback()),
		zap.Bool("webhook", c.cfg.WebhookURL != ""),
	)

	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			log.Info("health checker stopped")
			return
		}
		c.Check(ctx)

		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot and sends the alerts that are not cooling
// down. It returns the alerts that were due.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback())
	if err != nil {
		zap.L().Error("monitoring: collect snapshot", zap.Error(err))
		return nil
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	due := c.due(c.alerter.Evaluate(snap))
	if len(due) == 0 {
		zap.L().Debug("monitoring: healthy",
			zap.Int("assessments", snap.AssessmentsTotal),
			zap.Float64("failure_rate", snap.FailureRate),
		)
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, due)
	zap.L().Info("monitoring: alerts raised",
		zap.Int("due", len(due)),
		zap.Int("sent", sent),
	)
	return due
}

// due drops alerts whose type fired within the cooldown and stamps the rest.
func (c *Checker) due(alerts []Alert) []Alert {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Alert
	for _, a := range alerts {
		if at, ok := c.lastSent[a.Type]; ok && now.Sub(at) < alertCooldown {
			continue
		}
		c.lastSent[a.Type] = now
		out = append(out, a)
	}
	return out
}

// Last returns the most recent snapshot, or nil before the first check.
func (c *Checker) Last() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
