package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/model"
	"github.com/maruonline/leadgen/internal/resilience"
)

// SourceFallback marks a snapshot that came from Fallback.
const SourceFallback = "fallback"

const defaultFetchTimeout = 45 * time.Second

// FetchResult is a snapshot plus where it came from. Degraded is non-empty
// when the snapshot is the fallback.
type FetchResult struct {
	Snapshot model.ScrapeSnapshot
	Source   string
	Degraded []model.Degradation
}

// Fetcher turns a URL into a ScrapeSnapshot, falling back to a fixed
// snapshot on any failure.
type Fetcher struct {
	chain   *Chain
	breaker *resilience.Breaker
	timeout time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithBreaker guards the scrape chain with a circuit breaker.
func WithBreaker(b *resilience.Breaker) FetcherOption {
	return func(f *Fetcher) { f.breaker = b }
}

// WithTimeout bounds a single fetch.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFetcher creates a Fetcher. A nil or empty chain always serves the
// fallback.
func NewFetcher(chain *Chain, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{chain: chain, timeout: defaultFetchTimeout}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ErrNoScraper is returned by Page when the chain is empty.
var ErrNoScraper = eris.New("scrape: no scraper configured")

// Page runs the chain once under the fetch timeout and breaker and returns
// the raw page. Unlike Fetch it reports failures instead of serving the
// fallback.
func (f *Fetcher) Page(ctx context.Context, targetURL string) (*Result, error) {
	if f.chain.Len() == 0 {
		return nil, ErrNoScraper
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	scrapeFn := func(ctx context.Context) (*Result, error) {
		return f.chain.Scrape(ctx, targetURL)
	}
	if f.breaker != nil {
		return resilience.DoVal(ctx, f.breaker, scrapeFn)
	}
	return scrapeFn(ctx)
}

// Fetch never fails: scrape errors are logged and reported through
// FetchResult.Degraded.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) FetchResult {
	if f.chain.Len() == 0 {
		return fallbackResult(targetURL, "no scraper configured")
	}

	res, err := f.Page(ctx, targetURL)
	if err != nil {
		reason := failureReason(err)
		zap.L().Warn("scrape: fetch failed, serving fallback",
			zap.String("url", targetURL),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return fallbackResult(targetURL, reason)
	}

	snap := Extract(res.Page, res.Elapsed)
	if snap.URL == "" {
		snap.URL = targetURL
	}
	zap.L().Debug("scrape: fetched",
		zap.String("url", targetURL),
		zap.String("source", res.Source),
		zap.Duration("elapsed", res.Elapsed),
	)
	return FetchResult{Snapshot: snap, Source: res.Source}
}

func fallbackResult(targetURL, reason string) FetchResult {
	return FetchResult{
		Snapshot: Fallback(targetURL),
		Source:   SourceFallback,
		Degraded: []model.Degradation{{Stage: "fetch", Reason: reason}},
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, resilience.ErrOpen):
		return "scrape service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "scrape timed out"
	default:
		return "scrape failed"
	}
}
