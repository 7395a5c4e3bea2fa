// Package scrape fetches a prospect's website and reduces it to the
// structural signals the scorer works from.
package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in the order given.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

// Len reports how many scrapers are configured.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.scrapers)
}

// Names lists the configured scrapers in order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.scrapers))
	for i, s := range c.scrapers {
		names[i] = s.Name()
	}
	return names
}

// Scrape tries each scraper in order for a single URL. The returned Result
// carries the elapsed time of the successful attempt only.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "scrape: context done")
		}

		start := time.Now()
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			if result.Elapsed == 0 {
				result.Elapsed = time.Since(start)
			}
			return result, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}
