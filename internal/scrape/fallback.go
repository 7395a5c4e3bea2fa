package scrape

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/maruonline/leadgen/internal/model"
)

//go:embed fallback.yaml
var fallbackYAML []byte

// Fallback returns the fixed snapshot served when the site cannot be
// fetched. Every call decodes a fresh copy, so callers may mutate it.
func Fallback(targetURL string) model.ScrapeSnapshot {
	snap, err := decodeFallback()
	if err != nil {
		panic(err)
	}
	snap.URL = targetURL
	return snap
}

func decodeFallback() (model.ScrapeSnapshot, error) {
	var snap model.ScrapeSnapshot
	if err := yaml.Unmarshal(fallbackYAML, &snap); err != nil {
		return snap, eris.Wrap(err, "scrape: decode fallback snapshot")
	}
	return snap, nil
}
