package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/assessment"
	"github.com/maruonline/leadgen/internal/crm"
	"github.com/maruonline/leadgen/internal/narrative"
	"github.com/maruonline/leadgen/internal/notify"
	"github.com/maruonline/leadgen/internal/pipeline"
	"github.com/maruonline/leadgen/internal/ratelimit"
	"github.com/maruonline/leadgen/internal/resilience"
	"github.com/maruonline/leadgen/internal/scrape"
	"github.com/maruonline/leadgen/internal/store"
	anthropicpkg "github.com/maruonline/leadgen/pkg/anthropic"
	"github.com/maruonline/leadgen/pkg/firecrawl"
	"github.com/maruonline/leadgen/pkg/hubspot"
	"github.com/maruonline/leadgen/pkg/notion"
	"github.com/maruonline/leadgen/pkg/salesforce"
)

// appEnv holds the store, the integrations and the pipeline shared by the
// serve and leads commands.
type appEnv struct {
	Store     store.Store
	Fetcher   *scrape.Fetcher
	Generator *narrative.Generator
	Notifier  *notify.Notifier
	CRM       *crm.Multi
	Catalog   *assessment.Catalog
	LeadScore *assessment.LeadScore
	Pipeline  *pipeline.Pipeline
	Breakers  *resilience.Registry
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initAnalyzers builds the scrape fetcher and the narrative generator. Both
// degrade to fallbacks when their keys are missing.
func initAnalyzers(ctx context.Context, breakers *resilience.Registry) (*scrape.Fetcher, *narrative.Generator) {
	var scrapers []scrape.Scraper
	if cfg.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(fc))
	} else {
		zap.L().Warn("firecrawl key not set, scraping with the local fetcher only")
	}
	scrapers = append(scrapers, scrape.NewLocalScraper())

	fetcher := scrape.NewFetcher(scrape.NewChain(scrapers...),
		scrape.WithBreaker(breakers.Get("scrape")),
		scrape.WithTimeout(time.Duration(cfg.Firecrawl.TimeoutSecs)*time.Second),
	)

	var model narrative.Model
	switch cfg.Narrative.Provider {
	case "gemini":
		m, err := narrative.NewGeminiModel(ctx, cfg.Gemini.Key, cfg.Gemini.Model)
		if err != nil {
			zap.L().Warn("gemini unavailable, narratives use fallbacks", zap.Error(err))
		} else {
			model = m
		}
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("anthropic key not set, narratives use fallbacks")
		} else {
			model = narrative.NewAnthropicModel(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		}
	}

	generator := narrative.NewGenerator(model,
		narrative.WithBreaker(breakers.Get("narrative")),
		narrative.WithTimeout(time.Duration(cfg.Narrative.TimeoutSecs)*time.Second),
	)
	return fetcher, generator
}

// initCRM registers a syncer for every CRM with credentials. A CRM that
// fails to authenticate is skipped rather than failing startup.
func initCRM() *crm.Multi {
	var syncers []crm.Syncer
	if cfg.HubSpot.Key != "" {
		syncers = append(syncers, crm.NewHubSpotSyncer(hubspot.NewClient(cfg.HubSpot.Key)))
	}
	if cfg.Salesforce.ClientID != "" {
		sf, err := salesforce.Connect(salesforce.Creds{
			Domain:       cfg.Salesforce.Domain,
			ClientID:     cfg.Salesforce.ClientID,
			ClientSecret: cfg.Salesforce.ClientSecret,
		}, salesforce.WithRateLimit(cfg.Salesforce.RateLimit))
		if err != nil {
			zap.L().Warn("salesforce connect failed, skipping salesforce sync", zap.Error(err))
		} else {
			syncers = append(syncers, crm.NewSalesforceSyncer(sf))
		}
	}
	if cfg.Notion.Token != "" && cfg.Notion.LeadDB != "" {
		syncers = append(syncers, crm.NewNotionSyncer(notion.NewClient(cfg.Notion.Token), cfg.Notion.LeadDB))
	}

	m := crm.NewMulti(syncers...)
	zap.L().Info("crm sync targets", zap.Strings("crms", m.Names()))
	return m
}

func initNotifier() *notify.Notifier {
	sender := notify.NewSender(notify.SenderConfig{
		ResendAPIKey: cfg.Email.ResendKey,
		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUser:     cfg.Email.SMTPUser,
		SMTPPass:     cfg.Email.SMTPPass,
		FromAddress:  cfg.Email.From,
		FromName:     cfg.Email.FromName,
	})
	return notify.New(sender, notify.Config{
		OperatorAddress: cfg.Email.Operator,
		SiteURL:         cfg.Site.SiteURL,
		AppURL:          cfg.Site.AppURL,
		BookingURL:      cfg.Site.BookingURL,
	})
}

// initEnv opens and migrates the store, then wires every integration into
// the assessment pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	breakers := resilience.NewRegistry(resilience.DefaultConfig())
	fetcher, generator := initAnalyzers(ctx, breakers)
	notifier := initNotifier()
	crmMulti := initCRM()
	catalog := assessment.DefaultCatalog()

	leadScore := assessment.NewLeadScore(fetcher, generator)
	registry := assessment.NewRegistry(
		leadScore,
		assessment.NewPipelineLeak(),
		assessment.NewProposal(generator),
		assessment.NewTechAudit(catalog),
	)
	p := pipeline.New(st, registry,
		pipeline.WithMailer(notifier),
		pipeline.WithCRM(crmMulti),
	)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("narrative", generator.Provider()),
	)

	return &appEnv{
		Store:     st,
		Fetcher:   fetcher,
		Generator: generator,
		Notifier:  notifier,
		CRM:       crmMulti,
		Catalog:   catalog,
		LeadScore: leadScore,
		Pipeline:  p,
		Breakers:  breakers,
	}, nil
}

// initLimiter selects the counter store for rate limiting. The returned
// cleanup closes any client it opened.
func initLimiter(ctx context.Context, st store.Store, onDeny func(clientIP, endpoint string)) (*ratelimit.Limiter, func(), error) {
	cleanup := func() {}
	var counters ratelimit.Store

	switch cfg.RateLimit.Backend {
	case "memory":
		counters = ratelimit.NewMemoryStore()
	case "postgres":
		ps, ok := st.(*store.PostgresStore)
		if !ok {
			return nil, cleanup, eris.New("ratelimit: postgres backend requires the postgres store")
		}
		pg := ratelimit.NewPostgresStore(ps.Pool())
		if err := pg.Migrate(ctx); err != nil {
			return nil, cleanup, eris.Wrap(err, "ratelimit: migrate")
		}
		counters = pg
	case "redis":
		opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, cleanup, eris.Wrap(err, "ratelimit: parse redis url")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, cleanup, eris.Wrap(err, "ratelimit: ping redis")
		}
		counters = ratelimit.NewRedisStore(client, cfg.RateLimit.Prefix)
		cleanup = func() { _ = client.Close() }
	default:
		return nil, cleanup, eris.Errorf("unsupported rate limit backend: %s", cfg.RateLimit.Backend)
	}

	zap.L().Info("rate limiting enabled", zap.String("backend", cfg.RateLimit.Backend))
	return ratelimit.New(counters, ratelimit.WithDenyHook(onDeny)), cleanup, nil
}
