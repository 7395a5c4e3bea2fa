// Package api serves the assessment, email, CRM, analytics and admin routes
// of the marketing site over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/assessment"
	"github.com/maruonline/leadgen/internal/auth"
	"github.com/maruonline/leadgen/internal/crm"
	"github.com/maruonline/leadgen/internal/monitoring"
	"github.com/maruonline/leadgen/internal/narrative"
	"github.com/maruonline/leadgen/internal/notify"
	"github.com/maruonline/leadgen/internal/pipeline"
	"github.com/maruonline/leadgen/internal/ratelimit"
	"github.com/maruonline/leadgen/internal/scrape"
	"github.com/maruonline/leadgen/internal/store"
)

const defaultRequestTimeout = 60 * time.Second

// Deps are the collaborators behind the routes. Limiter may be nil, which
// disables rate limiting. Narrator and Analyzer default to canned copy over
// Fetcher.
type Deps struct {
	Store     store.Store
	Pipeline  *pipeline.Pipeline
	Fetcher   *scrape.Fetcher
	Notifier  *notify.Notifier
	CRM       *crm.Multi
	Sessions  *auth.Sessions
	Limiter   *ratelimit.Limiter
	Collector *monitoring.Collector
	Catalog   *assessment.Catalog
	Analyzer  *assessment.LeadScore
	Narrator  *narrative.Generator

	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Handler holds the route handlers.
type Handler struct {
	Deps
	now func() time.Time
}

// NewRouter creates a chi router with every endpoint and middleware.
func NewRouter(d Deps) http.Handler {
	if d.Collector == nil {
		d.Collector = monitoring.NewCollector(d.Store, nil, nil, nil)
	}
	if d.Sessions == nil {
		d.Sessions = auth.NewSessions(auth.Config{})
	}
	if d.Catalog == nil {
		d.Catalog = assessment.DefaultCatalog()
	}
	if d.Fetcher == nil {
		d.Fetcher = scrape.NewFetcher(nil)
	}
	if d.Narrator == nil {
		d.Narrator = narrative.NewGenerator(nil)
	}
	if d.Analyzer == nil {
		d.Analyzer = assessment.NewLeadScore(d.Fetcher, d.Narrator)
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = defaultRequestTimeout
	}
	h := &Handler{Deps: d, now: time.Now}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(h.blockListed)
	if perf := d.Collector.Performance(); perf != nil {
		r.Use(perf.Middleware)
	}
	r.Use(middleware.Timeout(d.RequestTimeout))

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware(""))
		}

		r.Post("/assessments", h.handleAssessment)
		r.Post("/scrape-website", h.handleScrapeWebsite)
		r.Post("/calculate-score", h.handleCalculateScore)
		r.Get("/tools", h.handleTools)
		r.Post("/analyze-website", h.handleAnalyzeWebsite)
		r.Post("/analyze-lead-gen", h.handleAnalyzeLeadGen)
		r.Post("/chat", h.handleChat)

		r.Post("/send-results", h.handleSendResults)
		r.Post("/email/send", h.handleEmailSend)
		r.Post("/send-email", h.handleSendEmail)
		r.Post("/hubspot/sync", h.handleHubSpotSync)

		r.Post("/analytics", h.handleAnalyticsEvent)
		r.Post("/analytics/journey", h.handleJourney)

		r.Post("/auth/admin", h.handleLogin)
		r.Delete("/auth/admin", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(d.Sessions.Middleware)
			r.Get("/admin/leads", h.handleListLeads)
			r.Get("/admin/leads/export", h.handleExportLeads)
			r.Get("/admin/monitoring", h.handleMonitoring)
			r.Post("/admin/monitoring", h.handleMonitoringAction)
			r.Get("/analytics/dashboard", h.handleDashboard)
		})
	})

	return r
}

// blockListed rejects clients the security monitor has blocked.
func (h *Handler) blockListed(next http.Handler) http.Handler {
	sec := h.Collector.Security()
	if sec == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sec.IsBlocked(ratelimit.ClientIP(r)) {
			writeError(w, http.StatusForbidden, "Access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) reportSuspicious(r *http.Request, activity string) {
	if sec := h.Collector.Security(); sec != nil {
		sec.Report(ratelimit.ClientIP(r), activity)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		switch {
		case status >= 500:
			zap.L().Error("api: request failed", fields...)
		case status >= 400:
			zap.L().Warn("api: request rejected", fields...)
		default:
			zap.L().Info("api: request", fields...)
		}
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		zap.L().Error("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
