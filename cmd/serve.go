package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/internal/api"
	"github.com/maruonline/leadgen/internal/auth"
	"github.com/maruonline/leadgen/internal/monitoring"
	"github.com/maruonline/leadgen/internal/ratelimit"
)

const purgeInterval = 5 * time.Minute

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for the marketing site",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		security := monitoring.NewSecurityMonitor(cfg.Monitoring.BlockThreshold)
		collector := monitoring.NewCollector(env.Store, logBuffer, security, monitoring.NewPerformanceMonitor())

		limiter, closeLimiter, err := initLimiter(ctx, env.Store, func(clientIP, endpoint string) {
			security.Report(clientIP, "rate_limit_exceeded")
		})
		if err != nil {
			return err
		}
		defer closeLimiter()
		go purgeLimiter(ctx, limiter)

		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
		go checker.Run(ctx)

		router := api.NewRouter(api.Deps{
			Store:    env.Store,
			Pipeline: env.Pipeline,
			Fetcher:  env.Fetcher,
			Notifier: env.Notifier,
			CRM:      env.CRM,
			Sessions: auth.NewSessions(auth.Config{
				Email:    cfg.Admin.Email,
				Password: cfg.Admin.Password,
				Secret:   cfg.Admin.SessionSecret,
				Secure:   cfg.Admin.SecureCookie,
			}),
			Limiter:        limiter,
			Collector:      collector,
			Catalog:        env.Catalog,
			Analyzer:       env.LeadScore,
			Narrator:       env.Generator,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server", zap.Any("breakers", env.Breakers.States()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func purgeLimiter(ctx context.Context, l *ratelimit.Limiter) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Purge(ctx); err != nil {
				zap.L().Warn("rate limit purge failed", zap.Error(err))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
