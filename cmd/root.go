package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/maruonline/leadgen/internal/config"
	"github.com/maruonline/leadgen/internal/monitoring"
)

var (
	cfg *config.Config

	// logBuffer keeps the recent log lines served by the admin monitoring
	// view.
	logBuffer *monitoring.LogBuffer
)

var rootCmd = &cobra.Command{
	Use:   "leadgen",
	Short: "Lead generation backend for the Maru Online marketing site",
	Long:  "Runs the assessment tools, captures and scores leads, sends result emails, mirrors contacts into the CRMs and serves the admin dashboards.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		logBuffer = monitoring.NewLogBuffer(cfg.Log.Buffer, zapcore.InfoLevel)
		if err := config.InitLogger(cfg.Log, logBuffer); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
