package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maverick250/aml-interactive-dashboard/internal/alert"
	"github.com/maverick250/aml-interactive-dashboard/internal/cli"
	"github.com/maverick250/aml-interactive-dashboard/internal/config"
	"github.com/maverick250/aml-interactive-dashboard/internal/export"
	"github.com/maverick250/aml-interactive-dashboard/internal/history"
	apphttp "github.com/maverick250/aml-interactive-dashboard/internal/http"
	applog "github.com/maverick250/aml-interactive-dashboard/internal/log"
	"github.com/maverick250/aml-interactive-dashboard/internal/metrics"
	"github.com/maverick250/aml-interactive-dashboard/internal/narrative"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := cli.SetupLogger()
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(logger)

	gen := buildNarrative(logger, cfg)

	var store *history.Store
	if cfg.HistoryDBPath != "" {
		store = cli.InitHistory(logger, cfg.HistoryDBPath)
		defer func() { _ = store.Close() }()
		logger.Info("History store enabled", "path", cfg.HistoryDBPath)
	}

	var alerts alert.Publisher
	var alertClient *alert.Client
	if cfg.AMQPURL != "" {
		client, err := alert.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect AMQP", "error", err)
			os.Exit(1)
		}
		alertClient = client
		alerts = client
		defer func() { _ = alertClient.Close() }()
		logger.Info("Spotlight alerts enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	var exporter *export.SheetsExporter
	if cfg.GoogleSpreadsheetID != "" {
		exp, err := export.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = exp
		logger.Info("Report export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		HomeCountry:    cfg.HomeCountry,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SessionTTL:     cfg.SessionTTL,
		Narrative:      gen,
		History:        store,
		Alerts:         alerts,
		Exporter:       exporter,
		Metrics:        metrics.New("quicklook"),
	})

	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server shutdown error", "error", err)
			}
		})
		cli.WaitForShutdown(sigCtx, done)
		cancel()
	}()

	logger.Info("Starting quicklook server",
		"port", cfg.Port,
		"home_country", cfg.HomeCountry,
		"narrative_enabled", gen.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		return err
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
	return nil
}

// buildNarrative selects the narrative generator from config. A
// missing API key disables the feature, nothing else.
func buildNarrative(logger *applog.Logger, cfg *config.Config) narrative.Generator {
	if !cfg.NarrativeEnabled() {
		logger.Info("Narrative generation disabled: no API key")
		return narrative.Noop{}
	}

	opts := []narrative.Option{narrative.WithTimeout(cfg.NarrativeTimeout)}
	if cfg.OpenAIModel != "" {
		opts = append(opts, narrative.WithModel(cfg.OpenAIModel))
	}
	return narrative.NewOpenAIClient(cfg.OpenAIKey, opts...)
}
