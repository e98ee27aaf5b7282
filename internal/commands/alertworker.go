package commands

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maverick250/aml-interactive-dashboard/internal/alert"
	"github.com/maverick250/aml-interactive-dashboard/internal/cli"
	applog "github.com/maverick250/aml-interactive-dashboard/internal/log"
)

func newAlertWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "alert-worker",
		Short: "Consume spotlight alerts from the queue into the history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlertWorker()
		},
	}
}

func runAlertWorker() error {
	logger := cli.SetupLogger().WithComponent(applog.ComponentAlert)
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the alert worker")
		os.Exit(1)
	}
	if cfg.HistoryDBPath == "" {
		logger.Error("HISTORY_DB_PATH is required for the alert worker")
		os.Exit(1)
	}

	store := cli.InitHistory(logger, cfg.HistoryDBPath)
	defer func() { _ = store.Close() }()

	client, err := alert.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect AMQP", "error", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		_ = client.Close()
	})

	worker := alert.NewWorker(client, store)
	logger.Info("Alert worker started", "queue", cfg.AMQPQueue)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Alert worker stopped with error", "error", err)
		return err
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Alert worker stopped gracefully")
	return nil
}
