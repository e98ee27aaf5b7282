package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/maverick250/aml-interactive-dashboard/internal/cli"
	"github.com/maverick250/aml-interactive-dashboard/internal/config"
	"github.com/maverick250/aml-interactive-dashboard/internal/core"
	"github.com/maverick250/aml-interactive-dashboard/internal/export"
	"github.com/maverick250/aml-interactive-dashboard/internal/history"
	"github.com/maverick250/aml-interactive-dashboard/internal/ingest"
	"github.com/maverick250/aml-interactive-dashboard/internal/kpi"
	applog "github.com/maverick250/aml-interactive-dashboard/internal/log"
	"github.com/maverick250/aml-interactive-dashboard/internal/narrative"
)

func newReportCommand() *cobra.Command {
	var startStr, endStr, home string
	var withNarrative, exportSheet bool

	cmd := &cobra.Command{
		Use:   "report <csv-file>",
		Short: "Run a one-shot analysis of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(args[0], startStr, endStr, home, withNarrative, exportSheet)
		},
	}

	cmd.Flags().StringVar(&startStr, "start", "", "window start (YYYY-MM-DD, default: earliest row)")
	cmd.Flags().StringVar(&endStr, "end", "", "window end (YYYY-MM-DD, default: latest row)")
	cmd.Flags().StringVar(&home, "home", "", "home country code (default: HOME_COUNTRY_CODE)")
	cmd.Flags().BoolVar(&withNarrative, "narrative", false, "generate the AI synopsis (requires OPENAI_API_KEY)")
	cmd.Flags().BoolVar(&exportSheet, "export-sheet", false, "append the summary to the configured spreadsheet")

	return cmd
}

func runReport(path, startStr, endStr, home string, withNarrative, exportSheet bool) error {
	logger := cli.SetupLogger()
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(logger)
	if home == "" {
		home = cfg.HomeCountry
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ds, err := ingest.Read(f)
	if err != nil {
		var schemaErr *ingest.SchemaError
		if errors.As(err, &schemaErr) {
			return fmt.Errorf("schema mismatch: missing columns %s", strings.Join(schemaErr.Missing, ", "))
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	win, err := resolveWindow(ds.Rows, startStr, endStr)
	if err != nil {
		return err
	}

	windowed := kpi.FilterWindow(ds.Rows, win)
	summary := kpi.Aggregate(windowed, win, home)
	spots := kpi.ComputeSpotlights(windowed, ds.Rows)

	printSummary(os.Stdout, path, ds, summary, spots)

	ctx := context.Background()
	runID := uuid.NewString()

	if cfg.HistoryDBPath != "" {
		if err := recordReportRun(ctx, cfg.HistoryDBPath, runID, path, ds, summary); err != nil {
			logger.Warn("Run record failed", "error", err)
		}
	}

	if withNarrative {
		if err := printNarrative(ctx, logger, cfg, summary, spots); err != nil {
			logger.Warn("Narrative generation failed", "error", err)
		}
	}

	if exportSheet {
		exporter, err := export.NewFromEnv(ctx)
		if err != nil {
			return fmt.Errorf("initializing exporter: %w", err)
		}
		updated, err := exporter.ExportSummary(ctx, runID, summary)
		if err != nil {
			return fmt.Errorf("exporting summary: %w", err)
		}
		fmt.Printf("\nExported to %s\n", updated)
	}

	return nil
}

// resolveWindow builds the analysis window from flags, defaulting each
// missing bound to the dataset's observed extent.
func resolveWindow(rows []core.Transaction, startStr, endStr string) (core.Window, error) {
	var start, end time.Time
	for _, tx := range rows {
		if start.IsZero() || tx.Timestamp.Before(start) {
			start = tx.Timestamp
		}
		if end.IsZero() || tx.Timestamp.After(end) {
			end = tx.Timestamp
		}
	}

	if startStr != "" {
		parsed, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return core.Window{}, fmt.Errorf("invalid --start %q: %w", startStr, err)
		}
		start = parsed
	}
	if endStr != "" {
		parsed, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return core.Window{}, fmt.Errorf("invalid --end %q: %w", endStr, err)
		}
		end = parsed
	}

	win := core.NewWindow(start, end)
	if err := win.Validate(); err != nil {
		return core.Window{}, err
	}
	return win, nil
}

func printSummary(w *os.File, path string, ds *ingest.Dataset, s core.Summary, spots core.Spotlights) {
	fmt.Fprintf(w, "File: %s\n", path)
	fmt.Fprintf(w, "Window: %s to %s (home %s)\n",
		s.Window.Start.Format("2006-01-02"), s.Window.End.Format("2006-01-02"), s.HomeCountry)
	fmt.Fprintf(w, "Rows: %d in window, %d skipped at parse\n\n", s.RowCount, ds.Skipped)

	if s.Empty {
		fmt.Fprintln(w, "No transactions in the selected window.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Deposits\t%d\t%s\n", s.Deposits.Count, s.Deposits.Value.StringFixed(2))
	fmt.Fprintf(tw, "Withdrawals\t%d\t%s\n", s.Withdrawals.Count, s.Withdrawals.Value.StringFixed(2))
	fmt.Fprintf(tw, "Domestic\t%d\t%s\n", s.Domestic.Count, s.Domestic.Value.StringFixed(2))
	fmt.Fprintf(tw, "International\t%d\t%s\n", s.International.Count, s.International.Value.StringFixed(2))
	if s.LargestDeposit != nil {
		fmt.Fprintf(tw, "Largest deposit\t%s\t%s\n",
			s.LargestDeposit.Amount.StringFixed(2), s.LargestDeposit.Timestamp.Format("2006-01-02 15:04:05"))
	}
	if s.LargestWithdrawal != nil {
		fmt.Fprintf(tw, "Largest withdrawal\t%s\t%s\n",
			s.LargestWithdrawal.Amount.StringFixed(2), s.LargestWithdrawal.Timestamp.Format("2006-01-02 15:04:05"))
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nChannels:")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ch := range s.Channels {
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", ch.Channel, ch.Count, ch.Value.StringFixed(2))
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nSpotlights:")
	if spots.Burst.Flag {
		fmt.Fprintf(w, "  burst: %.1fx baseline\n", spots.Burst.Score)
	}
	if spots.Imbalance.Flag {
		if spots.Imbalance.NoDeposits {
			fmt.Fprintln(w, "  imbalance: withdrawals with no deposits")
		} else {
			fmt.Fprintf(w, "  imbalance: %.2f withdrawal/deposit ratio\n", spots.Imbalance.Ratio)
		}
	}
	if !spots.Burst.Flag && !spots.Imbalance.Flag {
		fmt.Fprintln(w, "  none raised")
	}
}

func recordReportRun(ctx context.Context, dbPath, runID, path string, ds *ingest.Dataset, s core.Summary) error {
	store, err := history.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	summaryJSON, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return store.RecordRun(ctx, history.Run{
		ID:          runID,
		Filename:    path,
		RowCount:    s.RowCount,
		SkippedRows: ds.Skipped,
		WindowStart: s.Window.Start,
		WindowEnd:   s.Window.End,
		HomeCountry: s.HomeCountry,
		SummaryJSON: string(summaryJSON),
		CreatedAt:   time.Now(),
	})
}

func printNarrative(ctx context.Context, logger *applog.Logger, cfg *config.Config, s core.Summary, spots core.Spotlights) error {
	gen := buildNarrative(logger, cfg)
	if !gen.Enabled() {
		fmt.Println("\nAI synopsis unavailable: no API key configured")
		return nil
	}

	text, err := gen.Generate(ctx, narrative.Payload{
		SnapshotID: uuid.NewString(),
		Metrics:    s,
		Spotlights: spots,
	})
	if err != nil {
		return err
	}
	fmt.Printf("\nAI synopsis:\n%s\n", text)
	return nil
}
