// Package export appends finished KPI reports to a Google Sheet so a
// team can keep a shared log of QuickLook reviews. Entirely optional:
// construction fails cleanly without a spreadsheet ID or credentials.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// NewFromEnv creates a Sheets exporter using environment variables.
// Required: GOOGLE_SPREADSHEET_ID plus service-account credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS. Optional: REPORT_SHEET_NAME
// (default "QuickLook Reports").
func NewFromEnv(ctx context.Context) (*SheetsExporter, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("REPORT_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "QuickLook Reports"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportSummary appends one report block (KPI row plus one row per
// channel) and returns the updated range reference.
func (e *SheetsExporter) ExportSummary(ctx context.Context, runID string, s core.Summary) (string, error) {
	if e.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	rows := summaryRows(runID, s)

	rng := fmt.Sprintf("%s!A:L", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append report to sheet %s: %w", e.sheetName, err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "KPI report exported to Google Sheets",
		"run_id", runID, "sheet", e.sheetName, "range", ref)
	return ref, nil
}

// summaryRows lays the summary out as spreadsheet rows. The first row
// carries the headline KPIs; channel rows follow, largest value first
// (Channels is already sorted).
func summaryRows(runID string, s core.Summary) [][]any {
	const dateFormat = "2006-01-02"

	rows := [][]any{{
		runID,
		time.Now().Format(time.RFC3339),
		s.Window.Start.Format(dateFormat),
		s.Window.End.Format(dateFormat),
		s.HomeCountry,
		strconv.Itoa(s.RowCount),
		s.Deposits.Count, s.Deposits.Value.StringFixed(2),
		s.Withdrawals.Count, s.Withdrawals.Value.StringFixed(2),
		s.Domestic.Count,
		s.International.Count,
	}}

	for _, ch := range s.Channels {
		rows = append(rows, []any{
			runID, "channel", ch.Channel, ch.Count, ch.Value.StringFixed(2),
		})
	}
	return rows
}
