// Package ingest parses uploaded transaction CSVs into typed records.
//
// Column positions are resolved from the header row by name, so column
// order does not matter and extra columns are ignored. A missing
// required column is fatal for the upload (SchemaError); a row whose
// timestamp or amount fails to parse is skipped and counted, never
// fatal.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

// Required column names, exactly as they must appear in the header.
const (
	ColTimestamp = "tx_datetime"
	ColAmount    = "amount"
	ColCountry   = "counterparty_country_code"
	ColChannel   = "channel"
)

// timestampLayouts are tried in order when parsing tx_datetime.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// SchemaError reports required columns missing from the header row.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required column(s): %s", strings.Join(e.Missing, ", "))
}

// RowError records why a single data row was skipped.
type RowError struct {
	Line   int // 1-based line number in the file, header included
	Field  string
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: bad %s: %s", e.Line, e.Field, e.Reason)
}

// Dataset is the validated result of one upload. Rows are in file
// order; Skipped counts rows dropped for parse failures.
type Dataset struct {
	Rows      []core.Transaction
	Skipped   int
	RowErrors []RowError
}

// columns maps required column names to their header index.
type columns struct {
	ts, amount, country, channel int
}

// Read parses a transaction CSV. It returns *SchemaError when the
// header is unusable and wraps any underlying CSV read failure;
// individual bad rows are reported on the Dataset, not as errors.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows handled per-row
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &SchemaError{Missing: requiredColumns()}
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols, missing := resolveColumns(header)
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	ds := &Dataset{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		tx, rowErr := parseRow(rec, cols, line)
		if rowErr != nil {
			ds.Skipped++
			ds.RowErrors = append(ds.RowErrors, *rowErr)
			continue
		}
		ds.Rows = append(ds.Rows, tx)
	}
	return ds, nil
}

func requiredColumns() []string {
	return []string{ColTimestamp, ColAmount, ColCountry, ColChannel}
}

// resolveColumns locates required columns in the header, matching
// names case-insensitively after trimming (headers exported from
// spreadsheets often carry stray whitespace or a BOM).
func resolveColumns(header []string) (columns, []string) {
	idx := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	cols := columns{ts: -1, amount: -1, country: -1, channel: -1}
	var missing []string
	lookup := func(name string, dst *int) {
		if i, ok := idx[name]; ok {
			*dst = i
		} else {
			missing = append(missing, name)
		}
	}
	lookup(ColTimestamp, &cols.ts)
	lookup(ColAmount, &cols.amount)
	lookup(ColCountry, &cols.country)
	lookup(ColChannel, &cols.channel)
	sort.Strings(missing)
	return cols, missing
}

func parseRow(rec []string, cols columns, line int) (core.Transaction, *RowError) {
	get := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	ts, err := parseTimestamp(get(cols.ts))
	if err != nil {
		return core.Transaction{}, &RowError{Line: line, Field: ColTimestamp, Reason: err.Error()}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(get(cols.amount)))
	if err != nil {
		return core.Transaction{}, &RowError{Line: line, Field: ColAmount, Reason: err.Error()}
	}

	return core.Transaction{
		Timestamp:   ts,
		Amount:      amount,
		CountryCode: strings.TrimSpace(get(cols.country)),
		Channel:     get(cols.channel),
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
