package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

// parseWindow extracts the analysis window from form values. Missing
// bounds fall back to the session's observed date range so a fresh
// upload renders the full file by default.
func parseWindow(r *http.Request, sess *session) (core.Window, error) {
	start := sess.MinDate
	end := sess.MaxDate

	if v := strings.TrimSpace(r.FormValue("start")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return core.Window{}, fmt.Errorf("invalid start date %q: %w", v, err)
		}
		start = parsed
	}
	if v := strings.TrimSpace(r.FormValue("end")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return core.Window{}, fmt.Errorf("invalid end date %q: %w", v, err)
		}
		end = parsed
	}

	// A dataset where every row was skipped has no observed date range.
	// Fill the missing bound(s) so the window validates and the handler
	// renders the zero-row summary instead of an error.
	if start.IsZero() {
		start = end
	}
	if end.IsZero() {
		end = start
	}
	if start.IsZero() {
		start, end = sess.CreatedAt, sess.CreatedAt
	}

	win := core.NewWindow(start, end)
	if err := win.Validate(); err != nil {
		return core.Window{}, err
	}
	return win, nil
}

// formatAmount renders a decimal amount with thousands separators
// (e.g. "1,234,567.89").
func formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + fracPart
	if neg {
		return "-" + out
	}
	return out
}

// percentOf returns value/total as a 0-100 percentage, guarding the
// zero-total case for template bar widths.
func percentOf(value, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	pct, _ := value.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// templateFuncs exposes formatting helpers to the embedded templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount": formatAmount,
		"pct":    percentOf,
		"date": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
		"datetime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
	}
}
