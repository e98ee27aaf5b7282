package http

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/maverick250/aml-interactive-dashboard/internal/kpi"
	"github.com/maverick250/aml-interactive-dashboard/internal/narrative"
)

// handleNarrative generates the AI synopsis for the current filter
// state. Failures degrade to an inline notice; the KPI panels are
// never affected.
func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !s.narrative.Enabled() {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if s.metrics != nil {
			s.metrics.RecordNarrative("disabled")
		}
		_, _ = w.Write([]byte(`<div class="placeholder">AI synopsis is unavailable: no API key configured</div>`))
		return
	}

	a, ok := s.resolveAnalysis(w, r)
	if !ok {
		return
	}

	if a.Summary.Empty {
		_, _ = w.Write([]byte(`<div class="placeholder">No transactions in the selected window</div>`))
		return
	}

	// Same filter state asked twice serves the memoized text.
	if cached, ok := s.narrativeCache.Get(a.Snapshot); ok {
		if s.metrics != nil {
			s.metrics.RecordNarrative("ok")
		}
		writeNarrative(w, cached)
		return
	}

	payload := narrative.Payload{
		SnapshotID: a.Snapshot,
		Metrics:    a.Summary,
		Spotlights: kpi.ComputeSpotlights(a.Windowed, a.Session.Dataset.Rows),
	}

	text, err := s.narrative.Generate(r.Context(), payload)
	if err != nil {
		outcome := "error"
		if errors.Is(err, narrative.ErrDisabled) {
			outcome = "disabled"
		}
		if s.metrics != nil {
			s.metrics.RecordNarrative(outcome)
		}
		slog.WarnContext(r.Context(), "Narrative generation failed",
			"session_id", a.Session.ID, "snapshot", a.Snapshot, "error", err)
		_, _ = w.Write([]byte(`<div class="warning">AI synopsis is temporarily unavailable. KPI panels are unaffected.</div>`))
		return
	}

	// A slow response for a filter state the user has already moved
	// away from is stale; drop it rather than mislabel fresh panels.
	if current := a.Session.Snapshot(); current != "" && current != a.Snapshot {
		if s.metrics != nil {
			s.metrics.RecordNarrative("stale")
		}
		slog.InfoContext(r.Context(), "Narrative dropped as stale",
			"session_id", a.Session.ID, "snapshot", a.Snapshot, "current", current)
		_, _ = w.Write([]byte(`<div class="placeholder">Filters changed while generating. Request the synopsis again.</div>`))
		return
	}

	if s.metrics != nil {
		s.metrics.RecordNarrative("ok")
	}
	s.narrativeCache.Set(a.Snapshot, text)
	writeNarrative(w, text)
}

func writeNarrative(w http.ResponseWriter, text string) {
	var b strings.Builder
	b.WriteString(`<div class="narrative">`)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString(`<p>`)
		b.WriteString(template.HTMLEscapeString(line))
		b.WriteString(`</p>`)
	}
	b.WriteString(`</div>`)
	_, _ = w.Write([]byte(b.String()))
}

// handleExport appends the current summary to the configured report
// spreadsheet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.exporter == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<div class="placeholder">Report export is not configured</div>`))
		return
	}

	a, ok := s.resolveAnalysis(w, r)
	if !ok {
		return
	}

	updated, err := s.exporter.ExportSummary(r.Context(), uuid.NewString(), a.Summary)
	if err != nil {
		slog.ErrorContext(r.Context(), "Report export failed", "session_id", a.Session.ID, "error", err)
		_, _ = w.Write([]byte(`<div class="error">Export failed</div>`))
		return
	}

	slog.InfoContext(r.Context(), "Report exported", "session_id", a.Session.ID, "range", updated)
	_, _ = w.Write([]byte(`<div class="success">Report appended at ` + template.HTMLEscapeString(updated) + `</div>`))
}
