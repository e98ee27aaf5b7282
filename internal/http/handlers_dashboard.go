package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maverick250/aml-interactive-dashboard/internal/alert"
	"github.com/maverick250/aml-interactive-dashboard/internal/core"
	"github.com/maverick250/aml-interactive-dashboard/internal/history"
	"github.com/maverick250/aml-interactive-dashboard/internal/kpi"
)

// analysis is the shared result of resolving a session and window for
// one partial render.
type analysis struct {
	Session  *session
	Window   core.Window
	Windowed []core.Transaction
	Summary  core.Summary
	Snapshot string
}

// resolveAnalysis loads the session named in the request, parses the
// window bounds, and aggregates the KPI summary. On failure it writes
// an error partial and returns ok=false.
func (s *Server) resolveAnalysis(w http.ResponseWriter, r *http.Request) (*analysis, bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	sessionID := sanitizeInput(r.FormValue("session"))
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		slog.WarnContext(r.Context(), "Session not found", "session_id", sessionID)
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`<div class="error">Session expired. Please upload the file again.</div>`))
		return nil, false
	}

	win, err := parseWindow(r, sess)
	if err != nil {
		slog.WarnContext(r.Context(), "Invalid window", "session_id", sess.ID, "error", err)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">Invalid date range</div>`))
		return nil, false
	}

	start := time.Now()
	windowed := kpi.FilterWindow(sess.Dataset.Rows, win)
	summary := kpi.Aggregate(windowed, win, s.homeCountry)
	if s.metrics != nil {
		s.metrics.RecordAnalysis(time.Since(start))
	}

	return &analysis{
		Session:  sess,
		Window:   win,
		Windowed: windowed,
		Summary:  summary,
		Snapshot: snapshotID(sess.ID, win),
	}, true
}

// snapshotID identifies one (session, window) filter state. Narrative
// responses carry it back so results for an older state are dropped.
func snapshotID(sessionID string, win core.Window) string {
	return sessionID + "|" + win.Start.Format("2006-01-02") + "|" + win.End.Format("2006-01-02")
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", name)
		_, _ = w.Write([]byte(`<div class="error">Error rendering panel</div>`))
	}
}

// handleOverview renders the headline KPI cards. It is the anchor
// partial of a window change: it also advances the session snapshot,
// records the run, and publishes spotlight alerts.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	a, ok := s.resolveAnalysis(w, r)
	if !ok {
		return
	}

	spots := kpi.ComputeSpotlights(a.Windowed, a.Session.Dataset.Rows)
	a.Session.SetSnapshot(a.Snapshot)

	runID := uuid.NewString()
	s.recordRun(r, runID, a)
	if published := s.publishAlerts(r, runID, a.Window, spots); published > 0 && s.metrics != nil {
		for i := 0; i < published; i++ {
			s.metrics.RecordAlertPublished()
		}
	}

	sum := a.Summary
	data := struct {
		SessionID   string
		Snapshot    string
		Start       string
		End         string
		Empty       bool
		RowCount    int
		SkippedRows int
		Deposits    core.ClassTotal
		Withdrawals core.ClassTotal
		Burst       core.BurstSpotlight
		Imbalance   core.ImbalanceSpotlight
	}{
		SessionID:   a.Session.ID,
		Snapshot:    a.Snapshot,
		Start:       a.Window.Start.Format("2006-01-02"),
		End:         a.Window.End.Format("2006-01-02"),
		Empty:       sum.Empty,
		RowCount:    sum.RowCount,
		SkippedRows: a.Session.Dataset.Skipped,
		Deposits:    sum.Deposits,
		Withdrawals: sum.Withdrawals,
		Burst:       spots.Burst,
		Imbalance:   spots.Imbalance,
	}
	s.render(w, r, "overview.html", data)
}

func (s *Server) handleHourly(w http.ResponseWriter, r *http.Request) {
	a, ok := s.resolveAnalysis(w, r)
	if !ok {
		return
	}

	maxCount := 0
	for _, c := range a.Summary.Hourly {
		if c > maxCount {
			maxCount = c
		}
	}

	type bucket struct {
		Hour  int
		Count int
		Width int
	}
	data := struct {
		Empty   bool
		Buckets []bucket
	}{Empty: a.Summary.Empty}
	for h, c := range a.Summary.Hourly {
		width := 0
		if maxCount > 0 && c > 0 {
			width = (c*100 + maxCount/2) / maxCount
			if width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		data.Buckets = append(data.Buckets, bucket{Hour: h, Count: c, Width: width})
	}
	s.render(w, r, "hourly.html", data)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	a, ok := s.resolveAnalysis(w, r)
	if !ok {
		return
	}

	sum := a.Summary
	total := sum.Domestic.Value.Add(sum.International.Value)
	data := struct {
		HomeCountry   string
		Empty         bool
		Domestic      core.ClassTotal
		International core.ClassTotal
		DomesticPct   float64
		InternatPct   float64
	}{
		HomeCountry:   sum.HomeCountry,
		Empty:         sum.Empty,
		Domestic:      sum.Domestic,
		International: sum.International,
		DomesticPct:   percentOf(sum.Domestic.Value, total),
		InternatPct:   percentOf(sum.International.Value, total),
	}
	s.render(w, r, "split.html", data)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	a, ok := s.resolveAnalysis(w, r)
	if !ok {
		return
	}

	maxValue := decimalMax(a.Summary.Channels)
	type row struct {
		Channel string
		Count   int
		Value   string
		Width   int
	}
	data := struct {
		Empty bool
		Rows  []row
	}{Empty: a.Summary.Empty}
	for _, cs := range a.Summary.Channels {
		width := 0
		if !maxValue.IsZero() && cs.Value.Sign() > 0 {
			width = int(percentOf(cs.Value, maxValue))
			if width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		data.Rows = append(data.Rows, row{
			Channel: cs.Channel,
			Count:   cs.Count,
			Value:   formatAmount(cs.Value),
			Width:   width,
		})
	}
	s.render(w, r, "channels.html", data)
}

func (s *Server) handleExtremes(w http.ResponseWriter, r *http.Request) {
	a, ok := s.resolveAnalysis(w, r)
	if !ok {
		return
	}

	type extreme struct {
		Timestamp string
		Amount    string
		Country   string
		Channel   string
	}
	view := func(tx *core.Transaction) *extreme {
		if tx == nil {
			return nil
		}
		return &extreme{
			Timestamp: tx.Timestamp.Format("2006-01-02 15:04:05"),
			Amount:    formatAmount(tx.Amount),
			Country:   tx.CountryCode,
			Channel:   tx.Channel,
		}
	}
	data := struct {
		Empty             bool
		LargestDeposit    *extreme
		LargestWithdrawal *extreme
	}{
		Empty:             a.Summary.Empty,
		LargestDeposit:    view(a.Summary.LargestDeposit),
		LargestWithdrawal: view(a.Summary.LargestWithdrawal),
	}
	s.render(w, r, "extremes.html", data)
}

// handleHistory lists recent analysis runs from the history store.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if s.history == nil {
		_, _ = w.Write([]byte(`<div class="placeholder">Run history is not configured</div>`))
		return
	}

	runs, err := s.history.RecentRuns(r.Context(), 20)
	if err != nil {
		slog.ErrorContext(r.Context(), "History lookup failed", "error", err)
		_, _ = w.Write([]byte(`<div class="error">Error loading history</div>`))
		return
	}

	type row struct {
		Filename    string
		RowCount    int
		SkippedRows int
		Window      string
		CreatedAt   string
	}
	data := struct{ Rows []row }{}
	for _, run := range runs {
		data.Rows = append(data.Rows, row{
			Filename:    run.Filename,
			RowCount:    run.RowCount,
			SkippedRows: run.SkippedRows,
			Window:      run.WindowStart.Format("2006-01-02") + " to " + run.WindowEnd.Format("2006-01-02"),
			CreatedAt:   run.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	s.render(w, r, "history.html", data)
}

// recordRun persists the analysis when a history store is configured.
// Persistence failures never break the render.
func (s *Server) recordRun(r *http.Request, runID string, a *analysis) {
	if s.history == nil {
		return
	}

	summaryJSON, err := json.Marshal(a.Summary)
	if err != nil {
		slog.ErrorContext(r.Context(), "Summary marshal failed", "run_id", runID, "error", err)
		return
	}

	run := history.Run{
		ID:          runID,
		Filename:    a.Session.Filename,
		RowCount:    a.Summary.RowCount,
		SkippedRows: a.Session.Dataset.Skipped,
		WindowStart: a.Window.Start,
		WindowEnd:   a.Window.End,
		HomeCountry: a.Summary.HomeCountry,
		SummaryJSON: string(summaryJSON),
		CreatedAt:   time.Now(),
	}
	if err := s.history.RecordRun(r.Context(), run); err != nil {
		slog.ErrorContext(r.Context(), "Run record failed", "run_id", runID, "error", err)
	}
}

func (s *Server) publishAlerts(r *http.Request, runID string, win core.Window, spots core.Spotlights) int {
	if s.alerts == nil {
		return 0
	}
	return alert.PublishRaised(r.Context(), s.alerts, runID, win, spots)
}

func decimalMax(channels []core.ChannelStat) decimal.Decimal {
	max := decimal.Zero
	for _, cs := range channels {
		if cs.Value.GreaterThan(max) {
			max = cs.Value
		}
	}
	return max
}
