package http

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/maverick250/aml-interactive-dashboard/internal/ingest"
	applog "github.com/maverick250/aml-interactive-dashboard/internal/log"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "path", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := struct {
		HomeCountry      string
		NarrativeEnabled bool
		HistoryEnabled   bool
	}{
		HomeCountry:      s.homeCountry,
		NarrativeEnabled: s.narrative.Enabled(),
		HistoryEnabled:   s.history != nil,
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleUpload accepts a multipart CSV upload, validates the schema,
// and opens a new analysis session. The response is the dashboard
// shell partial the client swaps in.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			slog.WarnContext(r.Context(), "Upload rejected: too large", "limit_bytes", s.maxUploadBytes)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = w.Write([]byte(`<div class="error">File too large for upload</div>`))
			return
		}
		slog.ErrorContext(r.Context(), "Parse multipart form error", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Invalid upload request</div>`))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">No file provided</div>`))
		return
	}
	defer func() { _ = file.Close() }()

	filename := sanitizeInput(filepath.Base(header.Filename))

	ds, err := ingest.Read(file)
	if err != nil {
		var schemaErr *ingest.SchemaError
		if errors.As(err, &schemaErr) {
			slog.WarnContext(r.Context(), "Upload rejected: schema mismatch",
				"filename", filename,
				"missing_columns", strings.Join(schemaErr.Missing, ","))
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`<div class="error">Missing required columns: ` +
				template.HTMLEscapeString(strings.Join(schemaErr.Missing, ", ")) + `</div>`))
			return
		}
		slog.ErrorContext(r.Context(), "Upload read failed", "filename", filename, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Could not read CSV file</div>`))
		return
	}

	sess := s.sessions.Add(filename, ds)
	if s.metrics != nil {
		s.metrics.RecordUpload(len(ds.Rows), ds.Skipped)
		s.metrics.SetActiveSessions(s.sessions.Size())
	}

	slog.InfoContext(r.Context(), "Upload accepted",
		applog.FieldSessionID, sess.ID,
		applog.FieldFilename, filename,
		applog.FieldRowCount, len(ds.Rows),
		applog.FieldSkippedRows, ds.Skipped)

	data := struct {
		SessionID        string
		Filename         string
		RowCount         int
		SkippedRows      int
		MinDate          string
		MaxDate          string
		NarrativeEnabled bool
	}{
		SessionID:        sess.ID,
		Filename:         filename,
		RowCount:         len(ds.Rows),
		SkippedRows:      ds.Skipped,
		NarrativeEnabled: s.narrative.Enabled(),
	}
	if !sess.MinDate.IsZero() {
		data.MinDate = sess.MinDate.Format("2006-01-02")
		data.MaxDate = sess.MaxDate.Format("2006-01-02")
	}

	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Dashboard template execution failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
