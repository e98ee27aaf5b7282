package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"

	FieldSessionID   = "session_id"
	FieldRunID       = "run_id"
	FieldFilename    = "filename"
	FieldRowCount    = "row_count"
	FieldSkippedRows = "skipped_rows"
	FieldWindowStart = "window_start"
	FieldWindowEnd   = "window_end"
	FieldHomeCountry = "home_country"
	FieldSpotlight   = "spotlight"
)

// Components defines standard component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentIngest    = "ingest"
	ComponentKPI       = "kpi"
	ComponentNarrative = "narrative"
	ComponentHistory   = "history"
	ComponentAlert     = "alert"
	ComponentExport    = "export"
)
