// Package http serves the QuickLook dashboard: upload page, HTMX-style
// KPI partials, narrative panel, and operational endpoints.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/maverick250/aml-interactive-dashboard/internal/alert"
	"github.com/maverick250/aml-interactive-dashboard/internal/cache"
	"github.com/maverick250/aml-interactive-dashboard/internal/export"
	"github.com/maverick250/aml-interactive-dashboard/internal/history"
	applog "github.com/maverick250/aml-interactive-dashboard/internal/log"
	"github.com/maverick250/aml-interactive-dashboard/internal/metrics"
	"github.com/maverick250/aml-interactive-dashboard/internal/narrative"
	appweb "github.com/maverick250/aml-interactive-dashboard/web"
)

// Options carries the optional collaborators; any of them may be nil
// and the dashboard degrades gracefully.
type Options struct {
	HomeCountry    string
	MaxUploadBytes int64
	SessionTTL     time.Duration
	PostsPerMinute int

	Narrative narrative.Generator
	History   *history.Store
	Alerts    alert.Publisher
	Exporter  *export.SheetsExporter
	Metrics   *metrics.Collector
}

type Server struct {
	http.Server
	templates *template.Template

	homeCountry    string
	maxUploadBytes int64

	sessions       *sessionStore
	narrativeCache *cache.LRUCache[string]

	narrative   narrative.Generator
	history     *history.Store
	alerts      alert.Publisher
	exporter    *export.SheetsExporter
	metrics     *metrics.Collector
	rateLimiter *rateLimiter

	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server.
func NewServer(addr string, opts Options) *Server {
	mux := http.NewServeMux()

	if opts.HomeCountry == "" {
		opts.HomeCountry = "ZA"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.PostsPerMinute <= 0 {
		opts.PostsPerMinute = 60
	}
	if opts.Narrative == nil {
		opts.Narrative = narrative.Noop{}
	}

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		homeCountry:    opts.HomeCountry,
		maxUploadBytes: opts.MaxUploadBytes,
		sessions:       newSessionStore(64, opts.SessionTTL),
		narrativeCache: cache.NewLRUCache[string](128, 10*time.Minute),
		narrative:      opts.Narrative,
		history:        opts.History,
		alerts:         opts.Alerts,
		exporter:       opts.Exporter,
		metrics:        opts.Metrics,
		rateLimiter:    newRateLimiter(opts.PostsPerMinute),
		stopCleanup:    make(chan struct{}),
	}

	go s.startSessionCleanup()

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets served from the embedded FS.
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.withMiddleware(s.handleIndex))
	mux.HandleFunc("/upload", s.withMiddleware(s.handleUpload))
	mux.HandleFunc("/ui/overview", s.withMiddleware(s.handleOverview))
	mux.HandleFunc("/ui/hourly", s.withMiddleware(s.handleHourly))
	mux.HandleFunc("/ui/split", s.withMiddleware(s.handleSplit))
	mux.HandleFunc("/ui/channels", s.withMiddleware(s.handleChannels))
	mux.HandleFunc("/ui/extremes", s.withMiddleware(s.handleExtremes))
	mux.HandleFunc("/ui/narrative", s.withMiddleware(s.handleNarrative))
	mux.HandleFunc("/ui/history", s.withMiddleware(s.handleHistory))
	mux.HandleFunc("/export", s.withMiddleware(s.handleExport))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return s
}

// startSessionCleanup evicts expired sessions periodically.
func (s *Server) startSessionCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.sessions.CleanExpired(); cleaned > 0 {
				slog.Debug("Session cleanup completed", "sessions_removed", cleaned)
			}
			s.narrativeCache.CleanExpired()
			if s.metrics != nil {
				s.metrics.SetActiveSessions(s.sessions.Size())
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCleanup != nil {
			close(s.stopCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, rate limiting, request IDs,
// and request logging to a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP, applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
