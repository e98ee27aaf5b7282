package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverick250/aml-interactive-dashboard/internal/narrative"
)

// stubGenerator counts calls and returns a canned result.
type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Generate(context.Context, narrative.Payload) (string, error) {
	g.calls++
	return g.text, g.err
}

func (g *stubGenerator) Enabled() bool { return true }

func newNarrativeServer(t *testing.T, gen narrative.Generator) *Server {
	t.Helper()
	srv := NewServer(":0", Options{HomeCountry: "ZA", Narrative: gen})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func postNarrative(srv *Server, params url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ui/narrative", strings.NewReader(params.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestNarrativeRendersGeneratedText(t *testing.T) {
	gen := &stubGenerator{text: "- deposits dominate\n- no bursts"}
	srv := newNarrativeServer(t, gen)
	sessionID := uploadSession(t, srv)

	rec := postNarrative(srv, url.Values{"session": {sessionID}})
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "deposits dominate")
	assert.Contains(t, body, "no bursts")
	assert.Equal(t, 1, gen.calls)
}

func TestNarrativeFailureDoesNotBreakPanels(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream down")}
	srv := newNarrativeServer(t, gen)
	sessionID := uploadSession(t, srv)

	rec := postNarrative(srv, url.Values{"session": {sessionID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "temporarily unavailable")

	// KPI partials are unaffected by the narrative failure.
	over := getPartial(srv, "/ui/overview", sessionID, nil)
	require.Equal(t, http.StatusOK, over.Code)
	assert.Contains(t, over.Body.String(), "1,525.00")
}

func TestNarrativeRepeatIsServedFromCache(t *testing.T) {
	gen := &stubGenerator{text: "- cached synopsis"}
	srv := newNarrativeServer(t, gen)
	sessionID := uploadSession(t, srv)

	first := postNarrative(srv, url.Values{"session": {sessionID}})
	require.Equal(t, http.StatusOK, first.Code)
	second := postNarrative(srv, url.Values{"session": {sessionID}})
	require.Equal(t, http.StatusOK, second.Code)

	assert.Contains(t, second.Body.String(), "cached synopsis")
	assert.Equal(t, 1, gen.calls)
}

func TestNarrativeForSupersededFiltersIsDropped(t *testing.T) {
	gen := &stubGenerator{text: "- summary text"}
	srv := newNarrativeServer(t, gen)
	sessionID := uploadSession(t, srv)

	// The overview render pins the session to the full window.
	over := getPartial(srv, "/ui/overview", sessionID, nil)
	require.Equal(t, http.StatusOK, over.Code)

	// A narrative for a different window is stale on arrival.
	rec := postNarrative(srv, url.Values{
		"session": {sessionID},
		"start":   {"2024-03-02"},
		"end":     {"2024-03-02"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Filters changed")
	assert.NotContains(t, rec.Body.String(), "summary text")
}

func TestNarrativeEmptyWindowSkipsGeneration(t *testing.T) {
	gen := &stubGenerator{text: "- should not appear"}
	srv := newNarrativeServer(t, gen)
	sessionID := uploadSession(t, srv)

	rec := postNarrative(srv, url.Values{
		"session": {sessionID},
		"start":   {"2030-01-01"},
		"end":     {"2030-01-02"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No transactions")
	assert.Equal(t, 0, gen.calls)
}
