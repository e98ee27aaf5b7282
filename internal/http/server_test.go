package http

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uploadCSV = `tx_datetime,amount,counterparty_country_code,channel
2024-03-01T09:15:00,1500.00,ZA,branch
2024-03-01T09:45:00,-850.00,GB,online
2024-03-02T14:00:00,25.00,za,online
broken-date,10.00,ZA,atm
`

var sessionIDPattern = regexp.MustCompile(`name="session" value="([^"]+)"`)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(":0", Options{HomeCountry: "ZA"})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, srv *Server, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, "transactions.csv", content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func uploadSession(t *testing.T, srv *Server) string {
	t.Helper()
	rec := doUpload(t, srv, uploadCSV)
	require.Equal(t, http.StatusOK, rec.Code)
	m := sessionIDPattern.FindStringSubmatch(rec.Body.String())
	require.NotNil(t, m, "upload response should carry a session id")
	return m[1]
}

func getPartial(srv *Server, path, sessionID string, params url.Values) *httptest.ResponseRecorder {
	if params == nil {
		params = url.Values{}
	}
	params.Set("session", sessionID)
	req := httptest.NewRequest(http.MethodGet, path+"?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestIndexRenders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upload transactions")
	assert.Contains(t, rec.Body.String(), "AI synopsis is disabled")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestUploadCreatesSession(t *testing.T) {
	srv := newTestServer(t)

	rec := doUpload(t, srv, uploadCSV)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "transactions.csv")
	assert.Contains(t, body, "3 rows parsed")
	assert.Contains(t, body, "1 skipped")
	assert.Equal(t, 1, srv.sessions.Size())
}

func TestUploadMissingColumnsIsUnprocessable(t *testing.T) {
	srv := newTestServer(t)

	rec := doUpload(t, srv, "tx_datetime,amount\n2024-03-01,10.00\n")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "channel")
	assert.Contains(t, rec.Body.String(), "counterparty_country_code")
	assert.Equal(t, 0, srv.sessions.Size())
}

func TestUploadWithoutFileIsBadRequest(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("document", "not-a-file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file provided")
}

func TestOverviewReportsKPIs(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/overview", sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "1,525.00") // deposits: 1500 + 25
	assert.Contains(t, body, "850.00")   // withdrawals, absolute
	assert.Contains(t, body, "2024-03-01")
	assert.Contains(t, body, "2024-03-02")
}

func TestOverviewWindowFilter(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/overview", sessionID, url.Values{
		"start": {"2024-03-02"},
		"end":   {"2024-03-02"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "25.00")
	assert.NotContains(t, body, "1,500.00")
}

func TestOverviewEmptyWindowIsNotAnError(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/overview", sessionID, url.Values{
		"start": {"2030-01-01"},
		"end":   {"2030-01-02"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No transactions in the selected window")
}

func TestOverviewAfterAllRowsSkippedRendersEmptyState(t *testing.T) {
	srv := newTestServer(t)

	csv := "tx_datetime,amount,counterparty_country_code,channel\nnot-a-date,10.00,ZA,online\n"
	rec := doUpload(t, srv, csv)
	require.Equal(t, http.StatusOK, rec.Code)
	m := sessionIDPattern.FindStringSubmatch(rec.Body.String())
	require.NotNil(t, m)

	overview := getPartial(srv, "/ui/overview", m[1], nil)
	require.Equal(t, http.StatusOK, overview.Code)
	assert.Contains(t, overview.Body.String(), "No transactions in the selected window")
}

func TestOverviewInvertedWindowIsUnprocessable(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/overview", sessionID, url.Values{
		"start": {"2024-03-05"},
		"end":   {"2024-03-01"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUnknownSessionIsGone(t *testing.T) {
	srv := newTestServer(t)

	rec := getPartial(srv, "/ui/overview", "no-such-session", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session expired")
}

func TestSplitPartialFoldsCountryCase(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/split", sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// ZA and za both count as domestic: 1500 + 25.
	body := rec.Body.String()
	assert.Contains(t, body, "1,525.00 (2)")
	assert.Contains(t, body, "850.00 (1)")
}

func TestChannelsPartialSortedByValue(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/channels", sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	branchAt := strings.Index(body, "branch")
	onlineAt := strings.Index(body, "online")
	require.Greater(t, branchAt, -1)
	require.Greater(t, onlineAt, -1)
	assert.Less(t, branchAt, onlineAt, "branch (1500) should rank above online (875)")
}

func TestHourlyPartialRendersBuckets(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/hourly", sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "09:00")
	assert.Contains(t, body, "23:00")
	assert.Equal(t, 24, strings.Count(body, "bar-label"))
}

func TestExtremesPartial(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	rec := getPartial(srv, "/ui/extremes", sessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "1,500.00")
	assert.Contains(t, body, "-850.00")
}

func TestNarrativeDisabledWithoutKey(t *testing.T) {
	srv := newTestServer(t)
	sessionID := uploadSession(t, srv)

	params := url.Values{"session": {sessionID}}
	req := httptest.NewRequest(http.MethodPost, "/ui/narrative", strings.NewReader(params.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no API key configured")
}

func TestHistoryWithoutStoreIsPlaceholder(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ui/history", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestSessionExpiryEvicts(t *testing.T) {
	srv := NewServer(":0", Options{HomeCountry: "ZA", SessionTTL: time.Millisecond})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	sessionID := uploadSession(t, srv)
	time.Sleep(5 * time.Millisecond)

	rec := getPartial(srv, "/ui/overview", sessionID, nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := newRateLimiter(60)
	defer rl.stop()

	for i := 0; i < 60; i++ {
		assert.True(t, rl.allow("10.0.0.9"))
	}
	assert.False(t, rl.allow("10.0.0.9"))
	assert.True(t, rl.allow("10.0.0.10"), "other clients are unaffected")
}

func TestPostsPerMinuteOptionBoundsUploads(t *testing.T) {
	srv := NewServer(":0", Options{HomeCountry: "ZA", PostsPerMinute: 2})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	doUpload(t, srv, uploadCSV)
	doUpload(t, srv, uploadCSV)
	rec := doUpload(t, srv, uploadCSV)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
