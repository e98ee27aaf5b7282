package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverick250/aml-interactive-dashboard/internal/core"
)

func testPayload(id string) Payload {
	return Payload{
		SnapshotID: id,
		Metrics:    core.Summary{HomeCountry: "ZA", RowCount: 3},
	}
}

func chatReply(content string) string {
	return `{"choices":[{"message":{"content":"` + content + `"}}]}`
}

func TestNoopGeneratorIsDisabled(t *testing.T) {
	g := Noop{}
	assert.False(t, g.Enabled())

	_, err := g.Generate(context.Background(), testPayload("s1"))
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestGenerateWithoutKeyIsDisabled(t *testing.T) {
	c := NewOpenAIClient("")
	assert.False(t, c.Enabled())

	_, err := c.Generate(context.Background(), testPayload("s1"))
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestGenerateReturnsCompletionText(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(chatReply("- bullet one\\n- bullet two")))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithEndpoint(srv.URL))
	require.True(t, c.Enabled())

	text, err := c.Generate(context.Background(), testPayload("s1"))
	require.NoError(t, err)
	assert.Contains(t, text, "bullet one")

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 200, gotReq.MaxTokens)
	assert.InDelta(t, 0.2, gotReq.Temperature, 0.001)
	require.Len(t, gotReq.Messages, 1)
	assert.Contains(t, gotReq.Messages[0].Content, "AML analyst")
	assert.Contains(t, gotReq.Messages[0].Content, `"home_country": "ZA"`)
}

func TestGenerateAPIErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithEndpoint(srv.URL))
	_, err := c.Generate(context.Background(), testPayload("s1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "rate_limit_exceeded")
}

func TestGenerateBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithEndpoint(srv.URL))
	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), testPayload("snap-"+string(rune('a'+i))))
		require.Error(t, err)
	}
	assert.Equal(t, 3, calls)

	// Breaker is open now: the next call fails fast without a request.
	_, err := c.Generate(context.Background(), testPayload("snap-z"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, calls)
}

func TestGenerateModelAndTimeoutOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(chatReply("ok")))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test",
		WithEndpoint(srv.URL),
		WithModel("gpt-4o"),
		WithTimeout(2*time.Second))

	text, err := c.Generate(context.Background(), testPayload("s1"))
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGenerateEmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithEndpoint(srv.URL))
	_, err := c.Generate(context.Background(), testPayload("s1"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "empty completion"))
}
