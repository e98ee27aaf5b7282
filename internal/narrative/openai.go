package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o-mini"
	defaultTimeout  = 15 * time.Second

	maxTokens   = 200
	temperature = 0.2
)

// chatRequest is the chat-completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIClient generates synopses through the OpenAI chat-completions
// API. Calls are time-bounded, fenced by a circuit breaker, and
// deduplicated per snapshot so a double-clicked button costs one call.
type OpenAIClient struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	group      singleflight.Group
}

// Option tweaks an OpenAIClient.
type Option func(*OpenAIClient)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(c *OpenAIClient) {
		if strings.TrimSpace(model) != "" {
			c.model = model
		}
	}
}

// WithTimeout overrides the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *OpenAIClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithEndpoint points the client at a different base URL (tests).
func WithEndpoint(url string) Option {
	return func(c *OpenAIClient) {
		if url != "" {
			c.endpoint = url
		}
	}
}

// NewOpenAIClient builds a client for the given API key.
func NewOpenAIClient(apiKey string, opts ...Option) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "narrative",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Narrative circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *OpenAIClient) Enabled() bool { return c.apiKey != "" }

// Generate produces a 4-bullet executive summary for the payload.
// Concurrent calls for the same snapshot share one upstream request.
func (c *OpenAIClient) Generate(ctx context.Context, p Payload) (string, error) {
	if c.apiKey == "" {
		return "", ErrDisabled
	}

	v, err, _ := c.group.Do(p.SnapshotID, func() (interface{}, error) {
		return c.complete(ctx, p)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *OpenAIClient) complete(ctx context.Context, p Payload) (string, error) {
	payloadJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	prompt := fmt.Sprintf(
		"You are an AML analyst. Using the JSON below, write a 4-bullet executive summary (<=120 words) highlighting anomalies.\nJSON:\n%s",
		payloadJSON)

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		slog.WarnContext(ctx, "Narrative generation failed",
			"snapshot_id", p.SnapshotID, "error", err)
		return "", unavailable(err)
	}

	slog.InfoContext(ctx, "Narrative generated", "snapshot_id", p.SnapshotID)
	return result.(string), nil
}

func (c *OpenAIClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("API error (status %d, type %s): %s",
				resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
