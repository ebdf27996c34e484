// Package remote wraps network-bound model calls with retry, backoff, and
// usage accounting.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hpungsan/promptpack/internal/errors"
	"github.com/hpungsan/promptpack/internal/tokens"
	"github.com/hpungsan/promptpack/internal/usage"
)

// State is the wrapper's call state.
type State int

const (
	StateReady State = iota
	StateCalling
	StateSucceeded
	StateRetrying
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateCalling:
		return "CALLING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateRetrying:
		return "RETRYING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// DefaultBaseURL is the Gemini REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Dumper persists debug payloads for a call.
type Dumper interface {
	Dump(kind, payload string)
}

// Options configures a Client.
type Options struct {
	BaseURL         string
	APIKey          string
	GenerativeModel string
	EmbeddingModel  string
	MaxAttempts     int
	Dumper          Dumper
}

// Client issues generative, embedding, and token-count calls. Retries apply
// only to rate-limit signals, with exponential backoff bounded by
// MaxAttempts; auth and structural errors fail immediately. Every attempt
// appends one record to the ledger. The client never decides
// application-level fallback.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	generativeModel string
	embeddingModel  string
	maxAttempts     int
	backoffBase     time.Duration
	sleep           func(context.Context, time.Duration) error
	ledger          *usage.Ledger
	logger          *slog.Logger
	dumper          Dumper
	state           State
}

// NewClient creates a client. The ledger may not be nil; the logger may.
func NewClient(opts Options, ledger *usage.Ledger, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		baseURL:         opts.BaseURL,
		apiKey:          opts.APIKey,
		generativeModel: opts.GenerativeModel,
		embeddingModel:  opts.EmbeddingModel,
		maxAttempts:     opts.MaxAttempts,
		backoffBase:     time.Second,
		sleep:           sleepCtx,
		ledger:          ledger,
		logger:          logger,
		dumper:          opts.Dumper,
		state:           StateReady,
	}
}

// Available reports whether the client is configured for remote calls.
// Checked at pipeline construction so missing credentials are detected at
// startup, not mid-run.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// State returns the state of the most recent call.
func (c *Client) State() State { return c.state }

// Generate sends a text prompt to the generative model and returns the
// response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.generativeModel)

	raw, err := c.call(ctx, "generate", url, body, tokens.Estimate(prompt))
	if err != nil {
		return "", err
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", errors.NewRemoteRejected("generate", 200, "unparseable response body")
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.NewRemoteRejected("generate", 200, "response contains no candidates")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if c.dumper != nil {
		c.dumper.Dump("response", text)
	}
	return text, nil
}

// Embed returns one fixed-length vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	requests := make([]map[string]any, len(texts))
	for i, t := range texts {
		requests[i] = map[string]any{
			"model":   "models/" + c.embeddingModel,
			"content": map[string]any{"parts": []map[string]string{{"text": t}}},
		}
	}
	body := map[string]any{"requests": requests}
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.baseURL, c.embeddingModel)

	var total int
	for _, t := range texts {
		total += tokens.Estimate(t)
	}

	raw, err := c.call(ctx, "embed", url, body, total)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Embeddings []struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.NewRemoteRejected("embed", 200, "unparseable response body")
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, errors.NewRemoteRejected("embed", 200,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// CountTokens returns the exact token count for text.
func (c *Client) CountTokens(ctx context.Context, text string) (int, error) {
	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": text}}},
		},
	}
	url := fmt.Sprintf("%s/models/%s:countTokens", c.baseURL, c.generativeModel)

	raw, err := c.call(ctx, "count_tokens", url, body, 0)
	if err != nil {
		return 0, err
	}

	var resp struct {
		TotalTokens int `json:"totalTokens"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, errors.NewRemoteRejected("count_tokens", 200, "unparseable response body")
	}
	return resp.TotalTokens, nil
}

// call runs the READY -> CALLING -> {SUCCEEDED, RETRYING, FAILED} machine
// for one logical call.
func (c *Client) call(ctx context.Context, operation, url string, body any, inputTokens int) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if c.dumper != nil {
		c.dumper.Dump("request", string(payload))
	}

	c.state = StateCalling
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		status, raw, err := c.post(ctx, url, payload)
		latency := time.Since(start).Milliseconds()

		rec := usage.Record{
			Operation:   operation,
			InputTokens: inputTokens,
			LatencyMS:   latency,
		}

		switch {
		case err != nil:
			c.state = StateFailed
			rec.Status = usage.StatusFailed
			c.ledger.Append(rec)
			return nil, errors.NewInternal(err)

		case status == http.StatusOK:
			c.state = StateSucceeded
			rec.Status = usage.StatusOK
			rec.OutputTokens = tokens.Estimate(string(raw))
			c.ledger.Append(rec)
			return raw, nil

		case status == http.StatusTooManyRequests:
			if attempt == c.maxAttempts {
				c.state = StateFailed
				rec.Status = usage.StatusFailed
				c.ledger.Append(rec)
				return nil, errors.NewRemoteThrottled(operation, attempt)
			}
			c.state = StateRetrying
			rec.Status = usage.StatusRetried
			c.ledger.Append(rec)
			delay := c.backoff(attempt)
			c.logger.Warn("rate limited, backing off",
				"operation", operation, "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				c.state = StateFailed
				return nil, errors.NewInternal(err)
			}
			c.state = StateCalling

		case status == http.StatusBadRequest ||
			status == http.StatusUnauthorized ||
			status == http.StatusForbidden:
			// Structural or auth failure: fail without consuming retries.
			c.state = StateFailed
			rec.Status = usage.StatusFailed
			c.ledger.Append(rec)
			if c.dumper != nil {
				c.dumper.Dump("error", string(raw))
			}
			return nil, errors.NewRemoteRejected(operation, status, truncate(string(raw), 200))

		default:
			c.state = StateFailed
			rec.Status = usage.StatusFailed
			c.ledger.Append(rec)
			if c.dumper != nil {
				c.dumper.Dump("error", string(raw))
			}
			return nil, errors.NewInternal(
				fmt.Errorf("remote %s failed with status %d: %s", operation, status, truncate(string(raw), 200)))
		}
	}

	c.state = StateFailed
	return nil, errors.NewRemoteThrottled(operation, c.maxAttempts)
}

// post performs a single HTTP attempt.
func (c *Client) post(ctx context.Context, url string, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// backoff returns the exponential delay for an attempt, capped at 30s.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase << (attempt - 1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TokenCounter adapts the client's exact countTokens endpoint to the
// tokens.Counter interface.
type TokenCounter struct {
	Client *Client
}

// Count implements tokens.Counter.
func (t *TokenCounter) Count(ctx context.Context, text string) (int, error) {
	return t.Client.CountTokens(ctx, text)
}

// Source implements tokens.Counter.
func (t *TokenCounter) Source() tokens.Source { return tokens.SourceExact }
