// Package groq implements the CompletionProvider interface against Groq's
// OpenAI-compatible chat completions API.
package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/promptifyhq/promptify/internal/ai"
)

const (
	// APIBaseURL is the chat completions endpoint of the Groq API
	APIBaseURL = "https://api.groq.com/openai/v1/chat/completions"

	// DefaultModel is the default model to use
	DefaultModel = "openai/gpt-oss-120b"

	// DefaultMaxCompletionTokens caps generated output
	DefaultMaxCompletionTokens = 8192
)

// Config contains configuration for the Groq provider
type Config struct {
	APIKey         string
	Model          string
	ProviderConfig ai.ProviderConfig
}

// Provider implements the CompletionProvider interface using the Groq API
type Provider struct {
	config  Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a new Groq completion provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("groq API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		// No client-level timeout: streaming responses stay open well past
		// any sane per-request limit. Non-streaming calls set a context
		// deadline instead.
		client:  &http.Client{},
		logger:  logger,
		baseURL: APIBaseURL,
	}, nil
}

// =============================================================================
// Wire types
// =============================================================================

type chatRequest struct {
	Model               string       `json:"model"`
	Messages            []ai.Message `json:"messages"`
	Temperature         float64      `json:"temperature"`
	MaxCompletionTokens int          `json:"max_completion_tokens"`
	TopP                float64      `json:"top_p"`
	ReasoningEffort     string       `json:"reasoning_effort,omitempty"`
	Stream              bool         `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// =============================================================================
// CompletionProvider implementation
// =============================================================================

// Complete runs a single-shot completion with retry on transient failures.
func (p *Provider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	startTime := time.Now()

	body, err := p.marshalRequest(req, false)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ai.WrapError("parse response", fmt.Errorf("no choices returned"))
	}

	return &ai.CompletionResult{
		Text: resp.Choices[0].Message.Content,
		Usage: ai.UsageInfo{
			Model:        p.config.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Duration:     time.Since(startTime),
		},
	}, nil
}

// StreamCompletion opens a streaming completion. Transient failures are not
// retried: once fragments have been forwarded to a client there is no clean
// way to restart the stream.
func (p *Provider) StreamCompletion(ctx context.Context, req ai.CompletionRequest) (ai.Stream, error) {
	body, err := p.marshalRequest(req, true)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	httpReq, err := p.newHTTPRequest(ctx, body)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, ai.WrapError("open stream", translateTransportError(err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, ai.WrapError("open stream", statusToError(resp))
	}

	return &eventStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// eventStream reads server-sent events off the response body and yields the
// delta content of each chunk.
type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *eventStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		// Empty deltas (role announcements, finish chunks) are skipped.
		if chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	// The body ended without a [DONE] marker, so the upstream connection was
	// cut mid-completion. Reporting io.EOF here would make the partial text
	// look like a finished completion.
	s.done = true
	return "", fmt.Errorf("stream closed before completion marker: %w", ai.EUnavailable)
}

func (s *eventStream) Close() error {
	s.done = true
	return s.body.Close()
}

// =============================================================================
// Request plumbing
// =============================================================================

func (p *Provider) marshalRequest(req ai.CompletionRequest, stream bool) ([]byte, error) {
	messages := req.Messages
	if req.System != "" {
		messages = append([]ai.Message{{Role: "system", Content: req.System}}, messages...)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxCompletionTokens
	}

	return json.Marshal(chatRequest{
		Model:               p.config.Model,
		Messages:            messages,
		Temperature:         1,
		MaxCompletionTokens: maxTokens,
		TopP:                1,
		ReasoningEffort:     "medium",
		Stream:              stream,
	})
}

func (p *Provider) newHTTPRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	return httpReq, nil
}

// executeWithRetry sends the request, retrying transient errors with
// exponential backoff.
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*chatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
			p.logger.Debug("retrying completion request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := p.executeOnce(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !ai.IsRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (p *Provider) executeOnce(ctx context.Context, body []byte) (*chatResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.config.ProviderConfig.RequestTimeout)
	defer cancel()

	httpReq, err := p.newHTTPRequest(reqCtx, body)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, translateTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusToError(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &parsed, nil
}

func translateTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.ETimeout
	}
	// http.Client wraps the context error inside a *url.Error.
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ai.ETimeout
	}
	return err
}

func statusToError(resp *http.Response) error {
	// Bounded read: error bodies are small, and an unbounded read on a
	// misbehaving upstream would hang the caller.
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ai.EUnauthorized, strings.TrimSpace(string(detail)))
	case resp.StatusCode == http.StatusTooManyRequests:
		return ai.ERateLimit
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ai.EUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d: %s", ai.EBadRequest, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

// Compile-time interface check
var _ ai.CompletionProvider = (*Provider)(nil)
