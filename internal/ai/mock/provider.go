// Package mock provides a canned CompletionProvider for testing and development.
package mock

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/promptifyhq/promptify/internal/ai"
)

// Provider is a mock completion provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	CompleteResponse string
	CompleteError    error
	StreamFragments  []string
	StreamError      error

	// Call tracking for testing
	mu            sync.Mutex
	CompleteCalls int
	StreamCalls   int
	LastRequest   ai.CompletionRequest
}

// New creates a new mock completion provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Complete returns the configured response, or a canned one.
func (p *Provider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	p.mu.Lock()
	p.CompleteCalls++
	p.LastRequest = req
	p.mu.Unlock()

	if p.CompleteError != nil {
		return nil, p.CompleteError
	}

	text := p.CompleteResponse
	if text == "" {
		text = "This is a mock completion response."
	}

	return &ai.CompletionResult{
		Text: text,
		Usage: ai.UsageInfo{
			Model:        "mock",
			InputTokens:  42,
			OutputTokens: len(strings.Fields(text)),
			Duration:     5 * time.Millisecond,
		},
	}, nil
}

// StreamCompletion yields the configured fragments, or a canned sequence.
func (p *Provider) StreamCompletion(ctx context.Context, req ai.CompletionRequest) (ai.Stream, error) {
	p.mu.Lock()
	p.StreamCalls++
	p.LastRequest = req
	p.mu.Unlock()

	if p.StreamError != nil {
		return nil, p.StreamError
	}

	fragments := p.StreamFragments
	if fragments == nil {
		fragments = []string{"This is ", "a mock ", "streamed response."}
	}

	return &mockStream{ctx: ctx, fragments: fragments}, nil
}

type mockStream struct {
	ctx       context.Context
	fragments []string
	pos       int
	closed    bool
}

func (s *mockStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.closed || s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	frag := s.fragments[s.pos]
	s.pos++
	return frag, nil
}

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

// Compile-time interface check
var _ ai.CompletionProvider = (*Provider)(nil)
