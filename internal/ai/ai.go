package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CompletionProvider defines the interface for the text-completion service
// backing every Promptify tool.
type CompletionProvider interface {
	// Complete runs a single-shot completion and returns the full text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// StreamCompletion runs a streaming completion. The returned stream
	// yields text fragments until io.EOF; the caller must Close it.
	StreamCompletion(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Stream is a finite sequence of text fragments from a streaming completion.
//
// Recv returns io.EOF after the final fragment. Close releases the underlying
// connection; closing before EOF aborts the in-flight completion.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest contains parameters for a completion call.
type CompletionRequest struct {
	System    string    // Optional system prompt, prepended to Messages
	Messages  []Message // Conversation turns
	MaxTokens int       // Completion token cap; 0 means provider default
}

// CompletionResult contains the generated text and usage accounting.
type CompletionResult struct {
	Text  string
	Usage UsageInfo
}

// UsageInfo tracks API usage for monitoring.
type UsageInfo struct {
	Model        string        // Model that served the request
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for completion providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for completion provider operations
var (
	// ERateLimit indicates the API rate limit has been exceeded
	ERateLimit = errors.New("completion provider rate limit exceeded")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("completion request timed out")

	// EUnavailable indicates the completion service is temporarily unavailable
	EUnavailable = errors.New("completion service temporarily unavailable")

	// EUnauthorized indicates invalid API credentials
	EUnauthorized = errors.New("completion provider authentication failed")

	// EBadRequest indicates the provider rejected the request payload
	EBadRequest = errors.New("completion request rejected")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with context about the completion operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("completion %s: %w", operation, err)
}
