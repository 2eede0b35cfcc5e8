package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promptifyhq/promptify/internal/ai"
	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/metrics"
)

// HistoryLimit bounds the usage history surface to the most recent entries.
const HistoryLimit = 20

// =============================================================================
// Interface Definition
// =============================================================================

// AssistantService orchestrates the metered AI tools: every operation runs
// quota gate -> completion -> usage record.
type AssistantService interface {
	// ChatStream opens a streaming chat completion. Fragments are consumed
	// via the returned stream; one usage record with the full accumulated
	// text is persisted when the stream ends naturally. A stream closed
	// before its natural end persists nothing.
	ChatStream(ctx context.Context, userID uuid.UUID, messages []ai.Message) (ai.Stream, error)

	// AnalyzeResume scores and reviews extracted resume text.
	AnalyzeResume(ctx context.Context, userID uuid.UUID, resumeText string) (string, error)

	// CollegeAdvice answers a college admissions question.
	CollegeAdvice(ctx context.Context, userID uuid.UUID, query string) (string, error)

	// DraftEmail generates an email from a prompt in the requested tone.
	DraftEmail(ctx context.Context, userID uuid.UUID, prompt, tone string) (string, error)

	// Summarize condenses text into a short paragraph and bullet points.
	Summarize(ctx context.Context, userID uuid.UUID, text string) (string, error)

	// History returns the user's usage records, newest first, bounded to the
	// most recent HistoryLimit entries.
	History(ctx context.Context, userID uuid.UUID) ([]domain.UsageRecord, error)
}

// AssistantStore is the persistence surface the assistant needs.
type AssistantStore interface {
	CreateUsageRecord(ctx context.Context, userID uuid.UUID, kind domain.RequestKind, prompt, response string, cost int64) (*domain.UsageRecord, error)
	ListUsageByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]domain.UsageRecord, error)
}

// =============================================================================
// Implementation
// =============================================================================

type assistantService struct {
	store    AssistantStore
	quota    QuotaService
	provider ai.CompletionProvider
	logger   *slog.Logger
}

// NewAssistantService creates a new AssistantService.
func NewAssistantService(store AssistantStore, quota QuotaService, provider ai.CompletionProvider, logger *slog.Logger) AssistantService {
	return &assistantService{
		store:    store,
		quota:    quota,
		provider: provider,
		logger:   logger,
	}
}

func (s *assistantService) ChatStream(ctx context.Context, userID uuid.UUID, messages []ai.Message) (ai.Stream, error) {
	const op = "assistant.chat"

	if len(messages) == 0 {
		return nil, domain.Invalid(op, "At least one message is required.")
	}

	if err := s.quota.Authorize(ctx, userID, domain.RequestKindChat); err != nil {
		return nil, err
	}

	inner, err := s.provider.StreamCompletion(ctx, ai.CompletionRequest{Messages: messages})
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues(string(domain.RequestKindChat), "error").Inc()
		return nil, domain.Internal(err, op, "The AI service is unavailable. Please try again.")
	}

	// The stored prompt is the conversation as sent to the provider.
	promptJSON, err := json.Marshal(messages)
	if err != nil {
		promptJSON = []byte(messages[len(messages)-1].Content)
	}

	return &recordingStream{
		inner:     inner,
		service:   s,
		userID:    userID,
		prompt:    string(promptJSON),
		startTime: time.Now(),
	}, nil
}

// recordingStream accumulates fragments and persists exactly one usage record
// when the inner stream ends naturally. Closing before the natural end (client
// disconnect) aborts the provider call and skips persistence.
type recordingStream struct {
	inner     ai.Stream
	service   *assistantService
	userID    uuid.UUID
	prompt    string
	startTime time.Time
	full      []byte
	completed bool
	persisted bool
}

func (rs *recordingStream) Recv() (string, error) {
	frag, err := rs.inner.Recv()
	if err != nil {
		if err == io.EOF {
			rs.completed = true
			rs.persist()
		}
		return "", err
	}
	rs.full = append(rs.full, frag...)
	return frag, nil
}

func (rs *recordingStream) Close() error {
	if !rs.completed {
		metrics.StreamsAbortedTotal.Inc()
		metrics.AIRequestsTotal.WithLabelValues(string(domain.RequestKindChat), "aborted").Inc()
	}
	return rs.inner.Close()
}

func (rs *recordingStream) persist() {
	if rs.persisted {
		return
	}
	rs.persisted = true

	kind := domain.RequestKindChat
	metrics.AIRequestsTotal.WithLabelValues(string(kind), "success").Inc()
	metrics.AIRequestDuration.WithLabelValues(string(kind)).Observe(time.Since(rs.startTime).Seconds())

	// The request context may already be cancelled by the time the stream
	// drains; persistence uses its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := rs.service.store.CreateUsageRecord(ctx, rs.userID, kind, rs.prompt, string(rs.full), kind.Cost())
	if err != nil {
		// The user already received the output; nothing to unwind.
		rs.service.logger.Error("failed to persist chat usage record", "error", err, "user_id", rs.userID)
	}
}

func (s *assistantService) AnalyzeResume(ctx context.Context, userID uuid.UUID, resumeText string) (string, error) {
	const op = "assistant.resume"
	if resumeText == "" {
		return "", domain.Invalid(op, "Resume text is required.")
	}
	return s.runTool(ctx, op, userID, domain.RequestKindResume, ai.CompletionRequest{
		System:   ai.ResumeSystemPrompt,
		Messages: []ai.Message{{Role: "user", Content: ai.ResumeUserPrompt(resumeText)}},
	}, "Resume analysis")
}

func (s *assistantService) CollegeAdvice(ctx context.Context, userID uuid.UUID, query string) (string, error) {
	const op = "assistant.college"
	if query == "" {
		return "", domain.Invalid(op, "A question is required.")
	}
	return s.runTool(ctx, op, userID, domain.RequestKindCollege, ai.CompletionRequest{
		System:   ai.CollegeSystemPrompt,
		Messages: []ai.Message{{Role: "user", Content: query}},
	}, query)
}

func (s *assistantService) DraftEmail(ctx context.Context, userID uuid.UUID, prompt, tone string) (string, error) {
	const op = "assistant.email"
	if prompt == "" {
		return "", domain.Invalid(op, "A prompt is required.")
	}
	return s.runTool(ctx, op, userID, domain.RequestKindEmail, ai.CompletionRequest{
		System:   ai.EmailSystemPrompt(tone),
		Messages: []ai.Message{{Role: "user", Content: prompt}},
	}, prompt)
}

func (s *assistantService) Summarize(ctx context.Context, userID uuid.UUID, text string) (string, error) {
	const op = "assistant.summarize"
	if text == "" {
		return "", domain.Invalid(op, "Text to summarize is required.")
	}
	return s.runTool(ctx, op, userID, domain.RequestKindSummary, ai.CompletionRequest{
		System:   ai.SummarySystemPrompt,
		Messages: []ai.Message{{Role: "user", Content: text}},
	}, text)
}

func (s *assistantService) History(ctx context.Context, userID uuid.UUID) ([]domain.UsageRecord, error) {
	const op = "assistant.history"

	records, err := s.store.ListUsageByUser(ctx, userID, HistoryLimit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load history")
	}
	return records, nil
}

// runTool is the shared gate -> completion -> usage record path for the
// synchronous tools.
func (s *assistantService) runTool(ctx context.Context, op string, userID uuid.UUID, kind domain.RequestKind, req ai.CompletionRequest, storedPrompt string) (string, error) {
	if err := s.quota.Authorize(ctx, userID, kind); err != nil {
		return "", err
	}

	start := time.Now()
	result, err := s.provider.Complete(ctx, req)
	if err != nil {
		// No refund and no usage record: the daily count derives from
		// records, so a failed completion does not consume a slot.
		metrics.AIRequestsTotal.WithLabelValues(string(kind), "error").Inc()
		return "", domain.Internal(err, op, "The AI service is unavailable. Please try again.")
	}

	metrics.AIRequestsTotal.WithLabelValues(string(kind), "success").Inc()
	metrics.AIRequestDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(result.Usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(result.Usage.OutputTokens))

	if _, err := s.store.CreateUsageRecord(ctx, userID, kind, storedPrompt, result.Text, kind.Cost()); err != nil {
		// An unrecorded completion would be invisible in history and quota
		// counts, so the failure is surfaced rather than swallowed.
		s.logger.Error("failed to persist usage record", "error", err, "user_id", userID, "kind", kind)
		return "", domain.Internal(err, op, "failed to record usage")
	}

	return result.Text, nil
}
