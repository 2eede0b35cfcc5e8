package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptifyhq/promptify/internal/ai"
	"github.com/promptifyhq/promptify/internal/ai/mock"
	"github.com/promptifyhq/promptify/internal/domain"
)

// quotaStub implements QuotaService with a fixed decision.
type quotaStub struct {
	err      error
	calls    int
	lastKind domain.RequestKind
}

func (q *quotaStub) Authorize(ctx context.Context, userID uuid.UUID, kind domain.RequestKind) error {
	q.calls++
	q.lastKind = kind
	return q.err
}

func (q *quotaStub) GetUsage(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error) {
	return &domain.QuotaUsage{}, nil
}

// assistantStoreStub implements AssistantStore, collecting created records.
type assistantStoreStub struct {
	records   []domain.UsageRecord
	createErr error
	listErr   error
	lastLimit int32
}

func (s *assistantStoreStub) CreateUsageRecord(ctx context.Context, userID uuid.UUID, kind domain.RequestKind, prompt, response string, cost int64) (*domain.UsageRecord, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	rec := domain.UsageRecord{
		ID:       uuid.New(),
		UserID:   userID,
		Kind:     kind,
		Prompt:   prompt,
		Response: response,
		Cost:     cost,
	}
	s.records = append(s.records, rec)
	return &rec, nil
}

func (s *assistantStoreStub) ListUsageByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]domain.UsageRecord, error) {
	s.lastLimit = limit
	return s.records, s.listErr
}

func newTestAssistant(store *assistantStoreStub, quota *quotaStub, provider ai.CompletionProvider) AssistantService {
	return NewAssistantService(store, quota, provider, testLogger())
}

// =============================================================================
// Synchronous Tools
// =============================================================================

func TestAssistantService_AnalyzeResume_RecordsUsage(t *testing.T) {
	store := &assistantStoreStub{}
	quota := &quotaStub{}
	provider := mock.New(testLogger())
	provider.CompleteResponse = "Score: 8/10"

	svc := newTestAssistant(store, quota, provider)

	got, err := svc.AnalyzeResume(context.Background(), uuid.New(), "Jane Doe. 5 years Go experience.")

	require.NoError(t, err)
	assert.Equal(t, "Score: 8/10", got)
	assert.Equal(t, domain.RequestKindResume, quota.lastKind)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, domain.RequestKindResume, rec.Kind)
	assert.Equal(t, int64(20), rec.Cost)
	assert.Equal(t, "Score: 8/10", rec.Response)
}

func TestAssistantService_QuotaDenialShortCircuits(t *testing.T) {
	store := &assistantStoreStub{}
	quota := &quotaStub{err: domain.DailyLimit("quota.authorize", 5, 5)}
	provider := mock.New(testLogger())

	svc := newTestAssistant(store, quota, provider)

	_, err := svc.Summarize(context.Background(), uuid.New(), "long article text")

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Zero(t, provider.CompleteCalls, "a denied request must not reach the provider")
	assert.Empty(t, store.records)
}

func TestAssistantService_ProviderFailureConsumesNoSlot(t *testing.T) {
	store := &assistantStoreStub{}
	quota := &quotaStub{}
	provider := mock.New(testLogger())
	provider.CompleteError = ai.EUnavailable

	svc := newTestAssistant(store, quota, provider)

	_, err := svc.CollegeAdvice(context.Background(), uuid.New(), "How do I write a good essay?")

	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	// No usage record means the daily count does not advance.
	assert.Empty(t, store.records)
}

func TestAssistantService_EmptyInputRejected(t *testing.T) {
	store := &assistantStoreStub{}
	quota := &quotaStub{}
	svc := newTestAssistant(store, quota, mock.New(testLogger()))

	tests := []struct {
		name string
		call func() error
	}{
		{"resume", func() error { _, err := svc.AnalyzeResume(context.Background(), uuid.New(), ""); return err }},
		{"college", func() error { _, err := svc.CollegeAdvice(context.Background(), uuid.New(), ""); return err }},
		{"email", func() error { _, err := svc.DraftEmail(context.Background(), uuid.New(), "", "casual"); return err }},
		{"summarize", func() error { _, err := svc.Summarize(context.Background(), uuid.New(), ""); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
	assert.Zero(t, quota.calls, "validation runs before the quota gate")
}

func TestAssistantService_DraftEmail_UsesTone(t *testing.T) {
	store := &assistantStoreStub{}
	quota := &quotaStub{}
	provider := mock.New(testLogger())

	svc := newTestAssistant(store, quota, provider)

	_, err := svc.DraftEmail(context.Background(), uuid.New(), "decline the meeting", "friendly")

	require.NoError(t, err)
	assert.Contains(t, provider.LastRequest.System, "friendly")
}

func TestAssistantService_RecordFailureSurfacesError(t *testing.T) {
	store := &assistantStoreStub{createErr: errors.New("db down")}
	quota := &quotaStub{}
	svc := newTestAssistant(store, quota, mock.New(testLogger()))

	_, err := svc.Summarize(context.Background(), uuid.New(), "text")

	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

// =============================================================================
// Streaming Chat
// =============================================================================

func drain(t *testing.T, stream ai.Stream) string {
	t.Helper()
	var full string
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			return full
		}
		require.NoError(t, err)
		full += frag
	}
}

func TestAssistantService_ChatStream_PersistsOnNaturalCompletion(t *testing.T) {
	store := &assistantStoreStub{}
	quota := &quotaStub{}
	provider := mock.New(testLogger())
	provider.StreamFragments = []string{"Hello", ", ", "world!"}

	svc := newTestAssistant(store, quota, provider)

	userID := uuid.New()
	stream, err := svc.ChatStream(context.Background(), userID, []ai.Message{
		{Role: "user", Content: "say hello"},
	})
	require.NoError(t, err)

	full := drain(t, stream)
	require.NoError(t, stream.Close())

	assert.Equal(t, "Hello, world!", full)
	assert.Equal(t, domain.RequestKindChat, quota.lastKind)

	require.Len(t, store.records, 1, "exactly one record per completed stream")
	rec := store.records[0]
	assert.Equal(t, domain.RequestKindChat, rec.Kind)
	assert.Equal(t, int64(5), rec.Cost)
	assert.Equal(t, "Hello, world!", rec.Response)
	assert.Contains(t, rec.Prompt, "say hello")
}

func TestAssistantService_ChatStream_DrainTwicePersistsOnce(t *testing.T) {
	store := &assistantStoreStub{}
	provider := mock.New(testLogger())

	svc := newTestAssistant(store, &quotaStub{}, provider)

	stream, err := svc.ChatStream(context.Background(), uuid.New(), []ai.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	drain(t, stream)
	// A second Recv after EOF must not create a second record.
	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
	require.NoError(t, stream.Close())

	assert.Len(t, store.records, 1)
}

func TestAssistantService_ChatStream_AbortPersistsNothing(t *testing.T) {
	store := &assistantStoreStub{}
	provider := mock.New(testLogger())
	provider.StreamFragments = []string{"partial ", "output ", "never finished"}

	svc := newTestAssistant(store, &quotaStub{}, provider)

	stream, err := svc.ChatStream(context.Background(), uuid.New(), []ai.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	// Consume one fragment, then disconnect.
	_, err = stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	assert.Empty(t, store.records, "an aborted stream must not consume a daily slot")
}

func TestAssistantService_ChatStream_QuotaDenied(t *testing.T) {
	store := &assistantStoreStub{}
	quota := &quotaStub{err: domain.DailyLimit("quota.authorize", 5, 5)}
	provider := mock.New(testLogger())

	svc := newTestAssistant(store, quota, provider)

	_, err := svc.ChatStream(context.Background(), uuid.New(), []ai.Message{{Role: "user", Content: "hi"}})

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Zero(t, provider.StreamCalls)
}

func TestAssistantService_ChatStream_EmptyMessages(t *testing.T) {
	svc := newTestAssistant(&assistantStoreStub{}, &quotaStub{}, mock.New(testLogger()))

	_, err := svc.ChatStream(context.Background(), uuid.New(), nil)

	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

// =============================================================================
// History
// =============================================================================

func TestAssistantService_History_BoundedToLimit(t *testing.T) {
	store := &assistantStoreStub{}
	svc := newTestAssistant(store, &quotaStub{}, mock.New(testLogger()))

	_, err := svc.History(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, int32(HistoryLimit), store.lastLimit)
}
