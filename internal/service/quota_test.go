package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// quotaStoreStub implements QuotaStore with canned responses and call tracking.
type quotaStoreStub struct {
	user    *domain.User
	userErr error

	count      int64
	countErr   error
	countCalls int

	decrementApplied bool
	decrementErr     error
	decrementCalls   int
	lastCost         int64
	lastSince        time.Time
}

func (s *quotaStoreStub) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.user, nil
}

func (s *quotaStoreStub) CountUsageSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	s.countCalls++
	s.lastSince = since
	return s.count, s.countErr
}

func (s *quotaStoreStub) DecrementTokens(ctx context.Context, userID uuid.UUID, cost int64) (bool, error) {
	s.decrementCalls++
	s.lastCost = cost
	return s.decrementApplied, s.decrementErr
}

func freeUser() *domain.User {
	return &domain.User{ID: uuid.New(), Plan: domain.PlanFree, Tokens: 100}
}

func proUser() *domain.User {
	return &domain.User{ID: uuid.New(), Plan: domain.PlanPro, Tokens: 10000}
}

func TestQuotaService_Authorize_ProBypassesEverything(t *testing.T) {
	store := &quotaStoreStub{user: proUser()}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), store.user.ID, domain.RequestKindResume)

	require.NoError(t, err)
	assert.Zero(t, store.countCalls, "PRO users must not be counted")
	assert.Zero(t, store.decrementCalls, "PRO users must not be decremented")
}

func TestQuotaService_Authorize_FreeUnderLimit(t *testing.T) {
	store := &quotaStoreStub{user: freeUser(), count: 3, decrementApplied: true}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), store.user.ID, domain.RequestKindResume)

	require.NoError(t, err)
	assert.Equal(t, 1, store.decrementCalls)
	assert.Equal(t, int64(20), store.lastCost, "resume costs 20 tokens")
}

func TestQuotaService_Authorize_FreeAtLimitDenied(t *testing.T) {
	store := &quotaStoreStub{user: freeUser(), count: 5}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), store.user.ID, domain.RequestKindChat)

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "Upgrade to Pro")
	assert.Zero(t, store.decrementCalls, "a denied request must not consume tokens")
}

func TestQuotaService_Authorize_FreeOverLimitDenied(t *testing.T) {
	// Counts above the limit can occur from legacy data; still denied.
	store := &quotaStoreStub{user: freeUser(), count: 12}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), store.user.ID, domain.RequestKindChat)

	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
}

func TestQuotaService_Authorize_InsufficientTokensStillAllowed(t *testing.T) {
	// The balance never gates: the conditional decrement just doesn't apply.
	store := &quotaStoreStub{user: freeUser(), count: 0, decrementApplied: false}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), store.user.ID, domain.RequestKindResume)

	require.NoError(t, err)
	assert.Equal(t, 1, store.decrementCalls)
}

func TestQuotaService_Authorize_DecrementFailureStillAllowed(t *testing.T) {
	store := &quotaStoreStub{user: freeUser(), count: 0, decrementErr: errors.New("db down")}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), store.user.ID, domain.RequestKindChat)

	require.NoError(t, err, "bookkeeping failures must not block the request")
}

func TestQuotaService_Authorize_UnknownUser(t *testing.T) {
	store := &quotaStoreStub{userErr: repository.ErrNotFound}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), uuid.New(), domain.RequestKindChat)

	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestQuotaService_Authorize_CountsFromUTCMidnight(t *testing.T) {
	store := &quotaStoreStub{user: freeUser(), count: 0}
	svc := NewQuotaService(store, testLogger())

	err := svc.Authorize(context.Background(), store.user.ID, domain.RequestKindChat)
	require.NoError(t, err)

	since := store.lastSince
	assert.Equal(t, time.UTC, since.Location())
	assert.Equal(t, 0, since.Hour())
	assert.Equal(t, 0, since.Minute())
	assert.Equal(t, 0, since.Second())

	now := time.Now().UTC()
	assert.Equal(t, now.Year(), since.Year())
	assert.Equal(t, now.YearDay(), since.YearDay())
}

func TestQuotaService_GetUsage_Free(t *testing.T) {
	store := &quotaStoreStub{user: freeUser(), count: 2}
	svc := NewQuotaService(store, testLogger())

	usage, err := svc.GetUsage(context.Background(), store.user.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.RequestsToday)
	assert.Equal(t, int64(domain.FreeDailyRequestLimit), usage.DailyLimit)
	assert.Equal(t, int64(100), usage.Tokens)
	assert.False(t, usage.IsUnlimited)
}

func TestQuotaService_GetUsage_Pro(t *testing.T) {
	store := &quotaStoreStub{user: proUser()}
	svc := NewQuotaService(store, testLogger())

	usage, err := svc.GetUsage(context.Background(), store.user.ID)

	require.NoError(t, err)
	assert.True(t, usage.IsUnlimited)
	assert.Zero(t, store.countCalls, "PRO usage snapshot does not need a count")
}
