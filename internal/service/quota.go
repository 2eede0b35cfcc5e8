// Package service contains the business logic layer.
//
// This file implements the quota gate that precedes every metered AI
// operation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/metrics"
	"github.com/promptifyhq/promptify/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines the authorization check preceding every metered
// operation.
type QuotaService interface {
	// Authorize decides whether the user may perform one operation of the
	// given kind, and if so records the token consumption.
	//
	// Returns domain.ENOTFOUND if the user does not exist and domain.EPAYMENT
	// if the FREE daily request limit is exhausted. PRO users always pass with
	// no side effects.
	Authorize(ctx context.Context, userID uuid.UUID, kind domain.RequestKind) error

	// GetUsage returns the current metering snapshot for a user.
	GetUsage(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error)
}

// QuotaStore is the persistence surface the quota gate needs.
type QuotaStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	CountUsageSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	DecrementTokens(ctx context.Context, userID uuid.UUID, cost int64) (bool, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store  QuotaStore
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(store QuotaStore, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:  store,
		logger: logger,
	}
}

// Authorize applies the FREE-plan daily gate.
//
// The authoritative limit is the count of usage records since UTC midnight;
// the token balance is opportunistic bookkeeping and never blocks a request.
// Since records are only written after successful completions, a failed
// completion does not consume a daily slot.
func (s *quotaService) Authorize(ctx context.Context, userID uuid.UUID, kind domain.RequestKind) error {
	const op = "quota.authorize"

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.QuotaChecksTotal.WithLabelValues("error").Inc()
			return domain.NotFound(op, "user", userID.String())
		}
		metrics.QuotaChecksTotal.WithLabelValues("error").Inc()
		return domain.Internal(err, op, "failed to load user")
	}

	// PRO is an unconditional bypass: no count, no decrement.
	if user.IsPro() {
		metrics.QuotaChecksTotal.WithLabelValues("allowed").Inc()
		return nil
	}

	requestsToday, err := s.store.CountUsageSince(ctx, userID, startOfUTCDay())
	if err != nil {
		metrics.QuotaChecksTotal.WithLabelValues("error").Inc()
		return domain.Internal(err, op, "failed to count requests")
	}

	if requestsToday >= domain.FreeDailyRequestLimit {
		s.logger.Info("daily limit reached",
			"user_id", userID,
			"requests_today", requestsToday,
			"limit", domain.FreeDailyRequestLimit,
		)
		metrics.QuotaChecksTotal.WithLabelValues("denied").Inc()
		metrics.QuotaDenialsTotal.Inc()
		return domain.DailyLimit(op, requestsToday, domain.FreeDailyRequestLimit)
	}

	// Best-effort balance bookkeeping. The conditional update only applies
	// when the balance covers the cost; either way the request proceeds.
	cost := kind.Cost()
	applied, err := s.store.DecrementTokens(ctx, userID, cost)
	if err != nil {
		s.logger.Error("token decrement failed", "error", err, "user_id", userID)
	} else if applied {
		metrics.TokensConsumedTotal.Add(float64(cost))
	}

	metrics.QuotaChecksTotal.WithLabelValues("allowed").Inc()
	return nil
}

// GetUsage returns the current metering snapshot for a user.
func (s *quotaService) GetUsage(ctx context.Context, userID uuid.UUID) (*domain.QuotaUsage, error) {
	const op = "quota.get_usage"

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}

	if user.IsPro() {
		return &domain.QuotaUsage{
			Tokens:      user.Tokens,
			IsUnlimited: true,
		}, nil
	}

	requestsToday, err := s.store.CountUsageSince(ctx, userID, startOfUTCDay())
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count requests")
	}

	return &domain.QuotaUsage{
		RequestsToday: requestsToday,
		DailyLimit:    domain.FreeDailyRequestLimit,
		Tokens:        user.Tokens,
		IsUnlimited:   false,
	}, nil
}

// startOfUTCDay returns midnight of the current day in UTC. The daily counter
// resets at UTC midnight regardless of server timezone.
func startOfUTCDay() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
