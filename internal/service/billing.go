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

// BillingService applies verified payment events to user plan state.
type BillingService interface {
	// ApplyCheckoutCompleted upgrades the referenced user to PRO, credits the
	// token grant, and records the subscription.
	//
	// Processing is idempotent on the Stripe subscription ID: a replayed
	// delivery neither re-grants tokens nor inserts a duplicate row.
	// Signature verification is the webhook handler's responsibility; this
	// method trusts its input.
	ApplyCheckoutCompleted(ctx context.Context, event domain.CheckoutCompleted) error
}

// BillingStore is the persistence surface billing needs.
type BillingStore interface {
	UpgradeUserToPro(ctx context.Context, userID uuid.UUID, tokenGrant int64) error
	CreateSubscription(ctx context.Context, userID uuid.UUID, stripeID, status string, currentPeriodEnd time.Time) (bool, error)
}

// =============================================================================
// Implementation
// =============================================================================

type billingService struct {
	store  BillingStore
	logger *slog.Logger
}

// NewBillingService creates a new BillingService.
func NewBillingService(store BillingStore, logger *slog.Logger) BillingService {
	return &billingService{
		store:  store,
		logger: logger,
	}
}

func (s *billingService) ApplyCheckoutCompleted(ctx context.Context, event domain.CheckoutCompleted) error {
	const op = "billing.apply_checkout_completed"

	if event.StripeSubID == "" {
		return domain.Invalid(op, "checkout event missing subscription id")
	}

	// Insert first: the unique constraint on the Stripe ID is the idempotency
	// key, so the plan mutation only runs when this delivery is the first.
	inserted, err := s.store.CreateSubscription(ctx, event.UserID, event.StripeSubID, "active", event.CurrentPeriodEnd)
	if err != nil {
		metrics.CheckoutEventsTotal.WithLabelValues("error").Inc()
		return domain.Internal(err, op, "failed to record subscription")
	}
	if !inserted {
		s.logger.Info("checkout event replayed, skipping",
			"user_id", event.UserID,
			"stripe_subscription_id", event.StripeSubID,
		)
		metrics.CheckoutEventsTotal.WithLabelValues("replayed").Inc()
		return nil
	}

	if err := s.store.UpgradeUserToPro(ctx, event.UserID, domain.ProTokenGrant); err != nil {
		metrics.CheckoutEventsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound(op, "user", event.UserID.String())
		}
		return domain.Internal(err, op, "failed to upgrade user")
	}

	s.logger.Info("user upgraded to pro",
		"user_id", event.UserID,
		"stripe_subscription_id", event.StripeSubID,
		"period_end", event.CurrentPeriodEnd,
	)
	metrics.CheckoutEventsTotal.WithLabelValues("applied").Inc()
	return nil
}
