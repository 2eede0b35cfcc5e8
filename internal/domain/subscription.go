package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription mirrors a payment-processor subscription for a user.
// One row is created per completed checkout; renewal and cancellation
// lifecycle events are not tracked here.
type Subscription struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	StripeID         string // Payment-processor subscription identifier
	Status           string // Status string as reported by the processor
	CurrentPeriodEnd time.Time
	CreatedAt        time.Time
}

// CheckoutCompleted carries the verified payload of a checkout.session.completed
// event. Signature verification happens at the webhook boundary; by the time
// this struct exists the event is trusted.
type CheckoutCompleted struct {
	UserID           uuid.UUID
	StripeSubID      string
	CurrentPeriodEnd time.Time
}
