// Package billing provides Stripe integration for subscription checkout and
// webhook verification.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CheckoutSession carries the identifiers the client needs to start payment.
type CheckoutSession struct {
	ID  string // Session ID for Stripe.js redirectToCheckout
	URL string // Hosted checkout URL
}

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession creates a Stripe Checkout session for the PRO
	// subscription. The user ID travels as the session's client reference so
	// the webhook can attribute the completed checkout.
	CreateCheckoutSession(userID, successURL, cancelURL string) (*CheckoutSession, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

// PriceConfig describes the PRO plan's inline price.
type PriceConfig struct {
	ProductName        string
	ProductDescription string
	UnitAmountCents    int64
	Currency           string
}

// DefaultPriceConfig returns the standard PRO monthly price.
func DefaultPriceConfig(unitAmountCents int64) PriceConfig {
	return PriceConfig{
		ProductName:        "Promptify Pro - Monthly",
		ProductDescription: "Unlimited tokens for 1 month",
		UnitAmountCents:    unitAmountCents,
		Currency:           "usd",
	}
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	price         PriceConfig
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, price PriceConfig) Service {
	stripe.Key = secretKey

	return &stripeService{
		webhookSecret: webhookSecret,
		price:         price,
	}
}

func (s *stripeService) CreateCheckoutSession(userID, successURL, cancelURL string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.price.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(s.price.ProductName),
						Description: stripe.String(s.price.ProductDescription),
					},
					UnitAmount: stripe.Int64(s.price.UnitAmountCents),
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}
