package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/promptifyhq/promptify/internal/billing"
	"github.com/promptifyhq/promptify/internal/domain"
)

// stripeServiceStub implements billing.Service with a canned event.
type stripeServiceStub struct {
	event     stripe.Event
	verifyErr error
}

func (s *stripeServiceStub) CreateCheckoutSession(userID, successURL, cancelURL string) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/test"}, nil
}

func (s *stripeServiceStub) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if s.verifyErr != nil {
		return stripe.Event{}, s.verifyErr
	}
	return s.event, nil
}

// billingServiceStub implements service.BillingService, capturing the applied event.
type billingServiceStub struct {
	applied  []domain.CheckoutCompleted
	applyErr error
}

func (s *billingServiceStub) ApplyCheckoutCompleted(ctx context.Context, event domain.CheckoutCompleted) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, event)
	return nil
}

func checkoutCompletedEvent(t *testing.T, clientRef, subID string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":                  "cs_test_123",
		"client_reference_id": clientRef,
		"subscription":        map[string]any{"id": subID},
	})
	if err != nil {
		t.Fatalf("failed to build event payload: %v", err)
	}
	return stripe.Event{
		ID:   "evt_1",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func postWebhook(h *WebhookHandler) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, req)
	return rec
}

func TestWebhookHandler_CheckoutCompleted(t *testing.T) {
	userID := uuid.New()
	stripeStub := &stripeServiceStub{event: checkoutCompletedEvent(t, userID.String(), "sub_42")}
	billingStub := &billingServiceStub{}
	h := NewWebhookHandler(stripeStub, billingStub, testLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(billingStub.applied) != 1 {
		t.Fatalf("expected one applied event, got %d", len(billingStub.applied))
	}
	applied := billingStub.applied[0]
	if applied.UserID != userID {
		t.Errorf("expected user %s, got %s", userID, applied.UserID)
	}
	if applied.StripeSubID != "sub_42" {
		t.Errorf("expected subscription sub_42, got %s", applied.StripeSubID)
	}
	if applied.CurrentPeriodEnd.IsZero() {
		t.Error("period end should be populated")
	}
}

func TestWebhookHandler_InvalidSignature(t *testing.T) {
	stripeStub := &stripeServiceStub{verifyErr: errors.New("bad signature")}
	billingStub := &billingServiceStub{}
	h := NewWebhookHandler(stripeStub, billingStub, testLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unverifiable payload, got %d", rec.Code)
	}
	if len(billingStub.applied) != 0 {
		t.Error("unverified events must not be applied")
	}
}

func TestWebhookHandler_ProcessingFailureTriggersRetry(t *testing.T) {
	userID := uuid.New()
	stripeStub := &stripeServiceStub{event: checkoutCompletedEvent(t, userID.String(), "sub_42")}
	billingStub := &billingServiceStub{applyErr: fmt.Errorf("db down")}
	h := NewWebhookHandler(stripeStub, billingStub, testLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 so Stripe redelivers, got %d", rec.Code)
	}
}

func TestWebhookHandler_MissingClientReferenceAcked(t *testing.T) {
	stripeStub := &stripeServiceStub{event: checkoutCompletedEvent(t, "", "sub_42")}
	billingStub := &billingServiceStub{}
	h := NewWebhookHandler(stripeStub, billingStub, testLogger())

	rec := postWebhook(h)

	// Retrying a malformed session cannot succeed; acknowledge it.
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(billingStub.applied) != 0 {
		t.Error("event without client reference must not be applied")
	}
}

func TestWebhookHandler_UnhandledEventTypeAcked(t *testing.T) {
	stripeStub := &stripeServiceStub{event: stripe.Event{
		ID:   "evt_2",
		Type: "invoice.payment_succeeded",
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}}
	billingStub := &billingServiceStub{}
	h := NewWebhookHandler(stripeStub, billingStub, testLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for unhandled event type, got %d", rec.Code)
	}
	if len(billingStub.applied) != 0 {
		t.Error("unhandled event types must not be applied")
	}
}

func TestWebhookHandler_BillingNotConfigured(t *testing.T) {
	h := NewWebhookHandler(nil, &billingServiceStub{}, testLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 when billing is disabled, got %d", rec.Code)
	}
}
