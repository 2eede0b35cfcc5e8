// Stripe webhook handler.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/promptifyhq/promptify/internal/billing"
	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing        billing.Service
	billingService service.BillingService
	logger         *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// stripeService may be nil when Stripe is not configured.
func NewWebhookHandler(stripeService billing.Service, billingService service.BillingService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:        stripeService,
		billingService: billingService,
		logger:         logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware; Stripe authenticates via the
// webhook signature.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux, stack func(http.Handler) http.Handler) {
	mux.Handle("POST /webhooks/stripe", stack(http.HandlerFunc(h.HandleStripeWebhook)))
}

// HandleStripeWebhook processes incoming Stripe webhook events.
//
// A non-2xx response makes Stripe retry the delivery, so processing failures
// return 500 while malformed or unverifiable payloads return 400.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Verify signature
	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		if err := h.handleCheckoutCompleted(r, event); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(r *http.Request, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		// Malformed payload; retrying will not help.
		return nil
	}

	if session.ClientReferenceID == "" || session.Subscription == nil {
		h.logger.Warn("checkout session missing client reference or subscription", "session_id", session.ID)
		return nil
	}

	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		h.logger.Error("checkout session has invalid client reference",
			"session_id", session.ID, "client_reference_id", session.ClientReferenceID)
		return nil
	}

	// The subscription object in the webhook payload is usually just an ID
	// reference; fall back to a nominal monthly period when the period end is
	// not populated.
	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour)
	if session.Subscription.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(session.Subscription.CurrentPeriodEnd, 0).UTC()
	}

	err = h.billingService.ApplyCheckoutCompleted(r.Context(), domain.CheckoutCompleted{
		UserID:           userID,
		StripeSubID:      session.Subscription.ID,
		CurrentPeriodEnd: periodEnd,
	})
	if err != nil {
		h.logger.Error("failed to apply checkout completion", "error", err, "user_id", userID)
		return err
	}

	return nil
}
