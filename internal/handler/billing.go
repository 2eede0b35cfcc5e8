package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/promptifyhq/promptify/internal/auth"
	"github.com/promptifyhq/promptify/internal/billing"
	"github.com/promptifyhq/promptify/internal/domain"
)

// BillingHandler handles subscription checkout HTTP requests.
//
// Routes handled:
//   - POST /api/stripe/checkout -> CreateCheckout
type BillingHandler struct {
	billing billing.Service
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, protected func(http.Handler) http.Handler) {
	mux.Handle("POST /api/stripe/checkout", protected(http.HandlerFunc(h.CreateCheckout)))
}

// CreateCheckout creates a Stripe Checkout session for the PRO subscription
// and returns its URL. The authenticated user's ID travels as the session's
// client reference so the webhook can attribute the completed payment.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		h.logger.Warn("checkout attempted but Stripe is not configured", "user_id", user.ID)
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.checkout", "Billing is not configured."))
		return
	}

	if user.IsPro() {
		ErrorResponse(w, r, h.logger, domain.Conflict("billing.checkout", "You already have a Pro subscription."))
		return
	}

	successURL := fmt.Sprintf("%s/payment-success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/payment-cancelled", h.baseURL)

	session, err := h.billing.CreateCheckoutSession(user.ID.String(), successURL, cancelURL)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "user_id", user.ID)
		ErrorResponse(w, r, h.logger, domain.Internal(err, "billing.checkout", "Failed to create checkout session."))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":  session.ID,
		"url": session.URL,
	})
}
