package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/promptifyhq/promptify/internal/auth"
	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/email"
	"github.com/promptifyhq/promptify/internal/service"
)

// AuthHandler handles account HTTP requests.
//
// Routes handled:
//   - POST /api/auth/register -> Register
//   - POST /api/auth/login    -> Login
//   - POST /api/auth/logout   -> Logout
//   - GET  /api/auth/profile  -> Profile
type AuthHandler struct {
	userService service.UserService
	notifier    email.Notifier
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
// notifier may be nil when email notifications are disabled.
func NewAuthHandler(userService service.UserService, notifier email.Notifier, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		notifier:    notifier,
		logger:      logger,
	}
}

// RegisterRoutes registers auth routes on the provided mux.
// Register and Login take their own stacks so they can carry per-endpoint
// rate limits; Profile and Logout require a user.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, register, login, protected func(http.Handler) http.Handler) {
	mux.Handle("POST /api/auth/register", register(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/login", login(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/auth/logout", protected(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /api/auth/profile", protected(http.HandlerFunc(h.Profile)))
}

// userResponse is the wire representation of a user. The password hash never
// leaves the server.
type userResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Plan   string `json:"plan"`
	Tokens int64  `json:"tokens"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:     u.ID.String(),
		Email:  u.Email,
		Name:   u.Name,
		Plan:   string(u.Plan),
		Tokens: u.Tokens,
	}
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

// Register creates a new account and returns a bearer token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.register", "Invalid request body."))
		return
	}

	result, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		User:  toUserResponse(result.User),
		Token: result.Token,
	})
}

// Login authenticates and returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.login", "Invalid request body."))
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:  toUserResponse(result.User),
		Token: result.Token,
	})
}

// Logout acknowledges a sign-out. Bearer tokens are stateless, so there is no
// server-side session to destroy; the client discards the token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	// Fire-and-forget: the notification never blocks the response.
	if h.notifier != nil {
		go h.sendLogoutNotification(user.Email, user.DisplayName())
	}

	h.logger.Info("user logged out", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

// Profile returns the authenticated user's account details.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]userResponse{"user": toUserResponse(user)})
}

func (h *AuthHandler) sendLogoutNotification(to, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.notifier.SendLogoutNotification(ctx, to, name); err != nil {
		h.logger.Warn("logout notification failed", "error", err, "to", to)
	}
}
