// Package service contains the business logic layer.
//
// Services orchestrate interactions between the repository, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/promptifyhq/promptify/internal/auth"
	"github.com/promptifyhq/promptify/internal/domain"
	"github.com/promptifyhq/promptify/internal/email"
	"github.com/promptifyhq/promptify/internal/repository"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 keeps hashing around 250ms on modern hardware.
	BcryptCost = 12

	// MinPasswordLength is the minimum password length.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72

	// notifyTimeout bounds the fire-and-forget notification send.
	notifyTimeout = 10 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// UserService defines the interface for account operations.
type UserService interface {
	// Register creates a new user account and returns a signed bearer token.
	// Returns domain.ECONFLICT if email already exists.
	// Returns domain.EINVALID for validation errors.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.LoginResult, error)

	// Login authenticates a user and returns a signed bearer token.
	// Returns domain.EUNAUTHORIZED for invalid credentials.
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// UserStore is the persistence surface the user service needs.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash, name string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	store       UserStore
	notifier    email.Notifier
	jwtSecret   []byte
	jwtLifetime time.Duration
	logger      *slog.Logger
}

// NewUserService creates a new UserService.
// notifier may be nil when email notifications are disabled.
func NewUserService(store UserStore, notifier email.Notifier, jwtSecret []byte, jwtLifetime time.Duration, logger *slog.Logger) UserService {
	return &userService{
		store:       store,
		notifier:    notifier,
		jwtSecret:   jwtSecret,
		jwtLifetime: jwtLifetime,
		logger:      logger,
	}
}

func (s *userService) Register(ctx context.Context, params domain.RegisterParams) (*domain.LoginResult, error) {
	const op = "user.register"

	normalizedEmail := strings.ToLower(strings.TrimSpace(params.Email))
	if normalizedEmail == "" || !strings.Contains(normalizedEmail, "@") {
		return nil, domain.Invalid(op, "A valid email address is required.")
	}
	if len(params.Password) < MinPasswordLength {
		return nil, domain.Invalid(op, "Password must be at least 8 characters.")
	}
	if len(params.Password) > MaxPasswordLength {
		return nil, domain.Invalid(op, "Password is too long.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to hash password")
	}

	user, err := s.store.CreateUser(ctx, normalizedEmail, string(hash), strings.TrimSpace(params.Name))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.Conflict(op, "An account with this email already exists.")
		}
		return nil, domain.Internal(err, op, "failed to create user")
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.jwtLifetime)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to issue token")
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return &domain.LoginResult{User: user, Token: token}, nil
}

func (s *userService) Login(ctx context.Context, emailAddr, password string) (*domain.LoginResult, error) {
	const op = "user.login"

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same error as a bad password so the response does not reveal
			// which accounts exist.
			return nil, domain.Unauthorized(op, "Invalid email or password.")
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.Unauthorized(op, "Invalid email or password.")
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.jwtLifetime)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to issue token")
	}

	// Fire-and-forget: a notification failure never blocks login.
	if s.notifier != nil {
		go s.sendLoginNotification(user.Email, user.DisplayName())
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return &domain.LoginResult{User: user, Token: token}, nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "user.get_by_id"

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}
	return user, nil
}

func (s *userService) sendLoginNotification(to, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := s.notifier.SendLoginNotification(ctx, to, name); err != nil {
		s.logger.Warn("login notification failed", "error", err, "to", to)
	}
}
