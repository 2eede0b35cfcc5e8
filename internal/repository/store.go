// Package repository implements Postgres persistence for users, usage records,
// and subscriptions.
//
// All mutations that the metering core depends on are single-statement SQL
// updates so concurrent requests cannot interleave a read-modify-write:
//   - DecrementTokens is conditional on the current balance
//   - UpgradeUserToPro applies plan + token grant in one UPDATE
//   - CreateSubscription is an idempotent insert keyed on the Stripe ID
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptifyhq/promptify/internal/domain"
)

// ErrNotFound is returned when a point lookup matches no row.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("repository: duplicate")

// DBTX is the subset of *sql.DB used by the store. Satisfied by *sql.DB and
// *sql.Tx, which keeps the store usable inside transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides access to all persisted records.
type Store struct {
	db DBTX
}

// New creates a Store backed by the given database handle.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// =============================================================================
// Users
// =============================================================================

// CreateUser inserts a new user with the default plan and token balance.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string) (*domain.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, name, plan, tokens)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email, password_hash, name, plan, tokens, created_at, updated_at`

	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), email, passwordHash, name, domain.PlanFree, domain.DefaultTokenBalance)

	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by ID. Returns ErrNotFound if absent.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, name, plan, tokens, created_at, updated_at
		FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email. Returns ErrNotFound if absent.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, name, plan, tokens, created_at, updated_at
		FROM users WHERE email = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// DecrementTokens subtracts cost from the user's balance only if the balance
// covers it. Returns true if the decrement was applied. A false return is not
// an error: the token balance is best-effort bookkeeping, never a gate.
func (s *Store) DecrementTokens(ctx context.Context, userID uuid.UUID, cost int64) (bool, error) {
	query := `
		UPDATE users SET tokens = tokens - $2, updated_at = now()
		WHERE id = $1 AND tokens >= $2`

	res, err := s.db.ExecContext(ctx, query, userID, cost)
	if err != nil {
		return false, fmt.Errorf("decrement tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement tokens: %w", err)
	}
	return n > 0, nil
}

// UpgradeUserToPro sets the plan to PRO and credits the token grant in a
// single statement. Returns ErrNotFound if the user does not exist.
func (s *Store) UpgradeUserToPro(ctx context.Context, userID uuid.UUID, tokenGrant int64) error {
	query := `
		UPDATE users SET plan = $2, tokens = tokens + $3, updated_at = now()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, userID, domain.PlanPro, tokenGrant)
	if err != nil {
		return fmt.Errorf("upgrade user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upgrade user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// Usage records
// =============================================================================

// CountUsageSince counts usage records for a user created strictly after the
// given instant. The quota gate uses this with the start of the UTC day.
func (s *Store) CountUsageSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	query := `SELECT count(*) FROM usage_records WHERE user_id = $1 AND created_at > $2`

	var n int64
	if err := s.db.QueryRowContext(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

// CreateUsageRecord appends one immutable usage record.
func (s *Store) CreateUsageRecord(ctx context.Context, userID uuid.UUID, kind domain.RequestKind, prompt, response string, cost int64) (*domain.UsageRecord, error) {
	query := `
		INSERT INTO usage_records (id, user_id, kind, prompt, response, cost)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, kind, prompt, response, cost, created_at`

	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), userID, kind, domain.TruncatePrompt(prompt), response, cost)

	var rec domain.UsageRecord
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.Prompt, &rec.Response, &rec.Cost, &rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("create usage record: %w", err)
	}
	return &rec, nil
}

// ListUsageByUser returns a user's usage records, newest first, bounded by limit.
func (s *Store) ListUsageByUser(ctx context.Context, userID uuid.UUID, limit int32) ([]domain.UsageRecord, error) {
	query := `
		SELECT id, user_id, kind, prompt, response, cost, created_at
		FROM usage_records WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Kind, &rec.Prompt, &rec.Response, &rec.Cost, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("list usage: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	return records, nil
}

// =============================================================================
// Subscriptions
// =============================================================================

// CreateSubscription inserts a subscription row keyed on the Stripe
// subscription ID. Replayed webhook deliveries hit the unique constraint and
// are reported as inserted=false so the caller can skip the token grant.
func (s *Store) CreateSubscription(ctx context.Context, userID uuid.UUID, stripeID, status string, currentPeriodEnd time.Time) (bool, error) {
	query := `
		INSERT INTO subscriptions (id, user_id, stripe_id, status, current_period_end)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stripe_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, uuid.New(), userID, stripeID, status, currentPeriodEnd)
	if err != nil {
		return false, fmt.Errorf("create subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create subscription: %w", err)
	}
	return n > 0, nil
}

// GetSubscriptionByStripeID retrieves a subscription by its Stripe ID.
func (s *Store) GetSubscriptionByStripeID(ctx context.Context, stripeID string) (*domain.Subscription, error) {
	query := `
		SELECT id, user_id, stripe_id, status, current_period_end, created_at
		FROM subscriptions WHERE stripe_id = $1`

	var sub domain.Subscription
	err := s.db.QueryRowContext(ctx, query, stripeID).
		Scan(&sub.ID, &sub.UserID, &sub.StripeID, &sub.Status, &sub.CurrentPeriodEnd, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &sub, nil
}

// =============================================================================
// Helpers
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Plan, &u.Tokens, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
