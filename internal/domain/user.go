// Package domain contains core business types and interfaces.
//
// This file defines the User domain type. The domain representation is kept
// separate from the repository row types so business logic never depends on
// sql.Null* plumbing.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Plan represents a user's subscription tier.
type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

// Valid checks if the plan is a known tier.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro:
		return true
	default:
		return false
	}
}

const (
	// DefaultTokenBalance is the token balance granted at signup.
	DefaultTokenBalance = 100

	// ProTokenGrant is credited when a checkout completes. PRO bypasses
	// metering entirely, so this is effectively a display value.
	ProTokenGrant = 10000

	// FreeDailyRequestLimit is the maximum number of successful AI operations
	// a FREE user may perform per UTC calendar day. This count, not the token
	// balance, is the authoritative gate for FREE users.
	FreeDailyRequestLimit = 5
)

// User represents a registered Promptify user.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string // Never expose this in API responses
	Name         string
	Plan         Plan
	Tokens       int64 // Soft usage credit; informational for FREE users
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsPro returns true if the user is on the PRO plan and exempt from metering.
func (u *User) IsPro() bool {
	return u.Plan == PlanPro
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// RegisterParams contains the validated parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string // Raw password, hashed by the service
	Name     string
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	User  *User
	Token string // Signed bearer token, only returned at login/registration
}
