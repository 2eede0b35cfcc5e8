package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RequestKind identifies which AI tool produced a usage record.
type RequestKind string

const (
	RequestKindChat    RequestKind = "CHAT"
	RequestKindResume  RequestKind = "RESUME"
	RequestKindCollege RequestKind = "COLLEGE"
	RequestKindEmail   RequestKind = "EMAIL"
	RequestKindSummary RequestKind = "SUMMARY"
)

// Valid checks if the request kind is known.
func (k RequestKind) Valid() bool {
	switch k {
	case RequestKindChat, RequestKindResume, RequestKindCollege, RequestKindEmail, RequestKindSummary:
		return true
	default:
		return false
	}
}

// Cost returns the fixed token cost attributed to one operation of this kind.
// Costs are informational weighting on the FREE plan; the authoritative gate
// is the daily request count.
func (k RequestKind) Cost() int64 {
	switch k {
	case RequestKindChat:
		return 5
	case RequestKindResume:
		return 20
	default:
		return 10
	}
}

// MaxStoredPromptLen bounds the prompt text persisted with a usage record.
// Summarizer inputs in particular can be arbitrarily large.
const MaxStoredPromptLen = 2000

// TruncatePrompt trims prompt text to the storage bound. The cut backs up to
// a rune boundary so the stored value is always valid UTF-8; Postgres rejects
// text with a dangling multibyte sequence.
func TruncatePrompt(s string) string {
	if len(s) <= MaxStoredPromptLen {
		return s
	}
	cut := MaxStoredPromptLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// UsageRecord is an immutable log entry for one completed AI operation.
// Records are written exactly once, after a successful completion, and are
// never mutated. The FREE daily counter is derived from these rows, so a
// failed completion does not consume a daily slot.
type UsageRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Kind      RequestKind
	Prompt    string
	Response  string
	Cost      int64
	CreatedAt time.Time
}

// QuotaUsage is a point-in-time snapshot of a user's metering state,
// surfaced on the dashboard.
type QuotaUsage struct {
	RequestsToday int64
	DailyLimit    int64
	Tokens        int64
	IsUnlimited   bool
}
