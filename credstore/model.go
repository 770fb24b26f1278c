package credstore

import "time"

// TerminationReason records why a session ended.
type TerminationReason string

const (
	ReasonUserRequest   TerminationReason = "user_request"
	ReasonAdminAction   TerminationReason = "admin_action"
	ReasonExpiry        TerminationReason = "expiry"
	ReasonSecurityEvent TerminationReason = "security_event"
)

// Valid reports whether r is one of the known reasons.
func (r TerminationReason) Valid() bool {
	switch r {
	case ReasonUserRequest, ReasonAdminAction, ReasonExpiry, ReasonSecurityEvent:
		return true
	}
	return false
}

// OneTimeCode is the persisted form of a two-factor code. At most one exists
// per user.
type OneTimeCode struct {
	UserID     string
	CodeID     string
	CodeHash   [32]byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	Attempts   int
}

// Consumed reports whether the code was used.
func (c *OneTimeCode) Consumed() bool {
	return c != nil && c.ConsumedAt != nil
}

// APIKey is the persisted form of an API key. SecretHash is a salted hash;
// the plaintext secret never reaches the store.
type APIKey struct {
	ID            string
	UserID        string
	Name          string
	SecretHash    string
	Scopes        []string
	ExpiresAt     *time.Time
	Active        bool
	CreatedAt     time.Time
	RotatedAt     *time.Time
	DeactivatedAt *time.Time
	LastUsedAt    *time.Time
}

// Session is the persisted form of an authenticated session. ID is the hex
// SHA-256 of the opaque token.
type Session struct {
	ID                string
	UserID            string
	IP                string
	UserAgent         string
	CreatedAt         time.Time
	LastSeenAt        time.Time
	ExpiresAt         time.Time
	Active            bool
	TerminationReason TerminationReason
	TerminatedAt      *time.Time
}
