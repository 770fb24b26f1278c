package credkit

import (
	"time"

	"github.com/MrEthical07/credkit/credstore"
)

// Identity is the authenticated caller supplied by the surrounding
// application. Every Engine operation reads it from the context.
type Identity struct {
	UserID string
	Role   string
}

/*
====================================
RATE LIMITING
====================================
*/

// RateLimitIdentifier names one counter. SubjectType, SubjectID and Action
// are kept distinct so different actions never share a budget.
type RateLimitIdentifier struct {
	SubjectType string
	SubjectID   string
	Action      string
}

// RateLimitRule allows Max calls per Window. Max <= 0 disables the rule.
type RateLimitRule struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitDecision is the outcome of one counted call. Remaining is -1 for
// a disabled rule.
type RateLimitDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

/*
====================================
TWO-FACTOR
====================================
*/

// CodeIssue describes a freshly sent one-time code. The code itself only
// travels through the delivery channel.
type CodeIssue struct {
	CodeID    string    `json:"code_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyResult is returned by a successful verification.
type VerifyResult struct {
	Success    bool      `json:"success"`
	VerifiedAt time.Time `json:"verified_at"`
}

/*
====================================
API KEYS
====================================
*/

// GenerateAPIKeyRequest describes a new key. OwnerID defaults to the caller;
// naming another owner requires an admin role.
type GenerateAPIKeyRequest struct {
	OwnerID       string   `json:"owner_id,omitempty" validate:"omitempty,max=128"`
	Name          string   `json:"name" validate:"required,max=100"`
	Scopes        []string `json:"scopes" validate:"required,min=1,max=32,dive,required,max=64"`
	ExpiresInDays *int     `json:"expires_in_days,omitempty" validate:"omitempty,min=1"`
}

// APIKeyRecord is the caller-facing view of an API key. Key holds the
// plaintext token only in the response of GenerateAPIKey and RotateAPIKey.
type APIKeyRecord struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Name          string     `json:"name"`
	Scopes        []string   `json:"scopes"`
	Active        bool       `json:"active"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RotatedAt     *time.Time `json:"rotated_at,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	Key           string     `json:"key,omitempty"`
}

func apiKeyRecord(key *credstore.APIKey) APIKeyRecord {
	scopes := make([]string, len(key.Scopes))
	copy(scopes, key.Scopes)
	return APIKeyRecord{
		ID:            key.ID,
		OwnerID:       key.UserID,
		Name:          key.Name,
		Scopes:        scopes,
		Active:        key.Active,
		ExpiresAt:     key.ExpiresAt,
		CreatedAt:     key.CreatedAt,
		RotatedAt:     key.RotatedAt,
		DeactivatedAt: key.DeactivatedAt,
		LastUsedAt:    key.LastUsedAt,
	}
}

/*
====================================
SESSIONS
====================================
*/

// TerminationReason records why a session ended.
type TerminationReason = credstore.TerminationReason

const (
	ReasonUserRequest   = credstore.ReasonUserRequest
	ReasonAdminAction   = credstore.ReasonAdminAction
	ReasonExpiry        = credstore.ReasonExpiry
	ReasonSecurityEvent = credstore.ReasonSecurityEvent
)

// CreateSessionRequest describes a session to establish.
type CreateSessionRequest struct {
	UserID    string `json:"user_id" validate:"required,max=128"`
	IP        string `json:"ip,omitempty" validate:"omitempty,ip"`
	UserAgent string `json:"user_agent,omitempty" validate:"max=512"`
}

// SessionRecord is the caller-facing view of a session. ID is the hashed
// token; the token itself is never returned after creation.
type SessionRecord struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	IP                string            `json:"ip,omitempty"`
	UserAgent         string            `json:"user_agent,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	LastSeenAt        time.Time         `json:"last_seen_at"`
	ExpiresAt         time.Time         `json:"expires_at"`
	Active            bool              `json:"active"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	TerminatedAt      *time.Time        `json:"terminated_at,omitempty"`
	Current           bool              `json:"current"`
}

// IssuedSession is returned once by CreateSession.
type IssuedSession struct {
	Token   string        `json:"token"`
	Session SessionRecord `json:"session"`
}

func sessionRecord(sess *credstore.Session, currentID string) SessionRecord {
	return SessionRecord{
		ID:                sess.ID,
		UserID:            sess.UserID,
		IP:                sess.IP,
		UserAgent:         sess.UserAgent,
		CreatedAt:         sess.CreatedAt,
		LastSeenAt:        sess.LastSeenAt,
		ExpiresAt:         sess.ExpiresAt,
		Active:            sess.Active,
		TerminationReason: sess.TerminationReason,
		TerminatedAt:      sess.TerminatedAt,
		Current:           currentID != "" && sess.ID == currentID,
	}
}
