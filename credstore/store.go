package credstore

import (
	"context"
	"time"
)

// CodeStore persists one-time codes.
type CodeStore interface {
	// IssueCode stores code as the only outstanding code for code.UserID,
	// superseding any previous one in the same step. The record is retained
	// until code.ExpiresAt plus retention.
	IssueCode(ctx context.Context, code *OneTimeCode, retention time.Duration) error
	// GetCode returns the current code for userID.
	GetCode(ctx context.Context, userID string) (*OneTimeCode, error)
	// ConsumeCode marks the code consumed if codeID is still current.
	// Returns ErrNotFound when superseded and ErrAlreadyConsumed when used.
	ConsumeCode(ctx context.Context, userID, codeID string, at time.Time) error
	// RecordCodeFailure counts a failed verification and deletes the code once
	// maxAttempts is reached. Returns the new attempt count.
	RecordCodeFailure(ctx context.Context, userID, codeID string, maxAttempts int) (int, error)
	// DeleteCode removes the code if codeID is still current.
	DeleteCode(ctx context.Context, userID, codeID string) error
}

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKey(ctx context.Context, keyID string) (*APIKey, error)
	// ListAPIKeys returns the user's keys, newest first.
	ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error)
	// DeactivateAPIKey is idempotent; the original deactivation time is kept.
	// changed is false when the key was already inactive.
	DeactivateAPIKey(ctx context.Context, keyID string, at time.Time) (key *APIKey, changed bool, err error)
	// RotateAPIKey swaps the secret hash in one step.
	RotateAPIKey(ctx context.Context, keyID, secretHash string, at time.Time) (*APIKey, error)
	TouchAPIKey(ctx context.Context, keyID string, at time.Time) error
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// ListSessions returns the user's active sessions, newest first.
	ListSessions(ctx context.Context, userID string) ([]*Session, error)
	// TouchSession refreshes a live session or ends it with ReasonExpiry when
	// it is past expiry. changed is false when the session had already ended.
	TouchSession(ctx context.Context, sessionID string, at time.Time) (sess *Session, changed bool, err error)
	// TerminateSession ends one session. changed is false when it had already
	// ended.
	TerminateSession(ctx context.Context, sessionID string, reason TerminationReason, at time.Time) (sess *Session, changed bool, err error)
	// TerminateAllSessions ends every active session of userID except
	// exceptSessionID and returns how many it ended.
	TerminateAllSessions(ctx context.Context, userID string, reason TerminationReason, exceptSessionID string, at time.Time) (int, error)
}

// Store is the full credential store.
type Store interface {
	CodeStore
	APIKeyStore
	SessionStore
	Ping(ctx context.Context) error
}
