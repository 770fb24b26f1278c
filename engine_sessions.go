package credkit

import (
	"context"
	"strconv"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/MrEthical07/credkit/internal"
	"go.uber.org/zap"
)

// CreateSession establishes a session for req.UserID and returns its opaque
// token. Only the token's SHA-256 is stored, so the token cannot be
// recovered later. Callers other than the user need an admin role.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (_ *IssuedSession, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { e.auditFailure(ctx, auditActionSessionCreated, req.UserID, err) }()

	if req.IP == "" {
		req.IP = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}
	if err := e.validate.StructCtx(ctx, req); err != nil {
		return nil, e.validationError(err)
	}
	if err := e.authorizeOwner(ctx, id, req.UserID, auditActionSessionCreated, req.UserID); err != nil {
		return nil, err
	}
	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionSessionMutation, e.config.RateLimit.SessionMutation); err != nil {
		return nil, err
	}

	token, err := internal.NewSessionToken()
	if err != nil {
		e.logger.Error("session token generation failed", zap.Error(err))
		return nil, newError(KindStoreError, "internal error, please retry", err)
	}

	now := e.now()
	sess := &credstore.Session{
		ID:         internal.SessionID(token),
		UserID:     req.UserID,
		IP:         req.IP,
		UserAgent:  req.UserAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(e.config.Session.TTL),
		Active:     true,
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, e.storeFailure("create session", err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditActionSessionCreated, true, sess.ID, "session created", nil, func() map[string]string {
		return map[string]string{"user_id": sess.UserID}
	})

	return &IssuedSession{
		Token:   token,
		Session: sessionRecord(sess, sess.ID),
	}, nil
}

// TouchSession validates token and records activity on it. It needs no
// identity in ctx; middleware uses it to resolve a session token. A session
// found past its expiry is ended with ReasonExpiry and KindExpired returned.
func (e *Engine) TouchSession(ctx context.Context, token string) (*SessionRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, newError(KindUnauthorized, "session token required", nil)
	}

	sessionID := internal.SessionID(token)
	now := e.now()
	sess, changed, err := e.store.TouchSession(ctx, sessionID, now)
	if err != nil {
		return nil, e.mapStoreError("touch session", err, "session not found")
	}

	if !sess.Active {
		if sess.TerminationReason == ReasonExpiry {
			if changed {
				e.metricInc(MetricSessionExpired)
				e.emitAudit(ctx, auditActionSessionExpired, true, sess.ID, "session ended on expiry", nil, nil)
			}
			return nil, newError(KindExpired, "session expired", nil)
		}
		return nil, newError(KindUnauthorized, "session terminated", nil).
			withDetail("termination_reason", string(sess.TerminationReason))
	}

	record := sessionRecord(sess, sessionID)
	return &record, nil
}

// ListSessions returns ownerID's active sessions, newest first. When ctx
// carries the caller's session token that session is flagged Current.
func (e *Engine) ListSessions(ctx context.Context, ownerID string) ([]SessionRecord, error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		ownerID = id.UserID
	}
	if err := e.authorizeOwner(ctx, id, ownerID, "session_list", ownerID); err != nil {
		return nil, err
	}

	sessions, err := e.store.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, e.storeFailure("list sessions", err)
	}

	var currentID string
	if token := sessionTokenFromContext(ctx); token != "" {
		currentID = internal.SessionID(token)
	}

	out := make([]SessionRecord, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionRecord(sess, currentID))
	}
	return out, nil
}

// TerminateSession ends the session identified by token.
func (e *Engine) TerminateSession(ctx context.Context, token string, reason TerminationReason) (*SessionRecord, error) {
	var sessionID string
	if token != "" {
		sessionID = internal.SessionID(token)
	}
	return e.TerminateSessionByID(ctx, sessionID, reason)
}

// TerminateSessionByID ends the session with the given id, as listed by
// ListSessions. Ending an already-ended session succeeds without changing it.
// An empty reason defaults to ReasonUserRequest, or ReasonAdminAction when an
// admin ends another user's session.
func (e *Engine) TerminateSessionByID(ctx context.Context, sessionID string, reason TerminationReason) (_ *SessionRecord, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { e.auditFailure(ctx, auditActionSessionTerminated, sessionID, err) }()

	if sessionID == "" {
		return nil, newError(KindInvalidInput, "session id is required", nil)
	}
	if reason != "" && !reason.Valid() {
		return nil, newError(KindInvalidInput, "unknown termination reason", nil).
			withDetail("reason", string(reason))
	}
	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionSessionMutation, e.config.RateLimit.SessionMutation); err != nil {
		return nil, err
	}

	current, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, e.mapStoreError("get session", err, "session not found")
	}
	if err := e.authorizeOwner(ctx, id, current.UserID, auditActionSessionTerminated, sessionID); err != nil {
		return nil, err
	}
	reason = e.defaultReason(id, current.UserID, reason)

	sess, changed, err := e.store.TerminateSession(ctx, sessionID, reason, e.now())
	if err != nil {
		return nil, e.mapStoreError("terminate session", err, "session not found")
	}

	if changed {
		e.metricInc(MetricSessionTerminated)
		e.emitAudit(ctx, auditActionSessionTerminated, true, sessionID, "session terminated", nil, func() map[string]string {
			return map[string]string{
				"user_id": sess.UserID,
				"reason":  string(reason),
			}
		})
	}

	record := sessionRecord(sess, "")
	return &record, nil
}

// TerminateAllSessions ends every active session of ownerID except the one
// identified by exceptToken (none when empty) in a single store operation,
// and returns how many sessions it ended.
func (e *Engine) TerminateAllSessions(ctx context.Context, ownerID string, reason TerminationReason, exceptToken string) (_ int, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return 0, err
	}
	if ownerID == "" {
		ownerID = id.UserID
	}
	defer func() { e.auditFailure(ctx, auditActionSessionsTerminatedAll, ownerID, err) }()

	if reason != "" && !reason.Valid() {
		return 0, newError(KindInvalidInput, "unknown termination reason", nil).
			withDetail("reason", string(reason))
	}
	if err := e.authorizeOwner(ctx, id, ownerID, auditActionSessionsTerminatedAll, ownerID); err != nil {
		return 0, err
	}
	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionSessionMutation, e.config.RateLimit.SessionMutation); err != nil {
		return 0, err
	}
	reason = e.defaultReason(id, ownerID, reason)

	var exceptID string
	if exceptToken != "" {
		exceptID = internal.SessionID(exceptToken)
	}

	n, err := e.store.TerminateAllSessions(ctx, ownerID, reason, exceptID, e.now())
	if err != nil {
		return 0, e.storeFailure("terminate all sessions", err)
	}

	if n > 0 {
		e.metrics.Add(MetricSessionTerminated, uint64(n))
	}
	e.emitAudit(ctx, auditActionSessionsTerminatedAll, true, ownerID, "sessions terminated", nil, func() map[string]string {
		return map[string]string{
			"reason":     string(reason),
			"terminated": strconv.Itoa(n),
			"kept":       strconv.FormatBool(exceptID != ""),
		}
	})
	return n, nil
}

func (e *Engine) defaultReason(id Identity, ownerID string, reason TerminationReason) TerminationReason {
	if reason != "" {
		return reason
	}
	if id.UserID != ownerID {
		return ReasonAdminAction
	}
	return ReasonUserRequest
}
