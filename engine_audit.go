package credkit

import (
	"context"
	"errors"
)

const (
	auditActionRateLimited           = "rate_limit_triggered"
	auditActionTwoFactorSent         = "two_factor_code_sent"
	auditActionTwoFactorSendFailed   = "two_factor_code_send_failed"
	auditActionTwoFactorVerified     = "two_factor_verified"
	auditActionTwoFactorFailed       = "two_factor_failed"
	auditActionTwoFactorAttemptLimit = "two_factor_attempts_exceeded"
	auditActionAPIKeyGenerated       = "api_key_generated"
	auditActionAPIKeyDeactivated     = "api_key_deactivated"
	auditActionAPIKeyRotated         = "api_key_rotated"
	auditActionAPIKeyAuthFailed      = "api_key_auth_failed"
	auditActionSessionCreated        = "session_created"
	auditActionSessionTerminated     = "session_terminated"
	auditActionSessionExpired        = "session_expired"
	auditActionSessionsTerminatedAll = "sessions_terminated_all"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	subjectID string,
	description string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
		metadata["ip"] = ip
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		Action:      action,
		SubjectID:   subjectID,
		Description: description,
		Success:     success,
		ErrorKind:   string(KindOf(err)),
		Metadata:    metadata,
	}
	if id, ok := IdentityFromContext(ctx); ok {
		event.ActorID = id.UserID
	}
	var ce *Error
	if errors.As(err, &ce) {
		ce.audited = true
	}

	e.audit.Emit(ctx, event)
}

// auditFailure records the failed outcome of a mutating call. Mutating
// methods defer it so every error path leaves one event; failures that
// already emitted a more specific event are skipped.
func (e *Engine) auditFailure(ctx context.Context, action, subjectID string, err error) {
	if err == nil || e == nil || e.audit == nil {
		return
	}
	var ce *Error
	if errors.As(err, &ce) && ce.audited {
		return
	}
	e.emitAudit(ctx, action, false, subjectID, err.Error(), err, nil)
}
