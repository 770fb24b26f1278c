package credkit

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/MrEthical07/credkit/delivery"
	"github.com/MrEthical07/credkit/internal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendTwoFactorCode issues a fresh one-time code for the caller and hands it
// to the delivery channel. Any code issued earlier for the caller stops
// verifying in the same store step.
//
// When delivery fails the new code is removed again and a KindDeliveryError
// is returned. A retry issues another code; the plaintext is never stored,
// so it cannot be resent.
func (e *Engine) SendTwoFactorCode(ctx context.Context) (_ *CodeIssue, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeLatency(start)
	defer func() { e.auditFailure(ctx, auditActionTwoFactorSendFailed, id.UserID, err) }()

	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionTwoFactorSend, e.config.RateLimit.TwoFactorSend); err != nil {
		return nil, err
	}

	code, err := internal.NewOTP(e.config.TwoFactor.Digits)
	if err != nil {
		e.logger.Error("one-time code generation failed", zap.Error(err))
		return nil, newError(KindStoreError, "internal error, please retry", err)
	}

	now := e.now()
	record := &credstore.OneTimeCode{
		UserID:    id.UserID,
		CodeID:    uuid.NewString(),
		CodeHash:  internal.HashValue(code),
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.TwoFactor.CodeTTL),
	}
	if err := e.store.IssueCode(ctx, record, e.config.TwoFactor.Retention); err != nil {
		return nil, e.storeFailure("issue code", err)
	}

	msg := delivery.Message{
		UserID:    id.UserID,
		CodeID:    record.CodeID,
		Code:      code,
		ExpiresAt: record.ExpiresAt,
	}
	if sendErr := e.delivery.Send(ctx, msg); sendErr != nil {
		e.metricInc(MetricTwoFactorDeliveryFailed)
		e.logger.Warn("one-time code delivery failed",
			zap.String("user_id", id.UserID),
			zap.String("code_id", record.CodeID),
			zap.Error(sendErr),
		)
		if err := e.store.DeleteCode(ctx, id.UserID, record.CodeID); err != nil {
			e.logger.Error("failed to withdraw undelivered code",
				zap.String("code_id", record.CodeID),
				zap.Error(err),
			)
		}
		derr := newError(KindDeliveryError, "could not deliver verification code, please retry", sendErr)
		e.emitAudit(ctx, auditActionTwoFactorSendFailed, false, id.UserID, "one-time code delivery failed", derr, nil)
		return nil, derr
	}

	e.metricInc(MetricTwoFactorSent)
	e.emitAudit(ctx, auditActionTwoFactorSent, true, id.UserID, "one-time code sent", nil, func() map[string]string {
		return map[string]string{"code_id": record.CodeID}
	})

	return &CodeIssue{CodeID: record.CodeID, ExpiresAt: record.ExpiresAt}, nil
}

// VerifyTwoFactorCode checks code against the caller's outstanding code and
// consumes it on success. A code verifies at most once.
func (e *Engine) VerifyTwoFactorCode(ctx context.Context, code string) (_ *VerifyResult, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeLatency(start)
	defer func() { e.auditFailure(ctx, auditActionTwoFactorFailed, id.UserID, err) }()

	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionTwoFactorVerify, e.config.RateLimit.TwoFactorVerify); err != nil {
		return nil, err
	}

	record, err := e.store.GetCode(ctx, id.UserID)
	if err != nil {
		return nil, e.mapStoreError("get code", err, "no outstanding verification code")
	}

	if record.Consumed() {
		return nil, e.twoFactorFailure(ctx, id, newError(KindAlreadyConsumed, "verification code already used", nil))
	}

	now := e.now()
	if !now.Before(record.ExpiresAt) {
		return nil, e.twoFactorFailure(ctx, id, newError(KindExpired, "verification code expired", nil))
	}

	// the hash is computed even for malformed input so both paths cost the same
	submitted := internal.HashValue(code)
	wellFormed := len(code) == e.config.TwoFactor.Digits && internal.IsNumeric(code)
	if subtle.ConstantTimeCompare(submitted[:], record.CodeHash[:]) != 1 || !wellFormed {
		return nil, e.recordMismatch(ctx, id, record)
	}

	if err := e.store.ConsumeCode(ctx, id.UserID, record.CodeID, now); err != nil {
		switch {
		case errors.Is(err, credstore.ErrAlreadyConsumed):
			return nil, e.twoFactorFailure(ctx, id, newError(KindAlreadyConsumed, "verification code already used", err))
		case errors.Is(err, credstore.ErrNotFound):
			// superseded or removed between read and consume
			return nil, e.twoFactorFailure(ctx, id, newError(KindNotFound, "no outstanding verification code", err))
		default:
			return nil, e.storeFailure("consume code", err)
		}
	}

	e.metricInc(MetricTwoFactorVerified)
	e.emitAudit(ctx, auditActionTwoFactorVerified, true, id.UserID, "one-time code verified", nil, func() map[string]string {
		return map[string]string{"code_id": record.CodeID}
	})

	return &VerifyResult{Success: true, VerifiedAt: now}, nil
}

func (e *Engine) recordMismatch(ctx context.Context, id Identity, record *credstore.OneTimeCode) error {
	attempts, err := e.store.RecordCodeFailure(ctx, id.UserID, record.CodeID, e.config.TwoFactor.MaxAttempts)
	if err != nil && !errors.Is(err, credstore.ErrNotFound) {
		return e.storeFailure("record code failure", err)
	}

	maxAttempts := e.config.TwoFactor.MaxAttempts
	if maxAttempts > 0 && attempts >= maxAttempts {
		e.metricInc(MetricTwoFactorAttemptsExceeded)
		e.emitAudit(ctx, auditActionTwoFactorAttemptLimit, false, id.UserID, "one-time code withdrawn after too many wrong attempts", ErrMismatch, func() map[string]string {
			return map[string]string{
				"code_id":  record.CodeID,
				"attempts": strconv.Itoa(attempts),
			}
		})
	}

	mismatch := newError(KindMismatch, "verification code is incorrect", nil)
	if maxAttempts > 0 && attempts > 0 {
		remaining := maxAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}
		mismatch.withDetail("attempts_remaining", remaining)
	}
	return e.twoFactorFailure(ctx, id, mismatch)
}

func (e *Engine) twoFactorFailure(ctx context.Context, id Identity, err *Error) error {
	e.metricInc(MetricTwoFactorFailed)
	e.emitAudit(ctx, auditActionTwoFactorFailed, false, id.UserID, err.Message, err, nil)
	return err
}
