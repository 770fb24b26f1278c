package credkit

import (
	"context"
	"errors"

	"github.com/MrEthical07/credkit/internal/rate"
)

const (
	rateSubjectUser   = "user"
	rateSubjectAPIKey = "api_key"

	rateActionTwoFactorSend   = "two_factor_send"
	rateActionTwoFactorVerify = "two_factor_verify"
	rateActionAPIKeyMutation  = "api_key_mutation"
	rateActionAPIKeyAuth      = "api_key_auth"
	rateActionSessionMutation = "session_mutation"
)

// CheckRateLimit counts one call against rule for id and reports whether it
// is admitted. Counters live in the shared counter store, so every service
// instance sees the same budget. A disabled rule always admits.
func (e *Engine) CheckRateLimit(ctx context.Context, id RateLimitIdentifier, rule RateLimitRule) (RateLimitDecision, error) {
	if err := e.ready(); err != nil {
		return RateLimitDecision{}, err
	}

	decision, err := e.limiter.Check(ctx, rate.Identifier{
		SubjectType: id.SubjectType,
		SubjectID:   id.SubjectID,
		Action:      id.Action,
	}, rate.Rule{Max: rule.Max, Window: rule.Window})
	if err != nil {
		if errors.Is(err, rate.ErrInvalidIdentifier) {
			return RateLimitDecision{}, newError(KindInvalidInput, "rate limit identifier requires subject type, subject id and action", err)
		}
		return RateLimitDecision{}, e.storeFailure("rate limit check", err)
	}

	if !decision.Allowed {
		e.metricInc(MetricRateLimitHit)
	}
	return RateLimitDecision{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		ResetAt:   decision.ResetAt,
	}, nil
}

// ResetRateLimit clears the budget for id.
func (e *Engine) ResetRateLimit(ctx context.Context, id RateLimitIdentifier) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.limiter.Reset(ctx, rate.Identifier{
		SubjectType: id.SubjectType,
		SubjectID:   id.SubjectID,
		Action:      id.Action,
	}); err != nil {
		return e.storeFailure("rate limit reset", err)
	}
	return nil
}
