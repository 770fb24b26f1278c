package credkit

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/MrEthical07/credkit/delivery"
	"github.com/MrEthical07/credkit/hashing"
	"github.com/MrEthical07/credkit/internal/audit"
	"github.com/MrEthical07/credkit/internal/rate"
	"github.com/MrEthical07/credkit/scope"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Engine runs the credential lifecycle: rate limiting, two-factor codes, API
// keys and sessions. It is safe for concurrent use once built.
type Engine struct {
	config     Config
	store      credstore.Store
	limiter    *rate.Limiter
	scopes     *scope.Registry
	hasher     *hashing.Hasher
	delivery   delivery.Channel
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	validate   *validator.Validate
	adminRoles map[string]struct{}
	now        func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns how many audit events were discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Scopes returns the API-key scope vocabulary.
func (e *Engine) Scopes() []string {
	if e == nil || e.scopes == nil {
		return nil
	}
	return e.scopes.Names()
}

// Ping checks the credential store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return e.storeFailure("ping", err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricOperationLatency, time.Since(start))
	}
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	return nil
}

// caller returns the identity or a KindUnauthorized error.
func (e *Engine) caller(ctx context.Context) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, newError(KindUnauthorized, "authentication required", nil)
	}
	return id, nil
}

func (e *Engine) isAdmin(id Identity) bool {
	_, ok := e.adminRoles[id.Role]
	return ok
}

// authorizeOwner allows the owner or an admin.
func (e *Engine) authorizeOwner(ctx context.Context, id Identity, ownerID, action, subjectID string) error {
	if id.UserID == ownerID || e.isAdmin(id) {
		return nil
	}
	e.metricInc(MetricForbidden)
	err := newError(KindForbidden, "not permitted to act on this resource", nil)
	e.emitAudit(ctx, action, false, subjectID, "denied: caller does not own the resource", err, nil)
	return err
}

// rateLimit counts one call for (subjectType, subjectID, action) and returns
// a KindTooManyRequests error when the rule denies it.
func (e *Engine) rateLimit(ctx context.Context, subjectType, subjectID, action string, rule RateLimitRule) error {
	decision, err := e.limiter.Check(ctx, rate.Identifier{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
	}, rate.Rule{Max: rule.Max, Window: rule.Window})
	if err != nil {
		return e.storeFailure("rate limit "+action, err)
	}
	if decision.Allowed {
		return nil
	}

	e.metricInc(MetricRateLimitHit)
	retryAfter := decision.ResetAt.Sub(e.now())
	if retryAfter < 0 {
		retryAfter = 0
	}
	limited := newError(KindTooManyRequests, "too many requests, try again later", nil).
		withDetail("retry_after_seconds", int64(retryAfter.Round(time.Second)/time.Second))
	e.emitAudit(ctx, auditActionRateLimited, false, subjectID, "rate limit exceeded for "+action, limited, func() map[string]string {
		return map[string]string{
			"subject_type": subjectType,
			"action":       action,
		}
	})
	return limited
}

// storeFailure logs cause and returns the generic KindStoreError.
func (e *Engine) storeFailure(op string, cause error) error {
	e.metricInc(MetricStoreError)
	e.logger.Error("credential store failure", zap.String("op", op), zap.Error(cause))
	return newError(KindStoreError, "internal error, please retry", cause)
}

// mapStoreError converts credstore sentinels into credkit kinds.
func (e *Engine) mapStoreError(op string, err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		return newError(KindNotFound, notFoundMsg, err)
	case errors.Is(err, credstore.ErrAlreadyConsumed):
		return newError(KindAlreadyConsumed, "code already used", err)
	case errors.Is(err, credstore.ErrDeactivated):
		return newError(KindAlreadyDeactivated, "api key is deactivated", err)
	default:
		return e.storeFailure(op, err)
	}
}

func (e *Engine) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return newError(KindInvalidInput, "invalid request", err).withDetail("fields", fields)
	}
	return newError(KindInvalidInput, "invalid request", err)
}
