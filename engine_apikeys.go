package credkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/MrEthical07/credkit/internal"
	"github.com/MrEthical07/credkit/scope"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerateAPIKey creates a key for req.OwnerID (the caller when empty). The
// plaintext token is only present in the returned record's Key field.
func (e *Engine) GenerateAPIKey(ctx context.Context, req GenerateAPIKeyRequest) (_ *APIKeyRecord, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeLatency(start)

	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = id.UserID
	}
	defer func() { e.auditFailure(ctx, auditActionAPIKeyGenerated, ownerID, err) }()

	req.Name = strings.TrimSpace(req.Name)
	if err := e.validate.StructCtx(ctx, req); err != nil {
		return nil, e.validationError(err)
	}
	if req.ExpiresInDays != nil && *req.ExpiresInDays > e.config.APIKey.MaxExpiryDays {
		return nil, newError(KindInvalidInput, "expires_in_days exceeds the allowed maximum", nil).
			withDetail("max_expiry_days", e.config.APIKey.MaxExpiryDays)
	}
	scopes, invalid := e.scopes.Validate(req.Scopes)
	if len(invalid) > 0 {
		return nil, newError(KindInvalidScope, "unknown scopes requested", nil).
			withDetail("invalid_scopes", invalid)
	}

	if err := e.authorizeOwner(ctx, id, ownerID, auditActionAPIKeyGenerated, ownerID); err != nil {
		return nil, err
	}

	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionAPIKeyMutation, e.config.RateLimit.APIKeyMutation); err != nil {
		return nil, err
	}

	keyID := uuid.New()
	token, hash, err := e.newAPIKeySecret(keyID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	key := &credstore.APIKey{
		ID:         keyID.String(),
		UserID:     ownerID,
		Name:       req.Name,
		SecretHash: hash,
		Scopes:     scopes,
		Active:     true,
		CreatedAt:  now,
	}
	if req.ExpiresInDays != nil {
		expiresAt := now.Add(time.Duration(*req.ExpiresInDays) * 24 * time.Hour)
		key.ExpiresAt = &expiresAt
	}

	if err := e.store.CreateAPIKey(ctx, key); err != nil {
		return nil, e.storeFailure("create api key", err)
	}

	e.metricInc(MetricAPIKeyGenerated)
	e.emitAudit(ctx, auditActionAPIKeyGenerated, true, key.ID, "api key generated", nil, func() map[string]string {
		return map[string]string{
			"owner_id": ownerID,
			"name":     key.Name,
			"scopes":   strings.Join(scopes, ","),
		}
	})

	record := apiKeyRecord(key)
	record.Key = token
	return &record, nil
}

// ListAPIKeys returns ownerID's keys, newest first. Secrets and hashes are
// never included.
func (e *Engine) ListAPIKeys(ctx context.Context, ownerID string) ([]APIKeyRecord, error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		ownerID = id.UserID
	}
	if err := e.authorizeOwner(ctx, id, ownerID, "api_key_list", ownerID); err != nil {
		return nil, err
	}

	keys, err := e.store.ListAPIKeys(ctx, ownerID)
	if err != nil {
		return nil, e.storeFailure("list api keys", err)
	}

	out := make([]APIKeyRecord, 0, len(keys))
	for _, key := range keys {
		out = append(out, apiKeyRecord(key))
	}
	return out, nil
}

// DeactivateAPIKey disables keyID. Deactivating an inactive key succeeds and
// keeps the original deactivation time.
func (e *Engine) DeactivateAPIKey(ctx context.Context, keyID string) (_ *APIKeyRecord, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { e.auditFailure(ctx, auditActionAPIKeyDeactivated, keyID, err) }()

	if keyID == "" {
		return nil, newError(KindInvalidInput, "key id is required", nil)
	}
	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionAPIKeyMutation, e.config.RateLimit.APIKeyMutation); err != nil {
		return nil, err
	}

	if _, err := e.loadOwnedAPIKey(ctx, id, keyID, auditActionAPIKeyDeactivated); err != nil {
		return nil, err
	}

	key, changed, err := e.store.DeactivateAPIKey(ctx, keyID, e.now())
	if err != nil {
		return nil, e.mapStoreError("deactivate api key", err, "api key not found")
	}

	if changed {
		e.metricInc(MetricAPIKeyDeactivated)
		e.emitAudit(ctx, auditActionAPIKeyDeactivated, true, keyID, "api key deactivated", nil, func() map[string]string {
			return map[string]string{"owner_id": key.UserID}
		})
	}

	record := apiKeyRecord(key)
	return &record, nil
}

// RotateAPIKey replaces the secret of keyID. Identity, name, scopes and
// expiry are preserved; the previous secret stops authenticating in the same
// store step that installs the new one.
func (e *Engine) RotateAPIKey(ctx context.Context, keyID string) (_ *APIKeyRecord, err error) {
	id, err := e.caller(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeLatency(start)
	defer func() { e.auditFailure(ctx, auditActionAPIKeyRotated, keyID, err) }()

	if keyID == "" {
		return nil, newError(KindInvalidInput, "key id is required", nil)
	}
	if err := e.rateLimit(ctx, rateSubjectUser, id.UserID, rateActionAPIKeyMutation, e.config.RateLimit.APIKeyMutation); err != nil {
		return nil, err
	}

	current, err := e.loadOwnedAPIKey(ctx, id, keyID, auditActionAPIKeyRotated)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return nil, newError(KindAlreadyDeactivated, "api key is deactivated", nil)
	}

	parsed, err := uuid.Parse(current.ID)
	if err != nil {
		return nil, e.storeFailure("rotate api key", err)
	}
	token, hash, err := e.newAPIKeySecret(parsed)
	if err != nil {
		return nil, err
	}

	key, err := e.store.RotateAPIKey(ctx, keyID, hash, e.now())
	if err != nil {
		return nil, e.mapStoreError("rotate api key", err, "api key not found")
	}

	e.metricInc(MetricAPIKeyRotated)
	e.emitAudit(ctx, auditActionAPIKeyRotated, true, keyID, "api key rotated", nil, func() map[string]string {
		return map[string]string{"owner_id": key.UserID}
	})

	record := apiKeyRecord(key)
	record.Key = token
	return &record, nil
}

// AuthenticateAPIKey resolves a presented token to its key. It needs no
// identity in ctx. Any malformed, unknown, inactive or wrong-secret token
// fails with KindUnauthorized; an expired key fails with KindExpired.
func (e *Engine) AuthenticateAPIKey(ctx context.Context, token string) (*APIKeyRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer e.observeLatency(start)

	keyID, secret, err := internal.DecodeAPIKey(e.config.APIKey.TokenPrefix, token)
	if err != nil {
		return nil, e.apiKeyAuthFailure(ctx, "", newError(KindUnauthorized, "invalid api key", err))
	}

	if err := e.rateLimit(ctx, rateSubjectAPIKey, keyID, rateActionAPIKeyAuth, e.config.RateLimit.APIKeyAuth); err != nil {
		return nil, err
	}

	key, err := e.store.GetAPIKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return nil, e.apiKeyAuthFailure(ctx, keyID, newError(KindUnauthorized, "invalid api key", err))
		}
		return nil, e.storeFailure("get api key", err)
	}

	ok, err := e.hasher.Verify(secret, key.SecretHash)
	if err != nil {
		e.logger.Error("stored api key hash is unreadable", zap.String("key_id", keyID), zap.Error(err))
		return nil, e.apiKeyAuthFailure(ctx, keyID, newError(KindUnauthorized, "invalid api key", err))
	}
	if !ok || !key.Active {
		return nil, e.apiKeyAuthFailure(ctx, keyID, newError(KindUnauthorized, "invalid api key", nil))
	}

	now := e.now()
	if key.ExpiresAt != nil && !now.Before(*key.ExpiresAt) {
		return nil, e.apiKeyAuthFailure(ctx, keyID, newError(KindExpired, "api key expired", nil))
	}

	if e.config.APIKey.TouchOnAuth {
		if err := e.store.TouchAPIKey(ctx, keyID, now); err != nil {
			e.logger.Debug("api key last-used update failed", zap.String("key_id", keyID), zap.Error(err))
		} else {
			key.LastUsedAt = &now
		}
	}

	e.metricInc(MetricAPIKeyAuthSuccess)
	record := apiKeyRecord(key)
	return &record, nil
}

func (e *Engine) apiKeyAuthFailure(ctx context.Context, keyID string, err *Error) error {
	e.metricInc(MetricAPIKeyAuthFailure)
	e.emitAudit(ctx, auditActionAPIKeyAuthFailed, false, keyID, err.Message, err, nil)
	return err
}

func (e *Engine) loadOwnedAPIKey(ctx context.Context, id Identity, keyID, action string) (*credstore.APIKey, error) {
	key, err := e.store.GetAPIKey(ctx, keyID)
	if err != nil {
		return nil, e.mapStoreError("get api key", err, "api key not found")
	}
	if err := e.authorizeOwner(ctx, id, key.UserID, action, keyID); err != nil {
		return nil, err
	}
	return key, nil
}

func (e *Engine) newAPIKeySecret(keyID uuid.UUID) (token, hash string, err error) {
	secret, err := internal.NewAPIKeySecret()
	if err != nil {
		e.logger.Error("api key secret generation failed", zap.Error(err))
		return "", "", newError(KindStoreError, "internal error, please retry", err)
	}
	hash, err = e.hasher.Hash(secret)
	if err != nil {
		e.logger.Error("api key secret hashing failed", zap.Error(err))
		return "", "", newError(KindStoreError, "internal error, please retry", err)
	}
	return internal.EncodeAPIKey(e.config.APIKey.TokenPrefix, keyID, secret), hash, nil
}

// HasScope reports whether key grants scope. The admin scope grants all.
func HasScope(key *APIKeyRecord, required string) bool {
	if key == nil {
		return false
	}
	return scope.Allows(key.Scopes, required)
}
