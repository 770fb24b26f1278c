package credkit

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func generateKey(t *testing.T, env *testEnv, ctx context.Context, scopes ...string) *APIKeyRecord {
	t.Helper()

	rec, err := env.engine.GenerateAPIKey(ctx, GenerateAPIKeyRequest{
		Name:   "ci deploy",
		Scopes: scopes,
	})
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	return rec
}

func TestGenerateAPIKeyStoresScopesExactly(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := userCtx("u1")

	rec := generateKey(t, env, ctx, "read:reports")
	if rec.Key == "" || !strings.HasPrefix(rec.Key, "ck_") {
		t.Fatalf("expected plaintext key with prefix, got %q", rec.Key)
	}
	if !reflect.DeepEqual(rec.Scopes, []string{"read:reports"}) {
		t.Fatalf("unexpected scopes %v", rec.Scopes)
	}
	if rec.OwnerID != "u1" || !rec.Active || rec.ExpiresAt != nil {
		t.Fatalf("unexpected record %+v", rec)
	}

	stored, err := env.engine.store.GetAPIKey(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if !reflect.DeepEqual(stored.Scopes, []string{"read:reports"}) {
		t.Fatalf("expected stored scopes [read:reports], got %v", stored.Scopes)
	}
	if strings.Contains(stored.SecretHash, rec.Key) || !strings.HasPrefix(stored.SecretHash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %q", stored.SecretHash)
	}

	keys, err := env.engine.ListAPIKeys(ctx, "")
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != rec.ID {
		t.Fatalf("expected the generated key listed, got %+v", keys)
	}
	if keys[0].Key != "" {
		t.Fatal("listing must never include the plaintext key")
	}
}

func TestGenerateAPIKeyRejectsUnknownScopes(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := userCtx("u1")

	_, err := env.engine.GenerateAPIKey(ctx, GenerateAPIKeyRequest{
		Name:   "bad",
		Scopes: []string{"read:reports", "delete:everything"},
	})
	ce := requireKind(t, err, KindInvalidScope)
	if !reflect.DeepEqual(ce.Details["invalid_scopes"], []string{"delete:everything"}) {
		t.Fatalf("expected invalid_scopes [delete:everything], got %v", ce.Details["invalid_scopes"])
	}

	keys, err := env.engine.ListAPIKeys(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no key stored, got %d", len(keys))
	}
}

func TestGenerateAPIKeyValidation(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := userCtx("u1")
	tooLong := 400
	zero := 0

	tests := []struct {
		name string
		req  GenerateAPIKeyRequest
	}{
		{name: "missing name", req: GenerateAPIKeyRequest{Scopes: []string{"read:reports"}}},
		{name: "blank name", req: GenerateAPIKeyRequest{Name: "   ", Scopes: []string{"read:reports"}}},
		{name: "no scopes", req: GenerateAPIKeyRequest{Name: "k"}},
		{name: "zero days", req: GenerateAPIKeyRequest{Name: "k", Scopes: []string{"read:reports"}, ExpiresInDays: &zero}},
		{name: "beyond max expiry", req: GenerateAPIKeyRequest{Name: "k", Scopes: []string{"read:reports"}, ExpiresInDays: &tooLong}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.GenerateAPIKey(ctx, tt.req)
			requireKind(t, err, KindInvalidInput)
		})
	}
}

func TestGenerateAPIKeyForAnotherOwnerRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	req := GenerateAPIKeyRequest{OwnerID: "u2", Name: "svc", Scopes: []string{"admin"}}

	_, err := env.engine.GenerateAPIKey(userCtx("u1"), req)
	requireKind(t, err, KindForbidden)

	rec, err := env.engine.GenerateAPIKey(adminCtx("root"), req)
	if err != nil {
		t.Fatalf("admin GenerateAPIKey failed: %v", err)
	}
	if rec.OwnerID != "u2" {
		t.Fatalf("expected owner u2, got %s", rec.OwnerID)
	}
}

func TestRotateAPIKeyInvalidatesOldSecret(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := userCtx("u1")
	original := generateKey(t, env, ctx, "read:reports", "write:reports")

	if _, err := env.engine.AuthenticateAPIKey(context.Background(), original.Key); err != nil {
		t.Fatalf("authenticate with original key failed: %v", err)
	}

	env.clock.Advance(time.Hour)
	rotated, err := env.engine.RotateAPIKey(ctx, original.ID)
	if err != nil {
		t.Fatalf("RotateAPIKey failed: %v", err)
	}
	if rotated.Key == "" || rotated.Key == original.Key {
		t.Fatal("expected a new plaintext key")
	}
	if rotated.ID != original.ID || rotated.Name != original.Name || !reflect.DeepEqual(rotated.Scopes, original.Scopes) {
		t.Fatalf("rotation must preserve identity, name and scopes: %+v", rotated)
	}
	if rotated.RotatedAt == nil || !rotated.RotatedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected RotatedAt %v, got %v", env.clock.Now(), rotated.RotatedAt)
	}

	_, err = env.engine.AuthenticateAPIKey(context.Background(), original.Key)
	requireKind(t, err, KindUnauthorized)

	got, err := env.engine.AuthenticateAPIKey(context.Background(), rotated.Key)
	if err != nil {
		t.Fatalf("authenticate with rotated key failed: %v", err)
	}
	if got.ID != original.ID || got.LastUsedAt == nil {
		t.Fatalf("unexpected authenticated record %+v", got)
	}
	if got.Key != "" {
		t.Fatal("authentication must not echo the plaintext key")
	}
}

func TestDeactivateAPIKeyIsIdempotent(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := userCtx("u1")
	rec := generateKey(t, env, ctx, "read:findings")

	first, err := env.engine.DeactivateAPIKey(ctx, rec.ID)
	if err != nil {
		t.Fatalf("DeactivateAPIKey failed: %v", err)
	}
	if first.Active || first.DeactivatedAt == nil {
		t.Fatalf("expected deactivated record, got %+v", first)
	}

	env.clock.Advance(time.Minute)
	second, err := env.engine.DeactivateAPIKey(ctx, rec.ID)
	if err != nil {
		t.Fatalf("second DeactivateAPIKey failed: %v", err)
	}
	if !second.DeactivatedAt.Equal(*first.DeactivatedAt) {
		t.Fatal("repeat deactivation must keep the original timestamp")
	}
	if got := env.engine.metrics.Value(MetricAPIKeyDeactivated); got != 1 {
		t.Fatalf("expected one deactivation counted, got %d", got)
	}

	_, err = env.engine.RotateAPIKey(ctx, rec.ID)
	requireKind(t, err, KindAlreadyDeactivated)

	_, err = env.engine.AuthenticateAPIKey(context.Background(), rec.Key)
	requireKind(t, err, KindUnauthorized)
}

func TestConcurrentDeactivationCountedOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	sink := newCaptureSink(64)
	env := newTestEnv(t, cfg, sink)
	ctx := userCtx("u1")
	rec := generateKey(t, env, ctx, "read:findings")

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := env.engine.DeactivateAPIKey(ctx, rec.ID); err != nil {
				t.Errorf("DeactivateAPIKey failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := env.engine.metrics.Value(MetricAPIKeyDeactivated); got != 1 {
		t.Fatalf("expected one deactivation counted, got %d", got)
	}
	deactivations := 0
	for _, ev := range sink.collect(workers+1, 200*time.Millisecond) {
		if ev.Action == auditActionAPIKeyDeactivated && ev.Success {
			deactivations++
		}
	}
	if deactivations != 1 {
		t.Fatalf("expected one deactivation event, got %d", deactivations)
	}
}

func TestGenerateAPIKeyExpiryCap(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey.MaxExpiryDays = MaxAPIKeyExpiryDays
	env := newTestEnv(t, cfg, nil)
	ctx := userCtx("u1")

	days := MaxAPIKeyExpiryDays
	rec, err := env.engine.GenerateAPIKey(ctx, GenerateAPIKeyRequest{Name: "long", Scopes: []string{"read:reports"}, ExpiresInDays: &days})
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if rec.ExpiresAt == nil || !rec.ExpiresAt.After(env.clock.Now()) {
		t.Fatalf("expected expiry in the future, got %v", rec.ExpiresAt)
	}

	over := MaxAPIKeyExpiryDays + 1
	_, err = env.engine.GenerateAPIKey(ctx, GenerateAPIKeyRequest{Name: "too long", Scopes: []string{"read:reports"}, ExpiresInDays: &over})
	requireKind(t, err, KindInvalidInput)
}

func TestAPIKeyMutationsOnMissingKey(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := userCtx("u1")
	missing := uuid.NewString()

	_, err := env.engine.DeactivateAPIKey(ctx, missing)
	requireKind(t, err, KindNotFound)

	_, err = env.engine.RotateAPIKey(ctx, missing)
	requireKind(t, err, KindNotFound)
}

func TestAPIKeyOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rec := generateKey(t, env, userCtx("u1"), "read:reports")

	_, err := env.engine.DeactivateAPIKey(userCtx("u2"), rec.ID)
	requireKind(t, err, KindForbidden)
	_, err = env.engine.RotateAPIKey(userCtx("u2"), rec.ID)
	requireKind(t, err, KindForbidden)
	_, err = env.engine.ListAPIKeys(userCtx("u2"), "u1")
	requireKind(t, err, KindForbidden)

	if _, err := env.engine.DeactivateAPIKey(adminCtx("root"), rec.ID); err != nil {
		t.Fatalf("admin deactivate failed: %v", err)
	}
}

func TestAPIKeyExpiry(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	days := 1

	rec, err := env.engine.GenerateAPIKey(userCtx("u1"), GenerateAPIKeyRequest{
		Name:          "short",
		Scopes:        []string{"read:users"},
		ExpiresInDays: &days,
	})
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if want := env.clock.Now().Add(24 * time.Hour); rec.ExpiresAt == nil || !rec.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, rec.ExpiresAt)
	}

	env.clock.Advance(25 * time.Hour)
	_, err = env.engine.AuthenticateAPIKey(context.Background(), rec.Key)
	requireKind(t, err, KindExpired)
}

func TestAuthenticateAPIKeyRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rec := generateKey(t, env, userCtx("u1"), "read:reports")

	for _, token := range []string{
		"",
		"ck_nothex_secret",
		"other" + strings.TrimPrefix(rec.Key, "ck"),
		rec.Key[:len(rec.Key)-2] + "AA",
	} {
		_, err := env.engine.AuthenticateAPIKey(context.Background(), token)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestListAPIKeysNewestFirst(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	ctx := userCtx("u1")

	a := generateKey(t, env, ctx, "read:reports")
	env.clock.Advance(time.Second)
	b := generateKey(t, env, ctx, "write:reports")

	keys, err := env.engine.ListAPIKeys(ctx, "u1")
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 2 || keys[0].ID != b.ID || keys[1].ID != a.ID {
		t.Fatalf("expected newest first, got %+v", keys)
	}
}

func TestHasScope(t *testing.T) {
	key := &APIKeyRecord{Scopes: []string{"read:reports"}}
	if !HasScope(key, "read:reports") || HasScope(key, "write:reports") {
		t.Fatal("unexpected scope check")
	}
	if !HasScope(&APIKeyRecord{Scopes: []string{"admin"}}, "write:users") {
		t.Fatal("admin scope should grant everything")
	}
	if HasScope(nil, "read:reports") {
		t.Fatal("nil key grants nothing")
	}
}
