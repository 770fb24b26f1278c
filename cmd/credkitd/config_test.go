package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CREDKIT_JWT_SECRET", testSecret)
	t.Setenv("CREDKIT_HTTP_ADDR", ":9999")
	t.Setenv("CREDKIT_REDIS_ADDRS", "r1:6379,r2:6379")
	t.Setenv("CREDKIT_ENGINE_TWO_FACTOR_CODE_TTL", "2m")

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Engine.TwoFactor.CodeTTL)
	assert.Equal(t, 6, cfg.Engine.TwoFactor.Digits)
	assert.Equal(t, []string{"admin"}, cfg.Engine.AdminRoles)
	assert.Equal(t, 15*time.Minute, cfg.JWT.TTL)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
store:
  backend: postgres
postgres:
  dsn: postgres://localhost/credkit
jwt:
  secret: `+testSecret+`
scopes: ["read:things", "write:things"]
engine:
  session:
    ttl: 2h
  rate_limit:
    session_mutation:
      max: 3
      window: 1m
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, []string{"read:things", "write:things"}, cfg.Scopes)
	assert.Equal(t, 2*time.Hour, cfg.Engine.Session.TTL)
	assert.Equal(t, 3, cfg.Engine.RateLimit.SessionMutation.Max)
	assert.Equal(t, time.Minute, cfg.Engine.RateLimit.SessionMutation.Window)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("short secret", func(t *testing.T) {
		t.Setenv("CREDKIT_JWT_SECRET", "short")
		_, err := loadConfig("")
		require.Error(t, err)
	})
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("CREDKIT_JWT_SECRET", testSecret)
		t.Setenv("CREDKIT_STORE_BACKEND", "postgres")
		_, err := loadConfig("")
		require.Error(t, err)
	})
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("CREDKIT_JWT_SECRET", testSecret)
		t.Setenv("CREDKIT_STORE_BACKEND", "etcd")
		_, err := loadConfig("")
		require.Error(t, err)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestNewTokenManagerHS256(t *testing.T) {
	m, err := newTokenManager(jwtConfig{SigningMethod: "hs256", Secret: testSecret, TTL: time.Minute})
	require.NoError(t, err)

	tok, err := m.Issue("u1", "admin")
	require.NoError(t, err)
	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
}

func TestNewLoggerFormats(t *testing.T) {
	assert.NotNil(t, newLogger("debug", "json"))
	assert.NotNil(t, newLogger("bogus", "console"))
}
