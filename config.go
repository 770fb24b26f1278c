package credkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/credkit/hashing"
)

// Config holds every tunable of the Engine. Build clones it; later changes by
// the caller have no effect on a built Engine.
type Config struct {
	TwoFactor   TwoFactorConfig `mapstructure:"two_factor"`
	APIKey      APIKeyConfig    `mapstructure:"api_key"`
	Session     SessionConfig   `mapstructure:"session"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Hashing     hashing.Config  `mapstructure:"hashing"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	AdminRoles  []string        `mapstructure:"admin_roles"`
	RedisPrefix string          `mapstructure:"redis_prefix"`
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls one-time code issuance.
type TwoFactorConfig struct {
	Digits  int           `mapstructure:"digits"`
	CodeTTL time.Duration `mapstructure:"code_ttl"`
	// Retention keeps consumed or expired code records readable after expiry
	// so late verifications report the precise failure. Must be positive:
	// without it a record vanishes at expiry and callers see NotFound.
	Retention time.Duration `mapstructure:"retention"`
	// MaxAttempts deletes a code after this many wrong submissions. 0 disables.
	MaxAttempts int `mapstructure:"max_attempts"`
}

/*
====================================
API KEY CONFIG
====================================
*/

// APIKeyConfig controls API key tokens.
type APIKeyConfig struct {
	TokenPrefix string `mapstructure:"token_prefix"`
	// MaxExpiryDays caps ExpiresInDays; at most MaxAPIKeyExpiryDays.
	MaxExpiryDays int `mapstructure:"max_expiry_days"`
	// TouchOnAuth records LastUsedAt on each successful authentication.
	TouchOnAuth bool `mapstructure:"touch_on_auth"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime.
type SessionConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	Retention time.Duration `mapstructure:"retention"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig lists the rule applied to each guarded action. A rule with
// Max <= 0 is disabled.
type RateLimitConfig struct {
	TwoFactorSend   RateLimitRule `mapstructure:"two_factor_send"`
	TwoFactorVerify RateLimitRule `mapstructure:"two_factor_verify"`
	APIKeyMutation  RateLimitRule `mapstructure:"api_key_mutation"`
	APIKeyAuth      RateLimitRule `mapstructure:"api_key_auth"`
	SessionMutation RateLimitRule `mapstructure:"session_mutation"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async activity-log dispatcher.
type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TwoFactor: TwoFactorConfig{
			Digits:      6,
			CodeTTL:     10 * time.Minute,
			Retention:   10 * time.Minute,
			MaxAttempts: 5,
		},
		APIKey: APIKeyConfig{
			TokenPrefix:   "ck",
			MaxExpiryDays: 365,
			TouchOnAuth:   true,
		},
		Session: SessionConfig{
			TTL:       24 * time.Hour,
			Retention: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			TwoFactorSend:   RateLimitRule{Max: 5, Window: 15 * time.Minute},
			TwoFactorVerify: RateLimitRule{Max: 10, Window: 15 * time.Minute},
			APIKeyMutation:  RateLimitRule{Max: 30, Window: time.Hour},
			APIKeyAuth:      RateLimitRule{Max: 120, Window: time.Minute},
			SessionMutation: RateLimitRule{Max: 30, Window: time.Hour},
		},
		Hashing: hashing.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		AdminRoles:  []string{"admin"},
		RedisPrefix: "ck",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.AdminRoles != nil {
		out.AdminRoles = append([]string(nil), cfg.AdminRoles...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// MaxAPIKeyExpiryDays is the largest accepted APIKey.MaxExpiryDays (100 years).
const MaxAPIKeyExpiryDays = 36500

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Two-factor
	if c.TwoFactor.Digits < 6 || c.TwoFactor.Digits > 10 {
		return errors.New("TwoFactor.Digits must be between 6 and 10")
	}
	if c.TwoFactor.CodeTTL <= 0 {
		return errors.New("TwoFactor.CodeTTL must be > 0")
	}
	if c.TwoFactor.Retention <= 0 {
		return errors.New("TwoFactor.Retention must be > 0")
	}
	if c.TwoFactor.MaxAttempts < 0 {
		return errors.New("TwoFactor.MaxAttempts must be >= 0")
	}

	// API keys
	if c.APIKey.TokenPrefix == "" || !isAlnum(c.APIKey.TokenPrefix) {
		return errors.New("APIKey.TokenPrefix must be non-empty and alphanumeric")
	}
	if c.APIKey.MaxExpiryDays <= 0 || c.APIKey.MaxExpiryDays > MaxAPIKeyExpiryDays {
		return fmt.Errorf("APIKey.MaxExpiryDays must be between 1 and %d", MaxAPIKeyExpiryDays)
	}

	// Sessions
	if c.Session.TTL <= 0 {
		return errors.New("Session.TTL must be > 0")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session.Retention must be >= 0")
	}

	// Rate limits
	rules := map[string]RateLimitRule{
		"TwoFactorSend":   c.RateLimit.TwoFactorSend,
		"TwoFactorVerify": c.RateLimit.TwoFactorVerify,
		"APIKeyMutation":  c.RateLimit.APIKeyMutation,
		"APIKeyAuth":      c.RateLimit.APIKeyAuth,
		"SessionMutation": c.RateLimit.SessionMutation,
	}
	for name, rule := range rules {
		if rule.Max > 0 && rule.Window <= 0 {
			return errors.New("RateLimit." + name + ".Window must be > 0 when Max > 0")
		}
	}

	if err := c.Hashing.Validate(); err != nil {
		return err
	}

	if c.Audit.BufferSize < 0 {
		return errors.New("Audit.BufferSize must be >= 0")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics.EnableLatencyHistograms requires Metrics.Enabled")
	}

	for _, role := range c.AdminRoles {
		if strings.TrimSpace(role) == "" {
			return errors.New("AdminRoles must not contain empty names")
		}
	}

	if c.RedisPrefix == "" || strings.ContainsAny(c.RedisPrefix, " :\t\n") {
		return errors.New("RedisPrefix must be non-empty without spaces or ':'")
	}
	return nil
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
