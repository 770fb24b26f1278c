package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/credkit"
	"github.com/spf13/viper"
)

type config struct {
	Environment string         `mapstructure:"environment"`
	HTTP        httpConfig     `mapstructure:"http"`
	Logging     loggingConfig  `mapstructure:"logging"`
	Store       storeConfig    `mapstructure:"store"`
	Redis       redisConfig    `mapstructure:"redis"`
	Postgres    postgresConfig `mapstructure:"postgres"`
	Kafka       kafkaConfig    `mapstructure:"kafka"`
	JWT         jwtConfig      `mapstructure:"jwt"`
	Scopes      []string       `mapstructure:"scopes"`
	Engine      credkit.Config `mapstructure:"engine"`
}

type httpConfig struct {
	Addr            string        `mapstructure:"addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type loggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type storeConfig struct {
	// Backend is "redis" or "postgres". Rate-limit counters always live in
	// Redis.
	Backend string `mapstructure:"backend"`
}

type redisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

type postgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ApplySchema     bool          `mapstructure:"apply_schema"`
}

type kafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	AuditTopic   string        `mapstructure:"audit_topic"`
	CodeTopic    string        `mapstructure:"code_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type jwtConfig struct {
	SigningMethod  string        `mapstructure:"signing_method"`
	Secret         string        `mapstructure:"secret"`
	PublicKeyFile  string        `mapstructure:"public_key_file"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	TTL            time.Duration `mapstructure:"ttl"`
	Leeway         time.Duration `mapstructure:"leeway"`
}

// loadConfig reads defaults, then an optional YAML file, then CREDKIT_*
// environment variables. path may be empty.
func loadConfig(path string) (*config, error) {
	v := viper.New()
	setDefaults(v)

	env := strings.ToLower(os.Getenv("CREDKIT_ENVIRONMENT"))
	if env == "" {
		env = "development"
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("credkit." + env)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/credkit")
	}

	v.SetEnvPrefix("CREDKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := config{Engine: credkit.DefaultConfig()}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics_addr", ":9090")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("store.backend", "redis")
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.apply_schema", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.audit_topic", "credkit.audit")
	v.SetDefault("kafka.code_topic", "credkit.notifications")
	v.SetDefault("kafka.write_timeout", 10*time.Second)

	v.SetDefault("jwt.signing_method", "hs256")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "credkit")
	v.SetDefault("jwt.ttl", 15*time.Minute)
	v.SetDefault("jwt.leeway", 30*time.Second)

	// Engine keys get defaults so CREDKIT_ENGINE_* overrides are picked up.
	def := credkit.DefaultConfig()
	v.SetDefault("engine.two_factor.digits", def.TwoFactor.Digits)
	v.SetDefault("engine.two_factor.code_ttl", def.TwoFactor.CodeTTL)
	v.SetDefault("engine.two_factor.max_attempts", def.TwoFactor.MaxAttempts)
	v.SetDefault("engine.two_factor.retention", def.TwoFactor.Retention)
	v.SetDefault("engine.api_key.max_expiry_days", def.APIKey.MaxExpiryDays)
	v.SetDefault("engine.session.ttl", def.Session.TTL)
	v.SetDefault("engine.rate_limit.two_factor_send.max", def.RateLimit.TwoFactorSend.Max)
	v.SetDefault("engine.rate_limit.two_factor_send.window", def.RateLimit.TwoFactorSend.Window)
	v.SetDefault("engine.rate_limit.api_key_auth.max", def.RateLimit.APIKeyAuth.Max)
	v.SetDefault("engine.rate_limit.api_key_auth.window", def.RateLimit.APIKeyAuth.Window)
	v.SetDefault("engine.metrics.enable_latency_histograms", true)
	v.SetDefault("engine.redis_prefix", def.RedisPrefix)
}

func (c *config) validate() error {
	switch c.Store.Backend {
	case "redis":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if len(c.Redis.Addrs) == 0 {
		return errors.New("redis.addrs is required for rate limiting")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("jwt.secret must be at least 32 bytes")
		}
	case "ed25519":
		if c.JWT.PublicKeyFile == "" {
			return errors.New("jwt.public_key_file is required for ed25519")
		}
	default:
		return fmt.Errorf("unknown jwt.signing_method %q", c.JWT.SigningMethod)
	}
	return c.Engine.Validate()
}
