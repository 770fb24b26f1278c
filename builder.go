package credkit

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/MrEthical07/credkit/credstore/redisstore"
	"github.com/MrEthical07/credkit/delivery"
	"github.com/MrEthical07/credkit/hashing"
	"github.com/MrEthical07/credkit/internal/audit"
	"github.com/MrEthical07/credkit/internal/rate"
	"github.com/MrEthical07/credkit/scope"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CounterStore is the shared atomic-increment store behind rate limiting.
// Increment must create the counter with the given window on first use and
// return the post-increment count and remaining window.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     credstore.Store
	counters  CounterStore
	delivery  delivery.Channel
	auditSink AuditSink
	logger    *zap.Logger
	scopes    []string
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used for the default credential store and
// rate-limit counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore replaces the default Redis credential store, for example with
// pgstore.
func (b *Builder) WithStore(store credstore.Store) *Builder {
	b.store = store
	return b
}

// WithCounterStore replaces the default Redis counter store.
func (b *Builder) WithCounterStore(counters CounterStore) *Builder {
	b.counters = counters
	return b
}

func (b *Builder) WithDelivery(ch delivery.Channel) *Builder {
	b.delivery = ch
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithScopes sets the closed API-key scope vocabulary. Defaults to
// scope.Defaults.
func (b *Builder) WithScopes(names []string) *Builder {
	b.scopes = append([]string(nil), names...)
	return b
}

// WithClock overrides time.Now for expiry and window decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil && b.redis == nil {
		return nil, errors.New("credential store or redis client required")
	}
	if b.counters == nil && b.redis == nil {
		return nil, errors.New("counter store or redis client required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SCOPES --------
	names := b.scopes
	if len(names) == 0 {
		names = scope.Defaults
	}
	scopes, err := scope.FromNames(names)
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	store := b.store
	if store == nil {
		store = redisstore.New(b.redis, redisstore.Options{
			Prefix:           cfg.RedisPrefix,
			SessionRetention: cfg.Session.Retention,
			Now:              now,
		})
	}
	var counters rate.CounterStore = b.counters
	if counters == nil {
		counters = rate.NewRedisCounterStore(b.redis)
	}

	hasher, err := hashing.New(cfg.Hashing)
	if err != nil {
		return nil, err
	}

	ch := b.delivery
	if ch == nil {
		logger.Warn("no delivery channel configured; one-time codes will only be logged (masked)")
		ch = delivery.NewLogChannel(logger)
	}

	engine := &Engine{
		config:     cfg,
		store:      store,
		limiter:    rate.New(counters, cfg.RedisPrefix, now),
		scopes:     scopes,
		hasher:     hasher,
		delivery:   ch,
		logger:     logger.Named("credkit"),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		adminRoles: make(map[string]struct{}, len(cfg.AdminRoles)),
		now:        now,
	}
	for _, role := range cfg.AdminRoles {
		engine.adminRoles[role] = struct{}{}
	}

	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     func() { engine.metrics.Inc(MetricAuditDropped) },
	}, b.auditSink)

	b.built = true
	return engine, nil
}
