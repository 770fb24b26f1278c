// Command credkitd serves the credkit engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/credkit"
	"github.com/MrEthical07/credkit/credstore/pgstore"
	"github.com/MrEthical07/credkit/delivery"
	"github.com/MrEthical07/credkit/internal/httpapi"
	"github.com/MrEthical07/credkit/jwt"
	"github.com/MrEthical07/credkit/kafkabridge"
	promexport "github.com/MrEthical07/credkit/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("credkitd stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config, logger *zap.Logger) error {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	builder := credkit.New().
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithLogger(logger).
		WithScopes(cfg.Scopes)

	if cfg.Store.Backend == "postgres" {
		store, err := pgstore.Open(ctx, cfg.Postgres.DSN, pgstore.Options{
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		if cfg.Postgres.ApplySchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		builder = builder.WithStore(store)
		logger.Info("using postgres credential store")
	}

	if cfg.Kafka.Enabled {
		writer := kafkabridge.NewWriter(cfg.Kafka.Brokers)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("kafka writer close failed", zap.Error(err))
			}
		}()
		opts := []kafkabridge.Option{kafkabridge.WithWriteTimeout(cfg.Kafka.WriteTimeout)}
		builder = builder.
			WithAuditSink(kafkabridge.NewAuditSink(writer, cfg.Kafka.AuditTopic, logger, opts...)).
			WithDelivery(kafkabridge.NewCodeChannel(writer, cfg.Kafka.CodeTopic, opts...))
		logger.Info("kafka bridge enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		builder = builder.
			WithAuditSink(credkit.NewZapAuditSink(logger.Named("audit"))).
			WithDelivery(delivery.NewLogChannel(logger.Named("delivery")))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	tokens, err := newTokenManager(cfg.JWT)
	if err != nil {
		return fmt.Errorf("jwt manager: %w", err)
	}

	metricsHandler, err := promexport.Handler(engine)
	if err != nil {
		return fmt.Errorf("metrics handler: %w", err)
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)

	servers := []*http.Server{
		{
			Addr:         cfg.HTTP.Addr,
			Handler:      httpapi.New(engine, tokens, logger).Handler(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
		{
			Addr:        cfg.HTTP.MetricsAddr,
			Handler:     metricsMux,
			ReadTimeout: cfg.HTTP.ReadTimeout,
		},
	}

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errs:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown failed", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	return nil
}

func newTokenManager(cfg jwtConfig) (*jwt.Manager, error) {
	jc := jwt.Config{
		TTL:      cfg.TTL,
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Leeway:   cfg.Leeway,
	}
	switch cfg.SigningMethod {
	case "ed25519":
		jc.SigningMethod = jwt.MethodEd25519
		pub, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		jc.PublicKey = pub
		if cfg.PrivateKeyFile != "" {
			priv, err := os.ReadFile(cfg.PrivateKeyFile)
			if err != nil {
				return nil, err
			}
			jc.PrivateKey = priv
		}
	default:
		jc.SigningMethod = jwt.MethodHS256
		jc.PrivateKey = []byte(cfg.Secret)
	}
	return jwt.NewManager(jc)
}
