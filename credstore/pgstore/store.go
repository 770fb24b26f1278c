// Package pgstore implements credstore.Store on PostgreSQL via pgx.
//
// Every mutation is a single conditional UPDATE or a short transaction, so
// concurrent callers observe the same outcomes as with the Redis store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Options tunes the pool and clock.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Now             func() time.Time
}

// Store is a PostgreSQL-backed credstore.Store.
type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var _ credstore.Store = (*Store)(nil)

// New wraps an existing pool.
func New(db *pgxpool.Pool, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{db: db, now: opts.Now}
}

// Open parses dsn, creates a pool and verifies the connection.
func Open(ctx context.Context, dsn string, opts Options) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", credstore.ErrUnavailable, err)
	}
	return New(pool, opts), nil
}

// EnsureSchema creates the credkit tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks database availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", credstore.ErrUnavailable, err)
}

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return credstore.ErrNotFound
	}
	return unavailable(err)
}
