package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/redis/go-redis/v9"
)

// Options tunes key naming and retention.
type Options struct {
	// Prefix namespaces every key. Defaults to "ck".
	Prefix string
	// SessionRetention keeps ended or expired session records readable for
	// this long after their expiry. Defaults to 24h.
	SessionRetention time.Duration
	// Now overrides the clock used for expiry decisions.
	Now func() time.Time
}

// Store is a Redis-backed credstore.Store.
type Store struct {
	redis            redis.UniversalClient
	prefix           string
	sessionRetention time.Duration
	now              func() time.Time
}

var _ credstore.Store = (*Store)(nil)

// New creates a [Store] on the given client.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "ck"
	}
	if opts.SessionRetention <= 0 {
		opts.SessionRetention = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		redis:            client,
		prefix:           opts.Prefix,
		sessionRetention: opts.SessionRetention,
		now:              opts.Now,
	}
}

func (s *Store) codeKey(userID string) string {
	return s.prefix + ":otc:" + userID
}

func (s *Store) apiKeyKey(keyID string) string {
	return s.prefix + ":ak:" + keyID
}

func (s *Store) apiKeyIndexKey(userID string) string {
	return s.prefix + ":aku:" + userID
}

func (s *Store) sessionKeyPrefix() string {
	return s.prefix + ":ss:"
}

func (s *Store) sessionKey(sessionID string) string {
	return s.sessionKeyPrefix() + sessionID
}

func (s *Store) sessionIndexPrefix() string {
	return s.prefix + ":ssu:"
}

func (s *Store) sessionIndexKey(userID string) string {
	return s.sessionIndexPrefix() + userID
}

// Ping checks Redis availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", credstore.ErrUnavailable, err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", credstore.ErrUnavailable, err)
}
