package redisstore

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/redis/go-redis/v9"
)

const (
	codeStatusNotFound int64 = 0
	codeStatusConsumed int64 = 1
	codeStatusOK       int64 = 2
)

const consumeCodeScript = `
local current = redis.call("HGET", KEYS[1], "code_id")
if not current or current ~= ARGV[1] then
  return 0
end
local consumed = tonumber(redis.call("HGET", KEYS[1], "consumed_at") or "0")
if consumed > 0 then
  return 1
end
redis.call("HSET", KEYS[1], "consumed_at", ARGV[2])
return 2
`

var consumeCodeLua = redis.NewScript(consumeCodeScript)

const recordFailureScript = `
local current = redis.call("HGET", KEYS[1], "code_id")
if not current or current ~= ARGV[1] then
  return -1
end
local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
local max = tonumber(ARGV[2])
if max > 0 and attempts >= max then
  redis.call("DEL", KEYS[1])
end
return attempts
`

var recordFailureLua = redis.NewScript(recordFailureScript)

const deleteCodeScript = `
local current = redis.call("HGET", KEYS[1], "code_id")
if current and current == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var deleteCodeLua = redis.NewScript(deleteCodeScript)

// IssueCode replaces any outstanding code for the user in one transaction.
func (s *Store) IssueCode(ctx context.Context, code *credstore.OneTimeCode, retention time.Duration) error {
	key := s.codeKey(code.UserID)
	ttl := code.ExpiresAt.Sub(code.CreatedAt) + retention
	if ttl <= 0 {
		ttl = time.Second
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"user_id", code.UserID,
			"code_id", code.CodeID,
			"code_hash", hex.EncodeToString(code.CodeHash[:]),
			"created_at", msString(code.CreatedAt),
			"expires_at", msString(code.ExpiresAt),
			"consumed_at", msPtrString(code.ConsumedAt),
			"attempts", code.Attempts,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetCode returns the user's current code.
func (s *Store) GetCode(ctx context.Context, userID string) (*credstore.OneTimeCode, error) {
	fields, err := s.redis.HGetAll(ctx, s.codeKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, credstore.ErrNotFound
	}
	return decodeCode(fields)
}

// ConsumeCode marks codeID consumed if it is still the user's current code.
func (s *Store) ConsumeCode(ctx context.Context, userID, codeID string, at time.Time) error {
	status, err := consumeCodeLua.Run(ctx, s.redis, []string{s.codeKey(userID)}, codeID, msString(at)).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch status {
	case codeStatusOK:
		return nil
	case codeStatusConsumed:
		return credstore.ErrAlreadyConsumed
	default:
		return credstore.ErrNotFound
	}
}

// RecordCodeFailure increments the attempt counter of codeID.
func (s *Store) RecordCodeFailure(ctx context.Context, userID, codeID string, maxAttempts int) (int, error) {
	n, err := recordFailureLua.Run(ctx, s.redis, []string{s.codeKey(userID)}, codeID, maxAttempts).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	if n < 0 {
		return 0, credstore.ErrNotFound
	}
	return int(n), nil
}

// DeleteCode removes codeID if it is still current. Deleting a superseded
// code is a no-op.
func (s *Store) DeleteCode(ctx context.Context, userID, codeID string) error {
	if err := deleteCodeLua.Run(ctx, s.redis, []string{s.codeKey(userID)}, codeID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}
	return nil
}
