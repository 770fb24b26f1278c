package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/redis/go-redis/v9"
)

const (
	keyStatusNotFound    int64 = 0
	keyStatusOK          int64 = 1
	keyStatusDeactivated int64 = 2
	keyStatusUnchanged   int64 = 3
)

const deactivateKeyScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local status = 3
if redis.call("HGET", KEYS[1], "active") == "1" then
  redis.call("HSET", KEYS[1], "active", "0", "deactivated_at", ARGV[1])
  status = 1
end
local out = {status}
local fields = redis.call("HGETALL", KEYS[1])
for i = 1, #fields do
  out[#out + 1] = fields[i]
end
return out
`

var deactivateKeyLua = redis.NewScript(deactivateKeyScript)

const rotateKeyScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
if redis.call("HGET", KEYS[1], "active") ~= "1" then
  return {2}
end
redis.call("HSET", KEYS[1], "secret_hash", ARGV[1], "rotated_at", ARGV[2])
local out = {1}
local fields = redis.call("HGETALL", KEYS[1])
for i = 1, #fields do
  out[#out + 1] = fields[i]
end
return out
`

var rotateKeyLua = redis.NewScript(rotateKeyScript)

const touchKeyScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "last_used_at", ARGV[1])
return 1
`

var touchKeyLua = redis.NewScript(touchKeyScript)

// CreateAPIKey stores key and indexes it under its owner.
func (s *Store) CreateAPIKey(ctx context.Context, key *credstore.APIKey) error {
	fields, err := encodeAPIKey(key)
	if err != nil {
		return fmt.Errorf("%w: %v", credstore.ErrCorrupt, err)
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.apiKeyKey(key.ID), fields)
		pipe.ZAdd(ctx, s.apiKeyIndexKey(key.UserID), redis.Z{
			Score:  float64(key.CreatedAt.UnixMilli()),
			Member: key.ID,
		})
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetAPIKey loads one key.
func (s *Store) GetAPIKey(ctx context.Context, keyID string) (*credstore.APIKey, error) {
	fields, err := s.redis.HGetAll(ctx, s.apiKeyKey(keyID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, credstore.ErrNotFound
	}
	return decodeAPIKey(fields)
}

// ListAPIKeys returns the user's keys, newest first. Index entries whose
// record is gone are pruned.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*credstore.APIKey, error) {
	indexKey := s.apiKeyIndexKey(userID)
	ids, err := s.redis.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return []*credstore.APIKey{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.apiKeyKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	keys := make([]*credstore.APIKey, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		key, err := decodeAPIKey(fields)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(stale) > 0 {
		_ = s.redis.ZRem(ctx, indexKey, stale...).Err()
	}
	return keys, nil
}

// DeactivateAPIKey turns the key off. Repeated calls keep the first
// deactivation time.
func (s *Store) DeactivateAPIKey(ctx context.Context, keyID string, at time.Time) (*credstore.APIKey, bool, error) {
	res, err := deactivateKeyLua.Run(ctx, s.redis, []string{s.apiKeyKey(keyID)}, msString(at)).Result()
	if err != nil {
		return nil, false, unavailable(err)
	}
	return s.keyFromReply(res)
}

// RotateAPIKey swaps the stored secret hash of an active key.
func (s *Store) RotateAPIKey(ctx context.Context, keyID, secretHash string, at time.Time) (*credstore.APIKey, error) {
	res, err := rotateKeyLua.Run(ctx, s.redis, []string{s.apiKeyKey(keyID)}, secretHash, msString(at)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	key, _, err := s.keyFromReply(res)
	return key, err
}

// TouchAPIKey records a successful authentication.
func (s *Store) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	n, err := touchKeyLua.Run(ctx, s.redis, []string{s.apiKeyKey(keyID)}, msString(at)).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return credstore.ErrNotFound
	}
	return nil
}

// keyFromReply decodes {status, field, value, ...}. changed reports whether
// the script modified the key.
func (s *Store) keyFromReply(res interface{}) (*credstore.APIKey, bool, error) {
	status, rest, err := scriptStatus(res)
	if err != nil {
		return nil, false, err
	}
	switch status {
	case keyStatusNotFound:
		return nil, false, credstore.ErrNotFound
	case keyStatusDeactivated:
		return nil, false, credstore.ErrDeactivated
	}
	fields, err := flatToMap(rest)
	if err != nil {
		return nil, false, err
	}
	key, err := decodeAPIKey(fields)
	if err != nil {
		return nil, false, err
	}
	return key, status == keyStatusOK, nil
}
