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
	sessionStatusNotFound  int64 = 0
	sessionStatusChanged   int64 = 1
	sessionStatusUnchanged int64 = 2
)

// Touch refreshes last_seen_at of a live session. A session found past its
// expiry is ended with reason "expiry" in the same step.
const touchSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local status = 2
if redis.call("HGET", KEYS[1], "active") == "1" then
  local expires_at = tonumber(redis.call("HGET", KEYS[1], "expires_at") or "0")
  local now = tonumber(ARGV[1])
  if expires_at <= now then
    redis.call("HSET", KEYS[1], "active", "0", "reason", "expiry", "terminated_at", ARGV[1])
    local user_id = redis.call("HGET", KEYS[1], "user_id")
    redis.call("ZREM", ARGV[2] .. user_id, ARGV[3])
    status = 1
  else
    redis.call("HSET", KEYS[1], "last_seen_at", ARGV[1])
    status = 1
  end
end
local out = {status}
local fields = redis.call("HGETALL", KEYS[1])
for i = 1, #fields do
  out[#out + 1] = fields[i]
end
return out
`

var touchSessionLua = redis.NewScript(touchSessionScript)

const terminateSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local status = 2
if redis.call("HGET", KEYS[1], "active") == "1" then
  redis.call("HSET", KEYS[1], "active", "0", "reason", ARGV[1], "terminated_at", ARGV[2])
  local user_id = redis.call("HGET", KEYS[1], "user_id")
  redis.call("ZREM", ARGV[3] .. user_id, ARGV[4])
  status = 1
end
local out = {status}
local fields = redis.call("HGETALL", KEYS[1])
for i = 1, #fields do
  out[#out + 1] = fields[i]
end
return out
`

var terminateSessionLua = redis.NewScript(terminateSessionScript)

const terminateAllScript = `
local index_key = KEYS[1]
local session_prefix = ARGV[1]
local except_id = ARGV[2]
local reason = ARGV[3]
local now = ARGV[4]
local now_ms = tonumber(now)

local ids = redis.call("ZRANGE", index_key, 0, -1)
local ended = 0
for _, id in ipairs(ids) do
  local key = session_prefix .. id
  if id ~= except_id then
    if redis.call("EXISTS", key) == 0 then
      redis.call("ZREM", index_key, id)
    elseif redis.call("HGET", key, "active") == "1" then
      local expires_at = tonumber(redis.call("HGET", key, "expires_at") or "0")
      if expires_at <= now_ms then
        redis.call("HSET", key, "active", "0", "reason", "expiry", "terminated_at", now)
      else
        redis.call("HSET", key, "active", "0", "reason", reason, "terminated_at", now)
        ended = ended + 1
      end
      redis.call("ZREM", index_key, id)
    else
      redis.call("ZREM", index_key, id)
    end
  end
end
return ended
`

var terminateAllLua = redis.NewScript(terminateAllScript)

// CreateSession stores sess and indexes it under its owner. The record
// outlives its expiry by the configured retention.
func (s *Store) CreateSession(ctx context.Context, sess *credstore.Session) error {
	key := s.sessionKey(sess.ID)
	ttl := sess.ExpiresAt.Sub(s.now()) + s.sessionRetention
	if ttl <= 0 {
		ttl = time.Second
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeSession(sess))
		pipe.PExpire(ctx, key, ttl)
		if sess.Active {
			pipe.ZAdd(ctx, s.sessionIndexKey(sess.UserID), redis.Z{
				Score:  float64(sess.CreatedAt.UnixMilli()),
				Member: sess.ID,
			})
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetSession loads one session regardless of state.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*credstore.Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, credstore.ErrNotFound
	}
	return decodeSession(fields)
}

// ListSessions returns the user's live sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*credstore.Session, error) {
	indexKey := s.sessionIndexKey(userID)
	ids, err := s.redis.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return []*credstore.Session{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.sessionKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	now := s.now()
	sessions := make([]*credstore.Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := decodeSession(fields)
		if err != nil {
			return nil, err
		}
		if !sess.Active {
			stale = append(stale, ids[i])
			continue
		}
		if !sess.ExpiresAt.After(now) {
			continue
		}
		sessions = append(sessions, sess)
	}
	if len(stale) > 0 {
		_ = s.redis.ZRem(ctx, indexKey, stale...).Err()
	}
	return sessions, nil
}

// TouchSession records activity at time at.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) (*credstore.Session, bool, error) {
	res, err := touchSessionLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID)},
		msString(at), s.sessionIndexPrefix(), sessionID,
	).Result()
	if err != nil {
		return nil, false, unavailable(err)
	}
	return sessionFromReply(res)
}

// TerminateSession ends one session.
func (s *Store) TerminateSession(ctx context.Context, sessionID string, reason credstore.TerminationReason, at time.Time) (*credstore.Session, bool, error) {
	if !reason.Valid() {
		return nil, false, fmt.Errorf("invalid termination reason %q", reason)
	}
	res, err := terminateSessionLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID)},
		string(reason), msString(at), s.sessionIndexPrefix(), sessionID,
	).Result()
	if err != nil {
		return nil, false, unavailable(err)
	}
	return sessionFromReply(res)
}

// TerminateAllSessions ends every live session of userID except
// exceptSessionID in a single script.
func (s *Store) TerminateAllSessions(ctx context.Context, userID string, reason credstore.TerminationReason, exceptSessionID string, at time.Time) (int, error) {
	if !reason.Valid() {
		return 0, fmt.Errorf("invalid termination reason %q", reason)
	}
	n, err := terminateAllLua.Run(ctx, s.redis,
		[]string{s.sessionIndexKey(userID)},
		s.sessionKeyPrefix(), exceptSessionID, string(reason), msString(at),
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func sessionFromReply(res interface{}) (*credstore.Session, bool, error) {
	status, rest, err := scriptStatus(res)
	if err != nil {
		return nil, false, err
	}
	if status == sessionStatusNotFound {
		return nil, false, credstore.ErrNotFound
	}
	fields, err := flatToMap(rest)
	if err != nil {
		return nil, false, err
	}
	sess, err := decodeSession(fields)
	if err != nil {
		return nil, false, err
	}
	return sess, status == sessionStatusChanged, nil
}
