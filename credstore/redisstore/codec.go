package redisstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/credkit/credstore"
)

func msString(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func msPtrString(t *time.Time) string {
	if t == nil {
		return "0"
	}
	return msString(*t)
}

func parseMs(v string) (time.Time, error) {
	if v == "" || v == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func parseMsPtr(v string) (*time.Time, error) {
	t, err := parseMs(v)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// flatToMap converts a Lua HGETALL reply (after any leading status element)
// into a field map.
func flatToMap(values []interface{}) (map[string]string, error) {
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("%w: odd field count", credstore.ErrCorrupt)
	}
	out := make(map[string]string, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		k, ok1 := values[i].(string)
		v, ok2 := values[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: non-string field", credstore.ErrCorrupt)
		}
		out[k] = v
	}
	return out, nil
}

// scriptStatus splits a {status, field, value, ...} script reply.
func scriptStatus(res interface{}) (int64, []interface{}, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) == 0 {
		return 0, nil, fmt.Errorf("%w: unexpected script reply", credstore.ErrUnavailable)
	}
	status, ok := values[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("%w: unexpected script status", credstore.ErrUnavailable)
	}
	return status, values[1:], nil
}

func decodeCode(fields map[string]string) (*credstore.OneTimeCode, error) {
	code := &credstore.OneTimeCode{
		UserID: fields["user_id"],
		CodeID: fields["code_id"],
	}

	raw, err := hex.DecodeString(fields["code_hash"])
	if err != nil || len(raw) != len(code.CodeHash) {
		return nil, fmt.Errorf("%w: code hash", credstore.ErrCorrupt)
	}
	copy(code.CodeHash[:], raw)

	if code.CreatedAt, err = parseMs(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("%w: created_at", credstore.ErrCorrupt)
	}
	if code.ExpiresAt, err = parseMs(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("%w: expires_at", credstore.ErrCorrupt)
	}
	if code.ConsumedAt, err = parseMsPtr(fields["consumed_at"]); err != nil {
		return nil, fmt.Errorf("%w: consumed_at", credstore.ErrCorrupt)
	}
	if v := fields["attempts"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: attempts", credstore.ErrCorrupt)
		}
		code.Attempts = n
	}
	return code, nil
}

func encodeAPIKey(key *credstore.APIKey) (map[string]interface{}, error) {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":             key.ID,
		"user_id":        key.UserID,
		"name":           key.Name,
		"secret_hash":    key.SecretHash,
		"scopes":         string(scopes),
		"expires_at":     msPtrString(key.ExpiresAt),
		"active":         boolString(key.Active),
		"created_at":     msString(key.CreatedAt),
		"rotated_at":     msPtrString(key.RotatedAt),
		"deactivated_at": msPtrString(key.DeactivatedAt),
		"last_used_at":   msPtrString(key.LastUsedAt),
	}, nil
}

func decodeAPIKey(fields map[string]string) (*credstore.APIKey, error) {
	key := &credstore.APIKey{
		ID:         fields["id"],
		UserID:     fields["user_id"],
		Name:       fields["name"],
		SecretHash: fields["secret_hash"],
		Active:     fields["active"] == "1",
	}
	if key.ID == "" || key.UserID == "" {
		return nil, fmt.Errorf("%w: api key identity", credstore.ErrCorrupt)
	}
	if err := json.Unmarshal([]byte(fields["scopes"]), &key.Scopes); err != nil {
		return nil, fmt.Errorf("%w: scopes", credstore.ErrCorrupt)
	}

	var err error
	if key.CreatedAt, err = parseMs(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("%w: created_at", credstore.ErrCorrupt)
	}
	if key.ExpiresAt, err = parseMsPtr(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("%w: expires_at", credstore.ErrCorrupt)
	}
	if key.RotatedAt, err = parseMsPtr(fields["rotated_at"]); err != nil {
		return nil, fmt.Errorf("%w: rotated_at", credstore.ErrCorrupt)
	}
	if key.DeactivatedAt, err = parseMsPtr(fields["deactivated_at"]); err != nil {
		return nil, fmt.Errorf("%w: deactivated_at", credstore.ErrCorrupt)
	}
	if key.LastUsedAt, err = parseMsPtr(fields["last_used_at"]); err != nil {
		return nil, fmt.Errorf("%w: last_used_at", credstore.ErrCorrupt)
	}
	return key, nil
}

func encodeSession(sess *credstore.Session) map[string]interface{} {
	return map[string]interface{}{
		"id":            sess.ID,
		"user_id":       sess.UserID,
		"ip":            sess.IP,
		"user_agent":    sess.UserAgent,
		"created_at":    msString(sess.CreatedAt),
		"last_seen_at":  msString(sess.LastSeenAt),
		"expires_at":    msString(sess.ExpiresAt),
		"active":        boolString(sess.Active),
		"reason":        string(sess.TerminationReason),
		"terminated_at": msPtrString(sess.TerminatedAt),
	}
}

func decodeSession(fields map[string]string) (*credstore.Session, error) {
	sess := &credstore.Session{
		ID:                fields["id"],
		UserID:            fields["user_id"],
		IP:                fields["ip"],
		UserAgent:         fields["user_agent"],
		Active:            fields["active"] == "1",
		TerminationReason: credstore.TerminationReason(fields["reason"]),
	}
	if sess.ID == "" || sess.UserID == "" {
		return nil, fmt.Errorf("%w: session identity", credstore.ErrCorrupt)
	}

	var err error
	if sess.CreatedAt, err = parseMs(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("%w: created_at", credstore.ErrCorrupt)
	}
	if sess.LastSeenAt, err = parseMs(fields["last_seen_at"]); err != nil {
		return nil, fmt.Errorf("%w: last_seen_at", credstore.ErrCorrupt)
	}
	if sess.ExpiresAt, err = parseMs(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("%w: expires_at", credstore.ErrCorrupt)
	}
	if sess.TerminatedAt, err = parseMsPtr(fields["terminated_at"]); err != nil {
		return nil, fmt.Errorf("%w: terminated_at", credstore.ErrCorrupt)
	}
	return sess, nil
}
