package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, user_id, ip, user_agent, created_at, last_seen_at, expires_at,
		active, termination_reason, terminated_at`

func scanSession(row pgx.Row) (*credstore.Session, error) {
	sess := &credstore.Session{}
	var reason string
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.IP, &sess.UserAgent, &sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt,
		&sess.Active, &reason, &sess.TerminatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.TerminationReason = credstore.TerminationReason(reason)
	return sess, nil
}

// CreateSession inserts sess.
func (s *Store) CreateSession(ctx context.Context, sess *credstore.Session) error {
	query := `
		INSERT INTO credkit_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.Exec(ctx, query,
		sess.ID, sess.UserID, sess.IP, sess.UserAgent, sess.CreatedAt, sess.LastSeenAt, sess.ExpiresAt,
		sess.Active, string(sess.TerminationReason), sess.TerminatedAt,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetSession loads one session regardless of state.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*credstore.Session, error) {
	sess, err := scanSession(s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM credkit_sessions WHERE id = $1`, sessionID))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return sess, nil
}

// ListSessions returns the user's live sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*credstore.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM credkit_sessions
		WHERE user_id = $1 AND active AND expires_at > $2
		ORDER BY created_at DESC, id`, userID, s.now())
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	sessions := []*credstore.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return sessions, nil
}

// TouchSession refreshes last_seen_at, or ends the session with reason
// "expiry" when it is past its expiry.
func (s *Store) TouchSession(ctx context.Context, sessionID string, at time.Time) (*credstore.Session, bool, error) {
	sess, err := scanSession(s.db.QueryRow(ctx, `
		UPDATE credkit_sessions SET
			last_seen_at = CASE WHEN expires_at > $2 THEN $2 ELSE last_seen_at END,
			active = expires_at > $2,
			termination_reason = CASE WHEN expires_at > $2 THEN termination_reason ELSE $3 END,
			terminated_at = CASE WHEN expires_at > $2 THEN terminated_at ELSE $2 END
		WHERE id = $1 AND active
		RETURNING `+sessionColumns, sessionID, at, string(credstore.ReasonExpiry)))
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, unavailable(err)
	}
	sess, err = s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

// TerminateSession ends one session.
func (s *Store) TerminateSession(ctx context.Context, sessionID string, reason credstore.TerminationReason, at time.Time) (*credstore.Session, bool, error) {
	if !reason.Valid() {
		return nil, false, fmt.Errorf("invalid termination reason %q", reason)
	}
	sess, err := scanSession(s.db.QueryRow(ctx, `
		UPDATE credkit_sessions
		SET active = FALSE, termination_reason = $2, terminated_at = $3
		WHERE id = $1 AND active
		RETURNING `+sessionColumns, sessionID, string(reason), at))
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, unavailable(err)
	}
	sess, err = s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

// TerminateAllSessions ends every live session of userID except
// exceptSessionID. Sessions already past expiry are closed with reason
// "expiry" and not counted.
func (s *Store) TerminateAllSessions(ctx context.Context, userID string, reason credstore.TerminationReason, exceptSessionID string, at time.Time) (int, error) {
	if !reason.Valid() {
		return 0, fmt.Errorf("invalid termination reason %q", reason)
	}

	var ended int64
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE credkit_sessions
			SET active = FALSE, termination_reason = $3, terminated_at = $4
			WHERE user_id = $1 AND active AND id <> $2 AND expires_at > $4`,
			userID, exceptSessionID, string(reason), at)
		if err != nil {
			return err
		}
		ended = tag.RowsAffected()

		_, err = tx.Exec(ctx, `
			UPDATE credkit_sessions
			SET active = FALSE, termination_reason = $3, terminated_at = $4
			WHERE user_id = $1 AND active AND id <> $2 AND expires_at <= $4`,
			userID, exceptSessionID, string(credstore.ReasonExpiry), at)
		return err
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return int(ended), nil
}
