package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/jackc/pgx/v5"
)

// IssueCode upserts the user's single code row.
func (s *Store) IssueCode(ctx context.Context, code *credstore.OneTimeCode, retention time.Duration) error {
	query := `
		INSERT INTO credkit_one_time_codes (
			user_id, code_id, code_hash, created_at, expires_at, retain_until, consumed_at, attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			code_id = EXCLUDED.code_id,
			code_hash = EXCLUDED.code_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			retain_until = EXCLUDED.retain_until,
			consumed_at = EXCLUDED.consumed_at,
			attempts = EXCLUDED.attempts`
	_, err := s.db.Exec(ctx, query,
		code.UserID, code.CodeID, code.CodeHash[:], code.CreatedAt, code.ExpiresAt,
		code.ExpiresAt.Add(retention), code.ConsumedAt, code.Attempts,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// GetCode returns the user's code while it is within retention.
func (s *Store) GetCode(ctx context.Context, userID string) (*credstore.OneTimeCode, error) {
	query := `
		SELECT user_id, code_id, code_hash, created_at, expires_at, consumed_at, attempts
		FROM credkit_one_time_codes
		WHERE user_id = $1 AND retain_until > $2`

	var (
		code credstore.OneTimeCode
		hash []byte
	)
	err := s.db.QueryRow(ctx, query, userID, s.now()).Scan(
		&code.UserID, &code.CodeID, &hash, &code.CreatedAt, &code.ExpiresAt, &code.ConsumedAt, &code.Attempts,
	)
	if err != nil {
		return nil, notFoundOr(err)
	}
	if len(hash) != len(code.CodeHash) {
		return nil, fmt.Errorf("%w: code hash", credstore.ErrCorrupt)
	}
	copy(code.CodeHash[:], hash)
	return &code, nil
}

// ConsumeCode sets consumed_at on the current, unconsumed code.
func (s *Store) ConsumeCode(ctx context.Context, userID, codeID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE credkit_one_time_codes SET consumed_at = $3
		WHERE user_id = $1 AND code_id = $2 AND consumed_at IS NULL AND retain_until > $3`,
		userID, codeID, at,
	)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var consumedAt *time.Time
	err = s.db.QueryRow(ctx, `
		SELECT consumed_at FROM credkit_one_time_codes
		WHERE user_id = $1 AND code_id = $2 AND retain_until > $3`,
		userID, codeID, at,
	).Scan(&consumedAt)
	if err != nil {
		return notFoundOr(err)
	}
	if consumedAt != nil {
		return credstore.ErrAlreadyConsumed
	}
	return credstore.ErrNotFound
}

// RecordCodeFailure increments attempts and drops the row at the limit.
func (s *Store) RecordCodeFailure(ctx context.Context, userID, codeID string, maxAttempts int) (int, error) {
	var attempts int
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE credkit_one_time_codes SET attempts = attempts + 1
			WHERE user_id = $1 AND code_id = $2
			RETURNING attempts`,
			userID, codeID,
		).Scan(&attempts)
		if err != nil {
			return err
		}
		if maxAttempts > 0 && attempts >= maxAttempts {
			_, err = tx.Exec(ctx, `DELETE FROM credkit_one_time_codes WHERE user_id = $1 AND code_id = $2`, userID, codeID)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, credstore.ErrNotFound
		}
		return 0, unavailable(err)
	}
	return attempts, nil
}

// DeleteCode removes codeID if it is still current.
func (s *Store) DeleteCode(ctx context.Context, userID, codeID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM credkit_one_time_codes WHERE user_id = $1 AND code_id = $2`, userID, codeID); err != nil {
		return unavailable(err)
	}
	return nil
}
