package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credkit/credstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const apiKeyColumns = `id, user_id, name, secret_hash, scopes, expires_at, active,
		created_at, rotated_at, deactivated_at, last_used_at`

// ErrDuplicate is returned when inserting a record whose id already exists.
var ErrDuplicate = errors.New("credential record already exists")

func scanAPIKey(row pgx.Row) (*credstore.APIKey, error) {
	key := &credstore.APIKey{}
	err := row.Scan(
		&key.ID, &key.UserID, &key.Name, &key.SecretHash, &key.Scopes, &key.ExpiresAt, &key.Active,
		&key.CreatedAt, &key.RotatedAt, &key.DeactivatedAt, &key.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	if key.Scopes == nil {
		key.Scopes = []string{}
	}
	return key, nil
}

// CreateAPIKey inserts key.
func (s *Store) CreateAPIKey(ctx context.Context, key *credstore.APIKey) error {
	query := `
		INSERT INTO credkit_api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.Exec(ctx, query,
		key.ID, key.UserID, key.Name, key.SecretHash, key.Scopes, key.ExpiresAt, key.Active,
		key.CreatedAt, key.RotatedAt, key.DeactivatedAt, key.LastUsedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
		}
		return unavailable(err)
	}
	return nil
}

// GetAPIKey loads one key.
func (s *Store) GetAPIKey(ctx context.Context, keyID string) (*credstore.APIKey, error) {
	key, err := scanAPIKey(s.db.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM credkit_api_keys WHERE id = $1`, keyID))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return key, nil
}

// ListAPIKeys returns the user's keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]*credstore.APIKey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apiKeyColumns+` FROM credkit_api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	keys := []*credstore.APIKey{}
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return keys, nil
}

// DeactivateAPIKey turns the key off, keeping the first deactivation time.
func (s *Store) DeactivateAPIKey(ctx context.Context, keyID string, at time.Time) (*credstore.APIKey, bool, error) {
	key, err := scanAPIKey(s.db.QueryRow(ctx, `
		UPDATE credkit_api_keys
		SET active = FALSE, deactivated_at = COALESCE(deactivated_at, $2)
		WHERE id = $1 AND active
		RETURNING `+apiKeyColumns, keyID, at))
	if err == nil {
		return key, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, unavailable(err)
	}
	key, err = s.GetAPIKey(ctx, keyID)
	if err != nil {
		return nil, false, err
	}
	return key, false, nil
}

// RotateAPIKey replaces the secret hash of an active key.
func (s *Store) RotateAPIKey(ctx context.Context, keyID, secretHash string, at time.Time) (*credstore.APIKey, error) {
	key, err := scanAPIKey(s.db.QueryRow(ctx, `
		UPDATE credkit_api_keys
		SET secret_hash = $2, rotated_at = $3
		WHERE id = $1 AND active
		RETURNING `+apiKeyColumns, keyID, secretHash, at))
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable(err)
	}

	if _, err := s.GetAPIKey(ctx, keyID); err != nil {
		return nil, err
	}
	return nil, credstore.ErrDeactivated
}

// TouchAPIKey records a successful authentication.
func (s *Store) TouchAPIKey(ctx context.Context, keyID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE credkit_api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return credstore.ErrNotFound
	}
	return nil
}
