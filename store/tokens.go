package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mbolis/quick-forms/errs"
)

// Tokens remembers issued refresh tokens so that each one can be used once.
type Tokens struct {
	db *sqlx.DB
}

func (s *Tokens) Store(ctx context.Context, username, tokenID, refreshTokenID string, expiration time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO token (username, token_id, refresh_token_id, expiration)
		VALUES (?, ?, ?, ?)`),
		username, tokenID, refreshTokenID, expiration.UTC(),
	)
	return errors.Wrap(err, "insert token")
}

// Consume deletes the matching token and fails when it was unknown or expired.
func (s *Tokens) Consume(ctx context.Context, username, tokenID, refreshTokenID string) error {
	var expiration time.Time
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		DELETE FROM token
		WHERE username = ?
			AND token_id = ?
			AND refresh_token_id = ?
		RETURNING expiration`),
		username, tokenID, refreshTokenID,
	).Scan(&expiration)
	if err != nil {
		if isNoRows(err) {
			return errs.Unauthorizedf("could not refresh")
		}
		return errors.Wrap(err, "consume token")
	}

	if expiration.Before(now()) {
		return errs.Unauthorizedf("could not refresh")
	}
	return nil
}

// Purge drops expired tokens.
func (s *Tokens) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM token WHERE expiration < ?`), now())
	if err != nil {
		return 0, errors.Wrap(err, "purge tokens")
	}
	return res.RowsAffected()
}
