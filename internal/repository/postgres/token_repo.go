package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Insert persists a token fingerprint and its metadata.
func (r *TokenRepo) Insert(ctx context.Context, t *model.AccessToken) error {
	const q = `
INSERT INTO access_tokens (token_hash, scope, resource_id, issued_to, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.q(ctx).Exec(ctx, q, t.Hash, string(t.Scope), t.ResourceID, nullUUID(t.IssuedTo), t.IssuedAt, t.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return wrapErr(err)
}

// GetByHash selects a token by fingerprint.
func (r *TokenRepo) GetByHash(ctx context.Context, hash []byte) (*model.AccessToken, error) {
	const q = `
SELECT token_hash, scope, resource_id, issued_to, issued_at, expires_at, revoked_at
FROM access_tokens WHERE token_hash=$1`
	var (
		t        model.AccessToken
		scope    string
		issuedTo *uuid.UUID
	)
	err := r.db.q(ctx).QueryRow(ctx, q, hash).
		Scan(&t.Hash, &scope, &t.ResourceID, &issuedTo, &t.IssuedAt, &t.ExpiresAt, &t.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	t.Scope = model.Scope(scope)
	if issuedTo != nil {
		t.IssuedTo = *issuedTo
	}
	return &t, nil
}

// Revoke stamps revoked_at once; repeated calls keep the first timestamp.
func (r *TokenRepo) Revoke(ctx context.Context, hash []byte, at time.Time) error {
	const q = `UPDATE access_tokens SET revoked_at=$2 WHERE token_hash=$1 AND revoked_at IS NULL`
	_, err := r.db.q(ctx).Exec(ctx, q, hash, at)
	return wrapErr(err)
}

// DeleteExpired removes tokens whose expiry has passed.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM access_tokens WHERE expires_at <= $1`
	tag, err := r.db.q(ctx).Exec(ctx, q, now)
	if err != nil {
		return 0, wrapErr(err)
	}
	return tag.RowsAffected(), nil
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
