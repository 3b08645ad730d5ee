package postgres

import (
	"context"
	"errors"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// VaultRepo implements VaultRepository using PostgreSQL.
type VaultRepo struct{ db *DB }

// NewVaultRepo constructs a vault repository.
func NewVaultRepo(db *DB) *VaultRepo { return &VaultRepo{db: db} }

// CreateVerifier inserts the verifier only if the user has none.
func (r *VaultRepo) CreateVerifier(ctx context.Context, userID uuid.UUID, verifier, salt []byte) error {
	const q = `
INSERT INTO vault_verifiers (user_id, verifier, salt)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO NOTHING`
	tag, err := r.db.q(ctx).Exec(ctx, q, userID, verifier, salt)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAlreadyConfigured
	}
	return nil
}

// GetVerifier selects the user's verifier and salt.
func (r *VaultRepo) GetVerifier(ctx context.Context, userID uuid.UUID) ([]byte, []byte, error) {
	const q = `SELECT verifier, salt FROM vault_verifiers WHERE user_id=$1`
	var verifier, salt []byte
	if err := r.db.q(ctx).QueryRow(ctx, q, userID).Scan(&verifier, &salt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, errs.ErrNotFound
		}
		return nil, nil, wrapErr(err)
	}
	return verifier, salt, nil
}

// LockUser serializes session changes for one user within the current transaction.
func (r *VaultRepo) LockUser(ctx context.Context, userID uuid.UUID) error {
	const q = `SELECT user_id FROM vault_verifiers WHERE user_id=$1 FOR UPDATE`
	var id uuid.UUID
	if err := r.db.q(ctx).QueryRow(ctx, q, userID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return wrapErr(err)
	}
	return nil
}

// GetSession selects the user's live session row.
func (r *VaultRepo) GetSession(ctx context.Context, userID uuid.UUID) (*model.VaultSession, error) {
	const q = `SELECT user_id, token_hash, unlocked_at, expires_at FROM vault_sessions WHERE user_id=$1`
	var s model.VaultSession
	if err := r.db.q(ctx).QueryRow(ctx, q, userID).Scan(&s.UserID, &s.TokenHash, &s.UnlockedAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return &s, nil
}

// PutSession upserts the single session row of a user.
func (r *VaultRepo) PutSession(ctx context.Context, s *model.VaultSession) error {
	const q = `
INSERT INTO vault_sessions (user_id, token_hash, unlocked_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id)
DO UPDATE SET token_hash=EXCLUDED.token_hash, unlocked_at=EXCLUDED.unlocked_at, expires_at=EXCLUDED.expires_at`
	_, err := r.db.q(ctx).Exec(ctx, q, s.UserID, s.TokenHash, s.UnlockedAt, s.ExpiresAt)
	return wrapErr(err)
}

// DeleteSession removes the user's session row.
func (r *VaultRepo) DeleteSession(ctx context.Context, userID uuid.UUID) error {
	const q = `DELETE FROM vault_sessions WHERE user_id=$1`
	_, err := r.db.q(ctx).Exec(ctx, q, userID)
	return wrapErr(err)
}
