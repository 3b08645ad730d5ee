package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/model"
	"github.com/jackc/pgx/v5"
)

// ShareRepo implements ShareRepository using PostgreSQL.
type ShareRepo struct{ db *DB }

// NewShareRepo constructs a share link repository.
func NewShareRepo(db *DB) *ShareRepo { return &ShareRepo{db: db} }

const shareColumns = `code, resource_type, resource_id, password_hash, password_salt, expires_at, max_uses, usage_count, shared_with_emails, created_by, created_at`

// Create inserts a new link row; the code is the primary key.
func (r *ShareRepo) Create(ctx context.Context, l *model.ShareLink) error {
	const q = `
INSERT INTO share_links (code, resource_type, resource_id, password_hash, password_salt, expires_at, max_uses, shared_with_emails, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	emails := l.SharedWithEmails
	if emails == nil {
		emails = []string{}
	}
	_, err := r.db.q(ctx).Exec(ctx, q,
		l.Code, string(l.ResourceType), l.ResourceID, l.PasswordHash, l.PasswordSalt,
		l.ExpiresAt, l.MaxUses, emails, l.CreatedBy, l.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return wrapErr(err)
}

// GetByCode selects a link by its public code.
func (r *ShareRepo) GetByCode(ctx context.Context, code string) (*model.ShareLink, error) {
	const q = `SELECT ` + shareColumns + ` FROM share_links WHERE code=$1`
	l, err := scanShare(r.db.q(ctx).QueryRow(ctx, q, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return l, nil
}

// IncrementUsage is the compare-and-increment of a redemption. Concurrent updates of
// one row serialize on the row lock and re-evaluate the WHERE clause, so usage_count
// never passes max_uses.
func (r *ShareRepo) IncrementUsage(ctx context.Context, code string, now time.Time) (int, error) {
	const q = `
UPDATE share_links
SET usage_count = usage_count + 1
WHERE code = $1
  AND (max_uses IS NULL OR usage_count < max_uses)
  AND (expires_at IS NULL OR expires_at > $2)
RETURNING usage_count`
	var n int
	if err := r.db.q(ctx).QueryRow(ctx, q, code, now).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, wrapErr(err)
	}
	return n, nil
}

// ListByResource returns links for one resource, newest first.
func (r *ShareRepo) ListByResource(ctx context.Context, rt model.ResourceType, resourceID string) ([]model.ShareLink, error) {
	const q = `SELECT ` + shareColumns + `
FROM share_links
WHERE resource_type=$1 AND resource_id=$2
ORDER BY created_at DESC`
	rows, err := r.db.q(ctx).Query(ctx, q, string(rt), resourceID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []model.ShareLink
	for rows.Next() {
		l, err := scanShare(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, *l)
	}
	return out, wrapErr(rows.Err())
}

// Delete removes a link by code.
func (r *ShareRepo) Delete(ctx context.Context, code string) error {
	const q = `DELETE FROM share_links WHERE code=$1`
	tag, err := r.db.q(ctx).Exec(ctx, q, code)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteExpired removes links that expired before the given time.
func (r *ShareRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM share_links WHERE expires_at IS NOT NULL AND expires_at < $1`
	tag, err := r.db.q(ctx).Exec(ctx, q, before)
	if err != nil {
		return 0, wrapErr(err)
	}
	return tag.RowsAffected(), nil
}

func scanShare(row pgx.Row) (*model.ShareLink, error) {
	var (
		l  model.ShareLink
		rt string
	)
	if err := row.Scan(&l.Code, &rt, &l.ResourceID, &l.PasswordHash, &l.PasswordSalt,
		&l.ExpiresAt, &l.MaxUses, &l.UsageCount, &l.SharedWithEmails, &l.CreatedBy, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.ResourceType = model.ResourceType(rt)
	return &l, nil
}
