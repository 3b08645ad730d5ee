// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/media-vault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Transactor runs fn so that every repository call made with the passed context
// commits or rolls back as one unit.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TokenRepository stores access tokens by fingerprint.
type TokenRepository interface {
	// Insert persists a freshly issued token.
	Insert(ctx context.Context, t *model.AccessToken) error
	// GetByHash loads a token by fingerprint, errs.ErrNotFound if unknown.
	GetByHash(ctx context.Context, hash []byte) (*model.AccessToken, error)
	// Revoke marks a token revoked at the given time. Unknown hashes are a no-op.
	Revoke(ctx context.Context, hash []byte, at time.Time) error
	// DeleteExpired removes tokens expired at now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ShareRepository stores share links.
type ShareRepository interface {
	// Create inserts a link; errs.ErrAlreadyExists on code collision.
	Create(ctx context.Context, l *model.ShareLink) error
	// GetByCode loads a link, errs.ErrNotFound if unknown.
	GetByCode(ctx context.Context, code string) (*model.ShareLink, error)
	// IncrementUsage bumps usage_count only while the link is unexpired at now and
	// under its limit, in a single conditional update. errs.ErrNotFound when no row matched.
	IncrementUsage(ctx context.Context, code string, now time.Time) (int, error)
	// ListByResource returns all links pointing at a resource, newest first.
	ListByResource(ctx context.Context, rt model.ResourceType, resourceID string) ([]model.ShareLink, error)
	// Delete removes a link, errs.ErrNotFound if unknown.
	Delete(ctx context.Context, code string) error
	// DeleteExpired removes links whose expiry is before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// VaultRepository stores passphrase verifiers and the live vault session per user.
type VaultRepository interface {
	// CreateVerifier stores a verifier; errs.ErrAlreadyConfigured if one exists.
	CreateVerifier(ctx context.Context, userID uuid.UUID, verifier, salt []byte) error
	// GetVerifier loads a verifier, errs.ErrNotFound if the vault is not set up.
	GetVerifier(ctx context.Context, userID uuid.UUID) (verifier, salt []byte, err error)
	// LockUser takes a row lock on the user's verifier for the current transaction.
	// errs.ErrNotFound if the vault is not set up.
	LockUser(ctx context.Context, userID uuid.UUID) error
	// GetSession loads the user's session, errs.ErrNotFound if locked.
	GetSession(ctx context.Context, userID uuid.UUID) (*model.VaultSession, error)
	// PutSession creates or replaces the user's session.
	PutSession(ctx context.Context, s *model.VaultSession) error
	// DeleteSession removes the user's session; no-op when absent.
	DeleteSession(ctx context.Context, userID uuid.UUID) error
}

// ResourceResolver resolves external resource ids. A missing resource is
// reported as Resource{Exists: false}, not as an error.
type ResourceResolver interface {
	Resolve(ctx context.Context, rt model.ResourceType, resourceID string) (model.Resource, error)
}
