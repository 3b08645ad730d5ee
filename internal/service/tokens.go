// Package service contains the access-control services: token brokering,
// vault unlocking and share link arbitration.
package service

import (
	"context"
	"fmt"
	"time"

	pkgcrypto "github.com/and161185/media-vault/internal/crypto"
	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/model"
	"github.com/and161185/media-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// TokenBroker defines issuance and validation of scoped access tokens.
// It never decides who may get a token.
type TokenBroker interface {
	// Issue mints a token for scope and resource. ttl <= 0 selects the scope default.
	Issue(ctx context.Context, scope model.Scope, resourceID string, issuedTo uuid.UUID, ttl time.Duration) (model.AccessToken, error)
	// Check validates a presented value for the required scope and resource.
	Check(ctx context.Context, value string, scope model.Scope, resourceID string) (*model.AccessToken, error)
	// Revoke invalidates a token immediately. Idempotent.
	Revoke(ctx context.Context, value string) error
	// RevokeHash is Revoke for callers that only kept the fingerprint.
	RevokeHash(ctx context.Context, hash []byte) error
	// SweepExpired deletes expired tokens and reports how many.
	SweepExpired(ctx context.Context) (int64, error)
}

// TTLPolicy bounds token lifetimes for one scope.
type TTLPolicy struct {
	Default time.Duration
	Max     time.Duration
}

// DefaultTTLPolicies returns the built-in lifetime policy per scope.
func DefaultTTLPolicies() map[model.Scope]TTLPolicy {
	return map[model.Scope]TTLPolicy{
		model.ScopeMediaRead:    {Default: 9 * time.Minute, Max: 10 * time.Minute},
		model.ScopeVaultSession: {Default: 15 * time.Minute, Max: 30 * time.Minute},
		model.ScopeShareRedeem:  {Default: time.Minute, Max: 5 * time.Minute},
	}
}

type TokenBrokerImpl struct {
	tokens   repository.TokenRepository
	policies map[model.Scope]TTLPolicy
	now      func() time.Time
}

// NewTokenBroker constructs TokenBroker. Missing scopes in policies fall back to defaults.
func NewTokenBroker(tokens repository.TokenRepository, policies map[model.Scope]TTLPolicy) *TokenBrokerImpl {
	merged := DefaultTTLPolicies()
	for s, p := range policies {
		if p.Default > 0 && p.Max >= p.Default {
			merged[s] = p
		}
	}
	return &TokenBrokerImpl{tokens: tokens, policies: merged, now: time.Now}
}

// Issue validates the scope/resource pairing, clamps ttl and persists the fingerprint.
func (b *TokenBrokerImpl) Issue(ctx context.Context, scope model.Scope, resourceID string, issuedTo uuid.UUID, ttl time.Duration) (model.AccessToken, error) {
	if !scope.Valid() {
		return model.AccessToken{}, fmt.Errorf("%w: unknown scope %q", errs.ErrInvalidArgument, scope)
	}
	switch {
	case scope == model.ScopeVaultSession && resourceID != "":
		return model.AccessToken{}, fmt.Errorf("%w: vault-session token carries no resource", errs.ErrInvalidArgument)
	case scope != model.ScopeVaultSession && resourceID == "":
		return model.AccessToken{}, fmt.Errorf("%w: %s token needs a resource", errs.ErrInvalidArgument, scope)
	case scope == model.ScopeVaultSession && issuedTo == uuid.Nil:
		return model.AccessToken{}, fmt.Errorf("%w: vault-session token needs a user", errs.ErrInvalidArgument)
	}

	p := b.policies[scope]
	if ttl <= 0 {
		ttl = p.Default
	}
	if ttl > p.Max {
		ttl = p.Max
	}

	value, err := pkgcrypto.NewTokenValue()
	if err != nil {
		return model.AccessToken{}, err
	}
	hash, _ := pkgcrypto.TokenFingerprint(value)
	now := b.now().UTC()
	t := model.AccessToken{
		Value:      value,
		Hash:       hash,
		Scope:      scope,
		ResourceID: resourceID,
		IssuedTo:   issuedTo,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := b.tokens.Insert(ctx, &t); err != nil {
		return model.AccessToken{}, err
	}
	return t, nil
}

// Check resolves a presented value. Order: NotFound, Revoked, Expired, ScopeMismatch.
// Malformed values are NotFound and never reach storage.
func (b *TokenBrokerImpl) Check(ctx context.Context, value string, scope model.Scope, resourceID string) (*model.AccessToken, error) {
	hash, ok := pkgcrypto.TokenFingerprint(value)
	if !ok {
		return nil, errs.ErrNotFound
	}
	t, err := b.tokens.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if t.Revoked() {
		return nil, errs.ErrRevoked
	}
	if !b.now().Before(t.ExpiresAt) {
		return nil, errs.ErrExpired
	}
	if t.Scope != scope || t.ResourceID != resourceID {
		return nil, errs.ErrScopeMismatch
	}
	return t, nil
}

// Revoke is a no-op success for unknown or malformed values.
func (b *TokenBrokerImpl) Revoke(ctx context.Context, value string) error {
	hash, ok := pkgcrypto.TokenFingerprint(value)
	if !ok {
		return nil
	}
	return b.RevokeHash(ctx, hash)
}

func (b *TokenBrokerImpl) RevokeHash(ctx context.Context, hash []byte) error {
	if len(hash) == 0 {
		return nil
	}
	return b.tokens.Revoke(ctx, hash, b.now().UTC())
}

func (b *TokenBrokerImpl) SweepExpired(ctx context.Context) (int64, error) {
	return b.tokens.DeleteExpired(ctx, b.now().UTC())
}
