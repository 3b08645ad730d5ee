package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/limiter"
	"github.com/and161185/media-vault/internal/model"
	"github.com/and161185/media-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// MinPassphraseLen is the shortest passphrase accepted by Setup, in runes.
const MinPassphraseLen = 8

// VaultGuard defines passphrase-gated access to a user's encrypted resources.
type VaultGuard interface {
	// Setup stores the first passphrase verifier of a user.
	Setup(ctx context.Context, userID uuid.UUID, passphrase string) error
	// Unlock verifies the passphrase and replaces the user's session.
	Unlock(ctx context.Context, userID uuid.UUID, passphrase, ip string) (model.VaultSession, error)
	// Lock ends the session. Locking a locked vault succeeds.
	Lock(ctx context.Context, userID uuid.UUID) error
	// Status reports whether a live session exists.
	Status(ctx context.Context, userID uuid.UUID) (model.VaultStatus, error)
	// Authorize checks that vaultToken is the user's current session token.
	Authorize(ctx context.Context, userID uuid.UUID, vaultToken string) (*model.AccessToken, error)
	// IssueMediaToken mints a media-read token for a resource owned by the user.
	// Encrypted resources require a current vault token.
	IssueMediaToken(ctx context.Context, userID uuid.UUID, vaultToken string, rt model.ResourceType, resourceID string) (model.AccessToken, error)
}

type VaultGuardImpl struct {
	tx        repository.Transactor
	vaults    repository.VaultRepository
	creds     PassphraseVerifier
	broker    TokenBroker
	resources repository.ResourceResolver
	lim       limiter.Limiter
	log       *zap.Logger
	now       func() time.Time
}

// NewVaultGuard constructs VaultGuard with required dependencies.
func NewVaultGuard(
	tx repository.Transactor,
	vaults repository.VaultRepository,
	creds PassphraseVerifier,
	broker TokenBroker,
	resources repository.ResourceResolver,
	lim limiter.Limiter,
	log *zap.Logger,
) *VaultGuardImpl {
	return &VaultGuardImpl{
		tx:        tx,
		vaults:    vaults,
		creds:     creds,
		broker:    broker,
		resources: resources,
		lim:       lim,
		log:       log,
		now:       time.Now,
	}
}

// Setup never overwrites an existing verifier.
func (g *VaultGuardImpl) Setup(ctx context.Context, userID uuid.UUID, passphrase string) error {
	if userID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	if utf8.RuneCountInString(passphrase) < MinPassphraseLen {
		return fmt.Errorf("%w: passphrase shorter than %d characters", errs.ErrInvalidArgument, MinPassphraseLen)
	}
	return g.creds.SetPassphrase(ctx, userID, passphrase)
}

// Unlock applies rate limiting by (user, ip), verifies the passphrase and then,
// in one transaction under the user's row lock, revokes the previous session
// token, issues a new one and records it.
func (g *VaultGuardImpl) Unlock(ctx context.Context, userID uuid.UUID, passphrase, ip string) (model.VaultSession, error) {
	if userID == uuid.Nil {
		return model.VaultSession{}, errs.ErrUnauthorized
	}
	subject := limiter.VaultSubject(userID.String())
	ipHash := limiter.HashIP(ip)

	allowed, _, err := g.lim.Allow(ctx, subject, ipHash)
	if err != nil {
		return model.VaultSession{}, err
	}
	if !allowed {
		return model.VaultSession{}, errs.ErrRateLimited
	}

	ok, err := g.creds.VerifyPassphrase(ctx, userID, passphrase)
	if err != nil {
		return model.VaultSession{}, err
	}
	if !ok {
		blocked, _, ferr := g.lim.Failure(ctx, subject, ipHash)
		if ferr != nil {
			g.log.Warn("limiter failure not recorded", zap.Stringer("user_id", userID), zap.Error(ferr))
		}
		if ferr == nil && blocked {
			return model.VaultSession{}, errs.ErrRateLimited
		}
		// same answer for a wrong passphrase and a vault that was never set up
		return model.VaultSession{}, errs.ErrInvalidPassphrase
	}
	if err := g.lim.Success(ctx, subject, ipHash); err != nil {
		g.log.Warn("limiter reset failed", zap.Stringer("user_id", userID), zap.Error(err))
	}

	var sess model.VaultSession
	err = g.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := g.vaults.LockUser(ctx, userID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrInvalidPassphrase
			}
			return err
		}
		prev, err := g.vaults.GetSession(ctx, userID)
		switch {
		case err == nil:
			if err := g.broker.RevokeHash(ctx, prev.TokenHash); err != nil {
				return err
			}
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}

		tok, err := g.broker.Issue(ctx, model.ScopeVaultSession, "", userID, 0)
		if err != nil {
			return err
		}
		sess = model.VaultSession{
			UserID:      userID,
			TokenHash:   tok.Hash,
			AccessToken: tok,
			UnlockedAt:  tok.IssuedAt,
			ExpiresAt:   tok.ExpiresAt,
		}
		return g.vaults.PutSession(ctx, &sess)
	})
	if err != nil {
		return model.VaultSession{}, err
	}
	return sess, nil
}

// Lock revokes the session token and drops the session row.
func (g *VaultGuardImpl) Lock(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	return g.tx.WithTx(ctx, func(ctx context.Context) error {
		// same row lock as Unlock, so a concurrent unlock cannot slip a new
		// session in between the read and the delete
		if err := g.vaults.LockUser(ctx, userID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return nil
			}
			return err
		}
		sess, err := g.vaults.GetSession(ctx, userID)
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := g.broker.RevokeHash(ctx, sess.TokenHash); err != nil {
			return err
		}
		return g.vaults.DeleteSession(ctx, userID)
	})
}

func (g *VaultGuardImpl) Status(ctx context.Context, userID uuid.UUID) (model.VaultStatus, error) {
	if userID == uuid.Nil {
		return model.VaultStatus{}, errs.ErrUnauthorized
	}
	sess, err := g.vaults.GetSession(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.VaultStatus{Locked: true}, nil
	}
	if err != nil {
		return model.VaultStatus{}, err
	}
	if !g.now().Before(sess.ExpiresAt) {
		return model.VaultStatus{Locked: true}, nil
	}
	exp := sess.ExpiresAt
	return model.VaultStatus{Locked: false, ExpiresAt: &exp}, nil
}

// Authorize rejects valid vault tokens of other users and tokens that are no
// longer the recorded session, e.g. when a revocation is not yet visible in a cache.
func (g *VaultGuardImpl) Authorize(ctx context.Context, userID uuid.UUID, vaultToken string) (*model.AccessToken, error) {
	tok, err := g.broker.Check(ctx, vaultToken, model.ScopeVaultSession, "")
	if err != nil {
		return nil, err
	}
	if userID != uuid.Nil && tok.IssuedTo != userID {
		return nil, errs.ErrScopeMismatch
	}
	sess, err := g.vaults.GetSession(ctx, tok.IssuedTo)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrRevoked
	}
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(sess.TokenHash, tok.Hash) {
		return nil, errs.ErrRevoked
	}
	return tok, nil
}

func (g *VaultGuardImpl) IssueMediaToken(ctx context.Context, userID uuid.UUID, vaultToken string, rt model.ResourceType, resourceID string) (model.AccessToken, error) {
	if userID == uuid.Nil {
		return model.AccessToken{}, errs.ErrUnauthorized
	}
	if !rt.Valid() || resourceID == "" {
		return model.AccessToken{}, errs.ErrInvalidResource
	}
	res, err := g.resources.Resolve(ctx, rt, resourceID)
	if err != nil {
		return model.AccessToken{}, err
	}
	if !res.Exists {
		return model.AccessToken{}, errs.ErrInvalidResource
	}
	if res.OwnerUserID != userID {
		return model.AccessToken{}, errs.ErrForbidden
	}
	if res.IsEncrypted {
		if vaultToken == "" {
			return model.AccessToken{}, fmt.Errorf("%w: vault is locked", errs.ErrForbidden)
		}
		if _, err := g.Authorize(ctx, userID, vaultToken); err != nil {
			return model.AccessToken{}, err
		}
	}
	return g.broker.Issue(ctx, model.ScopeMediaRead, resourceID, userID, 0)
}
