package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/media-vault/internal/crypto"
	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/limiter"
	"github.com/and161185/media-vault/internal/model"
	"github.com/and161185/media-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

const codeAttempts = 5

// ShareLinkController defines the lifecycle and redemption of share links.
type ShareLinkController interface {
	// Create makes a link to a resource owned by the caller.
	Create(ctx context.Context, caller uuid.UUID, rt model.ResourceType, resourceID string, opts model.ShareOptions) (*model.ShareLink, error)
	// Info is the public preview of a link.
	Info(ctx context.Context, code string) (model.ShareInfo, error)
	// Redeem enforces the link's constraints and consumes one use.
	Redeem(ctx context.Context, code string, req model.RedeemRequest) (model.Grant, error)
	// Delete removes a link created by owner.
	Delete(ctx context.Context, code string, owner uuid.UUID) error
	// ListForResource returns all links of a resource owned by the caller.
	ListForResource(ctx context.Context, caller uuid.UUID, rt model.ResourceType, resourceID string) ([]model.ShareLink, error)
	// SweepExpired deletes links that expired more than retention ago.
	SweepExpired(ctx context.Context, retention time.Duration) (int64, error)
}

type ShareLinkControllerImpl struct {
	tx        repository.Transactor
	shares    repository.ShareRepository
	resources repository.ResourceResolver
	broker    TokenBroker
	lim       limiter.Limiter
	log       *zap.Logger
	now       func() time.Time
}

// NewShareLinkController constructs ShareLinkController with required dependencies.
func NewShareLinkController(
	tx repository.Transactor,
	shares repository.ShareRepository,
	resources repository.ResourceResolver,
	broker TokenBroker,
	lim limiter.Limiter,
	log *zap.Logger,
) *ShareLinkControllerImpl {
	return &ShareLinkControllerImpl{
		tx:        tx,
		shares:    shares,
		resources: resources,
		broker:    broker,
		lim:       lim,
		log:       log,
		now:       time.Now,
	}
}

// Create validates options, hashes the password and inserts the link under a
// fresh code, retrying on code collisions.
func (c *ShareLinkControllerImpl) Create(ctx context.Context, caller uuid.UUID, rt model.ResourceType, resourceID string, opts model.ShareOptions) (*model.ShareLink, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if opts.MaxUses != nil && *opts.MaxUses <= 0 {
		return nil, fmt.Errorf("%w: max uses must be positive", errs.ErrInvalidArgument)
	}
	if opts.ExpiresIn < 0 {
		return nil, fmt.Errorf("%w: expiry must be in the future", errs.ErrInvalidArgument)
	}
	if err := c.owned(ctx, caller, rt, resourceID); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	l := &model.ShareLink{
		ResourceType:     rt,
		ResourceID:       resourceID,
		SharedWithEmails: normalizeEmails(opts.SharedWithEmails),
		CreatedBy:        caller,
		CreatedAt:        now,
	}
	if opts.MaxUses != nil {
		n := *opts.MaxUses
		l.MaxUses = &n
	}
	if opts.ExpiresIn > 0 {
		exp := now.Add(opts.ExpiresIn)
		l.ExpiresAt = &exp
	}
	if opts.Password != "" {
		salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
		if err != nil {
			return nil, err
		}
		l.PasswordSalt = salt
		l.PasswordHash = pkgcrypto.HashPassword([]byte(opts.Password), salt)
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := pkgcrypto.NewShareCode()
		if err != nil {
			return nil, err
		}
		l.Code = code
		err = c.shares.Create(ctx, l)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("share code: %w after %d attempts", errs.ErrAlreadyExists, codeAttempts)
}

// Info never exposes usage, limits, the allow-list or password material.
func (c *ShareLinkControllerImpl) Info(ctx context.Context, code string) (model.ShareInfo, error) {
	l, err := c.shares.GetByCode(ctx, code)
	if err != nil {
		return model.ShareInfo{}, err
	}
	info := model.ShareInfo{
		ResourceType:     l.ResourceType,
		RequiresPassword: l.HasPassword(),
		IsValid:          !l.ExpiredAt(c.now()) && !l.Exhausted(),
	}
	res, err := c.resources.Resolve(ctx, l.ResourceType, l.ResourceID)
	if err != nil {
		return model.ShareInfo{}, err
	}
	if !res.Exists {
		info.IsValid = false
		return info, nil
	}
	info.ResourceName = res.DisplayName
	return info, nil
}

// Redeem checks, in order: existence, expiry, usage limit, email allow-list and
// password. On success one use is consumed and a token is issued in the same
// transaction.
func (c *ShareLinkControllerImpl) Redeem(ctx context.Context, code string, req model.RedeemRequest) (model.Grant, error) {
	l, err := c.shares.GetByCode(ctx, code)
	if err != nil {
		return model.Grant{}, err
	}
	if err := c.checkLimits(l); err != nil {
		return model.Grant{}, err
	}

	if len(l.SharedWithEmails) > 0 {
		email := normalizeEmail(req.CallerEmail)
		if email == "" {
			return model.Grant{}, errs.ErrAuthRequired
		}
		if !slices.Contains(l.SharedWithEmails, email) {
			return model.Grant{}, errs.ErrEmailRestricted
		}
	}

	if l.HasPassword() {
		if err := c.verifyPassword(ctx, l, req); err != nil {
			return model.Grant{}, err
		}
	}

	res, err := c.resources.Resolve(ctx, l.ResourceType, l.ResourceID)
	if err != nil {
		return model.Grant{}, err
	}
	if !res.Exists {
		return model.Grant{}, errs.ErrNotFound
	}
	scope := model.ScopeShareRedeem
	if res.IsEncrypted {
		scope = model.ScopeMediaRead
	}

	var grant model.Grant
	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := c.shares.IncrementUsage(ctx, code, c.now().UTC()); err != nil {
			return err
		}
		tok, err := c.broker.Issue(ctx, scope, l.ResourceID, req.CallerID, 0)
		if err != nil {
			return err
		}
		grant = model.Grant{ResourceType: l.ResourceType, ResourceID: l.ResourceID, Token: tok}
		return nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return model.Grant{}, c.classifyLost(ctx, code)
	}
	if err != nil {
		return model.Grant{}, err
	}
	return grant, nil
}

func (c *ShareLinkControllerImpl) checkLimits(l *model.ShareLink) error {
	if l.ExpiredAt(c.now()) {
		return errs.ErrExpired
	}
	if l.Exhausted() {
		return errs.ErrExhausted
	}
	return nil
}

// verifyPassword applies per (code, ip) rate limiting around the password check.
func (c *ShareLinkControllerImpl) verifyPassword(ctx context.Context, l *model.ShareLink, req model.RedeemRequest) error {
	subject := limiter.ShareSubject(l.Code)
	ipHash := limiter.HashIP(req.RemoteIP)

	allowed, _, err := c.lim.Allow(ctx, subject, ipHash)
	if err != nil {
		return err
	}
	if !allowed {
		return errs.ErrRateLimited
	}
	if !pkgcrypto.VerifyPassword([]byte(req.Password), l.PasswordSalt, l.PasswordHash) {
		// the code is a bearer secret and stays out of the log
		blocked, _, ferr := c.lim.Failure(ctx, subject, ipHash)
		if ferr != nil {
			c.log.Warn("limiter failure not recorded", zap.String("resource_type", string(l.ResourceType)), zap.Error(ferr))
		}
		if ferr == nil && blocked {
			return errs.ErrRateLimited
		}
		return errs.ErrWrongPassword
	}
	if err := c.lim.Success(ctx, subject, ipHash); err != nil {
		c.log.Warn("limiter reset failed", zap.String("resource_type", string(l.ResourceType)), zap.Error(err))
	}
	return nil
}

// classifyLost explains a conditional increment that matched no row: the link
// expired, ran out of uses or was deleted since it was read.
func (c *ShareLinkControllerImpl) classifyLost(ctx context.Context, code string) error {
	l, err := c.shares.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := c.checkLimits(l); err != nil {
		return err
	}
	return errs.ErrExhausted
}

func (c *ShareLinkControllerImpl) Delete(ctx context.Context, code string, owner uuid.UUID) error {
	if owner == uuid.Nil {
		return errs.ErrUnauthorized
	}
	l, err := c.shares.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if l.CreatedBy != owner {
		return errs.ErrForbidden
	}
	return c.shares.Delete(ctx, code)
}

func (c *ShareLinkControllerImpl) ListForResource(ctx context.Context, caller uuid.UUID, rt model.ResourceType, resourceID string) ([]model.ShareLink, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if err := c.owned(ctx, caller, rt, resourceID); err != nil {
		return nil, err
	}
	return c.shares.ListByResource(ctx, rt, resourceID)
}

func (c *ShareLinkControllerImpl) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	return c.shares.DeleteExpired(ctx, c.now().UTC().Add(-retention))
}

// owned resolves the resource and checks the caller owns it.
func (c *ShareLinkControllerImpl) owned(ctx context.Context, caller uuid.UUID, rt model.ResourceType, resourceID string) error {
	if !rt.Valid() || resourceID == "" {
		return errs.ErrInvalidResource
	}
	res, err := c.resources.Resolve(ctx, rt, resourceID)
	if err != nil {
		return err
	}
	if !res.Exists {
		return errs.ErrInvalidResource
	}
	if res.OwnerUserID != caller {
		return errs.ErrForbidden
	}
	return nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// normalizeEmails lowercases, trims and deduplicates, keeping first-seen order.
func normalizeEmails(in []string) []string {
	var out []string
	for _, e := range in {
		e = normalizeEmail(e)
		if e == "" || slices.Contains(out, e) {
			continue
		}
		out = append(out, e)
	}
	return out
}
