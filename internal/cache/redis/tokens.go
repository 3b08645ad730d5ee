package rediscache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/and161185/media-vault/internal/model"
	"github.com/and161185/media-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

const (
	tokenPrefix   = "mv:tok:"
	revokedPrefix = "mv:rev:"
)

// cachedToken is the cache record. The bearer value is never stored.
type cachedToken struct {
	Scope      model.Scope `json:"scope"`
	ResourceID string      `json:"rid,omitempty"`
	IssuedTo   uuid.UUID   `json:"sub"`
	IssuedAt   time.Time   `json:"iat"`
	ExpiresAt  time.Time   `json:"exp"`
}

// CachedTokens is a read-through TokenRepository. Only live, unrevoked tokens are
// cached. Revoke writes a marker before touching the store so readers fall back
// to the store while the positive entry may still exist elsewhere.
// Cache failures never fail a call; the store stays authoritative.
type CachedTokens struct {
	next repository.TokenRepository
	kv   KV
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time
}

var _ repository.TokenRepository = (*CachedTokens)(nil)

// NewCachedTokens wraps next with a cache whose entries live at most ttl.
func NewCachedTokens(next repository.TokenRepository, kv KV, ttl time.Duration, log *zap.Logger) *CachedTokens {
	return &CachedTokens{next: next, kv: kv, ttl: ttl, log: log, now: time.Now}
}

func tokenKey(hash []byte) string   { return tokenPrefix + hex.EncodeToString(hash) }
func revokedKey(hash []byte) string { return revokedPrefix + hex.EncodeToString(hash) }

// Insert goes to the store only; the row may still be inside an open transaction.
func (c *CachedTokens) Insert(ctx context.Context, t *model.AccessToken) error {
	return c.next.Insert(ctx, t)
}

// GetByHash serves live tokens from the cache and falls back to the store.
func (c *CachedTokens) GetByHash(ctx context.Context, hash []byte) (*model.AccessToken, error) {
	revoked, err := c.kv.Exists(ctx, revokedKey(hash))
	if err != nil {
		c.log.Warn("token cache unavailable", zap.Error(err))
		return c.next.GetByHash(ctx, hash)
	}
	if revoked {
		return c.next.GetByHash(ctx, hash)
	}

	if b, err := c.kv.Get(ctx, tokenKey(hash)); err != nil {
		c.log.Warn("token cache unavailable", zap.Error(err))
	} else if b != nil {
		var ct cachedToken
		if err := json.Unmarshal(b, &ct); err == nil {
			return &model.AccessToken{
				Hash:       append([]byte(nil), hash...),
				Scope:      ct.Scope,
				ResourceID: ct.ResourceID,
				IssuedTo:   ct.IssuedTo,
				IssuedAt:   ct.IssuedAt,
				ExpiresAt:  ct.ExpiresAt,
			}, nil
		}
		_ = c.kv.Del(ctx, tokenKey(hash))
	}

	t, err := c.next.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	c.put(ctx, t)
	return t, nil
}

// Revoke marks the token revoked in the cache, drops the positive entry and
// then revokes it in the store.
func (c *CachedTokens) Revoke(ctx context.Context, hash []byte, at time.Time) error {
	if err := c.kv.Set(ctx, revokedKey(hash), []byte("1"), 2*c.ttl); err != nil {
		c.log.Warn("token cache: revocation marker not written", zap.Error(err))
	}
	if err := c.kv.Del(ctx, tokenKey(hash)); err != nil {
		c.log.Warn("token cache: entry not evicted", zap.Error(err))
	}
	return c.next.Revoke(ctx, hash, at)
}

// DeleteExpired delegates to the store; cache entries expire on their own.
func (c *CachedTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return c.next.DeleteExpired(ctx, now)
}

// put caches t for min(ttl, remaining lifetime). Revoked or expired tokens are skipped.
func (c *CachedTokens) put(ctx context.Context, t *model.AccessToken) {
	if t.Revoked() {
		return
	}
	ttl := t.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return
	}
	if ttl > c.ttl {
		ttl = c.ttl
	}
	b, err := json.Marshal(cachedToken{
		Scope:      t.Scope,
		ResourceID: t.ResourceID,
		IssuedTo:   t.IssuedTo,
		IssuedAt:   t.IssuedAt,
		ExpiresAt:  t.ExpiresAt,
	})
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, tokenKey(t.Hash), b, ttl); err != nil {
		c.log.Warn("token cache: entry not written", zap.Error(err))
	}
}
