// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Scope is the single intended use of an access token.
type Scope string

const (
	ScopeMediaRead    Scope = "media-read"
	ScopeVaultSession Scope = "vault-session"
	ScopeShareRedeem  Scope = "share-redeem"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeMediaRead, ScopeVaultSession, ScopeShareRedeem:
		return true
	}
	return false
}

// AccessToken is an opaque bearer token bound to one scope and at most one resource.
// Value is only populated on issuance; storage keeps the fingerprint.
type AccessToken struct {
	Value      string     // opaque bearer value, never persisted
	Hash       []byte     // SHA-256(Value), primary key in storage
	Scope      Scope      // intended use
	ResourceID string     // empty for vault-session
	IssuedTo   uuid.UUID  // uuid.Nil for anonymous redeemers
	IssuedAt   time.Time  // issuance time
	ExpiresAt  time.Time  // always after IssuedAt
	RevokedAt  *time.Time // set on explicit revocation
}

// Revoked reports whether the token was explicitly invalidated.
func (t *AccessToken) Revoked() bool { return t.RevokedAt != nil }

// ResourceType tags the polymorphic resource a share link points at.
type ResourceType string

const (
	ResourceFile     ResourceType = "file"
	ResourceFolder   ResourceType = "folder"
	ResourceAlbum    ResourceType = "album"
	ResourceCategory ResourceType = "category"
)

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceFile, ResourceFolder, ResourceAlbum, ResourceCategory:
		return true
	}
	return false
}

// Resource is the resolution result of an external resource id.
type Resource struct {
	Exists      bool
	OwnerUserID uuid.UUID
	DisplayName string
	IsEncrypted bool
}

// ShareLink is a public, constraint-bearing pointer to a resource.
type ShareLink struct {
	Code             string
	ResourceType     ResourceType
	ResourceID       string
	PasswordHash     []byte // Argon2id(password, PasswordSalt); nil when no password
	PasswordSalt     []byte
	ExpiresAt        *time.Time // nil: never expires
	MaxUses          *int       // nil: unlimited
	UsageCount       int
	SharedWithEmails []string // normalized; empty: no restriction
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
}

// HasPassword reports whether redemption needs a password.
func (l *ShareLink) HasPassword() bool { return len(l.PasswordHash) > 0 }

// ExpiredAt reports whether the link is expired at now.
func (l *ShareLink) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Exhausted reports whether the usage limit is reached.
func (l *ShareLink) Exhausted() bool {
	return l.MaxUses != nil && l.UsageCount >= *l.MaxUses
}

// ShareOptions are the optional constraints given at link creation.
type ShareOptions struct {
	Password         string
	ExpiresIn        time.Duration // zero: never expires
	MaxUses          *int
	SharedWithEmails []string
}

// ShareInfo is the safe public preview of a link.
// It deliberately has no usage, limit, allow-list or password fields.
type ShareInfo struct {
	ResourceType     ResourceType
	ResourceName     string
	RequiresPassword bool
	IsValid          bool
}

// RedeemRequest carries the redeemer's proofs.
type RedeemRequest struct {
	Password    string
	CallerID    uuid.UUID // uuid.Nil when anonymous
	CallerEmail string    // verified email; empty when anonymous
	RemoteIP    string
}

// Grant is the outcome of a successful redemption.
type Grant struct {
	ResourceType ResourceType
	ResourceID   string
	Token        AccessToken // media-read for encrypted resources, share-redeem otherwise
}

// VaultSession is the single live unlock of a user's vault.
type VaultSession struct {
	UserID      uuid.UUID
	TokenHash   []byte
	AccessToken AccessToken // populated on Unlock only
	UnlockedAt  time.Time
	ExpiresAt   time.Time
}

// VaultStatus is the read-only lock state of a vault.
type VaultStatus struct {
	Locked    bool
	ExpiresAt *time.Time
}

// Identity is the caller as established by the primary authentication system.
type Identity struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
}

// VerifiedEmail returns the caller's email only when it was verified.
func (i Identity) VerifiedEmail() string {
	if !i.EmailVerified {
		return ""
	}
	return i.Email
}
