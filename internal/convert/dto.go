// Package convert maps domain models to wire DTOs and validates requests.
package convert

import (
	"time"

	"github.com/and161185/media-vault/internal/model"
)

// --- requests ---

// CreateShareRequest is the body of POST /shares.
type CreateShareRequest struct {
	ResourceType     string   `json:"resourceType" validate:"required,oneof=file folder album category"`
	ResourceID       string   `json:"resourceId" validate:"required,max=128"`
	Password         string   `json:"password,omitempty" validate:"max=256"`
	ExpiresInHours   *int     `json:"expiresInHours,omitempty" validate:"omitempty,gt=0,lte=87600"`
	MaxUses          *int     `json:"maxUses,omitempty" validate:"omitempty,gt=0"`
	SharedWithEmails []string `json:"sharedWithEmails,omitempty" validate:"max=100,dive,email"`
}

// ToModel splits the request into the resource reference and link options.
func (r CreateShareRequest) ToModel() (model.ResourceType, string, model.ShareOptions) {
	opts := model.ShareOptions{
		Password:         r.Password,
		SharedWithEmails: r.SharedWithEmails,
	}
	if r.ExpiresInHours != nil {
		opts.ExpiresIn = time.Duration(*r.ExpiresInHours) * time.Hour
	}
	if r.MaxUses != nil {
		n := *r.MaxUses
		opts.MaxUses = &n
	}
	return model.ResourceType(r.ResourceType), r.ResourceID, opts
}

// ResourceRef identifies a resource in queries and bodies.
type ResourceRef struct {
	ResourceType string `json:"resourceType" form:"resourceType" validate:"required,oneof=file folder album category"`
	ResourceID   string `json:"resourceId" form:"resourceId" validate:"required,max=128"`
}

// RedeemShareRequest is the body of POST /shares/:code/redeem. The body is optional.
type RedeemShareRequest struct {
	Password string `json:"password,omitempty" validate:"max=256"`
}

// PassphraseRequest is the body of vault setup and unlock.
type PassphraseRequest struct {
	Passphrase string `json:"passphrase" validate:"required,max=1024"`
}

// --- responses ---

// TokenDTO carries an issued bearer token. It is sent only in response bodies.
type TokenDTO struct {
	Token      string    `json:"token"`
	Scope      string    `json:"scope"`
	ResourceID string    `json:"resourceId,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ToTokenDTO converts an issued token.
func ToTokenDTO(t model.AccessToken) TokenDTO {
	return TokenDTO{
		Token:      t.Value,
		Scope:      string(t.Scope),
		ResourceID: t.ResourceID,
		ExpiresAt:  t.ExpiresAt.UTC(),
	}
}

// ShareLinkDTO is the owner view of a link, including usage.
type ShareLinkDTO struct {
	Code             string     `json:"code"`
	ResourceType     string     `json:"resourceType"`
	ResourceID       string     `json:"resourceId"`
	RequiresPassword bool       `json:"requiresPassword"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	MaxUses          *int       `json:"maxUses,omitempty"`
	UsageCount       int        `json:"usageCount"`
	SharedWithEmails []string   `json:"sharedWithEmails,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ToShareLinkDTO converts a link for its owner. Password material is never included.
func ToShareLinkDTO(l model.ShareLink) ShareLinkDTO {
	d := ShareLinkDTO{
		Code:             l.Code,
		ResourceType:     string(l.ResourceType),
		ResourceID:       l.ResourceID,
		RequiresPassword: l.HasPassword(),
		MaxUses:          l.MaxUses,
		UsageCount:       l.UsageCount,
		SharedWithEmails: l.SharedWithEmails,
		CreatedAt:        l.CreatedAt.UTC(),
	}
	if l.ExpiresAt != nil {
		exp := l.ExpiresAt.UTC()
		d.ExpiresAt = &exp
	}
	return d
}

// ToShareLinkDTOs converts a list; nil becomes an empty slice.
func ToShareLinkDTOs(ls []model.ShareLink) []ShareLinkDTO {
	out := make([]ShareLinkDTO, 0, len(ls))
	for _, l := range ls {
		out = append(out, ToShareLinkDTO(l))
	}
	return out
}

// ShareInfoDTO is the public preview of a link.
type ShareInfoDTO struct {
	ResourceType     string `json:"resourceType"`
	ResourceName     string `json:"resourceName,omitempty"`
	RequiresPassword bool   `json:"requiresPassword"`
	IsValid          bool   `json:"isValid"`
}

func ToShareInfoDTO(i model.ShareInfo) ShareInfoDTO {
	return ShareInfoDTO{
		ResourceType:     string(i.ResourceType),
		ResourceName:     i.ResourceName,
		RequiresPassword: i.RequiresPassword,
		IsValid:          i.IsValid,
	}
}

// GrantDTO is the outcome of a redemption.
type GrantDTO struct {
	ResourceType string   `json:"resourceType"`
	ResourceID   string   `json:"resourceId"`
	Access       TokenDTO `json:"access"`
}

func ToGrantDTO(g model.Grant) GrantDTO {
	return GrantDTO{
		ResourceType: string(g.ResourceType),
		ResourceID:   g.ResourceID,
		Access:       ToTokenDTO(g.Token),
	}
}

// VaultSessionDTO is the outcome of an unlock.
type VaultSessionDTO struct {
	Token      string    `json:"token"`
	UnlockedAt time.Time `json:"unlockedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func ToVaultSessionDTO(s model.VaultSession) VaultSessionDTO {
	return VaultSessionDTO{
		Token:      s.AccessToken.Value,
		UnlockedAt: s.UnlockedAt.UTC(),
		ExpiresAt:  s.ExpiresAt.UTC(),
	}
}

// VaultStatusDTO is the lock state of a vault.
type VaultStatusDTO struct {
	Locked    bool       `json:"locked"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func ToVaultStatusDTO(s model.VaultStatus) VaultStatusDTO {
	d := VaultStatusDTO{Locked: s.Locked}
	if s.ExpiresAt != nil {
		exp := s.ExpiresAt.UTC()
		d.ExpiresAt = &exp
	}
	return d
}

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Error ErrorDTO `json:"error"`
}

type ErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
