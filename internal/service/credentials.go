package service

import (
	"context"
	"errors"

	pkgcrypto "github.com/and161185/media-vault/internal/crypto"
	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// PassphraseVerifier is the credential store behind the vault.
type PassphraseVerifier interface {
	// VerifyPassphrase reports whether passphrase matches the user's verifier.
	// A user without a verifier gets false, nil after the same amount of work.
	VerifyPassphrase(ctx context.Context, userID uuid.UUID, passphrase string) (bool, error)
	// SetPassphrase stores the first verifier; errs.ErrAlreadyConfigured afterwards.
	SetPassphrase(ctx context.Context, userID uuid.UUID, passphrase string) error
}

// dummySalt feeds the Argon2id run for users without a verifier.
var dummySalt = make([]byte, pkgcrypto.SaltLen)

type ArgonCredentials struct {
	vaults repository.VaultRepository
}

// NewArgonCredentials constructs an Argon2id verifier store.
func NewArgonCredentials(vaults repository.VaultRepository) *ArgonCredentials {
	return &ArgonCredentials{vaults: vaults}
}

func (c *ArgonCredentials) VerifyPassphrase(ctx context.Context, userID uuid.UUID, passphrase string) (bool, error) {
	verifier, salt, err := c.vaults.GetVerifier(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		_ = pkgcrypto.VerifyPassword([]byte(passphrase), dummySalt, nil)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return pkgcrypto.VerifyPassword([]byte(passphrase), salt, verifier), nil
}

func (c *ArgonCredentials) SetPassphrase(ctx context.Context, userID uuid.UUID, passphrase string) error {
	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return err
	}
	return c.vaults.CreateVerifier(ctx, userID, pkgcrypto.HashPassword([]byte(passphrase), salt), salt)
}
