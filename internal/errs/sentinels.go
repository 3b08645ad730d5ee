// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Access-control outcomes. Each one is terminal for the given input.
var (
	// ErrNotFound indicates the requested token, link or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired indicates a token or link is past its expiry.
	ErrExpired = errors.New("expired")

	// ErrExhausted indicates a share link reached its usage limit.
	ErrExhausted = errors.New("exhausted")

	// ErrWrongPassword indicates the supplied share password does not verify.
	ErrWrongPassword = errors.New("wrong password")

	// ErrEmailRestricted indicates the caller is not on the link's allow-list.
	ErrEmailRestricted = errors.New("email restricted")

	// ErrAuthRequired is the email restriction hit by a caller without identity.
	// It matches ErrEmailRestricted under errors.Is.
	ErrAuthRequired = fmt.Errorf("%w: authentication required", ErrEmailRestricted)

	// ErrInvalidPassphrase indicates a failed vault unlock. It never says why.
	ErrInvalidPassphrase = errors.New("invalid passphrase")

	// ErrAlreadyConfigured indicates the vault verifier already exists.
	ErrAlreadyConfigured = errors.New("vault already configured")

	// ErrForbidden indicates the caller is not allowed to act on the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidResource indicates the shared resource does not resolve.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrScopeMismatch indicates a token presented for a different scope or resource.
	ErrScopeMismatch = errors.New("scope mismatch")

	// ErrRevoked indicates a token was explicitly invalidated.
	ErrRevoked = errors.New("revoked")
)

// Infrastructure and request-shape errors.
var (
	// ErrUnavailable indicates a storage failure; safe to retry with backoff.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrInvalidArgument indicates malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized indicates a missing or invalid primary identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a temporary lock due to repeated failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., share code taken).
	ErrAlreadyExists = errors.New("already exists")
)

// Kind returns a stable machine-readable name for the error, as rendered to clients.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, ErrEmailRestricted):
		return "email_restricted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrWrongPassword):
		return "wrong_password"
	case errors.Is(err, ErrInvalidPassphrase):
		return "invalid_passphrase"
	case errors.Is(err, ErrAlreadyConfigured):
		return "already_configured"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidResource):
		return "invalid_resource"
	case errors.Is(err, ErrScopeMismatch):
		return "scope_mismatch"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	default:
		return "internal"
	}
}
