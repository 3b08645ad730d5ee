// Package limiter defines interfaces and implementations for secret-guessing rate limiting.
package limiter

import (
	"context"
	"time"
)

// Limiter controls attempts against a guessable secret and temporary lockouts.
// A subject names the secret, e.g. "vault:<user id>" or "share:<code>".
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful attempt.
	Success(ctx context.Context, subject string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
}

// VaultSubject is the limiter subject for a user's vault passphrase.
func VaultSubject(userID string) string { return "vault:" + userID }

// ShareSubject is the limiter subject for a share link password.
func ShareSubject(code string) string { return "share:" + code }
