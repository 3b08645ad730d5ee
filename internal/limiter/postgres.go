package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter implementation with sliding window and lockout.
// Storage failures surface as errs.ErrUnavailable so callers never treat them as a denial.
type PG struct {
	pool     Querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// Querier is the statement subset the limiter needs. It is implemented by
// *pgxpool.Pool and by the repository pool wrapper.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a limiter over a connection pool or any pgx querier.
func NewPG(q Querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{pool: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// HashIP returns a stable hash for a client address to avoid storing raw addresses.
// The port part of host:port is dropped so reconnects share one counter.
func HashIP(ip string) []byte {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether an attempt is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM attempt_limiter WHERE subject=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, subject, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if wait := blockedUntil.Sub(l.now()); wait > 0 {
			return false, wait, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, unavailable(err)
	}
}

// Success forgets the counters for (subject, ip).
func (l *PG) Success(ctx context.Context, subject string, ipHash []byte) error {
	const q = `DELETE FROM attempt_limiter WHERE subject=$1 AND ip_hash=$2`
	_, err := l.pool.Exec(ctx, q, subject, ipHash)
	return unavailable(err)
}

// Failure records a failed attempt and blocks the pair once maxFails failures
// fall within the window. The count restarts when the last failure is older than
// the window or a previous block has run out, so an expired block does not
// re-trigger on the next miss.
func (l *PG) Failure(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()

	const q = `
INSERT INTO attempt_limiter (subject, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', $4)
ON CONFLICT (subject, ip_hash) DO UPDATE
SET
  fail_count = CASE
    WHEN $4 - attempt_limiter.updated_at > $3::interval THEN 1
    WHEN attempt_limiter.blocked_until > 'epoch' AND attempt_limiter.blocked_until <= $4 THEN 1
    ELSE attempt_limiter.fail_count + 1
  END,
  blocked_until = CASE WHEN attempt_limiter.blocked_until <= $4 THEN 'epoch' ELSE attempt_limiter.blocked_until END,
  updated_at = $4
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, subject, ipHash, l.window, now).Scan(&fails); err != nil {
		return false, 0, unavailable(err)
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const upd = `UPDATE attempt_limiter SET blocked_until=$3 WHERE subject=$1 AND ip_hash=$2`
	if _, err := l.pool.Exec(ctx, upd, subject, ipHash, now.Add(l.blockFor)); err != nil {
		return false, 0, unavailable(err)
	}
	return true, l.blockFor, nil
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: limiter: %v", errs.ErrUnavailable, err)
}
