package ratelimit

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/maruonline/leadgen/internal/db"
)

// PostgresStore shares counters between replicas through one atomic upsert
// per request.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const rateLimitMigration = `
CREATE TABLE IF NOT EXISTS rate_limits (
	key      TEXT PRIMARY KEY,
	count    INTEGER NOT NULL,
	reset_at TIMESTAMPTZ NOT NULL,
	allowed  BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_rate_limits_reset_at ON rate_limits (reset_at);
`

// takeSQL starts a fresh window when the stored one has ended, increments
// while under the limit, and otherwise leaves the row untouched apart from
// recording the denial.
const takeSQL = `
INSERT INTO rate_limits (key, count, reset_at, allowed)
VALUES ($1, 1, $3, TRUE)
ON CONFLICT (key) DO UPDATE SET
	count = CASE
		WHEN rate_limits.reset_at <= $2 THEN 1
		WHEN rate_limits.count < $4 THEN rate_limits.count + 1
		ELSE rate_limits.count END,
	allowed = (rate_limits.reset_at <= $2 OR rate_limits.count < $4),
	reset_at = CASE WHEN rate_limits.reset_at <= $2 THEN $3 ELSE rate_limits.reset_at END
RETURNING count, reset_at, allowed`

// Migrate creates the rate_limits table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, rateLimitMigration); err != nil {
		return eris.Wrap(err, "ratelimit: migrate")
	}
	return nil
}

func (s *PostgresStore) Take(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	var (
		count   int
		resetAt time.Time
		allowed bool
	)
	err := s.pool.QueryRow(ctx, takeSQL, key, now, now.Add(policy.Window), policy.Limit).
		Scan(&count, &resetAt, &allowed)
	if err != nil {
		return Decision{}, eris.Wrapf(err, "ratelimit: take %s", key)
	}

	d := Decision{Allowed: allowed, Limit: policy.Limit, ResetAt: resetAt}
	if allowed {
		d.Remaining = max(0, policy.Limit-count)
	}
	return d, nil
}

// Purge deletes rows whose window ended at or before before.
func (s *PostgresStore) Purge(ctx context.Context, before time.Time) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rate_limits WHERE reset_at <= $1`, before); err != nil {
		return eris.Wrap(err, "ratelimit: purge")
	}
	return nil
}
