package ratelimit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"
)

// Postgres is a Limiter whose windows live in a shared table, so every server
// instance enforces the same budget.
//
// Identities are hashed with BLAKE2b-256 before they are stored. The pool is
// owned by the caller.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
}

// PostgresOption configures Postgres.
type PostgresOption func(*Postgres) error

// WithSchema sets the schema holding rate_limit_events (default: "glowlogy").
func WithSchema(schema string) PostgresOption {
	return func(p *Postgres) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRE.MatchString(schema) {
			return errors.New("ratelimit: invalid schema identifier")
		}
		p.schema = schema
		return nil
	}
}

// WithPostgresClock overrides the time source.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(p *Postgres) error {
		if now == nil {
			return errors.New("ratelimit: nil clock")
		}
		p.now = now
		return nil
	}
}

// NewPostgres constructs a shared limiter.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	p := &Postgres{
		pool:   pool,
		schema: "glowlogy",
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.pool == nil {
		return nil, errors.New("ratelimit: nil pool")
	}
	return p, nil
}

// EnsureSchema creates the events table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	table := pgx.Identifier{p.schema, "rate_limit_events"}.Sanitize()
	_, err := p.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{p.schema}.Sanitize()+`;

CREATE TABLE IF NOT EXISTS `+table+` (
  policy   TEXT        NOT NULL,
  key_hash TEXT        NOT NULL,
  at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rate_limit_events_key_at
  ON `+table+` (key_hash, at);
`)
	return err
}

// CheckAndRecord implements Limiter.
func (p *Postgres) CheckAndRecord(ctx context.Context, identity string, pol Policy) (Decision, error) {
	if p == nil || p.pool == nil {
		return Decision{}, errors.New("ratelimit: nil limiter")
	}
	if pol.Max <= 0 || pol.Window <= 0 {
		return Decision{}, errors.New("ratelimit: invalid policy")
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	key, err := windowKey(pol, identity)
	if err != nil {
		return Decision{}, err
	}
	keyHash := hashKey(key)
	now := p.now()
	table := pgx.Identifier{p.schema, "rate_limit_events"}.Sanitize()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Decision{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize concurrent checks for the same window.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, keyHash); err != nil {
		return Decision{}, fmt.Errorf("advisory lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM `+table+` WHERE key_hash = $1 AND at <= $2`,
		keyHash, now.Add(-pol.Window),
	); err != nil {
		return Decision{}, fmt.Errorf("prune window: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT at FROM `+table+` WHERE key_hash = $1 ORDER BY at ASC`,
		keyHash,
	)
	if err != nil {
		return Decision{}, err
	}
	events, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return Decision{}, err
	}

	_, d := evaluate(now, events, pol.Max, pol.Window)
	if d.Allowed {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+table+` (policy, key_hash, at) VALUES ($1, $2, $3)`,
			pol.Name, keyHash, now,
		); err != nil {
			return Decision{}, fmt.Errorf("record event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// Sweep deletes events older than maxAge across all windows.
func (p *Postgres) Sweep(ctx context.Context, maxAge time.Duration) (int64, error) {
	if p == nil || p.pool == nil {
		return 0, errors.New("ratelimit: nil limiter")
	}
	table := pgx.Identifier{p.schema, "rate_limit_events"}.Sanitize()
	tag, err := p.pool.Exec(ctx, `DELETE FROM `+table+` WHERE at <= $1`, p.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func hashKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
