package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when GLOWLOGY_DATABASE_URL is set.

func TestPostgres_SharedWindow(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	clk := newTestClock()
	a, err := NewPostgres(pool, WithSchema(schema), WithPostgresClock(clk.Now))
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	b, err := NewPostgres(pool, WithSchema(schema), WithPostgresClock(clk.Now))
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pol := Policy{Name: "contact", Kind: KindEmail, Max: 2, Window: time.Hour}

	if d, err := a.CheckAndRecord(ctx, "a@x.com", pol); err != nil || !d.Allowed {
		t.Fatalf("first: d=%+v err=%v", d, err)
	}
	clk.Advance(10 * time.Minute)
	if d, err := b.CheckAndRecord(ctx, "A@X.com", pol); err != nil || !d.Allowed {
		t.Fatalf("second: d=%+v err=%v", d, err)
	}
	d, err := a.CheckAndRecord(ctx, "a@x.com", pol)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if d.Allowed {
		t.Fatalf("third must be rejected across instances")
	}
	if d.RetryAfter != 50*time.Minute {
		t.Fatalf("RetryAfter=%v want=50m", d.RetryAfter)
	}

	var raw int
	if err := pool.QueryRow(ctx,
		`SELECT count(*) FROM `+pgx.Identifier{schema, "rate_limit_events"}.Sanitize()+` WHERE key_hash LIKE '%@%'`,
	).Scan(&raw); err != nil {
		t.Fatalf("count: %v", err)
	}
	if raw != 0 {
		t.Fatalf("identities must be stored hashed")
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("GLOWLOGY_DATABASE_URL"))
	if dsn == "" {
		t.Skip("GLOWLOGY_DATABASE_URL not set; skipping integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	b := make([]byte, 4)
	_, _ = rand.Read(b)
	schema := "glowlogy_it_" + hex.EncodeToString(b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE `+pgx.Identifier{schema, "rate_limit_events"}.Sanitize()+` (
  policy   TEXT NOT NULL,
  key_hash TEXT NOT NULL,
  at       TIMESTAMPTZ NOT NULL
)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}
