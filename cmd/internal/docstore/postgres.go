package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by one jsonb table.
//
// Ownership model:
// - Postgres does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
}

// PostgresOption configures Postgres.
type PostgresOption func(*Postgres) error

// WithSchema sets the schema holding the documents table (default: "glowlogy").
func WithSchema(schema string) PostgresOption {
	return func(p *Postgres) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("docstore: empty schema")
		}
		if !fieldRE.MatchString(schema) {
			return errors.New("docstore: invalid schema identifier")
		}
		p.schema = schema
		return nil
	}
}

// WithPostgresClock overrides the clock that resolves ServerTimestamp.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(p *Postgres) error {
		if now == nil {
			return errors.New("docstore: nil clock")
		}
		p.now = now
		return nil
	}
}

// NewPostgres constructs a Postgres-backed Store.
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
		return nil, errors.New("docstore: nil pool")
	}
	return p, nil
}

// Close is a no-op because the pool is owned by the caller.
func (p *Postgres) Close() error { return nil }

func (p *Postgres) table() string {
	return pgx.Identifier{p.schema, "documents"}.Sanitize()
}

// EnsureSchema creates the schema, table and indexes when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	schema := pgx.Identifier{p.schema}.Sanitize()
	t := p.table()
	ddl := `
CREATE SCHEMA IF NOT EXISTS ` + schema + `;

CREATE TABLE IF NOT EXISTS ` + t + ` (
  collection TEXT        NOT NULL,
  id         TEXT        NOT NULL,
  data       JSONB       NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  seq        BIGSERIAL,
  PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection_created
  ON ` + t + ` (collection, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_documents_data
  ON ` + t + ` USING GIN (data jsonb_path_ops);

CREATE UNIQUE INDEX IF NOT EXISTS uq_documents_active_booking_slot
  ON ` + t + ` ((data->>'locationId'), (data->>'date'), (data->>'time'))
  WHERE collection = 'bookings' AND data->>'status' IN ('pending', 'confirmed');
`
	_, err := p.pool.Exec(ctx, ddl)
	return err
}

func (p *Postgres) Insert(ctx context.Context, collection string, f Fields) (Document, error) {
	return p.InsertUnless(ctx, collection, f, nil)
}

func (p *Postgres) InsertUnless(ctx context.Context, collection string, f Fields, guard []Filter) (Document, error) {
	if p == nil || p.pool == nil {
		return Document{}, errors.New("docstore: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := checkFilters(guard); err != nil {
		return Document{}, err
	}
	now := p.now()
	fields, err := resolve(f, now)
	if err != nil {
		return Document{}, err
	}
	id, err := newID(now)
	if err != nil {
		return Document{}, err
	}
	fields["id"] = id
	data, err := json.Marshal(fields)
	if err != nil {
		return Document{}, err
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(guard) > 0 {
		// Serialize writers racing on the same guard.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, guardKey(collection, guard)); err != nil {
			return Document{}, fmt.Errorf("advisory lock: %w", err)
		}
		args := []any{collection}
		where, err := buildWhere(guard, &args)
		if err != nil {
			return Document{}, err
		}
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM `+p.table()+` WHERE collection = $1`+where+`)`,
			args...,
		).Scan(&exists); err != nil {
			return Document{}, err
		}
		if exists {
			return Document{}, ErrConflict
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+p.table()+` (collection, id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		collection, id, data, now,
	); err != nil {
		if isUniqueViolation(err) {
			return Document{}, ErrConflict
		}
		return Document{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return Document{}, ErrConflict
		}
		return Document{}, err
	}
	return Document{ID: id, Data: data, CreatedAt: now, UpdatedAt: now}, nil
}

func (p *Postgres) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if p == nil || p.pool == nil {
		return nil, errors.New("docstore: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkFilters(q.Where); err != nil {
		return nil, err
	}

	args := []any{collection}
	where, err := buildWhere(q.Where, &args)
	if err != nil {
		return nil, err
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	order := "seq " + dir
	if q.OrderBy != "" {
		if err := checkField(q.OrderBy); err != nil {
			return nil, err
		}
		switch q.OrderBy {
		case "createdAt":
			order = "created_at " + dir + ", seq " + dir
		case "updatedAt":
			order = "updated_at " + dir + ", seq " + dir
		default:
			args = append(args, q.OrderBy)
			order = "data->$" + strconv.Itoa(len(args)) + " " + dir + ", seq " + dir
		}
	}

	sql := `SELECT id, data, created_at, updated_at FROM ` + p.table() + ` WHERE collection = $1` + where + ` ORDER BY ` + order
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	if p == nil || p.pool == nil {
		return Document{}, errors.New("docstore: nil store")
	}
	var d Document
	err := p.pool.QueryRow(ctx,
		`SELECT id, data, created_at, updated_at FROM `+p.table()+` WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&d.ID, &d.Data, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (p *Postgres) GetMany(ctx context.Context, collection string, ids []string) ([]Document, error) {
	if p == nil || p.pool == nil {
		return nil, errors.New("docstore: nil store")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, data, created_at, updated_at FROM `+p.table()+` WHERE collection = $1 AND id = ANY($2)`,
		collection, ids,
	)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (p *Postgres) Update(ctx context.Context, collection, id string, f Fields) error {
	return p.UpdateIf(ctx, collection, id, nil, f)
}

func (p *Postgres) UpdateIf(ctx context.Context, collection, id string, expect []Filter, f Fields) error {
	if p == nil || p.pool == nil {
		return errors.New("docstore: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkFilters(expect); err != nil {
		return err
	}
	now := p.now()
	fields, err := resolve(f, now)
	if err != nil {
		return err
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	args := []any{collection, id, patch, now}
	where, err := buildWhere(expect, &args)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE `+p.table()+`
		    SET data = data || $3::jsonb,
		        updated_at = $4
		  WHERE collection = $1 AND id = $2`+where,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish missing from precondition failure.
	var exists bool
	if err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+p.table()+` WHERE collection = $1 AND id = $2)`,
		collection, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func collectDocuments(rows pgx.Rows) ([]Document, error) {
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Data, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// buildWhere renders filters as " AND ..." clauses, appending their arguments.
func buildWhere(fs []Filter, args *[]any) (string, error) {
	var b strings.Builder
	next := func(v any) string {
		*args = append(*args, v)
		return "$" + strconv.Itoa(len(*args))
	}

	for _, f := range fs {
		if f.Op == OpIn {
			vs, _ := f.Value.([]any)
			enc := make([]string, 0, len(vs))
			for _, v := range vs {
				raw, err := json.Marshal(normalizeValue(v))
				if err != nil {
					return "", err
				}
				enc = append(enc, string(raw))
			}
			field := next(f.Field)
			b.WriteString(" AND data->" + field + " = ANY(" + next(enc) + "::jsonb[])")
			continue
		}

		v := normalizeValue(f.Value)
		if f.Op == OpEq {
			raw, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			field := next(f.Field)
			b.WriteString(" AND data->" + field + " = " + next(string(raw)) + "::jsonb")
			continue
		}

		cmp := ">="
		if f.Op == OpLTE {
			cmp = "<="
		}
		switch x := v.(type) {
		case time.Time:
			switch f.Field {
			case "createdAt":
				b.WriteString(" AND created_at " + cmp + " " + next(x))
			case "updatedAt":
				b.WriteString(" AND updated_at " + cmp + " " + next(x))
			default:
				field := next(f.Field)
				b.WriteString(" AND (data->>" + field + ")::timestamptz " + cmp + " " + next(x))
			}
		case string:
			field := next(f.Field)
			b.WriteString(" AND (data->>" + field + ") COLLATE \"C\" " + cmp + " " + next(x))
		case int64, float64:
			field := next(f.Field)
			b.WriteString(" AND (data->>" + field + ")::numeric " + cmp + " " + next(x))
		default:
			return "", fmt.Errorf("docstore: %s %s: unsupported operand %T", f.Field, f.Op, f.Value)
		}
	}
	return b.String(), nil
}

// guardKey is a stable lock key for a guard set.
func guardKey(collection string, guard []Filter) string {
	parts := make([]string, 0, len(guard))
	for _, f := range guard {
		parts = append(parts, fmt.Sprintf("%s%s%v", f.Field, f.Op, f.Value))
	}
	sort.Strings(parts)
	return collection + "|" + strings.Join(parts, "&")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}

var _ Store = (*Postgres)(nil)
