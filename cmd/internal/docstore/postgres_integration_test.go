package docstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are enabled when GLOWLOGY_DATABASE_URL is set.

func TestPostgres_InsertQueryUpdate(t *testing.T) {
	t.Parallel()

	s, ctx := mustOpenTestStore(t)

	a, err := s.Insert(ctx, "bookings", Fields{"email": "a@x.com", "date": "2025-06-03", "status": "pending", "createdAt": ServerTimestamp})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Insert(ctx, "bookings", Fields{"email": "b@x.com", "date": "2025-06-02", "status": "confirmed"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	docs, err := s.Query(ctx, "bookings", Query{
		Where:   []Filter{In("status", status("pending"), status("confirmed")), GTE("date", "2025-06-01")},
		OrderBy: "date",
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs want 2", len(docs))
	}
	var first booking
	if err := docs[0].Decode(&first); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if first.Date != "2025-06-02" {
		t.Fatalf("order: first date=%s", first.Date)
	}

	if err := s.UpdateIf(ctx, "bookings", a.ID, []Filter{Eq("status", "pending")}, Fields{"status": "confirmed"}); err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}
	if err := s.UpdateIf(ctx, "bookings", a.ID, []Filter{Eq("status", "pending")}, Fields{"status": "cancelled"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale UpdateIf err=%v want ErrConflict", err)
	}
	if err := s.Update(ctx, "bookings", "missing", Fields{"status": "cancelled"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing Update err=%v want ErrNotFound", err)
	}

	got, err := s.GetMany(ctx, "bookings", []string{a.ID, "missing"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("GetMany got %+v", got)
	}
}

func TestPostgres_ActiveSlotIsUnique(t *testing.T) {
	t.Parallel()

	s, ctx := mustOpenTestStore(t)

	slot := Fields{"locationId": "andheri", "date": "2025-06-10", "time": "11:00", "status": "pending"}
	guard := []Filter{
		Eq("locationId", "andheri"),
		Eq("date", "2025-06-10"),
		Eq("time", "11:00"),
		In("status", "pending", "confirmed"),
	}

	if _, err := s.InsertUnless(ctx, "bookings", slot, guard); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := s.InsertUnless(ctx, "bookings", slot, guard); !errors.Is(err, ErrConflict) {
		t.Fatalf("guarded insert err=%v want ErrConflict", err)
	}
	// The partial unique index backs the guard for unguarded writers too.
	if _, err := s.Insert(ctx, "bookings", slot); !errors.Is(err, ErrConflict) {
		t.Fatalf("unguarded insert err=%v want ErrConflict", err)
	}
}

func TestPostgres_DescOrderBreaksTiesNewestFirst(t *testing.T) {
	t.Parallel()

	s, ctx := mustOpenTestStore(t)

	for _, slot := range []string{"11:00", "12:00"} {
		if _, err := s.Insert(ctx, "bookings", Fields{"email": "tie@x.com", "time": slot}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	docs, err := s.Query(ctx, "bookings", Query{Where: []Filter{Eq("email", "tie@x.com")}, OrderBy: "email", Desc: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var first booking
	if len(docs) != 2 || docs[0].Decode(&first) != nil || first.Time != "12:00" {
		t.Fatalf("first=%+v of %d docs, want the later insert", first, len(docs))
	}
}

func mustOpenTestStore(t *testing.T) (*Postgres, context.Context) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("GLOWLOGY_DATABASE_URL"))
	if dsn == "" {
		t.Skip("GLOWLOGY_DATABASE_URL not set; skipping integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	b := make([]byte, 4)
	_, _ = rand.Read(b)
	schema := "glowlogy_it_" + hex.EncodeToString(b)

	s, err := NewPostgres(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})
	return s, ctx
}
