package cache

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryKV_QuotaAccounting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := NewMemoryKV(20)

	if err := kv.Write(ctx, "k1", "12345678"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if kv.Used() != 10 {
		t.Fatalf("used=%d want=10", kv.Used())
	}
	// Overwrite is charged by its delta.
	if err := kv.Write(ctx, "k1", "123456789012345678"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := kv.Write(ctx, "k2", "x"); !errors.Is(err, ErrStorageFull) {
		t.Fatalf("err=%v want ErrStorageFull", err)
	}
	if err := kv.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if kv.Used() != 0 {
		t.Fatalf("used=%d want=0", kv.Used())
	}
	if err := kv.Write(ctx, "k2", "x"); err != nil {
		t.Fatalf("write after delete: %v", err)
	}
}

func TestMemoryKV_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	kv := NewMemoryKV(0)
	if err := kv.Write(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
