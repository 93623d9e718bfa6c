package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/cfkit/core"
)

// flakyStore 在 down 为 true 时所有操作都失败。
type flakyStore struct {
	*MemoryStore
	down  bool
	calls int
}

func (f *flakyStore) Name() string { return "flaky" }

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.MemoryStore.Get(ctx, key)
}

func TestBreakerStore(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{MemoryStore: NewMemoryStore()}
	t.Cleanup(func() { _ = inner.Close() })

	b := NewBreakerStore(inner, BreakerSettings{ConsecutiveFailures: 3, Timeout: time.Hour})

	// key 不存在不计为失败
	for range 5 {
		if _, err := b.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
			t.Fatalf("Get(missing) error = %v", err)
		}
	}
	if b.State() != "closed" {
		t.Fatalf("State() = %s, want closed", b.State())
	}

	if err := b.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, err := b.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	inner.down = true
	for range 3 {
		if _, err := b.Get(ctx, "k"); err == nil || core.IsUnavailable(err) {
			t.Fatalf("Get() while down error = %v, want backend error", err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State() = %s, want open", b.State())
	}

	calls := inner.calls
	if _, err := b.Get(ctx, "k"); !core.IsUnavailable(err) {
		t.Errorf("Get() with open breaker error = %v, want UNAVAILABLE", err)
	}
	if inner.calls != calls {
		t.Error("open breaker should not call the backend")
	}
}

func TestBreakerStore_HashOps(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	b := NewBreakerStore(ms, BreakerSettings{})
	t.Cleanup(func() { _ = b.Close() })

	if err := b.HSet(ctx, "h", "f", []byte("1")); err != nil {
		t.Fatalf("HSet() error = %v", err)
	}
	all, err := b.HGetAll(ctx, "h")
	if err != nil || string(all["f"]) != "1" {
		t.Fatalf("HGetAll() = %v, %v", all, err)
	}
	if err := b.HDel(ctx, "h", "f"); err != nil {
		t.Fatalf("HDel() error = %v", err)
	}
	if _, err := b.HGet(ctx, "h", "f"); !core.IsStoreNotFound(err) {
		t.Errorf("HGet() after HDel error = %v", err)
	}
	if b.Name() != "memory" {
		t.Errorf("Name() = %q", b.Name())
	}
}
