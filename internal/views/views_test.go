package views

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeFlusher struct {
	mu     sync.Mutex
	counts map[int64]int64
	err    error
}

func newFakeFlusher() *fakeFlusher {
	return &fakeFlusher{counts: make(map[int64]int64)}
}

func (f *fakeFlusher) Add(_ context.Context, contentID, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.counts[contentID] += delta
	return nil
}

func (f *fakeFlusher) count(contentID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[contentID]
}

func newTestBuffer(t *testing.T, flusher Flusher) (*RedisBuffer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBufferWithClient(client, flusher), mr
}

func TestAddStagesIncrements(t *testing.T) {
	b, mr := newTestBuffer(t, newFakeFlusher())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Add(ctx, 42, 1); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	got, err := mr.Get("views:42")
	if err != nil {
		t.Fatalf("redis get: %v", err)
	}
	if got != "3" {
		t.Fatalf("expected staged count 3, got %q", got)
	}
}

func TestFlushDrainsIntoFlusher(t *testing.T) {
	flusher := newFakeFlusher()
	b, mr := newTestBuffer(t, flusher)
	ctx := context.Background()

	if err := b.Add(ctx, 42, 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Add(ctx, 7, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if flusher.count(42) != 2 || flusher.count(7) != 1 {
		t.Fatalf("expected drained counts 2 and 1, got %d and %d", flusher.count(42), flusher.count(7))
	}
	if mr.Exists("views:42") || mr.Exists("views:7") {
		t.Fatalf("expected drained keys deleted")
	}

	// A second flush over an empty buffer is a no-op.
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("empty Flush: %v", err)
	}
	if flusher.count(42) != 2 {
		t.Fatalf("expected no double count, got %d", flusher.count(42))
	}
}

func TestFlushRestagesDeltaOnStoreError(t *testing.T) {
	flusher := newFakeFlusher()
	flusher.err = errors.New("store down")
	b, mr := newTestBuffer(t, flusher)
	ctx := context.Background()

	if err := b.Add(ctx, 42, 5); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Flush(ctx); err == nil {
		t.Fatalf("expected flush error")
	}

	// The counter went back into Redis so the views survive the outage.
	got, err := mr.Get("views:42")
	if err != nil {
		t.Fatalf("redis get: %v", err)
	}
	if got != "5" {
		t.Fatalf("expected restaged count 5, got %q", got)
	}

	flusher.mu.Lock()
	flusher.err = nil
	flusher.mu.Unlock()
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush after recovery: %v", err)
	}
	if flusher.count(42) != 5 {
		t.Fatalf("expected recovered count 5, got %d", flusher.count(42))
	}
}

func TestFlushIgnoresForeignKeys(t *testing.T) {
	flusher := newFakeFlusher()
	b, mr := newTestBuffer(t, flusher)
	ctx := context.Background()

	mr.Set("session:abc", "unrelated")
	if err := b.Add(ctx, 42, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !mr.Exists("session:abc") {
		t.Fatalf("expected foreign key untouched")
	}
	if flusher.count(42) != 1 {
		t.Fatalf("expected count 1, got %d", flusher.count(42))
	}
}
