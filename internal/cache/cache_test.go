package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetReturnsSetValue(t *testing.T) {
	c := New[string](time.Minute, 0)
	defer c.Close()

	c.Set(1, "alpha")
	got, ok := c.Get(1)
	if !ok {
		t.Fatalf("expected hit for id 1")
	}
	if got != "alpha" {
		t.Fatalf("expected alpha, got %q", got)
	}
	if _, ok := c.Get(2); ok {
		t.Fatalf("expected miss for id 2")
	}
}

func TestGetEvictsExpiredEntry(t *testing.T) {
	c := New[string](time.Minute, 0)
	defer c.Close()

	now := time.Now()
	c.SetNowFunc(func() time.Time { return now })
	c.Set(1, "alpha")

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected entry evicted on access, len=%d", c.Len())
	}
}

func TestGetRefreshesDeadline(t *testing.T) {
	c := New[string](time.Minute, 0)
	defer c.Close()

	now := time.Now()
	c.SetNowFunc(func() time.Time { return now })
	c.Set(1, "alpha")

	// Touch the entry just before expiry, then step past the original
	// deadline. The refreshed deadline keeps it alive.
	now = now.Add(50 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected hit before expiry")
	}
	now = now.Add(50 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected refreshed entry to survive")
	}
}

func TestNotifyRefreshesDeadline(t *testing.T) {
	c := New[string](time.Minute, 0)
	defer c.Close()

	now := time.Now()
	c.SetNowFunc(func() time.Time { return now })
	c.Set(1, "alpha")

	now = now.Add(50 * time.Second)
	c.Notify(1)
	now = now.Add(50 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected notified entry to survive")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c := New[string](time.Minute, 0)
	defer c.Close()

	now := time.Now()
	c.SetNowFunc(func() time.Time { return now })
	c.Set(1, "alpha")
	c.Set(2, "beta")

	now = now.Add(2 * time.Minute)
	c.sweep()
	if c.Len() != 0 {
		t.Fatalf("expected sweep to clear expired entries, len=%d", c.Len())
	}
}

func TestGetOrLoadLoadsOnMissAndCaches(t *testing.T) {
	c := New[int](time.Minute, 0)
	defer c.Close()

	loads := 0
	load := func(context.Context, int64) (int, error) {
		loads++
		return 42, nil
	}

	for i := 0; i < 2; i++ {
		v, err := c.GetOrLoad(context.Background(), 7, load)
		if err != nil {
			t.Fatalf("GetOrLoad: %v", err)
		}
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	}
	if loads != 1 {
		t.Fatalf("expected a single load, got %d", loads)
	}
}

func TestGetOrLoadPropagatesLoadError(t *testing.T) {
	c := New[int](time.Minute, 0)
	defer c.Close()

	wantErr := errors.New("boom")
	_, err := c.GetOrLoad(context.Background(), 7, func(context.Context, int64) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected nothing cached after failed load")
	}
}

func TestDeleteEvicts(t *testing.T) {
	c := New[string](time.Minute, 0)
	defer c.Close()

	c.Set(1, "alpha")
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected deleted entry to miss")
	}
}
