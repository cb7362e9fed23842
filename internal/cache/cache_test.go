package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d", c.Size())
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("overwrite not applied: %v", v)
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int, string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set(1, "one")
	c.Set(2, "two")
	now = now.Add(30 * time.Second)
	c.Set(3, "three")

	now = now.Add(45 * time.Second)
	if _, ok := c.Get(1); ok {
		t.Error("entry 1 should have expired")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired removed %d, want 1", removed)
	}
	if v, ok := c.Get(3); !ok || v != "three" {
		t.Errorf("entry 3 = %q, %v", v, ok)
	}
}

type countingLookup struct {
	users map[uuid.UUID]bool
	calls int
	err   error
}

func (l *countingLookup) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	l.calls++
	return l.users[id], l.err
}

func TestUserDirectory(t *testing.T) {
	ctx := context.Background()
	known, unknown := uuid.New(), uuid.New()
	next := &countingLookup{users: map[uuid.UUID]bool{known: true}}
	dir := NewUserDirectory(next, 10, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := dir.Exists(ctx, known)
		if err != nil || !ok {
			t.Fatalf("Exists(known) = %v, %v", ok, err)
		}
	}
	if next.calls != 1 {
		t.Errorf("positive lookups should be cached, got %d calls", next.calls)
	}

	dir.Exists(ctx, unknown)
	next.users[unknown] = true
	if ok, _ := dir.Exists(ctx, unknown); !ok {
		t.Error("negative lookups must not be cached")
	}

	dir.Forget(known)
	next.err = errors.New("db down")
	if _, err := dir.Exists(ctx, known); err == nil {
		t.Error("expected error from underlying directory after Forget")
	}
}

func TestManager_CleanAll(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[string, int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("x", 1)
	c.Set("y", 2)
	now = now.Add(2 * time.Second)

	m := NewManager()
	m.Register(c)
	if n := m.CleanAll(); n != 2 {
		t.Errorf("CleanAll = %d, want 2", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}
