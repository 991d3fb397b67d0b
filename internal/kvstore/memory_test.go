package kvstore

import (
	"context"
	"testing"
	"time"
)

// fixedClock returns a now func pointing at t, advanceable via the
// returned setter.
func fixedClock(start time.Time) (func() time.Time, func(d time.Duration)) {
	current := start
	return func() time.Time { return current },
		func(d time.Duration) { current = current.Add(d) }
}

// TestMemoryStore_GetSet verifies basic set/get round trips and misses.
func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || got != "v" {
		t.Errorf("Get() = %q, %v, want \"v\", true", got, ok)
	}

	_, ok, err = s.Get(ctx, "absent")
	if err != nil {
		t.Fatalf("Get(absent) error = %v", err)
	}
	if ok {
		t.Error("Get(absent) ok = true, want false")
	}
}

// TestMemoryStore_TTLExpiry verifies that entries expire after their TTL
// and report as misses.
func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	now, advance := fixedClock(time.Unix(1_700_000_000, 0))
	s.now = now
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	advance(59 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("Get() before expiry ok = false, want true")
	}
	advance(2 * time.Second)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("Get() after expiry ok = true, want false")
	}
}

// TestMemoryStore_IncrBy verifies counter arithmetic and that each
// increment refreshes the TTL, so the counter resets only after the TTL
// elapses from the last increment.
func TestMemoryStore_IncrBy(t *testing.T) {
	s := NewMemoryStore()
	now, advance := fixedClock(time.Unix(1_700_000_000, 0))
	s.now = now
	ctx := context.Background()

	got, err := s.IncrBy(ctx, "c", 1, time.Minute)
	if err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if got != 1 {
		t.Errorf("IncrBy() = %d, want 1", got)
	}

	advance(45 * time.Second)
	got, err = s.IncrBy(ctx, "c", 2, time.Minute)
	if err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if got != 3 {
		t.Errorf("IncrBy() = %d, want 3", got)
	}

	// 45s after the refresh the counter is still alive: TTL is measured
	// from the last increment.
	advance(45 * time.Second)
	if _, ok, _ := s.Get(ctx, "c"); !ok {
		t.Fatal("counter expired despite TTL refresh")
	}

	advance(20 * time.Second)
	got, err = s.IncrBy(ctx, "c", 1, time.Minute)
	if err != nil {
		t.Fatalf("IncrBy() after expiry error = %v", err)
	}
	if got != 1 {
		t.Errorf("IncrBy() after expiry = %d, want 1 (fresh counter)", got)
	}
}

// TestMemoryStore_IncrBy_Corrupt verifies that incrementing a
// non-numeric value errors instead of silently clobbering it.
func TestMemoryStore_IncrBy_Corrupt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Set(ctx, "c", "not-a-number", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := s.IncrBy(ctx, "c", 1, time.Minute); err == nil {
		t.Error("IncrBy() on corrupt value error = nil, want error")
	}
}
