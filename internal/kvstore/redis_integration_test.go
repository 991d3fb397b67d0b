//go:build integration
// +build integration

package kvstore

import (
	"context"
	"os"
	"testing"
	"time"
)

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// TestRedisStore_GetSet_Integration verifies set/get round trips against
// a real redis server.
func TestRedisStore_GetSet_Integration(t *testing.T) {
	s := NewRedisStore(RedisConfig{Addr: redisAddr()})
	defer s.Close()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not running at %s: %v", redisAddr(), err)
	}

	key := "integration:getset"
	if err := s.Set(ctx, key, "v1", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || got != "v1" {
		t.Errorf("Get() = %q, %v, want \"v1\", true", got, ok)
	}

	if _, ok, _ := s.Get(ctx, "integration:absent"); ok {
		t.Error("Get(absent) ok = true, want false")
	}
}

// TestRedisStore_IncrBy_Integration verifies the pipelined INCRBY+EXPIRE
// behaves atomically and carries its TTL.
func TestRedisStore_IncrBy_Integration(t *testing.T) {
	s := NewRedisStore(RedisConfig{Addr: redisAddr()})
	defer s.Close()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not running at %s: %v", redisAddr(), err)
	}

	key := "integration:counter"
	if err := s.Set(ctx, key, "0", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.IncrBy(ctx, key, 2, time.Minute)
	if err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if got != 2 {
		t.Errorf("IncrBy() = %d, want 2", got)
	}
	got, err = s.IncrBy(ctx, key, 1, time.Minute)
	if err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if got != 3 {
		t.Errorf("IncrBy() = %d, want 3", got)
	}
}

// TestRedisStore_TTL_Integration verifies short TTLs expire server-side.
func TestRedisStore_TTL_Integration(t *testing.T) {
	s := NewRedisStore(RedisConfig{Addr: redisAddr()})
	defer s.Close()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis not running at %s: %v", redisAddr(), err)
	}

	key := "integration:ttl"
	if err := s.Set(ctx, key, "ephemeral", time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Error("Get() after TTL ok = true, want false")
	}
}
