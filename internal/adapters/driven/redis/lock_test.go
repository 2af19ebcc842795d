package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestLock_Acquire_Success(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock := NewLock(client)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "products", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected to acquire lock")
	}
}

func TestLock_Acquire_AlreadyHeld(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	acquired, err := lock1.Acquire(ctx, "products", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected first lock to acquire")
	}

	// A second instance must not run the same dataset concurrently
	acquired, err = lock2.Acquire(ctx, "products", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected second lock to fail")
	}
}

func TestLock_Acquire_IndependentDatasets(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock := NewLock(client)
	ctx := context.Background()

	for _, name := range []string{"products", "patents", "exclusivity"} {
		acquired, err := lock.Acquire(ctx, name, 10*time.Second)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", name, err)
		}
		if !acquired {
			t.Errorf("expected to acquire lock %s", name)
		}
	}
}

func TestLock_Release_AllowsReacquire(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	if _, err := lock1.Acquire(ctx, "products", 10*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := lock1.Release(ctx, "products"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired, err := lock2.Acquire(ctx, "products", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected to reacquire released lock")
	}
}

func TestLock_Release_NotOwner(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	if _, err := lock1.Acquire(ctx, "products", 10*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Release by a non-owner must not free the owner's lock
	if err := lock2.Release(ctx, "products"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired, err := lock2.Acquire(ctx, "products", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected lock to still be held by original owner")
	}
}

func TestLock_TTL_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)

	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	if _, err := lock1.Acquire(ctx, "products", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Second)

	acquired, err := lock2.Acquire(ctx, "products", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected lock to be acquirable after TTL expiry")
	}
}
