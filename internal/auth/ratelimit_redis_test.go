package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisTracker_Lockout(t *testing.T) {
	mr, client := newTestRedis(t)
	rt := auth.NewRedisTracker(client, auth.TrackerConfig{MaxFailures: 3, LockoutDuration: time.Minute})
	defer rt.Close()

	ctx := context.Background()
	clientIP := "203.0.113.7"

	for i := 1; i <= 2; i++ {
		count, err := rt.RecordFailure(ctx, clientIP)
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if count != i {
			t.Errorf("expected count %d, got %d", i, count)
		}
	}
	if _, err := rt.Check(ctx, clientIP); err != nil {
		t.Errorf("expected no lockout below threshold, got %v", err)
	}

	if _, err := rt.RecordFailure(ctx, clientIP); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	retryAfter, err := rt.Check(ctx, clientIP)
	if !errors.Is(err, auth.ErrClientLocked) {
		t.Fatalf("expected ErrClientLocked, got %v", err)
	}
	if retryAfter != time.Minute {
		t.Errorf("expected retryAfter of 1m, got %v", retryAfter)
	}

	mr.FastForward(time.Minute + time.Second)

	if _, err := rt.Check(ctx, clientIP); err != nil {
		t.Errorf("expected lockout to expire, got %v", err)
	}
}

func TestRedisTracker_Reset(t *testing.T) {
	mr, client := newTestRedis(t)
	rt := auth.NewRedisTracker(client, auth.TrackerConfig{MaxFailures: 1})
	defer rt.Close()

	ctx := context.Background()

	if _, err := rt.RecordFailure(ctx, "198.51.100.1"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !mr.Exists("realmgate:fail:198.51.100.1") {
		t.Fatal("expected failure key to exist")
	}

	if err := rt.Reset(ctx, "198.51.100.1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if mr.Exists("realmgate:fail:198.51.100.1") {
		t.Error("expected failure key to be deleted")
	}
}

func TestRedisTracker_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	rt := auth.NewRedisTracker(client, auth.TrackerConfig{})
	defer rt.Close()

	mr.Close()

	ctx := context.Background()
	if _, err := rt.RecordFailure(ctx, "192.0.2.1"); !errors.Is(err, auth.ErrTrackerUnavailable) {
		t.Errorf("expected ErrTrackerUnavailable, got %v", err)
	}
	if _, err := rt.Check(ctx, "192.0.2.1"); !errors.Is(err, auth.ErrTrackerUnavailable) {
		t.Errorf("expected ErrTrackerUnavailable, got %v", err)
	}
}
