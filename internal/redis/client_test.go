package redisdb

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"go-autoagent/internal/config"
)

func TestNewClient_BasicConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.Password = ""
	cfg.Redis.DB = 15

	client := NewClient(cfg)
	if client == nil {
		t.Fatalf("NewClient returned nil")
	}
	opts := client.Options()
	if opts.Addr != cfg.Redis.Addr {
		t.Errorf("expected Addr %s, got %s", cfg.Redis.Addr, opts.Addr)
	}
	if opts.DB != cfg.Redis.DB {
		t.Errorf("expected DB %d, got %d", cfg.Redis.DB, opts.DB)
	}
}

func newTracker(t *testing.T, ttl time.Duration) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	rdb := NewClient(cfg)
	t.Cleanup(func() { rdb.Close() })
	return NewTracker(rdb, "gmail", ttl), mr
}

func TestTracker_ClaimOnce(t *testing.T) {
	tr, mr := newTracker(t, time.Hour)
	ctx := context.Background()

	first, err := tr.Claim(ctx, "m1")
	if err != nil || !first {
		t.Fatalf("first claim: got %v, %v", first, err)
	}
	second, err := tr.Claim(ctx, "m1")
	if err != nil || second {
		t.Fatalf("second claim should be rejected: got %v, %v", second, err)
	}
	if !mr.Exists("processed:gmail:m1") {
		t.Errorf("expected key processed:gmail:m1")
	}
	if mr.Exists("processed:gmail:m2") {
		t.Errorf("m2 should not be claimed")
	}
}

func TestTracker_ExpiryAndRelease(t *testing.T) {
	tr, mr := newTracker(t, time.Minute)
	ctx := context.Background()

	tr.Claim(ctx, "m1")
	mr.FastForward(2 * time.Minute)
	again, err := tr.Claim(ctx, "m1")
	if err != nil || !again {
		t.Fatalf("claim after ttl: got %v, %v", again, err)
	}

	if err := tr.Release(ctx, "m1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("processed:gmail:m1") {
		t.Errorf("released id should not be claimed")
	}
}

func TestTracker_Unavailable(t *testing.T) {
	tr, mr := newTracker(t, time.Minute)
	mr.Close()
	if _, err := tr.Claim(context.Background(), "m1"); err == nil {
		t.Errorf("expected error when redis is down")
	}
}
