package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"go-autoagent/internal/config"
	redisdb "go-autoagent/internal/redis"
)

func setupTestRedis(t *testing.T) (*Revocations, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	rdb := redisdb.NewClient(cfg)
	t.Cleanup(func() { rdb.Close() })
	return NewRevocations(rdb), mr
}

func TestRevocations(t *testing.T) {
	rev, mr := setupTestRedis(t)
	ctx := context.Background()

	tok, _ := GenerateJWT(testSecret, "cli", "", time.Hour)
	claims, err := ParseJWT(testSecret, tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if revoked, _ := rev.IsRevoked(ctx, claims.ID); revoked {
		t.Fatalf("fresh token should not be revoked")
	}
	if err := rev.Revoke(ctx, claims); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := rev.IsRevoked(ctx, claims.ID); !revoked {
		t.Fatalf("token should be revoked")
	}
	if n, _ := rev.RevokedCount(ctx); n != 1 {
		t.Errorf("expected 1 revoked token, got %d", n)
	}

	mr.FastForward(2 * time.Hour)
	if revoked, _ := rev.IsRevoked(ctx, claims.ID); revoked {
		t.Errorf("revocation should expire with the token")
	}
}
