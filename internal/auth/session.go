package auth

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "revoked:"

// Revocations is a Redis-backed deny list of token IDs. Entries expire
// together with the token they block.
type Revocations struct {
	rdb *redis.Client
}

func NewRevocations(rdb *redis.Client) *Revocations {
	return &Revocations{rdb: rdb}
}

func (r *Revocations) Revoke(ctx context.Context, claims *Claims) error {
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, revokedPrefix+claims.ID, claims.Subject, ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to revoke token", goerr.V("jti", claims.ID))
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, goerr.Wrap(err, "failed to check revocation", goerr.V("jti", jti))
	}
	return n > 0, nil
}

// RevokedCount returns the number of currently blocked tokens.
func (r *Revocations) RevokedCount(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, revokedPrefix+"*", 100).Result()
		if err != nil {
			return 0, goerr.Wrap(err, "failed to scan revocations")
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
