// Package redisdb builds the Redis client and the processed-message tracker.
package redisdb

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"

	"go-autoagent/internal/config"
)

func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Tracker remembers which items of a namespace were already handled.
type Tracker struct {
	rdb       *redis.Client
	namespace string
	ttl       time.Duration
}

func NewTracker(rdb *redis.Client, namespace string, ttl time.Duration) *Tracker {
	return &Tracker{rdb: rdb, namespace: namespace, ttl: ttl}
}

// Claim marks id as processed. It reports false when id had already been
// claimed, so concurrent checks never handle the same item twice.
func (t *Tracker) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := t.rdb.SetNX(ctx, t.key(id), time.Now().UTC().Format(time.RFC3339), t.ttl).Result()
	if err != nil {
		return false, goerr.Wrap(err, "failed to claim id", goerr.V("id", id))
	}
	return ok, nil
}

// Release undoes a claim so the item is retried on the next pass.
func (t *Tracker) Release(ctx context.Context, id string) error {
	if err := t.rdb.Del(ctx, t.key(id)).Err(); err != nil {
		return goerr.Wrap(err, "failed to release id", goerr.V("id", id))
	}
	return nil
}

func (t *Tracker) key(id string) string {
	return "processed:" + t.namespace + ":" + id
}
