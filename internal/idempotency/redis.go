// Package idempotency stores Idempotency-Key reservations in Redis so a
// retried sale request is answered with the sale it already created.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "idempotency:sale:"
	pendingValue = "pending"
	DefaultTTL   = 24 * time.Hour
)

// releaseScript deletes the key only while it is still pending, so a late
// release never erases a completed sale id.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Reserve claims key for a new request. When the key exists it reports the
// sale id stored by Complete, or zero while the owning request is running.
func (s *RedisStore) Reserve(ctx context.Context, key string) (int64, bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pendingValue, s.ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			return s.Reserve(ctx, key)
		}
		return 0, false, fmt.Errorf("read idempotency key: %w", err)
	}

	if val == pendingValue {
		return 0, false, nil
	}

	saleID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse idempotency key %q: %w", key, err)
	}
	return saleID, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, saleID int64) error {
	if err := s.client.Set(ctx, keyPrefix+key, saleID, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, pendingValue).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
