package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers webhook event ids so redelivered events apply once.
type Deduper interface {
	FirstDelivery(ctx context.Context, eventID string) (bool, error)
}

// RedisDeduper implements Deduper with SETNX keys that expire after ttl.
// Past the ttl a redelivery would be reprocessed, which is safe: the order
// engine treats payment events idempotently.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper connects to Redis using a redis:// URL.
func NewRedisDeduper(redisURL string, ttl time.Duration) (*RedisDeduper, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisDeduper{client: redis.NewClient(opts), ttl: ttl}, nil
}

// FirstDelivery reports whether this event id has not been seen before,
// marking it seen as a side effect.
func (d *RedisDeduper) FirstDelivery(ctx context.Context, eventID string) (bool, error) {
	first, err := d.client.SetNX(ctx, "webhook:"+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}
	return first, nil
}

// Ping verifies the Redis connection.
func (d *RedisDeduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
