package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimitRepository interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

type rateLimitRepository struct {
	rdb *redis.Client
}

func NewRateLimitRepository(rdb *redis.Client) RateLimitRepository {
	return &rateLimitRepository{rdb: rdb}
}

// Allow counts attempts per key within a rolling window. Callers fail open on
// error so a redis outage never locks out logins.
func (r *rateLimitRepository) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	attempts, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if attempts == 1 {
		r.rdb.Expire(ctx, key, window)
	}
	return attempts <= int64(max), nil
}
