package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gate:attempts:"

// RedisConfig holds the connection settings for a shared counter store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis, retrying the first ping with exponential
// backoff so the service can start alongside its cache.
func NewRedisClient(ctx context.Context, cfg RedisConfig, log *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	op := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis not ready", "addr", cfg.Addr, "err", err)
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Redis keeps counters in Redis so every instance sees the same attempts.
// INCR and PEXPIRE run in one MULTI block, so concurrent failures from the
// same client are never lost and the window restarts on every failure.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) key(k string) string { return redisKeyPrefix + k }

func (r *Redis) Check(ctx context.Context, key string, maxAttempts int, _ time.Duration) (Result, error) {
	count, err := r.client.Get(ctx, r.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return Result{Allowed: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get attempts: %w", err)
	}
	if count < maxAttempts {
		return Result{Allowed: true, Count: count}, nil
	}

	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ttl attempts: %w", err)
	}
	if ttl <= 0 {
		// expired between GET and PTTL
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false, Count: count, RetryAfter: ttl}, nil
}

func (r *Redis) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, r.key(key))
		pipe.PExpire(ctx, r.key(key), window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr attempts: %w", err)
	}
	return int(incr.Val()), nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
