package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient is the subset of *redis.Client used by Redis.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisOptions tunes lock expiry and polling.
type RedisOptions struct {
	// Prefix is prepended to every key.
	Prefix string
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// RetryInterval is the pause between attempts in Lock.
	RetryInterval time.Duration
}

// Redis is a lease-based lock stored with SET NX PX. The stored value is a
// random token so only the holder can release it.
type Redis struct {
	client RedisClient
	opts   RedisOptions
	log    *zap.Logger
}

// NewRedis wires a Redis locker. A nil logger disables logging.
func NewRedis(client RedisClient, opts RedisOptions, logger *zap.Logger) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, opts: opts, log: logger}
}

// Lock polls until the key is acquired, ctx is done, or one TTL has passed.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	deadline := time.Now().Add(r.opts.TTL)
	ticker := time.NewTicker(r.opts.RetryInterval)
	defer ticker.Stop()

	for {
		unlock, ok, err := r.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryLock makes a single attempt.
func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	fullKey := r.opts.Prefix + key
	token := uuid.NewString()
	value, err := json.Marshal(token)
	if err != nil {
		return nil, false, fmt.Errorf("locker: encode token: %w", err)
	}

	acquired, err := r.client.SetNX(ctx, fullKey, value, r.opts.TTL).Result()
	if err != nil {
		r.log.Error("locker.TryLock SetNX failed", zap.String("key", fullKey), zap.Error(err))
		return nil, false, fmt.Errorf("locker: set %s: %w", fullKey, err)
	}
	if !acquired {
		r.log.Debug("locker.TryLock not acquired", zap.String("key", fullKey))
		return nil, false, nil
	}

	r.log.Debug("locker.TryLock acquired", zap.String("key", fullKey), zap.Duration("ttl", r.opts.TTL))
	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		return r.release(ctx, fullKey, string(value))
	}, true, nil
}

func (r *Redis) release(ctx context.Context, key, expected string) error {
	stored, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired before release; nothing to do.
		r.log.Warn("locker.Unlock lease already expired", zap.String("key", key))
		return nil
	}
	if err != nil {
		return fmt.Errorf("locker: get %s: %w", key, err)
	}
	if stored != expected {
		r.log.Error("locker.Unlock ownership mismatch", zap.String("key", key))
		return fmt.Errorf("%w: %s", ErrNotOwned, key)
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("locker: delete %s: %w", key, err)
	}
	r.log.Debug("locker.Unlock released", zap.String("key", key))
	return nil
}
