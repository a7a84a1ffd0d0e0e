package reward

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockRetryInterval = 50 * time.Millisecond

// Locker serializes redemptions of the same user and reward across replicas.
// Lock waits while the lock is held and only fails when ctx ends.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context), err error)
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb      *redis.Client
	interval time.Duration
}

func NewLocker(rdb *redis.Client) Locker {
	if rdb == nil {
		return nil
	}
	return &redisLocker{rdb: rdb, interval: lockRetryInterval}
}

func (l *redisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error) {
	token := uuid.NewString()

	acquired, err := waitLock(ctx, ttl, l.interval, func(ctx context.Context) (bool, error) {
		return l.rdb.SetNX(ctx, key, token, ttl).Result()
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		zap.L().Warn("proceeding without redeem lock", zap.String("key", key))
		return func(context.Context) {}, nil
	}

	return func(ctx context.Context) {
		err := unlockScript.Run(ctx, l.rdb, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			zap.L().Warn("failed to release redeem lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// waitLock polls try until it takes the lock or ttl passes. Redis failures
// end the wait without the lock.
func waitLock(ctx context.Context, ttl, interval time.Duration, try func(context.Context) (bool, error)) (bool, error) {
	deadline := time.NewTimer(ttl)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := try(ctx)
		switch {
		case ctx.Err() != nil:
			return false, ctx.Err()
		case err != nil:
			zap.L().Warn("redeem lock unavailable", zap.Error(err))
			return false, nil
		case ok:
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}
