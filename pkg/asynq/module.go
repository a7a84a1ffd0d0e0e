package asynq

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient),
)

// registerClient shares the redis connection. Without redis there is no
// client and tasks are not enqueued.
func registerClient(lc fx.Lifecycle, redis *redis.Client) *asynq.Client {
	if redis == nil {
		zap.L().Info("asynq client disabled, redis is not configured")
		return nil
	}

	client := asynq.NewClientFromRedisClient(redis)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}
