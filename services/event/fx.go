package event

import (
	"context"

	"engage-ledger/pkg/broadcast"
	"engage-ledger/pkg/config"
	"engage-ledger/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	"gorm.io/gorm"
)

const defaultHubCapacity = 10

var Module = fx.Module("engage.event",
	fx.Provide(
		NewHub,
		NewLogReader,
		NewListener,
	),
	fx.Invoke(RunListener),
)

// NewHub builds the process-wide fan-out hub and closes it on stop, which
// ends every open stream.
func NewHub(lc fx.Lifecycle, cfg *config.Config) *broadcast.Hub[Event] {
	capacity := cfg.Events.HubCapacity
	if capacity <= 0 {
		capacity = defaultHubCapacity
	}
	hub := broadcast.New[Event](capacity)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})
	return hub
}

type ListenerParams struct {
	fx.In
	Config *config.Config
	Hub    *broadcast.Hub[Event]
	Logs   *LogReader
	Health *grpchealth.Server `optional:"true"`
}

func NewListener(p ListenerParams) *Listener {
	return &Listener{
		dsn:          p.Config.DSN(),
		channel:      db.NotifyChannel,
		minReconnect: p.Config.Events.MinReconnect,
		maxReconnect: p.Config.Events.MaxReconnect,
		hub:          p.Hub,
		logs:         p.Logs,
		health:       p.Health,
	}
}

// RunListener ties the listener loop to the application lifecycle. Only
// postgres has a notification channel.
func RunListener(lc fx.Lifecycle, gdb *gorm.DB, l *Listener) {
	if gdb.Dialector.Name() != "postgres" {
		zap.L().Info("[LISTENER] disabled", zap.String("dialect", gdb.Dialector.Name()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := l.Run(ctx); err != nil {
					zap.L().Error("[LISTENER] stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return nil
		},
	})
}
