package main

import (
	"context"

	"engage-ledger/internal/httpapi"
	"engage-ledger/pkg/asynq"
	"engage-ledger/pkg/config"
	"engage-ledger/pkg/db"
	"engage-ledger/pkg/featureflags"
	"engage-ledger/pkg/gen"
	"engage-ledger/pkg/hashistack/secretmanager"
	"engage-ledger/pkg/health"
	"engage-ledger/pkg/logger"
	"engage-ledger/pkg/otelcol"
	"engage-ledger/pkg/profiling"
	"engage-ledger/pkg/redis"
	"engage-ledger/pkg/server"
	"engage-ledger/services/engage"
	"engage-ledger/services/event"
	"engage-ledger/services/reward"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health server and the change listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				secretmanager.Module,
				config.Module,
				logger.Module,
				otelcol.Module,
				profiling.Module,
				db.Module,
				redis.Module,
				asynq.Client,
				featureflags.Module,
				gen.Module,
				health.Module,
				engage.Module,
				reward.Module,
				event.Module,
				httpapi.Module,
				server.ProvideGRPCServer,
				server.ProvideHTTPServer,
				fxLogger,
			}
			if migrate {
				opts = append(opts, fx.Invoke(migrateOnStart))
			}

			if err := validate(opts...); err != nil {
				return err
			}

			fx.New(opts...).Run()
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

func migrateOnStart(lc fx.Lifecycle, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("applying migrations before start")
			return db.Migrate(ctx, gdb)
		},
	})
}
