package main

import (
	"context"

	"engage-ledger/pkg/config"
	"engage-ledger/pkg/db"
	"engage-ledger/pkg/hashistack/secretmanager"
	"engage-ledger/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var gdb *gorm.DB
			return runOnce(cmd.Context(), &gdb, func(ctx context.Context) error {
				return db.Migrate(ctx, gdb)
			})
		},
	}
}

// runOnce starts the storage graph, populates targets, runs fn and stops.
func runOnce(ctx context.Context, target any, fn func(context.Context) error, extra ...fx.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}

	opts := append([]fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.Populate(target),
		fxLogger,
	}, extra...)

	if err := validate(opts...); err != nil {
		return err
	}

	app := fx.New(opts...)
	if err := app.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx)

	if err := app.Stop(context.Background()); err != nil && runErr == nil {
		return err
	}
	return runErr
}
