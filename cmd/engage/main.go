package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"

	"engage-ledger/pkg/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "engage",
		Short:         "Engagement voucher ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if configFile != "" {
				config.SetFile(configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (default ./config.yaml)")

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCouponsCommand(),
	)
	return root
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func validate(opts ...fx.Option) error {
	if err := fx.ValidateApp(opts...); err != nil {
		return fmt.Errorf("fx validation failed: %w", err)
	}
	return nil
}
