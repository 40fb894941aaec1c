package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/valuedcustomer/internal/config"
	"github.com/JonMunkholm/valuedcustomer/internal/core"
	"github.com/JonMunkholm/valuedcustomer/internal/logging"
	"github.com/JonMunkholm/valuedcustomer/internal/store"
)

// cliSource is recorded as the source of imports run from the command line.
const cliSource = "cli"

// openFunc opens the store a command runs against.
type openFunc func(ctx context.Context, cfg *config.Config, migrate bool) (core.Store, error)

func openStore(ctx context.Context, cfg *config.Config, migrate bool) (core.Store, error) {
	return store.Open(ctx, cfg.Database, cfg.Import.InsertBatchSize, migrate || cfg.Database.AutoMigrate)
}

type app struct {
	open    openFunc
	cfg     *config.Config
	migrate bool
}

func newRootCmd(open openFunc) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:           "custimport",
		Short:         "Import and export valued customers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; the environment may already be set.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&a.migrate, "migrate", false, "Create missing tables before running")

	root.AddCommand(newImportCmd(a), newExportCmd(a))
	return root
}

// withService opens the store, runs fn and closes the store again.
func (a *app) withService(ctx context.Context, fn func(*core.Service) error) (err error) {
	st, err := a.open(ctx, a.cfg, a.migrate)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()

	svc, err := core.NewService(st, a.cfg.Import, nil)
	if err != nil {
		return err
	}
	return fn(svc)
}
