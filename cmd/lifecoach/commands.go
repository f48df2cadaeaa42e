package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/lifecoach/pkg/logger"
	"github.com/dmitrymomot/lifecoach/pkg/pg"
	svc "github.com/dmitrymomot/lifecoach/svc/payments"
	"github.com/dmitrymomot/lifecoach/svc/payments/pgstore"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Downgrade accounts whose grace period has ended, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sweeper, err := a.sweeper(svc.NewMetrics(nil))
			if err != nil {
				return err
			}
			res, err := sweeper.Sweep(ctx)
			if printErr := printJSON(cmd, res); printErr != nil {
				return printErr
			}
			return err
		},
	}
}

func newSubscriptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Inspect subscription state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print counts of active, canceled and expired subscriptions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sweeper, err := a.sweeper(svc.NewMetrics(nil))
			if err != nil {
				return err
			}
			summary, err := sweeper.Summary(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	})
	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	for _, dir := range []pg.MigrationDirection{pg.MigrateUp, pg.MigrateDown, pg.MigrateStatus} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(dir),
			Short: fmt.Sprintf("Run goose %s", dir),
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := loadApp(cmd.Context())
				if err != nil {
					return err
				}
				defer a.Close()

				return pg.Migrate(cmd.Context(), a.pool, pgstore.Migrations, pgstore.MigrationsDir, a.cfg.Postgres, dir,
					a.log.With(logger.Component("migrate")))
			},
		})
	}
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
