package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/lifecoach/pkg/config"
)

func main() {
	var envFiles []string

	root := &cobra.Command{
		Use:           "lifecoach",
		Short:         "Entitlement and subscription service for the life-coaching product",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadEnv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "extra .env files loaded over the process environment")

	root.AddCommand(
		newServeCommand(),
		newSweepCommand(),
		newMigrateCommand(),
		newSubscriptionsCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
