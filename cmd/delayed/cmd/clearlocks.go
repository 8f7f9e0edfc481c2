package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xraph/delayed/ext"
	"github.com/xraph/delayed/observability"
	"github.com/xraph/delayed/reserve"
)

func (a *app) newClearLocksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-locks [worker]",
		Short: "Release every lock held by a worker",
		Long: `Release the locks held by a worker identity so its jobs can be reserved
again without waiting for the max run time. Use it after a worker died without
shutting down cleanly. Running it twice is harmless.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			logger, err := a.logger(c.ErrOrStderr())
			if err != nil {
				return err
			}
			s, closeStore, err := a.openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := reserve.NewLockManager(s, reserve.WithLogger(logger)).ClearLocks(ctx, args[0])
			if err != nil {
				return err
			}

			extensions := ext.NewRegistry(logger)
			extensions.Register(observability.NewMetricsExtension())
			extensions.EmitLocksCleared(ctx, args[0], n)

			c.Printf("Cleared %d locks held by %q\n", n, args[0])
			return nil
		},
	}
}
