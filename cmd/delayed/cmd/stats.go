package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xraph/delayed/job"
)

func (a *app) newStatsCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "stats",
		Short: "Count jobs by status",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
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

			queue, _ := c.Flags().GetString("queue")
			rows := []struct {
				label  string
				status job.Status
			}{
				{"pending", job.StatusPending},
				{"locked", job.StatusLocked},
				{"failed", job.StatusFailed},
				{"total", ""},
			}
			for _, row := range rows {
				n, err := s.CountJobs(ctx, job.CountOpts{Queue: queue, Status: row.status})
				if err != nil {
					return err
				}
				c.Printf("%-8s %d\n", row.label, n)
			}
			return nil
		},
	}
	c.Flags().String("queue", "", "only count jobs in this queue")
	return c
}
