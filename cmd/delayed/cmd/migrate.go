package cmd

import "github.com/spf13/cobra"

func (a *app) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables, indexes and scripts the store needs",
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

			if err := s.Migrate(ctx); err != nil {
				return err
			}
			c.Printf("Migrated %s store\n", a.v.GetString("store"))
			return nil
		},
	}
}
