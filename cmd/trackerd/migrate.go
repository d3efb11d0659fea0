package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michalhajok/trackerB-sub000/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), "postgres")
			if err != nil {
				return err
			}
			defer a.Close()

			if status {
				list, err := postgres.MigrationStatus(cmd.Context(), a.pool)
				if err != nil {
					return err
				}
				for _, m := range list {
					applied := "pending"
					if !m.AppliedAt.IsZero() {
						applied = m.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%05d  %-8s  %s\n", m.Source.Version, m.State, applied)
				}
				return nil
			}
			return postgres.Migrate(cmd.Context(), a.pool)
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of migrating")
	return cmd
}
