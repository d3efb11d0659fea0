package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

func newRollbackCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "rollback JOB_ID",
		Short: "Delete every record produced by a completed import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			a, err := bootstrap(cmd.Context(), "")
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requirePostgres("rollback"); err != nil {
				return err
			}

			job, err := a.store.GetJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			result, err := core.NewRollbackEngine(a.store, a.log).Rollback(cmd.Context(), job, reason)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "rolled back by operator", "reason stored on the job")
	return cmd
}
