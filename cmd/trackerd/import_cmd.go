package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

func newImportCmd() *cobra.Command {
	var (
		importType string
		userID     string
		noHeaders  bool
		storeName  string
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a spreadsheet synchronously and print the finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), storeName)
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}

			service := core.NewService(a.store, core.InlineDispatcher{Runner: a.pipeline()}, core.ServiceConfig{
				MaxFileSize: a.cfg.Upload.MaxFileSize,
				Logger:      a.log,
			})
			job, err := service.CreateJob(cmd.Context(), core.UploadRequest{
				UserID: userID,
				File: core.FileMeta{
					Name: filepath.Base(path),
					Size: info.Size(),
					Path: path,
				},
				ImportType: core.ImportType(importType),
				HasHeaders: !noHeaders,
			})
			if err != nil {
				return fmt.Errorf("%s", core.FormatUserError(err))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(job); err != nil {
				return err
			}
			if job.Status == core.StatusFailed {
				return fmt.Errorf("import failed: %s", job.Progress.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&importType, "type", string(core.ImportAuto), "auto, positions, cash_operations or pending_orders")
	cmd.Flags().StringVar(&userID, "user", "cli", "owner of the imported records")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "the sheets have no header row")
	cmd.Flags().StringVar(&storeName, "store", "", "memory or postgres (default STORE_DRIVER)")
	return cmd
}
