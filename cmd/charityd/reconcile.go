package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

func newReconcileCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find and heal storage inconsistencies",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "scan",
			Short: "Scan records, blobs and article lists for inconsistencies",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cfg, func(client *api.Client) error {
					resp, err := client.Scan(cmd.Context())
					if err != nil {
						return err
					}
					return emit(out, resp, func() error { return writeScanSummary(resp) })
				})
			},
		},
		newReconcileProcessCmd(cfg, out),
	)
	return cmd
}

func newReconcileProcessCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Heal the oldest unresolved registry entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ProcessOrphans(cmd.Context(), api.ProcessRequest{Limit: limit})
				if err != nil {
					return err
				}
				return emit(out, resp, func() error { return writeProcessSummary(resp) })
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to process (server default when 0)")
	return cmd
}
