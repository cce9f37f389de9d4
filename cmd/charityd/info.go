package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

func newInfoCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show storage counts and backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				info, err := client.Info(cmd.Context())
				if err != nil {
					return err
				}
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}

				payload := struct {
					api.InfoResponse
					Backends []api.BackendStatus `json:"backends"`
				}{info, health.Backends}

				return emit(out, payload, func() error {
					_ = writePlain("db_path: %s\n", info.DBPath)
					_ = writePlain("schema_version: %d\n", info.SchemaVersion)
					_ = writePlain("articles: %d\n", info.Articles)
					_ = writePlain("attachments: %d (%s)\n", info.Attachments, humanBytes(info.AttachmentBytes))

					kinds := make([]string, 0, len(info.AttachmentsByBackend))
					for kind := range info.AttachmentsByBackend {
						kinds = append(kinds, kind)
					}
					sort.Strings(kinds)
					for _, kind := range kinds {
						_ = writePlain("  %s: %d\n", kind, info.AttachmentsByBackend[kind])
					}
					_ = writePlain("unresolved_orphans: %d\n", info.UnresolvedOrphans)
					_ = writePlain("backends:\n")
					for _, b := range health.Backends {
						state := "available"
						if !b.Available {
							state = "unavailable"
						}
						preferred := ""
						if b.Preferred {
							preferred = ", preferred"
						}
						_ = writePlain("  %s: %s%s\n", b.Kind, state, preferred)
					}
					return nil
				})
			})
		},
	}
}
