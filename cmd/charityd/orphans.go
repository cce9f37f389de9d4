package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

func newOrphansCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Inspect and resolve the orphaned file registry",
	}
	cmd.AddCommand(
		newOrphansListCmd(cfg, out),
		newOrphansResolveCmd(cfg, out, "resolve", "Mark an entry resolved", true),
		newOrphansResolveCmd(cfg, out, "reopen", "Reopen a resolved entry", false),
		newOrphansDeleteCmd(cfg),
	)
	return cmd
}

func newOrphansListCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	var status string
	var page, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := orphanListQuery(status, page, limit)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ListOrphans(cmd.Context(), query)
				if err != nil {
					return err
				}
				return emit(out, resp, func() error { return writeOrphanTable(resp) })
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "open", "open, resolved or all")
	cmd.Flags().IntVar(&page, "page", 1, "page number (1-based)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size (server default when 0)")
	return cmd
}

func orphanListQuery(status string, page, limit int) (url.Values, error) {
	query := url.Values{}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "all":
	case "open":
		query.Set("resolved", "false")
	case "resolved":
		query.Set("resolved", "true")
	default:
		return nil, fmt.Errorf("invalid --status %q (want open, resolved or all)", status)
	}
	if page < 0 || limit < 0 {
		return nil, fmt.Errorf("--page and --limit must be >= 0")
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return query, nil
}

func newOrphansResolveCmd(cfg *config.Config, out *outputOptions, name, short string, resolved bool) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   name + " <orphan-id>",
		Short: short,
		Args:  requireExactlyArgs(1, "orphan id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				entry, err := client.ResolveOrphan(cmd.Context(), args[0], api.OrphanResolveRequest{
					Resolved:   &resolved,
					Resolution: note,
				})
				if err != nil {
					return err
				}
				return emit(out, entry, func() error {
					state := "reopened"
					if entry.Resolved {
						state = "resolved"
					}
					return writePlain("%s %s (%s %s)\n", state, entry.ID, entry.Kind, entry.FileID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "resolution or reopen note")
	return cmd
}

func newOrphansDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <orphan-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a registry entry without touching blobs or records",
		Args:    requireExactlyArgs(1, "orphan id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if err := client.DeleteOrphan(cmd.Context(), args[0]); err != nil {
					return err
				}
				return writePlain("deleted %s\n", args[0])
			})
		},
	}
}
