package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

func newMigrateCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			if !dryRun {
				// Opening the store applies pending migrations.
				st, err := store.Open(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				if err := st.Close(); err != nil {
					return err
				}
			}

			db, err := store.OpenRaw(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			plan, err := store.MigrationPlan(db)
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}

			return emit(out, plan, func() error {
				_ = writePlain("current version: %d\n", plan.CurrentVersion)
				_ = writePlain("available version: %d\n", plan.AvailableVersion)
				if len(plan.Pending) == 0 {
					return writePlain("no pending migrations\n")
				}
				_ = writePlain("pending migrations: %d\n", len(plan.Pending))
				for _, m := range plan.Pending {
					_ = writePlain("  %d: %s\n", m.Version, m.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	return cmd
}
