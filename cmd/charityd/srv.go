package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
	"github.com/EhsanAmini770/charity-info-sub000/internal/server"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the attachment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			blobs, err := openBlobSet(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer blobs.Close()

			srv := server.New(addr, server.StoreDeps(st, blobs), cfg, slog.Default())
			return srv.Serve(ctx)
		},
	}
}
