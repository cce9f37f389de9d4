package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
	"github.com/EhsanAmini770/charity-info-sub000/internal/format"
)

type outputOptions struct {
	format string
}

func (o *outputOptions) structured() bool {
	return o.format == format.JSON || o.format == format.YAML
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	out := &outputOptions{format: format.Plain}
	var rawFormat string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "charityd",
		Short:         "Attachment storage and reconciliation service for the charity CMS",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			name, err := format.ParseName(rawFormat)
			if err != nil {
				return err
			}
			out.format = name
			outputFormatter = format.For(name)

			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&rawFormat, "format", format.Plain, "output format: plain, json or yaml")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, out),
		newConfigCmd(cfg),
		newInfoCmd(cfg, out),
		newArticleCmd(cfg, out),
		newAttachCmd(cfg, out),
		newOperatorCmd(cfg, out),
		newOrphansCmd(cfg, out),
		newReconcileCmd(cfg, out),
	)

	return cmd
}
