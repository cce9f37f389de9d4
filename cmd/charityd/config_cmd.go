package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

func newConfigCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change configuration files",
	}
	cmd.AddCommand(newConfigGetCmd(cfg), newConfigSetCmd())
	return cmd
}

// newConfigGetCmd prints one effective value, or every key when none is given.
func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print effective config values",
		Args:  requireArgRange(0, 1, "at most one config key is allowed"),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.AllowedKeys()
			if len(args) == 1 {
				if !config.IsAllowedKey(args[0]) {
					return fmt.Errorf("unknown key: %s (allowed: %v)", args[0], keys)
				}
				value, err := cfg.Get(args[0])
				if err != nil {
					return err
				}
				return writePlain("%s\n", value)
			}

			tw := newTable()
			for _, key := range keys {
				value, err := cfg.Get(key)
				if err != nil {
					return err
				}
				if key == "storage.mongo_uri" {
					value = redactURI(value)
				}
				fmt.Fprintf(tw, "%s\t%s\n", key, value)
			}
			return tw.Flush()
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a config value to the project or global file",
		Args:  requireExactlyArgs(2, "config key and value are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			pathFor := config.ProjectPath
			if global {
				pathFor = config.GlobalPath
			}
			path, err := pathFor()
			if err != nil {
				return err
			}
			if err := config.SetKey(path, args[0], args[1]); err != nil {
				return err
			}
			return writePlain("set %s in %s\n", args[0], path)
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "write to the global config file instead of ./"+config.ConfigFileName)
	return cmd
}

func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
