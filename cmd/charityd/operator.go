package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	internalauth "github.com/EhsanAmini770/charity-info-sub000/internal/auth"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

// Operators are provisioned against the local database, not over HTTP.
func newOperatorCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operators allowed to use the cleanup endpoints",
	}
	cmd.AddCommand(newOperatorAddCmd(cfg, out))
	cmd.AddCommand(newOperatorListCmd(cfg, out))
	cmd.AddCommand(newOperatorSetDisabledCmd(cfg, out, "disable", "Disable one operator", true))
	cmd.AddCommand(newOperatorSetDisabledCmd(cfg, out, "enable", "Enable one operator", false))
	cmd.AddCommand(newOperatorDeleteCmd(cfg, out))
	return cmd
}

func withStore(cfg *config.Config, fn func(*store.Store) error) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func newOperatorAddCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create one operator",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return fmt.Errorf("--password-stdin is required")
			}
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}
			passwordBytes, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			password := strings.TrimSpace(string(passwordBytes))
			if err := internalauth.ValidatePassword(password); err != nil {
				return err
			}
			hash, err := internalauth.HashPassword(password)
			if err != nil {
				return err
			}

			return withStore(cfg, func(st *store.Store) error {
				created, err := st.CreateOperator(cmd.Context(), username, hash, time.Now().UTC())
				if err != nil {
					if store.IsUniqueConstraint(err) {
						return fmt.Errorf("operator %s already exists", username)
					}
					return err
				}
				return emit(out, created, func() error {
					return writePlain("created operator %s (%s)\n", created.Username, created.ID)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	return cmd
}

func newOperatorListCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provisioned operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cfg, func(st *store.Store) error {
				operators, err := st.ListOperators(cmd.Context())
				if err != nil {
					return err
				}
				if operators == nil {
					operators = []store.Operator{}
				}
				return emit(out, map[string]any{"count": len(operators), "operators": operators}, func() error {
					if len(operators) == 0 {
						return writePlain("no operators configured\n")
					}
					tw := newTable()
					fmt.Fprintln(tw, "USERNAME\tSTATUS\tID\tCREATED")
					for _, op := range operators {
						status := "enabled"
						if op.Disabled {
							status = "disabled"
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Username, status, op.ID, humanAge(op.CreatedAt))
					}
					return tw.Flush()
				})
			})
		},
	}
}

func newOperatorSetDisabledCmd(cfg *config.Config, out *outputOptions, name, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <username>",
		Short: short,
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}
			return withStore(cfg, func(st *store.Store) error {
				updated, err := st.SetOperatorDisabled(cmd.Context(), username, disabled, time.Now().UTC())
				if err != nil {
					return err
				}
				if updated == nil {
					return fmt.Errorf("operator %s not found", username)
				}
				return emit(out, updated, func() error {
					return writePlain("%sd operator %s\n", name, updated.Username)
				})
			})
		},
	}
}

func newOperatorDeleteCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete one operator",
		Args:    requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}
			return withStore(cfg, func(st *store.Store) error {
				deleted, err := st.DeleteOperator(cmd.Context(), username)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("operator %s not found", username)
				}
				return emit(out, map[string]any{"username": username, "deleted": true}, func() error {
					return writePlain("deleted operator %s\n", username)
				})
			})
		},
	}
}
