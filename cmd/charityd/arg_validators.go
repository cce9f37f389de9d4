package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// requireExactlyArgs replaces cobra's count message with a domain-specific one.
func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return requireArgRange(count, count, message)
}

func requireArgRange(minArgs, maxArgs int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < minArgs || len(args) > maxArgs {
			return errors.New(message)
		}
		return nil
	}
}
