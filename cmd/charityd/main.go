package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Stderr)
	stop()
	os.Exit(code)
}

// run loads configuration and executes the command tree, printing failures
// with guidance to stderr. It returns the process exit code.
func run(ctx context.Context, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "charityd: %v\n", err)
		return 1
	}
	if cfg.TrustedProjectConfigPath != "" {
		fmt.Fprintf(stderr, "warning: project config %s is trusted and overrides global settings\n", cfg.TrustedProjectConfigPath)
	}

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		for _, line := range formatCLIError(err) {
			fmt.Fprintln(stderr, line)
		}
		return 1
	}
	return 0
}
