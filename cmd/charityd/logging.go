package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

const (
	logLevelEnvKey  = "CHARITY_LOG_LEVEL"
	logFormatEnvKey = "CHARITY_LOG_FORMAT"
)

// levelCandidate is one place a log level may come from, in precedence order.
type levelCandidate struct {
	origin string
	raw    string
}

// configureLoggerForCLI installs the default slog logger. An invalid --log-level
// is an error; an invalid env or config level falls back to the default and
// returns a warning for stderr.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	level, warning, err := resolveLogLevel([]levelCandidate{
		{origin: "--log-level", raw: flagLevel},
		{origin: logLevelEnvKey, raw: os.Getenv(logLevelEnvKey)},
		{origin: "log_level", raw: configLevel},
	})
	if err != nil {
		return "", err
	}
	slog.SetDefault(newLogger(os.Stderr, level, os.Getenv(logFormatEnvKey)))
	return warning, nil
}

func resolveLogLevel(candidates []levelCandidate) (slog.Level, string, error) {
	for _, c := range candidates {
		if strings.TrimSpace(c.raw) == "" {
			continue
		}
		level, err := parseLogLevel(c.raw)
		if err == nil {
			return level, "", nil
		}
		if strings.HasPrefix(c.origin, "--") {
			return 0, "", fmt.Errorf("invalid %s %q", c.origin, c.raw)
		}
		fallback, _ := parseLogLevel("")
		return fallback, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", c.origin, c.raw, config.DefaultLogLevel), nil
	}
	level, err := parseLogLevel("")
	return level, "", err
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		value = config.DefaultLogLevel
	case "warning":
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// newLogger builds a text handler, or a JSON handler when format is "json".
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
