package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" Info ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"-4":      slog.LevelDebug,
	}
	for raw, want := range tests {
		got, err := parseLogLevel(raw)
		if err != nil || got != want {
			t.Fatalf("parseLogLevel(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := parseLogLevel("verbose"); err == nil {
		t.Fatal("expected verbose to be rejected")
	}
}

func TestResolveLogLevelPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		flag, env   string
		cfg         string
		want        slog.Level
		wantWarning string
		wantErr     bool
	}{
		{name: "flag wins", flag: "debug", env: "error", cfg: "warn", want: slog.LevelDebug},
		{name: "env over config", env: "warn", cfg: "error", want: slog.LevelWarn},
		{name: "config", cfg: "error", want: slog.LevelError},
		{name: "default", want: slog.LevelInfo},
		{name: "flag shadows invalid env", flag: "debug", env: "verbose", want: slog.LevelDebug},
		{name: "invalid flag", flag: "verbose", wantErr: true},
		{name: "invalid env", env: "verbose", cfg: "error", want: slog.LevelInfo, wantWarning: "invalid CHARITY_LOG_LEVEL"},
		{name: "invalid config", cfg: "verbose", want: slog.LevelInfo, wantWarning: "invalid log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, warning, err := resolveLogLevel([]levelCandidate{
				{origin: "--log-level", raw: tt.flag},
				{origin: logLevelEnvKey, raw: tt.env},
				{origin: "log_level", raw: tt.cfg},
			})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if level != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, level)
			}
			if tt.wantWarning == "" && warning != "" {
				t.Fatalf("unexpected warning %q", warning)
			}
			if tt.wantWarning != "" && (!strings.Contains(warning, tt.wantWarning) || !strings.Contains(warning, "defaulting to info")) {
				t.Fatalf("expected warning about %q, got %q", tt.wantWarning, warning)
			}
		})
	}
}

func TestConfigureLoggerForCLIUsesEnv(t *testing.T) {
	t.Setenv(logLevelEnvKey, "verbose")
	t.Setenv(logFormatEnvKey, "")
	warning, err := configureLoggerForCLI("", "")
	if err != nil {
		t.Fatalf("configure logger: %v", err)
	}
	if !strings.Contains(warning, logLevelEnvKey) {
		t.Fatalf("expected env warning, got %q", warning)
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, slog.LevelInfo, "JSON").Info("scan finished", "registered", 2)
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "scan finished" || entry["registered"] != float64(2) {
		t.Fatalf("unexpected entry %v", entry)
	}

	buf.Reset()
	newLogger(&buf, slog.LevelWarn, "").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}
}
