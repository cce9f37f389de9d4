package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func chdirTemp(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir workspace: %v", err)
	}
}

// isolate points config discovery at empty temp dirs so host settings do not leak in.
func isolate(t *testing.T) (homeDir, workspace string) {
	t.Helper()
	homeDir = t.TempDir()
	workspace = t.TempDir()
	chdirTemp(t, workspace)
	t.Setenv("HOME", homeDir)
	t.Setenv(configDirEnvKey, "")
	t.Setenv(trustProjectConfigEnvKey, "")
	t.Setenv(apiURLEnvKey, "")
	t.Setenv(dbPathEnvKey, "")
	t.Setenv(uploadsDirEnvKey, "")
	t.Setenv(mongoURIEnvKey, "")
	t.Setenv(attachmentAllowedMediaTypesEnvKey, "")
	return homeDir, workspace
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.Prefer != StoragePreferDatabase || cfg.Storage.DatabaseDriver != DatabaseDriverSQLite {
		t.Fatalf("unexpected storage defaults: %#v", cfg.Storage)
	}
	if cfg.Storage.ChunkSize != 261120 {
		t.Fatalf("expected 255 KiB chunk size, got %d", cfg.Storage.ChunkSize)
	}
	if cfg.Attachments.MaxUploadBytes != DefaultAttachmentMaxUploadBytes {
		t.Fatalf("expected attachment max upload default %d, got %d", DefaultAttachmentMaxUploadBytes, cfg.Attachments.MaxUploadBytes)
	}
	if cfg.Attachments.MaxInlineTextBytes != DefaultMaxInlineTextSize {
		t.Fatalf("expected inline text cap %d, got %d", DefaultMaxInlineTextSize, cfg.Attachments.MaxInlineTextBytes)
	}
	if cfg.Reconcile.ScanInterval != 0 {
		t.Fatalf("expected periodic scan disabled by default, got %v", cfg.Reconcile.ScanInterval)
	}
	if cfg.Reconcile.ProcessLimit != DefaultReconcileLimit {
		t.Fatalf("expected process limit %d, got %d", DefaultReconcileLimit, cfg.Reconcile.ProcessLimit)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[storage]
prefer = "filesystem"
chunk_size = 1024

[reconcile]
scan_interval = "15m"
watch_uploads = true
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" {
		t.Fatalf("expected api_url 'http://localhost:9999', got %q", cfg.APIURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level 'warn', got %q", cfg.LogLevel)
	}
	if cfg.Storage.Prefer != StoragePreferFilesystem || cfg.Storage.ChunkSize != 1024 {
		t.Fatalf("unexpected storage section: %#v", cfg.Storage)
	}
	if cfg.Reconcile.ScanInterval != 15*time.Minute || !cfg.Reconcile.WatchUploads {
		t.Fatalf("unexpected reconcile section: %#v", cfg.Reconcile)
	}
	// Untouched keys keep their defaults.
	if cfg.Reconcile.ProcessLimit != DefaultReconcileLimit {
		t.Fatalf("expected default process limit, got %d", cfg.Reconcile.ProcessLimit)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/"+ConfigFileName, &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"db_path",
		"log_level",
		"storage.prefer",
		"storage.mongo_uri",
		"attachments.max_inline_text_bytes",
		"reconcile.scan_interval",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %s to be allowed", key)
		}
	}
	for _, key := range []string{"project_prefix", "storage", "reconcile.bogus", ""} {
		if IsAllowedKey(key) {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.DBPath = "/data/charity.db"
	cfg.Attachments.AllowedMediaTypes = []string{"application/pdf", "image/png"}
	cfg.Reconcile.ScanInterval = 30 * time.Minute

	cases := map[string]string{
		"api_url":                         DefaultAPIURL,
		"db_path":                         "/data/charity.db",
		"storage.prefer":                  StoragePreferDatabase,
		"storage.chunk_size":              "261120",
		"attachments.allowed_media_types": "application/pdf,image/png",
		"reconcile.scan_interval":         "30m0s",
		"reconcile.watch_uploads":         "false",
	}
	for key, want := range cases {
		got, err := cfg.Get(key)
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		if got != want {
			t.Fatalf("get %s: expected %q, got %q", key, want, got)
		}
	}

	if _, err := cfg.Get("nope"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)
	if err := SetKey(path, "api_url", "http://127.0.0.1:9000"); err != nil {
		t.Fatalf("set key: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9000" {
		t.Fatalf("expected api_url to be written, got %q", cfg.APIURL)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte("log_level = \"debug\"\n\n[storage]\nprefer = \"filesystem\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "storage.chunk_size", "4096"); err != nil {
		t.Fatalf("set key: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Storage.Prefer != StoragePreferFilesystem {
		t.Fatalf("existing keys should be preserved: %#v", cfg)
	}
	if cfg.Storage.ChunkSize != 4096 {
		t.Fatalf("expected chunk size 4096, got %d", cfg.Storage.ChunkSize)
	}
}

func TestSetKeyDurationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := SetKey(path, "reconcile.scan_interval", "1h"); err != nil {
		t.Fatalf("set key: %v", err)
	}

	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	section, ok := raw["reconcile"].(map[string]any)
	if !ok || section["scan_interval"] != "1h0m0s" {
		t.Fatalf("expected duration string in file, got %#v", raw)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Reconcile.ScanInterval != time.Hour {
		t.Fatalf("expected 1h scan interval, got %v", cfg.Reconcile.ScanInterval)
	}
}

func TestSetKeyRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cases := map[string]string{
		"storage.prefer":               "cloud",
		"storage.database_driver":      "postgres",
		"storage.chunk_size":           "0",
		"attachments.max_upload_bytes": "-5",
		"reconcile.process_limit":      "lots",
		"reconcile.scan_interval":      "soon",
		"reconcile.watch_uploads":      "maybe",
	}
	for key, value := range cases {
		if err := SetKey(path, key, value); err == nil {
			t.Fatalf("expected %s=%q to be rejected", key, value)
		}
	}
	if err := SetKey(path, "invalid_key", "x"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, ConfigFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, ConfigFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	_, workspace := isolate(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte("api_url = \"http://127.0.0.1:9001\"\n"), 0644); err != nil {
		t.Fatalf("write override config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://127.0.0.1:9002\"\n"), 0644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}

	t.Setenv(configDirEnvKey, configDir)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9001" {
		t.Fatalf("expected config-dir api_url override, got %q", cfg.APIURL)
	}
	if cfg.DBPath != filepath.Join(workspace, DefaultDBFileName) {
		t.Fatalf("expected default workspace db path, got %q", cfg.DBPath)
	}
}

func TestLoadDerivesStoragePaths(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	t.Setenv(dbPathEnvKey, filepath.Join(dataDir, "charity.db"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.UploadsDir != filepath.Join(dataDir, DefaultUploadsDirName) {
		t.Fatalf("expected uploads dir beside db, got %q", cfg.Storage.UploadsDir)
	}
	if cfg.Storage.BlobDBPath != filepath.Join(dataDir, DefaultBlobDBFileName) {
		t.Fatalf("expected blob db beside db, got %q", cfg.Storage.BlobDBPath)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(apiURLEnvKey, "http://example.com:8080")
	t.Setenv(dbPathEnvKey, "/tmp/override.db")
	t.Setenv(uploadsDirEnvKey, "/srv/uploads")
	t.Setenv(mongoURIEnvKey, "mongodb://db:27017")
	t.Setenv(attachmentAllowedMediaTypesEnvKey, "image/png, application/pdf, image/png")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://example.com:8080" {
		t.Fatalf("expected env override for API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Fatalf("expected env override for DB path, got %q", cfg.DBPath)
	}
	if cfg.Storage.UploadsDir != "/srv/uploads" {
		t.Fatalf("expected env override for uploads dir, got %q", cfg.Storage.UploadsDir)
	}
	if cfg.Storage.MongoURI != "mongodb://db:27017" {
		t.Fatalf("expected env override for mongo uri, got %q", cfg.Storage.MongoURI)
	}
	got := cfg.Attachments.AllowedMediaTypes
	if len(got) != 2 || got[0] != "application/pdf" || got[1] != "image/png" {
		t.Fatalf("expected normalized media types, got %v", got)
	}
}

func TestLoadNormalizesOutOfRangeValues(t *testing.T) {
	homeDir, _ := isolate(t)
	if err := os.WriteFile(filepath.Join(homeDir, ConfigFileName), []byte(`log_level = ""

[storage]
prefer = "Filesystem"
chunk_size = -1

[reconcile]
process_limit = 5000
`), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.Prefer != StoragePreferFilesystem {
		t.Fatalf("expected lowercased prefer, got %q", cfg.Storage.Prefer)
	}
	if cfg.Storage.ChunkSize != DefaultChunkSize {
		t.Fatalf("expected default chunk size, got %d", cfg.Storage.ChunkSize)
	}
	if cfg.Reconcile.ProcessLimit != MaxReconcileLimit {
		t.Fatalf("expected process limit capped at %d, got %d", MaxReconcileLimit, cfg.Reconcile.ProcessLimit)
	}
}

func TestLoadRejectsUnknownStorageDriver(t *testing.T) {
	homeDir, _ := isolate(t)
	if err := os.WriteFile(filepath.Join(homeDir, ConfigFileName), []byte("[storage]\ndatabase_driver = \"postgres\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid driver error")
	}
}

func TestLoadIgnoresProjectConfigByDefault(t *testing.T) {
	homeDir, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(homeDir, ConfigFileName), []byte("api_url = \"http://home\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://home" {
		t.Fatalf("expected global api_url, got %q", cfg.APIURL)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected no trusted project config path, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadAppliesProjectConfigWhenTrusted(t *testing.T) {
	homeDir, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(homeDir, ConfigFileName), []byte("api_url = \"http://home\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	t.Setenv(trustProjectConfigEnvKey, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://project" {
		t.Fatalf("expected trusted project api_url, got %q", cfg.APIURL)
	}
	expectedPath := filepath.Join(workspace, ConfigFileName)
	if cfg.TrustedProjectConfigPath != expectedPath {
		t.Fatalf("expected trusted project config path %q, got %q", expectedPath, cfg.TrustedProjectConfigPath)
	}
}

func TestLoadDoesNotTrustProjectConfigOnInvalidEnvValue(t *testing.T) {
	homeDir, workspace := isolate(t)
	if err := os.WriteFile(filepath.Join(homeDir, ConfigFileName), []byte("api_url = \"http://home\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, ConfigFileName), []byte("api_url = \"http://project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	t.Setenv(trustProjectConfigEnvKey, "definitely-not-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://home" {
		t.Fatalf("expected global api_url with invalid trust env, got %q", cfg.APIURL)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected no trusted project config path with invalid trust env, got %q", cfg.TrustedProjectConfigPath)
	}
}
