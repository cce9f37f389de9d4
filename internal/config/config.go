package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7380"
	DefaultDBFileName = ".charity.db"
	DefaultLogLevel   = "info"
	ConfigFileName    = ".charity.toml"

	StoragePreferDatabase   = "database"
	StoragePreferFilesystem = "filesystem"
	DatabaseDriverSQLite    = "sqlite"
	DatabaseDriverGridFS    = "gridfs"

	DefaultUploadsDirName    = "uploads"
	DefaultBlobDBFileName    = ".charity-blobs.db"
	DefaultChunkSize         = 255 * 1024
	DefaultMongoDatabase     = "charity"
	DefaultGridFSBucket      = "attachments"
	DefaultStoragePrefer     = StoragePreferDatabase
	DefaultStorageDBDriver   = DatabaseDriverSQLite
	DefaultReconcileLimit    = 50
	MaxReconcileLimit        = 1000
	DefaultBlobGracePeriod   = 10 * time.Minute
	DefaultWatchDebounce     = 2 * time.Second
	DefaultMaxInlineTextSize = 1024 * 1024

	DefaultAttachmentMaxUploadBytes  int64 = 50 * 1024 * 1024
	DefaultAttachmentMultipartMemory int64 = 8 * 1024 * 1024

	configDirEnvKey          = "CHARITY_CONFIG_DIR"
	trustProjectConfigEnvKey = "CHARITY_TRUST_PROJECT_CONFIG"

	apiURLEnvKey                      = "CHARITY_API_URL"
	dbPathEnvKey                      = "CHARITY_DB"
	uploadsDirEnvKey                  = "CHARITY_UPLOADS_DIR"
	mongoURIEnvKey                    = "CHARITY_MONGO_URI"
	attachmentAllowedMediaTypesEnvKey = "CHARITY_ATTACH_ALLOWED_MEDIA_TYPES"
)

// StorageConfig selects and locates the blob backends.
type StorageConfig struct {
	UploadsDir     string `toml:"uploads_dir"`
	Prefer         string `toml:"prefer"`
	DatabaseDriver string `toml:"database_driver"`
	BlobDBPath     string `toml:"blob_db_path"`
	ChunkSize      int    `toml:"chunk_size"`
	MongoURI       string `toml:"mongo_uri"`
	MongoDatabase  string `toml:"mongo_database"`
	GridFSBucket   string `toml:"gridfs_bucket"`
}

// AttachmentConfig defines runtime limits for attachment handling.
type AttachmentConfig struct {
	MaxUploadBytes     int64    `toml:"max_upload_bytes"`
	MultipartMaxMemory int64    `toml:"multipart_max_memory"`
	MaxInlineTextBytes int64    `toml:"max_inline_text_bytes"`
	AllowedMediaTypes  []string `toml:"allowed_media_types"`
}

// ReconcileConfig drives the background orphan scan.
type ReconcileConfig struct {
	ScanInterval    time.Duration `toml:"scan_interval"`
	ProcessLimit    int           `toml:"process_limit"`
	BlobGracePeriod time.Duration `toml:"blob_grace_period"`
	WatchUploads    bool          `toml:"watch_uploads"`
	WatchDebounce   time.Duration `toml:"watch_debounce"`
}

// Config defines runtime configuration for charityd.
type Config struct {
	APIURL                   string           `toml:"api_url"`
	DBPath                   string           `toml:"db_path"`
	LogLevel                 string           `toml:"log_level"`
	Storage                  StorageConfig    `toml:"storage"`
	Attachments              AttachmentConfig `toml:"attachments"`
	Reconcile                ReconcileConfig  `toml:"reconcile"`
	TrustedProjectConfigPath string           `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Prefer:         DefaultStoragePrefer,
			DatabaseDriver: DefaultStorageDBDriver,
			ChunkSize:      DefaultChunkSize,
			MongoDatabase:  DefaultMongoDatabase,
			GridFSBucket:   DefaultGridFSBucket,
		},
		Attachments: AttachmentConfig{
			MaxUploadBytes:     DefaultAttachmentMaxUploadBytes,
			MultipartMaxMemory: DefaultAttachmentMultipartMemory,
			MaxInlineTextBytes: DefaultMaxInlineTextSize,
		},
		Reconcile: ReconcileConfig{
			ProcessLimit:    DefaultReconcileLimit,
			BlobGracePeriod: DefaultBlobGracePeriod,
			WatchDebounce:   DefaultWatchDebounce,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, ConfigFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"storage.uploads_dir",
	"storage.prefer",
	"storage.database_driver",
	"storage.blob_db_path",
	"storage.chunk_size",
	"storage.mongo_uri",
	"storage.mongo_database",
	"storage.gridfs_bucket",
	"attachments.max_upload_bytes",
	"attachments.multipart_max_memory",
	"attachments.max_inline_text_bytes",
	"attachments.allowed_media_types",
	"reconcile.scan_interval",
	"reconcile.process_limit",
	"reconcile.blob_grace_period",
	"reconcile.watch_uploads",
	"reconcile.watch_debounce",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.uploads_dir":
		return c.Storage.UploadsDir, nil
	case "storage.prefer":
		return c.Storage.Prefer, nil
	case "storage.database_driver":
		return c.Storage.DatabaseDriver, nil
	case "storage.blob_db_path":
		return c.Storage.BlobDBPath, nil
	case "storage.chunk_size":
		return strconv.Itoa(c.Storage.ChunkSize), nil
	case "storage.mongo_uri":
		return c.Storage.MongoURI, nil
	case "storage.mongo_database":
		return c.Storage.MongoDatabase, nil
	case "storage.gridfs_bucket":
		return c.Storage.GridFSBucket, nil
	case "attachments.max_upload_bytes":
		return strconv.FormatInt(c.Attachments.MaxUploadBytes, 10), nil
	case "attachments.multipart_max_memory":
		return strconv.FormatInt(c.Attachments.MultipartMaxMemory, 10), nil
	case "attachments.max_inline_text_bytes":
		return strconv.FormatInt(c.Attachments.MaxInlineTextBytes, 10), nil
	case "attachments.allowed_media_types":
		return strings.Join(c.Attachments.AllowedMediaTypes, ","), nil
	case "reconcile.scan_interval":
		return c.Reconcile.ScanInterval.String(), nil
	case "reconcile.process_limit":
		return strconv.Itoa(c.Reconcile.ProcessLimit), nil
	case "reconcile.blob_grace_period":
		return c.Reconcile.BlobGracePeriod.String(), nil
	case "reconcile.watch_uploads":
		return strconv.FormatBool(c.Reconcile.WatchUploads), nil
	case "reconcile.watch_debounce":
		return c.Reconcile.WatchDebounce.String(), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ConfigFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, ConfigFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, ConfigFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if uploadsDir := os.Getenv(uploadsDirEnvKey); uploadsDir != "" {
		cfg.Storage.UploadsDir = uploadsDir
	}
	if mongoURI := os.Getenv(mongoURIEnvKey); mongoURI != "" {
		cfg.Storage.MongoURI = mongoURI
	}
	if raw := strings.TrimSpace(os.Getenv(attachmentAllowedMediaTypesEnvKey)); raw != "" {
		cfg.Attachments.AllowedMediaTypes = splitCSV(raw)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "attachments.max_upload_bytes", "attachments.multipart_max_memory", "attachments.max_inline_text_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.chunk_size", "reconcile.process_limit":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "reconcile.scan_interval", "reconcile.blob_grace_period", "reconcile.watch_debounce":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative duration like 15m", key)
		}
		return parsed.String(), nil
	case "reconcile.watch_uploads":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "storage.prefer":
		if value != StoragePreferDatabase && value != StoragePreferFilesystem {
			return nil, fmt.Errorf("%s must be %q or %q", key, StoragePreferDatabase, StoragePreferFilesystem)
		}
		return value, nil
	case "storage.database_driver":
		if value != DatabaseDriverSQLite && value != DatabaseDriverGridFS {
			return nil, fmt.Errorf("%s must be %q or %q", key, DatabaseDriverSQLite, DatabaseDriverGridFS)
		}
		return value, nil
	case "attachments.allowed_media_types":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// normalize fills derived paths and falls back to defaults for unset or
// invalid values.
func (c *Config) normalize() error {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}

	dataDir := "."
	if c.DBPath != "" {
		dataDir = filepath.Dir(c.DBPath)
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = filepath.Join(dataDir, DefaultUploadsDirName)
	}
	if c.Storage.BlobDBPath == "" {
		c.Storage.BlobDBPath = filepath.Join(dataDir, DefaultBlobDBFileName)
	}

	c.Storage.Prefer = strings.ToLower(strings.TrimSpace(c.Storage.Prefer))
	switch c.Storage.Prefer {
	case "":
		c.Storage.Prefer = DefaultStoragePrefer
	case StoragePreferDatabase, StoragePreferFilesystem:
	default:
		return fmt.Errorf("invalid storage.prefer %q", c.Storage.Prefer)
	}
	c.Storage.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.Storage.DatabaseDriver))
	switch c.Storage.DatabaseDriver {
	case "":
		c.Storage.DatabaseDriver = DefaultStorageDBDriver
	case DatabaseDriverSQLite, DatabaseDriverGridFS:
	default:
		return fmt.Errorf("invalid storage.database_driver %q", c.Storage.DatabaseDriver)
	}
	if c.Storage.ChunkSize <= 0 {
		c.Storage.ChunkSize = DefaultChunkSize
	}
	if c.Storage.MongoDatabase == "" {
		c.Storage.MongoDatabase = DefaultMongoDatabase
	}
	if c.Storage.GridFSBucket == "" {
		c.Storage.GridFSBucket = DefaultGridFSBucket
	}

	if c.Attachments.MaxUploadBytes <= 0 {
		c.Attachments.MaxUploadBytes = DefaultAttachmentMaxUploadBytes
	}
	if c.Attachments.MultipartMaxMemory <= 0 {
		c.Attachments.MultipartMaxMemory = DefaultAttachmentMultipartMemory
	}
	if c.Attachments.MaxInlineTextBytes <= 0 {
		c.Attachments.MaxInlineTextBytes = DefaultMaxInlineTextSize
	}
	c.Attachments.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Attachments.AllowedMediaTypes)

	if c.Reconcile.ProcessLimit <= 0 {
		c.Reconcile.ProcessLimit = DefaultReconcileLimit
	}
	if c.Reconcile.ProcessLimit > MaxReconcileLimit {
		c.Reconcile.ProcessLimit = MaxReconcileLimit
	}
	if c.Reconcile.ScanInterval < 0 {
		c.Reconcile.ScanInterval = 0
	}
	if c.Reconcile.BlobGracePeriod < 0 {
		c.Reconcile.BlobGracePeriod = DefaultBlobGracePeriod
	}
	if c.Reconcile.WatchDebounce <= 0 {
		c.Reconcile.WatchDebounce = DefaultWatchDebounce
	}
	return nil
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
