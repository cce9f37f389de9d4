package store

import (
	"database/sql"
	"fmt"
	"slices"
	"time"
)

// Migration is one numbered schema step. Versions are applied in ascending
// order, each in its own transaction.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus is the result of inspecting a database against the
// compiled-in migrations.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Applied          []MigrationInfo `json:"applied,omitempty"`
	Pending          []MigrationInfo `json:"pending"`
}

type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
	AppliedAt   string `json:"applied_at,omitempty"`
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: articles, attachments and article attachment lists",
		SQL: `
CREATE TABLE IF NOT EXISTS articles (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
  id TEXT PRIMARY KEY,
  article_id TEXT NOT NULL,
  backend TEXT NOT NULL,
  blob_ref TEXT NOT NULL,
  filename TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS article_attachments (
  article_id TEXT NOT NULL,
  attachment_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  UNIQUE(article_id, attachment_id),
  FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_attachments_article_id ON attachments(article_id);
CREATE INDEX IF NOT EXISTS idx_attachments_backend_ref ON attachments(backend, blob_ref);
CREATE INDEX IF NOT EXISTS idx_article_attachments_position ON article_attachments(article_id, position);
CREATE INDEX IF NOT EXISTS idx_article_attachments_attachment ON article_attachments(attachment_id);
`,
	},
	{
		Version:     2,
		Description: "orphaned file registry",
		SQL: `
CREATE TABLE IF NOT EXISTS orphaned_files (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  file_id TEXT NOT NULL,
  storage_type TEXT NOT NULL DEFAULT '',
  entity_type TEXT,
  entity_id TEXT,
  resolved INTEGER NOT NULL DEFAULT 0,
  resolved_at TEXT,
  metadata TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orphaned_files_open
  ON orphaned_files(kind, storage_type, file_id) WHERE resolved = 0;
CREATE INDEX IF NOT EXISTS idx_orphaned_files_resolved_created ON orphaned_files(resolved, created_at);
`,
	},
	{
		Version:     3,
		Description: "operators for admin basic auth",
		SQL: `
CREATE TABLE IF NOT EXISTS operators (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  disabled INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  description TEXT NOT NULL DEFAULT '',
  applied_at TEXT NOT NULL
);
`

func orderedMigrations() []Migration {
	ordered := slices.Clone(migrations)
	slices.SortFunc(ordered, func(a, b Migration) int { return a.Version - b.Version })
	return ordered
}

func currentVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(migrationsTableSQL); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range orderedMigrations() {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m Migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err = tx.Exec(
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, dbFormatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// MigrationPlan reports applied and pending migrations without running any.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	if _, err := db.Exec(migrationsTableSQL); err != nil {
		return nil, err
	}

	status := &MigrationStatus{}
	rows, err := db.Query("SELECT version, description, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var info MigrationInfo
		if err := rows.Scan(&info.Version, &info.Description, &info.AppliedAt); err != nil {
			return nil, err
		}
		status.Applied = append(status.Applied, info)
		status.CurrentVersion = max(status.CurrentVersion, info.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range orderedMigrations() {
		status.AvailableVersion = m.Version
		if m.Version > status.CurrentVersion {
			status.Pending = append(status.Pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}
	return status, nil
}
