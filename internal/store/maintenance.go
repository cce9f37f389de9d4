package store

import (
	"context"
)

// StoreInfo summarizes the metadata database for health and CLI output.
type StoreInfo struct {
	SchemaVersion     int            `json:"schema_version"`
	Articles          int            `json:"articles"`
	Attachments       int            `json:"attachments"`
	AttachmentBytes   int64          `json:"attachment_bytes"`
	AttachmentsByKind map[string]int `json:"attachments_by_backend"`
	UnresolvedOrphans int            `json:"unresolved_orphans"`
}

// StoreInfo returns row counts and the applied schema version.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	info := &StoreInfo{AttachmentsByKind: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&info.SchemaVersion); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&info.Articles); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orphaned_files WHERE resolved = 0").Scan(&info.UnresolvedOrphans); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT backend, COUNT(*), COALESCE(SUM(size_bytes), 0) FROM attachments GROUP BY backend")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var backend string
		var count int
		var bytes int64
		if err := rows.Scan(&backend, &count, &bytes); err != nil {
			return nil, err
		}
		info.AttachmentsByKind[backend] = count
		info.Attachments += count
		info.AttachmentBytes += bytes
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return info, nil
}
