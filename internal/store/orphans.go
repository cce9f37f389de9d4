package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const orphanColumns = "id, kind, file_id, storage_type, entity_type, entity_id, resolved, resolved_at, metadata, created_at, updated_at"

// RegisterOrphan records a detected inconsistency unless an unresolved entry
// for the same (kind, storage_type, file_id) already exists. It reports
// whether a new entry was created; orphan.ID is only set when it was.
func (s *Store) RegisterOrphan(ctx context.Context, orphan *models.OrphanedFile) (bool, error) {
	if orphan == nil {
		return false, fmt.Errorf("orphan is required")
	}
	if _, err := models.ParseOrphanKind(string(orphan.Kind)); err != nil {
		return false, err
	}
	orphan.FileID = strings.TrimSpace(orphan.FileID)
	if orphan.FileID == "" {
		return false, fmt.Errorf("file_id is required")
	}

	id, err := GenerateOrphanID(func(id string) (bool, error) {
		return s.orphanIDExists(ctx, id)
	})
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	if orphan.CreatedAt.IsZero() {
		orphan.CreatedAt = now
	}
	orphan.UpdatedAt = orphan.CreatedAt

	metaJSON, err := metadataToJSON(orphan.Metadata)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO orphaned_files (`+orphanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?, ?, ?)
	`,
		id,
		string(orphan.Kind),
		orphan.FileID,
		string(orphan.StorageType),
		nullIfEmpty(orphan.EntityType),
		nullIfEmpty(orphan.EntityID),
		metaJSON,
		dbFormatTime(orphan.CreatedAt),
		dbFormatTime(orphan.UpdatedAt),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	orphan.ID = id
	orphan.Resolved = false
	orphan.ResolvedAt = nil
	return true, nil
}

// GetOrphan returns one registry entry, or nil when absent.
func (s *Store) GetOrphan(ctx context.Context, id string) (*models.OrphanedFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orphanColumns+` FROM orphaned_files WHERE id = ?`, id)
	return scanOrphan(row)
}

// ListOrphans returns one page of entries, newest first, and the total
// number of entries matching the filter.
func (s *Store) ListOrphans(ctx context.Context, filter OrphanFilter) ([]models.OrphanedFile, int, error) {
	var where []string
	var args []any
	if filter.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, boolToInt(*filter.Resolved))
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orphaned_files"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orphanColumns + ` FROM orphaned_files` + clause + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	orphans, err := collectOrphans(rows)
	if err != nil {
		return nil, 0, err
	}
	return orphans, total, nil
}

// ListUnresolvedOrphans returns unresolved entries with the fewest recorded
// processing attempts first, oldest first within the same attempt count.
func (s *Store) ListUnresolvedOrphans(ctx context.Context, limit int) ([]models.OrphanedFile, error) {
	query := `SELECT ` + orphanColumns + ` FROM orphaned_files WHERE resolved = 0
		ORDER BY COALESCE(json_extract(metadata, '$.attempts'), 0) ASC, created_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectOrphans(rows)
}

// SetOrphanResolved flips the resolved flag and replaces metadata. It
// returns nil when the entry does not exist. Reopening an entry fails with a
// unique violation when another unresolved entry tracks the same file.
func (s *Store) SetOrphanResolved(ctx context.Context, id string, resolved bool, metadata map[string]any, now time.Time) (*models.OrphanedFile, error) {
	metaJSON, err := metadataToJSON(metadata)
	if err != nil {
		return nil, err
	}
	var resolvedAt any
	if resolved {
		resolvedAt = dbFormatTime(now)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE orphaned_files
		SET resolved = ?, resolved_at = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, boolToInt(resolved), resolvedAt, metaJSON, dbFormatTime(now), id)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetOrphan(ctx, id)
}

// UpdateOrphanMetadata replaces the metadata of one entry.
func (s *Store) UpdateOrphanMetadata(ctx context.Context, id string, metadata map[string]any, now time.Time) error {
	metaJSON, err := metadataToJSON(metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE orphaned_files SET metadata = ?, updated_at = ? WHERE id = ?",
		metaJSON, dbFormatTime(now), id,
	)
	return err
}

// DeleteOrphan removes the tracking record only.
func (s *Store) DeleteOrphan(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM orphaned_files WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) orphanIDExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM orphaned_files WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func collectOrphans(rows *sql.Rows) ([]models.OrphanedFile, error) {
	defer rows.Close()

	orphans := []models.OrphanedFile{}
	for rows.Next() {
		orphan, err := scanOrphan(rows)
		if err != nil {
			return nil, err
		}
		if orphan != nil {
			orphans = append(orphans, *orphan)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orphans, nil
}

func scanOrphan(scanner interface {
	Scan(dest ...any) error
}) (*models.OrphanedFile, error) {
	orphan := models.OrphanedFile{}
	var kind, storageType string
	var entityType, entityID, resolvedAt, metaJSON sql.NullString
	var resolved int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&orphan.ID,
		&kind,
		&orphan.FileID,
		&storageType,
		&entityType,
		&entityID,
		&resolved,
		&resolvedAt,
		&metaJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	orphan.Kind = models.OrphanKind(kind)
	orphan.StorageType = models.StorageBackend(storageType)
	orphan.EntityType = entityType.String
	orphan.EntityID = entityID.String
	orphan.Resolved = resolved != 0

	if resolvedAt.Valid {
		parsed, err := dbParseTime(resolvedAt.String)
		if err != nil {
			return nil, err
		}
		orphan.ResolvedAt = &parsed
	}
	if orphan.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if orphan.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	if metaJSON.Valid {
		meta, err := metadataFromJSON(metaJSON.String)
		if err != nil {
			return nil, err
		}
		orphan.Metadata = meta
	}

	return &orphan, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
