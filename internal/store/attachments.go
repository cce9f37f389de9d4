package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const attachmentColumns = "id, article_id, backend, blob_ref, filename, mime_type, size_bytes, created_at"

// CreateAttachment inserts one attachment record.
func (s *Store) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	if attachment == nil {
		return fmt.Errorf("attachment is required")
	}
	if strings.TrimSpace(attachment.ID) == "" {
		return fmt.Errorf("attachment id is required")
	}
	if strings.TrimSpace(attachment.BlobRef) == "" {
		return fmt.Errorf("blob_ref is required")
	}
	if attachment.Size < 0 {
		return fmt.Errorf("size must be >= 0")
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (`+attachmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attachment.ID,
		attachment.ArticleID,
		string(attachment.Backend),
		attachment.BlobRef,
		attachment.Filename,
		attachment.MimeType,
		attachment.Size,
		dbFormatTime(attachment.CreatedAt),
	)
	return err
}

// GetAttachment returns one attachment record, or nil when absent.
func (s *Store) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	return scanAttachment(row)
}

// AttachmentExists checks whether an attachment record exists by id.
func (s *Store) AttachmentExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM attachments WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListAttachmentsByArticle lists the records referenced by an article's
// attachment list, in list order. Dangling list entries are skipped.
func (s *Store) ListAttachmentsByArticle(ctx context.Context, articleID string) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.article_id, a.backend, a.blob_ref, a.filename, a.mime_type, a.size_bytes, a.created_at
		FROM article_attachments aa
		JOIN attachments a ON a.id = aa.attachment_id
		WHERE aa.article_id = ?
		ORDER BY aa.position ASC
	`, articleID)
	if err != nil {
		return nil, err
	}
	return collectAttachments(rows)
}

// ListAllAttachments returns every attachment record ordered by creation.
func (s *Store) ListAllAttachments(ctx context.Context) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	return collectAttachments(rows)
}

// AttachmentReferencesBlob reports whether any record points at ref on backend.
func (s *Store) AttachmentReferencesBlob(ctx context.Context, backend models.StorageBackend, ref string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM attachments WHERE backend = ? AND blob_ref = ? LIMIT 1",
		string(backend), ref,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAttachment deletes one attachment record and reports whether it existed.
func (s *Store) DeleteAttachment(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func collectAttachments(rows *sql.Rows) ([]models.Attachment, error) {
	defer rows.Close()

	attachments := []models.Attachment{}
	for rows.Next() {
		attachment, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		if attachment == nil {
			continue
		}
		attachments = append(attachments, *attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func scanAttachment(scanner interface {
	Scan(dest ...any) error
}) (*models.Attachment, error) {
	attachment := models.Attachment{}
	var backend, createdAt string

	err := scanner.Scan(
		&attachment.ID,
		&attachment.ArticleID,
		&backend,
		&attachment.BlobRef,
		&attachment.Filename,
		&attachment.MimeType,
		&attachment.Size,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	attachment.Backend = models.StorageBackend(backend)
	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	attachment.CreatedAt = parsedCreated

	return &attachment, nil
}
