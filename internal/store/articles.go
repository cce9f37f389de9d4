package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

// ArticleExists checks whether an article exists by id.
func (s *Store) ArticleExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateArticle inserts an article row. The content service owns articles;
// this exists for provisioning and tests.
func (s *Store) CreateArticle(ctx context.Context, article *models.Article) error {
	if article == nil {
		return fmt.Errorf("article is required")
	}
	article.Title = strings.TrimSpace(article.Title)
	if article.Title == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(article.ID) == "" {
		generated, err := GenerateArticleID(func(id string) (bool, error) {
			return s.ArticleExists(ctx, id)
		})
		if err != nil {
			return err
		}
		article.ID = generated
	}

	now := time.Now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	if article.UpdatedAt.IsZero() {
		article.UpdatedAt = article.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, article.ID, article.Title, dbFormatTime(article.CreatedAt), dbFormatTime(article.UpdatedAt))
	return err
}

// GetArticle returns an article with its attachment list, or nil when absent.
func (s *Store) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	var article models.Article
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM articles WHERE id = ?", id,
	).Scan(&article.ID, &article.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if article.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if article.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}

	ids, err := s.ListArticleAttachmentIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	article.AttachmentIDs = ids
	return &article, nil
}

// AppendArticleAttachment adds attachmentID to the end of the article's list.
// The position is computed inside the insert so concurrent appends to the
// same article never overwrite each other. Appending an id already in the
// list is a no-op.
func (s *Store) AppendArticleAttachment(ctx context.Context, articleID, attachmentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO article_attachments (article_id, attachment_id, position)
		SELECT ?, ?, COALESCE(MAX(position), 0) + 1
		FROM article_attachments
		WHERE article_id = ?
	`, articleID, attachmentID, articleID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE articles SET updated_at = ? WHERE id = ?", dbFormatTime(time.Now()), articleID)
	return err
}

// RemoveArticleAttachment removes attachmentID from the article's list and
// reports whether it was present.
func (s *Store) RemoveArticleAttachment(ctx context.Context, articleID, attachmentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM article_attachments WHERE article_id = ? AND attachment_id = ?",
		articleID, attachmentID,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		if _, err := s.db.ExecContext(ctx, "UPDATE articles SET updated_at = ? WHERE id = ?", dbFormatTime(time.Now()), articleID); err != nil {
			return true, err
		}
	}
	return affected > 0, nil
}

// ListArticleAttachmentIDs returns the article's attachment ids in order.
func (s *Store) ListArticleAttachmentIDs(ctx context.Context, articleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT attachment_id FROM article_attachments WHERE article_id = ? ORDER BY position ASC",
		articleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListArticleAttachmentRefs returns every list entry of every article.
func (s *Store) ListArticleAttachmentRefs(ctx context.Context) ([]ArticleAttachmentRef, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT article_id, attachment_id, position FROM article_attachments ORDER BY article_id ASC, position ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []ArticleAttachmentRef{}
	for rows.Next() {
		var ref ArticleAttachmentRef
		if err := rows.Scan(&ref.ArticleID, &ref.AttachmentID, &ref.Position); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
