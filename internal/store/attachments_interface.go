package store

import (
	"context"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

// AttachmentStore is the metadata persistence surface for attachment records.
//
// It is separate from ArticleStore: the record and the article list entry are
// written in different steps and can disagree after a partial failure.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, attachment *models.Attachment) error
	GetAttachment(ctx context.Context, id string) (*models.Attachment, error)
	AttachmentExists(ctx context.Context, id string) (bool, error)
	ListAttachmentsByArticle(ctx context.Context, articleID string) ([]models.Attachment, error)
	ListAllAttachments(ctx context.Context) ([]models.Attachment, error)
	AttachmentReferencesBlob(ctx context.Context, backend models.StorageBackend, ref string) (bool, error)
	DeleteAttachment(ctx context.Context, id string) (bool, error)
}

var _ AttachmentStore = (*Store)(nil)
