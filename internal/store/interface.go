package store

import (
	"context"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

// ArticleStore is the slice of the article collaborator that attachment
// storage depends on: existence and the ordered attachment-id list.
type ArticleStore interface {
	ArticleExists(ctx context.Context, id string) (bool, error)
	CreateArticle(ctx context.Context, article *models.Article) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	AppendArticleAttachment(ctx context.Context, articleID, attachmentID string) error
	RemoveArticleAttachment(ctx context.Context, articleID, attachmentID string) (bool, error)
	ListArticleAttachmentIDs(ctx context.Context, articleID string) ([]string, error)
	ListArticleAttachmentRefs(ctx context.Context) ([]ArticleAttachmentRef, error)
}

var _ ArticleStore = (*Store)(nil)

// OrphanStore persists the orphan registry.
type OrphanStore interface {
	RegisterOrphan(ctx context.Context, orphan *models.OrphanedFile) (bool, error)
	GetOrphan(ctx context.Context, id string) (*models.OrphanedFile, error)
	ListOrphans(ctx context.Context, filter OrphanFilter) ([]models.OrphanedFile, int, error)
	ListUnresolvedOrphans(ctx context.Context, limit int) ([]models.OrphanedFile, error)
	SetOrphanResolved(ctx context.Context, id string, resolved bool, metadata map[string]any, now time.Time) (*models.OrphanedFile, error)
	UpdateOrphanMetadata(ctx context.Context, id string, metadata map[string]any, now time.Time) error
	DeleteOrphan(ctx context.Context, id string) (bool, error)
}

var _ OrphanStore = (*Store)(nil)

// OperatorStore persists admin operators.
type OperatorStore interface {
	CreateOperator(ctx context.Context, username, passwordHash string, now time.Time) (*Operator, error)
	GetOperatorByUsername(ctx context.Context, username string) (*Operator, error)
	ListOperators(ctx context.Context) ([]Operator, error)
	SetOperatorDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*Operator, error)
	DeleteOperator(ctx context.Context, username string) (bool, error)
}

var _ OperatorStore = (*Store)(nil)

// ArticleAttachmentRef is one entry of an article attachment list.
type ArticleAttachmentRef struct {
	ArticleID    string
	AttachmentID string
	Position     int
}

// OrphanFilter selects a page of registry entries.
type OrphanFilter struct {
	Resolved *bool
	Kind     models.OrphanKind
	Limit    int
	Offset   int
}
