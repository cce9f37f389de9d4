package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/blobstore"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

const (
	defaultMaxInlineTextBytes          = 1 << 20 // 1 MiB
	fallbackAttachmentContentMediaType = "application/octet-stream"
	sniffLength                        = 512
)

var (
	errBlobReferenced    = errors.New("blob is referenced by an attachment record")
	errAttachmentPresent = errors.New("attachment record exists")
	errAttachmentGone    = errors.New("attachment record no longer exists")
	errArticleGone       = errors.New("article no longer exists")
)

var textMediaTypes = map[string]struct{}{
	"text/plain":    {},
	"text/markdown": {},
	"text/csv":      {},
}

var textExtensions = map[string]struct{}{
	".txt": {},
	".md":  {},
	".csv": {},
	".log": {},
}

// MissingBlobReporter records a blob found missing while serving an attachment.
type MissingBlobReporter interface {
	ReportMissingBlob(ctx context.Context, attachment models.Attachment)
}

// AttachmentService owns the attachment write path: blobs, records and the
// owning article's attachment list.
type AttachmentService struct {
	articles    store.ArticleStore
	attachments store.AttachmentStore
	blobs       *blobstore.Set
	logger      *slog.Logger
	reporter    MissingBlobReporter
	now         func() time.Time

	allowedMediaTypes  map[string]struct{}
	maxInlineTextBytes int64
}

// UploadInput describes one incoming attachment.
type UploadInput struct {
	ArticleID string
	Filename  string
	MimeType  string
	// Size is the declared byte count, or -1 when unknown.
	Size    int64
	Content io.ReadSeeker
}

// AttachmentContent is an open blob stream with the metadata needed to serve it.
type AttachmentContent struct {
	Attachment models.Attachment
	Reader     io.ReadCloser
}

// DeleteResult reports how far a delete progressed.
type DeleteResult struct {
	ID            string
	FileDeleted   bool
	RecordDeleted bool
	State         models.DeleteState
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(articles store.ArticleStore, attachments store.AttachmentStore, blobs *blobstore.Set, logger *slog.Logger) *AttachmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentService{
		articles:           articles,
		attachments:        attachments,
		blobs:              blobs,
		logger:             logger.With("component", "attachments"),
		now:                func() time.Time { return time.Now().UTC() },
		maxInlineTextBytes: defaultMaxInlineTextBytes,
	}
}

// ConfigurePolicy overrides the media type allowlist and the inline text cap.
func (s *AttachmentService) ConfigurePolicy(allowedMediaTypes []string, maxInlineTextBytes int64) {
	if s == nil {
		return
	}
	normalized := map[string]struct{}{}
	for _, raw := range allowedMediaTypes {
		mediaType, err := normalizeMediaType(raw)
		if err != nil || mediaType == "" {
			continue
		}
		normalized[mediaType] = struct{}{}
	}
	if len(normalized) == 0 {
		s.allowedMediaTypes = nil
	} else {
		s.allowedMediaTypes = normalized
	}
	if maxInlineTextBytes <= 0 {
		maxInlineTextBytes = defaultMaxInlineTextBytes
	}
	s.maxInlineTextBytes = maxInlineTextBytes
}

// SetMissingBlobReporter wires the registry that hears about missing blobs.
func (s *AttachmentService) SetMissingBlobReporter(reporter MissingBlobReporter) {
	s.reporter = reporter
}

// Upload stores content for an article. The steps are not atomic: a failure
// after the blob write leaves an inconsistency for the next reconciliation
// scan instead of being rolled back.
func (s *AttachmentService) Upload(ctx context.Context, in UploadInput) (models.Attachment, error) {
	var zero models.Attachment
	if s == nil || s.articles == nil || s.attachments == nil || s.blobs == nil {
		return zero, internalError(fmt.Errorf("attachment service is not configured"))
	}
	if in.Content == nil {
		return zero, badRequestCode(fmt.Errorf("file is required"), ErrCodeMissingRequired)
	}

	articleID := strings.TrimSpace(in.ArticleID)
	if !validateArticleID(articleID) {
		return zero, badRequestCode(fmt.Errorf("invalid article id"), ErrCodeInvalidID)
	}
	filename, err := cleanFilename(in.Filename)
	if err != nil {
		return zero, err
	}
	if err := s.ensureArticleExists(ctx, articleID); err != nil {
		return zero, err
	}

	mimeType, err := resolveMimeType(in.MimeType, filename, in.Content)
	if err != nil {
		return zero, err
	}
	if err := s.validateAllowedMediaType(mimeType); err != nil {
		return zero, err
	}

	id, err := s.nextAttachmentID(ctx)
	if err != nil {
		return zero, uploadFailed(fmt.Errorf("generate attachment id: %w", err))
	}

	state := models.UploadPending
	backend, written, err := s.blobs.Write(ctx, in.Content, filename, in.Size)
	if err != nil {
		return zero, uploadFailed(fmt.Errorf("write blob: %w", err))
	}
	state = models.UploadBlobWritten

	attachment := models.Attachment{
		ID:        id,
		ArticleID: articleID,
		Backend:   backend,
		BlobRef:   written.Ref,
		Filename:  filename,
		MimeType:  mimeType,
		Size:      written.Size,
		CreatedAt: s.now(),
	}
	if err := s.attachments.CreateAttachment(ctx, &attachment); err != nil {
		s.logStalledUpload(state, attachment, err)
		return zero, uploadFailed(fmt.Errorf("create attachment record: %w", err))
	}
	state = models.UploadRecordCreated

	if err := s.articles.AppendArticleAttachment(ctx, articleID, attachment.ID); err != nil {
		s.logStalledUpload(state, attachment, err)
		return zero, uploadFailed(fmt.Errorf("append to article list: %w", err))
	}
	state = models.UploadListUpdated

	s.logger.Debug("attachment uploaded", "state", state, "attachment_id", attachment.ID, "article_id", articleID, "backend", backend, "size", attachment.Size)
	return attachment, nil
}

// ListArticleAttachments returns an article's attachments in list order.
func (s *AttachmentService) ListArticleAttachments(ctx context.Context, articleID string) ([]models.Attachment, error) {
	if s == nil || s.articles == nil || s.attachments == nil {
		return nil, internalError(fmt.Errorf("attachment service is not configured"))
	}
	articleID = strings.TrimSpace(articleID)
	if !validateArticleID(articleID) {
		return nil, badRequestCode(fmt.Errorf("invalid article id"), ErrCodeInvalidID)
	}
	if err := s.ensureArticleExists(ctx, articleID); err != nil {
		return nil, err
	}
	return s.attachments.ListAttachmentsByArticle(ctx, articleID)
}

// GetAttachment returns one attachment by id.
func (s *AttachmentService) GetAttachment(ctx context.Context, id string) (models.Attachment, error) {
	var zero models.Attachment
	if s == nil || s.attachments == nil {
		return zero, internalError(fmt.Errorf("attachment service is not configured"))
	}

	id = strings.TrimSpace(id)
	if !validateAttachmentID(id) {
		return zero, badRequestCode(fmt.Errorf("invalid attachment id"), ErrCodeInvalidID)
	}

	attachment, err := s.attachments.GetAttachment(ctx, id)
	if err != nil {
		return zero, err
	}
	if attachment == nil {
		return zero, notFoundCode(fmt.Errorf("attachment not found"), ErrCodeAttachmentNotFound)
	}
	return *attachment, nil
}

// OpenContent opens a stream over the attachment's blob.
func (s *AttachmentService) OpenContent(ctx context.Context, attachment models.Attachment) (*AttachmentContent, error) {
	backend, err := s.backendFor(attachment)
	if err != nil {
		return nil, err
	}
	rc, err := backend.OpenStream(ctx, attachment.BlobRef)
	if err != nil {
		return nil, s.blobReadError(ctx, attachment, err)
	}
	return &AttachmentContent{Attachment: attachment, Reader: rc}, nil
}

// ReadText loads a text attachment for inline rendering.
func (s *AttachmentService) ReadText(ctx context.Context, attachment models.Attachment) (string, error) {
	if viewKindOf(attachment) != viewText {
		return "", unsupportedView(fmt.Errorf("attachment is not text; use download"))
	}
	if attachment.Size > s.maxInlineTextBytes {
		return "", unsupportedView(fmt.Errorf("text attachment exceeds %d bytes; use download", s.maxInlineTextBytes))
	}
	backend, err := s.backendFor(attachment)
	if err != nil {
		return "", err
	}
	data, err := backend.ReadAll(ctx, attachment.BlobRef)
	if err != nil {
		return "", s.blobReadError(ctx, attachment, err)
	}
	if int64(len(data)) > s.maxInlineTextBytes {
		return "", unsupportedView(fmt.Errorf("text attachment exceeds %d bytes; use download", s.maxInlineTextBytes))
	}
	return string(data), nil
}

// DeleteAttachment removes an attachment from its article. The article list
// entry goes first and aborts the delete on failure; a failed blob delete is
// logged and reported but never keeps the record alive.
func (s *AttachmentService) DeleteAttachment(ctx context.Context, articleID, attachmentID string) (DeleteResult, error) {
	result := DeleteResult{ID: attachmentID, State: models.DeletePending}
	if s == nil || s.articles == nil || s.attachments == nil || s.blobs == nil {
		return result, internalError(fmt.Errorf("attachment service is not configured"))
	}
	articleID = strings.TrimSpace(articleID)
	if !validateArticleID(articleID) {
		return result, badRequestCode(fmt.Errorf("invalid article id"), ErrCodeInvalidID)
	}
	if !validateAttachmentID(attachmentID) {
		return result, badRequestCode(fmt.Errorf("invalid attachment id"), ErrCodeInvalidID)
	}
	if err := s.ensureArticleExists(ctx, articleID); err != nil {
		return result, err
	}

	attachment, err := s.attachments.GetAttachment(ctx, attachmentID)
	if err != nil {
		return result, err
	}
	if attachment != nil && attachment.ArticleID != articleID {
		return result, notFoundCode(fmt.Errorf("attachment not found"), ErrCodeAttachmentNotFound)
	}

	removed, err := s.articles.RemoveArticleAttachment(ctx, articleID, attachmentID)
	if err != nil {
		return result, storeFailure(fmt.Errorf("remove from article list: %w", err))
	}
	result.State = models.DeleteListUpdated

	if attachment == nil {
		s.logger.Info("attachment record already gone", "attachment_id", attachmentID, "article_id", articleID, "list_entry_removed", removed)
		return result, nil
	}
	if err := s.finishDelete(ctx, *attachment, &result); err != nil {
		return result, err
	}
	return result, nil
}

// PurgeRecord removes an attachment record together with its list entry and,
// when still present, its blob. The owning article need not exist.
func (s *AttachmentService) PurgeRecord(ctx context.Context, attachmentID string) (DeleteResult, error) {
	result := DeleteResult{ID: attachmentID, State: models.DeletePending}
	attachment, err := s.attachments.GetAttachment(ctx, attachmentID)
	if err != nil {
		return result, err
	}
	if attachment == nil {
		return result, errAttachmentGone
	}
	if _, err := s.articles.RemoveArticleAttachment(ctx, attachment.ArticleID, attachment.ID); err != nil {
		return result, fmt.Errorf("remove from article list: %w", err)
	}
	result.State = models.DeleteListUpdated
	return result, s.finishDelete(ctx, *attachment, &result)
}

// PurgeBlob deletes a blob that no attachment record references.
func (s *AttachmentService) PurgeBlob(ctx context.Context, kind models.StorageBackend, ref string) (bool, error) {
	referenced, err := s.attachments.AttachmentReferencesBlob(ctx, kind, ref)
	if err != nil {
		return false, err
	}
	if referenced {
		return false, errBlobReferenced
	}
	backend, ok := s.blobs.Backend(kind)
	if !ok {
		return false, fmt.Errorf("%s backend is not configured", kind)
	}
	deleted, err := backend.Delete(ctx, ref)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("orphaned blob deleted", "backend", kind, "ref", ref)
	}
	return deleted, nil
}

// DropArticleReference removes a list entry whose attachment record is gone.
func (s *AttachmentService) DropArticleReference(ctx context.Context, articleID, attachmentID string) (bool, error) {
	exists, err := s.attachments.AttachmentExists(ctx, attachmentID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, errAttachmentPresent
	}
	return s.articles.RemoveArticleAttachment(ctx, articleID, attachmentID)
}

// RelinkRecord appends an unlinked attachment back onto its article's list.
func (s *AttachmentService) RelinkRecord(ctx context.Context, attachmentID string) error {
	attachment, err := s.attachments.GetAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	if attachment == nil {
		return errAttachmentGone
	}
	exists, err := s.articles.ArticleExists(ctx, attachment.ArticleID)
	if err != nil {
		return err
	}
	if !exists {
		return errArticleGone
	}
	if err := s.articles.AppendArticleAttachment(ctx, attachment.ArticleID, attachment.ID); err != nil {
		return err
	}
	s.logger.Info("attachment relinked", "attachment_id", attachment.ID, "article_id", attachment.ArticleID)
	return nil
}

func (s *AttachmentService) finishDelete(ctx context.Context, attachment models.Attachment, result *DeleteResult) error {
	result.FileDeleted = s.deleteBlobBestEffort(ctx, attachment)
	result.State = models.DeleteBlobDeleted

	deleted, err := s.attachments.DeleteAttachment(ctx, attachment.ID)
	if err != nil {
		kind, _ := models.OrphanKindForDeleteState(result.State)
		s.logger.Error("attachment delete stopped before completion", "state", result.State, "orphan_kind", kind, "attachment_id", attachment.ID, "error", err)
		return storeFailure(fmt.Errorf("delete attachment record: %w", err))
	}
	result.RecordDeleted = deleted
	result.State = models.DeleteRecordDeleted
	return nil
}

func (s *AttachmentService) deleteBlobBestEffort(ctx context.Context, attachment models.Attachment) bool {
	fields := []any{"attachment_id", attachment.ID, "backend", attachment.Backend, "ref", attachment.BlobRef}
	backend, ok := s.blobs.Backend(attachment.Backend)
	if !ok {
		s.logger.Warn("blob backend not configured, leaving blob", fields...)
		return false
	}
	if !backend.Available() {
		s.logger.Warn("blob backend unavailable, leaving blob", fields...)
		return false
	}
	deleted, err := backend.Delete(ctx, attachment.BlobRef)
	if err != nil {
		s.logger.Error("blob delete failed", append(fields, "error", err)...)
		return false
	}
	if !deleted {
		s.logger.Info("blob already absent", fields...)
	}
	return deleted
}

func (s *AttachmentService) backendFor(attachment models.Attachment) (blobstore.Backend, error) {
	backend, ok := s.blobs.Backend(attachment.Backend)
	if !ok {
		return nil, storageFailure(fmt.Errorf("%s backend is not configured", attachment.Backend))
	}
	return backend, nil
}

// blobReadError maps a failed read of a present record's blob to BlobMissing.
// Only a definite not-found is reported to the orphan registry.
func (s *AttachmentService) blobReadError(ctx context.Context, attachment models.Attachment, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		if s.reporter != nil {
			s.reporter.ReportMissingBlob(ctx, attachment)
		}
	} else {
		s.logger.Error("blob read failed", "attachment_id", attachment.ID, "backend", attachment.Backend, "error", err)
	}
	return blobMissing(fmt.Errorf("attachment content is missing"))
}

func (s *AttachmentService) logStalledUpload(state models.UploadState, attachment models.Attachment, err error) {
	kind, _ := models.OrphanKindForUploadState(state)
	s.logger.Error("upload stopped before completion",
		"state", state,
		"orphan_kind", kind,
		"attachment_id", attachment.ID,
		"article_id", attachment.ArticleID,
		"backend", attachment.Backend,
		"ref", attachment.BlobRef,
		"error", err,
	)
}

func (s *AttachmentService) ensureArticleExists(ctx context.Context, id string) error {
	exists, err := s.articles.ArticleExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return notFoundCode(fmt.Errorf("article not found"), ErrCodeArticleNotFound)
	}
	return nil
}

func (s *AttachmentService) nextAttachmentID(ctx context.Context) (string, error) {
	exists := func(id string) (bool, error) {
		return s.attachments.AttachmentExists(ctx, id)
	}
	return store.GenerateAttachmentID(exists)
}

func (s *AttachmentService) validateAllowedMediaType(mediaType string) error {
	if len(s.allowedMediaTypes) == 0 {
		return nil
	}
	if _, ok := s.allowedMediaTypes[mediaType]; ok {
		return nil
	}
	return badRequestCode(fmt.Errorf("media type %s is not allowed", mediaType), ErrCodeInvalidMediaType)
}

// resolveMimeType prefers the declared type, then the filename extension,
// then content sniffing. The content is rewound afterwards.
func resolveMimeType(declared, filename string, content io.ReadSeeker) (string, error) {
	mediaType, err := normalizeMediaType(declared)
	if err != nil {
		return "", err
	}
	if mediaType != "" && mediaType != fallbackAttachmentContentMediaType {
		return mediaType, nil
	}

	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if normalized, err := normalizeMediaType(byExt); err == nil && normalized != "" {
			return normalized, nil
		}
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(content, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", badRequest(fmt.Errorf("read upload: %w", err))
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return "", internalError(fmt.Errorf("rewind upload: %w", err))
	}
	if n == 0 {
		return fallbackAttachmentContentMediaType, nil
	}
	sniffed, err := normalizeMediaType(http.DetectContentType(head[:n]))
	if err != nil || sniffed == "" {
		return fallbackAttachmentContentMediaType, nil
	}
	return sniffed, nil
}

type viewKind int

const (
	viewOther viewKind = iota
	viewImage
	viewText
)

func viewKindOf(attachment models.Attachment) viewKind {
	mediaType := strings.ToLower(strings.TrimSpace(attachment.MimeType))
	if strings.HasPrefix(mediaType, "image/") {
		return viewImage
	}
	if _, ok := textMediaTypes[mediaType]; ok {
		return viewText
	}
	if _, ok := textExtensions[strings.ToLower(filepath.Ext(attachment.Filename))]; ok {
		return viewText
	}
	return viewOther
}
