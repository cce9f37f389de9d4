package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/blobstore"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

const (
	defaultProcessLimit    = 50
	maxProcessLimit        = 1000
	defaultBlobGracePeriod = 10 * time.Minute
	defaultOrphanPageLimit = 50
	maxOrphanPageLimit     = 500

	resolutionAlreadyResolved  = "already_resolved"
	resolutionRecordPurged     = "record_purged"
	resolutionBlobDeleted      = "blob_deleted"
	resolutionReferenceDropped = "reference_dropped"
	resolutionRelinked         = "relinked"

	reconcilerPrincipal = "reconciler"
)

// ErrScanInProgress reports that another scan holds the scan slot.
var ErrScanInProgress = errors.New("reconciliation scan already running")

// ReconcileService finds blob/metadata inconsistencies and heals them. It only
// reads blobs and records itself; every mutation goes through the attachment
// service.
type ReconcileService struct {
	articles    store.ArticleStore
	attachments store.AttachmentStore
	orphans     store.OrphanStore
	blobs       *blobstore.Set
	repair      *AttachmentService
	logger      *slog.Logger
	now         func() time.Time

	gracePeriod  time.Duration
	processLimit int

	scanMu sync.Mutex
}

// ScanResult summarizes one scan.
type ScanResult struct {
	RecordsChecked     int
	BlobsChecked       int
	ListEntriesChecked int
	Found              map[models.OrphanKind]int
	Registered         int
	Errors             int
	SkippedBackends    []models.StorageBackend
	Duration           time.Duration
}

// ProcessResult summarizes one bounded processing batch.
type ProcessResult struct {
	Processed      int
	Succeeded      int
	Failed         int
	ReclaimedBytes int64
}

// OrphanPage is one page of the orphan registry.
type OrphanPage struct {
	Items []models.OrphanedFile
	Total int
	Page  int
	Limit int
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(articles store.ArticleStore, attachments store.AttachmentStore, orphans store.OrphanStore, blobs *blobstore.Set, repair *AttachmentService, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileService{
		articles:     articles,
		attachments:  attachments,
		orphans:      orphans,
		blobs:        blobs,
		repair:       repair,
		logger:       logger.With("component", "reconcile"),
		now:          func() time.Time { return time.Now().UTC() },
		gracePeriod:  defaultBlobGracePeriod,
		processLimit: defaultProcessLimit,
	}
}

// ConfigurePolicy overrides the grace period and the default process limit.
func (s *ReconcileService) ConfigurePolicy(gracePeriod time.Duration, processLimit int) {
	if gracePeriod >= 0 {
		s.gracePeriod = gracePeriod
	}
	s.processLimit = clampProcessLimit(processLimit, defaultProcessLimit)
}

func clampProcessLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > maxProcessLimit {
		limit = maxProcessLimit
	}
	return limit
}

// Scan compares attachment records, backend contents and article lists and
// registers every mismatch. Per-item probe failures are counted, not returned.
func (s *ReconcileService) Scan(ctx context.Context) (ScanResult, error) {
	result := ScanResult{Found: map[models.OrphanKind]int{}}
	if !s.scanMu.TryLock() {
		return result, ErrScanInProgress
	}
	defer s.scanMu.Unlock()

	start := time.Now()
	cutoff := s.now().Add(-s.gracePeriod)

	records, err := s.attachments.ListAllAttachments(ctx)
	if err != nil {
		return result, fmt.Errorf("list attachments: %w", err)
	}

	referenced := map[models.StorageBackend]map[string]struct{}{}
	byID := make(map[string]models.Attachment, len(records))
	for _, record := range records {
		byID[record.ID] = record
		if referenced[record.Backend] == nil {
			referenced[record.Backend] = map[string]struct{}{}
		}
		referenced[record.Backend][record.BlobRef] = struct{}{}
	}

	skipped := map[models.StorageBackend]bool{}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.RecordsChecked++
		backend, ok := s.blobs.Backend(record.Backend)
		if !ok || !backend.Available() {
			skipped[record.Backend] = true
			result.Errors++
			continue
		}
		exists, err := backend.Exists(ctx, record.BlobRef)
		if err != nil {
			s.logger.Warn("blob probe failed", "attachment_id", record.ID, "backend", record.Backend, "error", err)
			result.Errors++
			continue
		}
		if exists {
			continue
		}
		s.register(ctx, &result, &models.OrphanedFile{
			Kind:        models.OrphanRecord,
			FileID:      record.ID,
			StorageType: record.Backend,
			EntityType:  models.EntityTypeArticle,
			EntityID:    record.ArticleID,
			Metadata: map[string]any{
				"blob_ref": record.BlobRef,
				"filename": record.Filename,
				"size":     record.Size,
			},
		})
	}

	for _, backend := range s.blobs.Backends() {
		lister, ok := backend.(blobstore.Lister)
		if !ok {
			continue
		}
		kind := backend.Kind()
		if !backend.Available() {
			skipped[kind] = true
			continue
		}
		err := lister.List(ctx, func(info blobstore.BlobInfo) error {
			result.BlobsChecked++
			if _, ok := referenced[kind][info.Ref]; ok {
				return nil
			}
			if info.CreatedAt.After(cutoff) {
				return nil
			}
			s.register(ctx, &result, &models.OrphanedFile{
				Kind:        models.OrphanBlob,
				FileID:      info.Ref,
				StorageType: kind,
				Metadata:    map[string]any{"size": info.Size},
			})
			return nil
		})
		if err != nil {
			s.logger.Warn("blob listing failed", "backend", kind, "error", err)
			result.Errors++
		}
	}

	refs, err := s.articles.ListArticleAttachmentRefs(ctx)
	if err != nil {
		return result, fmt.Errorf("list article attachment refs: %w", err)
	}
	listed := map[[2]string]struct{}{}
	for _, ref := range refs {
		result.ListEntriesChecked++
		listed[[2]string{ref.ArticleID, ref.AttachmentID}] = struct{}{}
		if _, ok := byID[ref.AttachmentID]; ok {
			continue
		}
		// The record may have been created after the listing above.
		exists, err := s.attachments.AttachmentExists(ctx, ref.AttachmentID)
		if err != nil {
			result.Errors++
			continue
		}
		if exists {
			continue
		}
		s.register(ctx, &result, &models.OrphanedFile{
			Kind:       models.OrphanDanglingReference,
			FileID:     ref.AttachmentID,
			EntityType: models.EntityTypeArticle,
			EntityID:   ref.ArticleID,
			Metadata:   map[string]any{"position": ref.Position},
		})
	}

	for _, record := range records {
		if _, ok := listed[[2]string{record.ArticleID, record.ID}]; ok {
			continue
		}
		if record.CreatedAt.After(cutoff) {
			continue
		}
		s.register(ctx, &result, &models.OrphanedFile{
			Kind:        models.OrphanUnlinkedRecord,
			FileID:      record.ID,
			StorageType: record.Backend,
			EntityType:  models.EntityTypeArticle,
			EntityID:    record.ArticleID,
			Metadata: map[string]any{
				"filename": record.Filename,
				"size":     record.Size,
			},
		})
	}

	for kind := range skipped {
		result.SkippedBackends = append(result.SkippedBackends, kind)
	}
	result.Duration = time.Since(start)

	s.logger.Info("reconciliation scan complete",
		"records_checked", result.RecordsChecked,
		"blobs_checked", result.BlobsChecked,
		"list_entries_checked", result.ListEntriesChecked,
		"registered", result.Registered,
		"errors", result.Errors,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (s *ReconcileService) register(ctx context.Context, result *ScanResult, orphan *models.OrphanedFile) {
	result.Found[orphan.Kind]++
	created, err := s.orphans.RegisterOrphan(ctx, orphan)
	if err != nil {
		s.logger.Warn("register orphan failed", "kind", orphan.Kind, "file_id", orphan.FileID, "error", err)
		result.Errors++
		return
	}
	if created {
		result.Registered++
		s.logger.Info("orphan registered", "id", orphan.ID, "kind", orphan.Kind, "file_id", orphan.FileID, "storage_type", orphan.StorageType)
	}
}

// ReportMissingBlob registers a record whose blob could not be read.
func (s *ReconcileService) ReportMissingBlob(ctx context.Context, attachment models.Attachment) {
	orphan := &models.OrphanedFile{
		Kind:        models.OrphanRecord,
		FileID:      attachment.ID,
		StorageType: attachment.Backend,
		EntityType:  models.EntityTypeArticle,
		EntityID:    attachment.ArticleID,
		Metadata: map[string]any{
			"blob_ref": attachment.BlobRef,
			"filename": attachment.Filename,
			"size":     attachment.Size,
			"source":   "retrieval",
		},
	}
	created, err := s.orphans.RegisterOrphan(context.WithoutCancel(ctx), orphan)
	if err != nil {
		s.logger.Error("report missing blob failed", "attachment_id", attachment.ID, "error", err)
		return
	}
	if created {
		s.logger.Warn("missing blob reported", "attachment_id", attachment.ID, "backend", attachment.Backend, "orphan_id", orphan.ID)
	}
}

// Process takes at most limit unresolved entries, least-attempted and then
// oldest first, and tries to heal each through the attachment service. Entry
// failures are counted and recorded on the entry, which moves it behind
// entries that have not failed as often.
func (s *ReconcileService) Process(ctx context.Context, limit int) (ProcessResult, error) {
	var result ProcessResult
	limit = clampProcessLimit(limit, s.processLimit)

	entries, err := s.orphans.ListUnresolvedOrphans(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("list unresolved orphans: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++

		resolution, reclaimed, err := s.processEntry(ctx, entry)
		now := s.now()
		metadata := maps.Clone(entry.Metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}
		if err != nil {
			result.Failed++
			metadata["last_error"] = err.Error()
			metadata["attempts"] = metadataInt(metadata["attempts"]) + 1
			if updateErr := s.orphans.UpdateOrphanMetadata(ctx, entry.ID, metadata, now); updateErr != nil {
				s.logger.Error("record orphan failure", "id", entry.ID, "error", updateErr)
			}
			s.logger.Warn("orphan processing failed", "id", entry.ID, "kind", entry.Kind, "file_id", entry.FileID, "error", err)
			continue
		}

		metadata["resolution"] = resolution
		metadata["resolved_by"] = reconcilerPrincipal
		delete(metadata, "last_error")
		if _, err := s.orphans.SetOrphanResolved(ctx, entry.ID, true, metadata, now); err != nil {
			result.Failed++
			s.logger.Error("mark orphan resolved", "id", entry.ID, "error", err)
			continue
		}
		result.Succeeded++
		result.ReclaimedBytes += reclaimed
		s.logger.Info("orphan resolved", "id", entry.ID, "kind", entry.Kind, "resolution", resolution, "reclaimed_bytes", reclaimed)
	}
	return result, nil
}

// processEntry re-verifies one entry and applies the matching repair.
func (s *ReconcileService) processEntry(ctx context.Context, entry models.OrphanedFile) (string, int64, error) {
	switch entry.Kind {
	case models.OrphanRecord:
		record, err := s.attachments.GetAttachment(ctx, entry.FileID)
		if err != nil {
			return "", 0, err
		}
		if record == nil {
			return resolutionAlreadyResolved, 0, nil
		}
		exists, err := s.blobExists(ctx, record.Backend, record.BlobRef)
		if err != nil {
			return "", 0, err
		}
		if exists {
			return resolutionAlreadyResolved, 0, nil
		}
		return s.purgeRecord(ctx, *record)

	case models.OrphanBlob:
		exists, err := s.blobExists(ctx, entry.StorageType, entry.FileID)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return resolutionAlreadyResolved, 0, nil
		}
		deleted, err := s.repair.PurgeBlob(ctx, entry.StorageType, entry.FileID)
		if errors.Is(err, errBlobReferenced) {
			return resolutionAlreadyResolved, 0, nil
		}
		if err != nil {
			return "", 0, err
		}
		if !deleted {
			return resolutionAlreadyResolved, 0, nil
		}
		return resolutionBlobDeleted, metadataInt64(entry.Metadata["size"]), nil

	case models.OrphanDanglingReference:
		listed, err := s.isListed(ctx, entry.EntityID, entry.FileID)
		if err != nil {
			return "", 0, err
		}
		if !listed {
			return resolutionAlreadyResolved, 0, nil
		}
		_, err = s.repair.DropArticleReference(ctx, entry.EntityID, entry.FileID)
		if errors.Is(err, errAttachmentPresent) {
			return resolutionAlreadyResolved, 0, nil
		}
		if err != nil {
			return "", 0, err
		}
		return resolutionReferenceDropped, 0, nil

	case models.OrphanUnlinkedRecord:
		record, err := s.attachments.GetAttachment(ctx, entry.FileID)
		if err != nil {
			return "", 0, err
		}
		if record == nil {
			return resolutionAlreadyResolved, 0, nil
		}
		listed, err := s.isListed(ctx, record.ArticleID, record.ID)
		if err != nil {
			return "", 0, err
		}
		if listed {
			return resolutionAlreadyResolved, 0, nil
		}
		err = s.repair.RelinkRecord(ctx, record.ID)
		switch {
		case err == nil:
			return resolutionRelinked, 0, nil
		case errors.Is(err, errArticleGone):
			return s.purgeRecord(ctx, *record)
		case errors.Is(err, errAttachmentGone):
			return resolutionAlreadyResolved, 0, nil
		default:
			return "", 0, err
		}

	default:
		return "", 0, fmt.Errorf("unknown orphan kind %q", entry.Kind)
	}
}

func (s *ReconcileService) purgeRecord(ctx context.Context, record models.Attachment) (string, int64, error) {
	result, err := s.repair.PurgeRecord(ctx, record.ID)
	if errors.Is(err, errAttachmentGone) {
		return resolutionAlreadyResolved, 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	var reclaimed int64
	if result.FileDeleted {
		reclaimed = record.Size
	}
	return resolutionRecordPurged, reclaimed, nil
}

func (s *ReconcileService) blobExists(ctx context.Context, kind models.StorageBackend, ref string) (bool, error) {
	backend, ok := s.blobs.Backend(kind)
	if !ok {
		return false, fmt.Errorf("%s backend is not configured", kind)
	}
	if !backend.Available() {
		return false, fmt.Errorf("%s backend: %w", kind, blobstore.ErrUnavailable)
	}
	return backend.Exists(ctx, ref)
}

func (s *ReconcileService) isListed(ctx context.Context, articleID, attachmentID string) (bool, error) {
	ids, err := s.articles.ListArticleAttachmentIDs(ctx, articleID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == attachmentID {
			return true, nil
		}
	}
	return false, nil
}

// ListOrphans returns one page of the registry, newest first. Pages start at 1.
func (s *ReconcileService) ListOrphans(ctx context.Context, resolved *bool, page, limit int) (OrphanPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultOrphanPageLimit
	}
	if limit > maxOrphanPageLimit {
		limit = maxOrphanPageLimit
	}
	items, total, err := s.orphans.ListOrphans(ctx, store.OrphanFilter{
		Resolved: resolved,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return OrphanPage{}, err
	}
	if items == nil {
		items = []models.OrphanedFile{}
	}
	return OrphanPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// SetResolved records an operator's manual resolution or reopens an entry.
func (s *ReconcileService) SetResolved(ctx context.Context, id string, resolved bool, resolution, principal string) (models.OrphanedFile, error) {
	var zero models.OrphanedFile
	if !validateOrphanID(id) {
		return zero, badRequestCode(fmt.Errorf("invalid orphaned file id"), ErrCodeInvalidID)
	}
	entry, err := s.orphans.GetOrphan(ctx, id)
	if err != nil {
		return zero, err
	}
	if entry == nil {
		return zero, notFoundCode(fmt.Errorf("orphaned file not found"), ErrCodeOrphanNotFound)
	}

	metadata := maps.Clone(entry.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	resolution = strings.TrimSpace(resolution)
	if resolved {
		if resolution == "" {
			resolution = "manual"
		}
		metadata["resolution"] = resolution
		metadata["resolved_by"] = principal
	} else {
		if resolution != "" {
			metadata["reopen_note"] = resolution
		}
		metadata["reopened_by"] = principal
	}

	updated, err := s.orphans.SetOrphanResolved(ctx, id, resolved, metadata, s.now())
	if err != nil {
		if isUniqueConstraint(err) {
			return zero, conflictCode(fmt.Errorf("an unresolved entry for this file already exists"), ErrCodeConflict)
		}
		return zero, err
	}
	if updated == nil {
		return zero, notFoundCode(fmt.Errorf("orphaned file not found"), ErrCodeOrphanNotFound)
	}
	s.logger.Info("orphan resolution changed", "id", id, "resolved", resolved, "by", principal)
	return *updated, nil
}

// DeleteOrphan removes only the tracking entry; blobs and records stay.
func (s *ReconcileService) DeleteOrphan(ctx context.Context, id string) error {
	if !validateOrphanID(id) {
		return badRequestCode(fmt.Errorf("invalid orphaned file id"), ErrCodeInvalidID)
	}
	deleted, err := s.orphans.DeleteOrphan(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return notFoundCode(fmt.Errorf("orphaned file not found"), ErrCodeOrphanNotFound)
	}
	return nil
}

// metadataInt reads a counter back from JSON-decoded metadata.
func metadataInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func metadataInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
