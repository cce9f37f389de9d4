package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/blobstore"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

// faultyBackend wraps a real backend and injects availability and delete faults.
type faultyBackend struct {
	blobstore.Backend
	unavailable bool
	deleteErr   error
}

func (f *faultyBackend) Available() bool {
	return !f.unavailable && f.Backend.Available()
}

func (f *faultyBackend) Delete(ctx context.Context, ref string) (bool, error) {
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return f.Backend.Delete(ctx, ref)
}

func (f *faultyBackend) List(ctx context.Context, fn func(blobstore.BlobInfo) error) error {
	lister, ok := f.Backend.(blobstore.Lister)
	if !ok {
		return nil
	}
	return lister.List(ctx, fn)
}

// failingAttachmentStore fails record creation.
type failingAttachmentStore struct {
	store.AttachmentStore
	createErr error
}

func (f *failingAttachmentStore) CreateAttachment(ctx context.Context, attachment *models.Attachment) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.AttachmentStore.CreateAttachment(ctx, attachment)
}

func listBlobs(t *testing.T, lister blobstore.Lister) []blobstore.BlobInfo {
	t.Helper()
	var infos []blobstore.BlobInfo
	err := lister.List(context.Background(), func(info blobstore.BlobInfo) error {
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	return infos
}

func writeStrayBlob(t *testing.T, b blobstore.Backend, content string) string {
	t.Helper()
	res, err := b.Write(context.Background(), strings.NewReader(content), "stray.bin")
	if err != nil {
		t.Fatalf("write stray blob: %v", err)
	}
	return res.Ref
}

// seedInconsistencies leaves one inconsistency of every kind behind.
func seedInconsistencies(t *testing.T, env *testEnv) (articleID string, orphanedRecord, unlinked models.Attachment, strayRef string) {
	t.Helper()
	ctx := context.Background()
	articleID = env.createArticle(t, "Harvest fair")

	orphanedRecord = env.upload(t, articleID, "lost.pdf", "application/pdf", []byte("%PDF lost"))
	if _, err := env.db.Delete(ctx, env.record(t, orphanedRecord.ID).BlobRef); err != nil {
		t.Fatalf("delete blob: %v", err)
	}

	strayRef = writeStrayBlob(t, env.files, "stray")

	if err := env.store.AppendArticleAttachment(ctx, articleID, "at-zzzzzz"); err != nil {
		t.Fatalf("append dangling ref: %v", err)
	}

	unlinked = env.upload(t, articleID, "unlinked.pdf", "application/pdf", []byte("%PDF unlinked"))
	if _, err := env.store.RemoveArticleAttachment(ctx, articleID, unlinked.ID); err != nil {
		t.Fatalf("unlink attachment: %v", err)
	}
	return articleID, orphanedRecord, unlinked, strayRef
}

func TestScanRegistersEachInconsistencyOnce(t *testing.T) {
	env := newTestEnv(t)
	seedInconsistencies(t, env)
	ctx := context.Background()

	result, err := env.srv.reconcileService.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, kind := range []models.OrphanKind{models.OrphanRecord, models.OrphanBlob, models.OrphanDanglingReference, models.OrphanUnlinkedRecord} {
		if result.Found[kind] != 1 {
			t.Fatalf("expected one %s, got %d (%#v)", kind, result.Found[kind], result.Found)
		}
	}
	if result.Registered != 4 {
		t.Fatalf("expected 4 registered, got %d", result.Registered)
	}
	if result.Errors != 0 {
		t.Fatalf("expected no errors, got %d", result.Errors)
	}

	again, err := env.srv.reconcileService.Scan(ctx)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if again.Registered != 0 {
		t.Fatalf("repeated scan must not register duplicates, got %d", again.Registered)
	}
	if got := len(env.orphans(t, boolPtr(false))); got != 4 {
		t.Fatalf("expected 4 unresolved entries, got %d", got)
	}
}

func TestProcessHealsEachKind(t *testing.T) {
	env := newTestEnv(t)
	articleID, orphanedRecord, unlinked, strayRef := seedInconsistencies(t, env)
	ctx := context.Background()

	if _, err := env.srv.reconcileService.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	result, err := env.srv.reconcileService.Process(ctx, 0)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 4 || result.Succeeded != 4 || result.Failed != 0 {
		t.Fatalf("unexpected process result %#v", result)
	}
	if result.ReclaimedBytes != int64(len("stray")) {
		t.Fatalf("expected %d reclaimed bytes, got %d", len("stray"), result.ReclaimedBytes)
	}

	if env.record(t, orphanedRecord.ID) != nil {
		t.Fatal("orphaned record should be purged")
	}
	if exists, _ := env.files.Exists(ctx, strayRef); exists {
		t.Fatal("stray blob should be deleted")
	}
	ids, err := env.store.ListArticleAttachmentIDs(ctx, articleID)
	if err != nil {
		t.Fatalf("list article attachments: %v", err)
	}
	if len(ids) != 1 || ids[0] != unlinked.ID {
		t.Fatalf("expected only the relinked attachment in the list, got %v", ids)
	}

	for _, entry := range env.orphans(t, boolPtr(true)) {
		if entry.Metadata["resolved_by"] != reconcilerPrincipal {
			t.Fatalf("expected resolved_by %q, got %v", reconcilerPrincipal, entry.Metadata["resolved_by"])
		}
		if entry.ResolvedAt == nil {
			t.Fatalf("expected resolved_at on %s", entry.ID)
		}
	}

	after, err := env.srv.reconcileService.Scan(ctx)
	if err != nil {
		t.Fatalf("scan after process: %v", err)
	}
	if after.Registered != 0 || len(env.orphans(t, boolPtr(false))) != 0 {
		t.Fatalf("expected a clean scan after processing, got %#v", after.Found)
	}
}

func TestProcessRespectsLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		writeStrayBlob(t, env.files, "stray")
	}
	if _, err := env.srv.reconcileService.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}

	result, err := env.srv.reconcileService.Process(ctx, 2)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", result.Processed)
	}
	if got := len(env.orphans(t, boolPtr(false))); got != 3 {
		t.Fatalf("expected 3 entries left, got %d", got)
	}

	result, err = env.srv.reconcileService.Process(ctx, 5000)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Processed != 3 {
		t.Fatalf("expected remaining 3 processed, got %d", result.Processed)
	}
}

func TestClampProcessLimit(t *testing.T) {
	tests := []struct{ limit, def, want int }{
		{0, 50, 50},
		{-3, 50, 50},
		{10, 50, 10},
		{5000, 50, maxProcessLimit},
	}
	for _, tt := range tests {
		if got := clampProcessLimit(tt.limit, tt.def); got != tt.want {
			t.Fatalf("clampProcessLimit(%d, %d) = %d, want %d", tt.limit, tt.def, got, tt.want)
		}
	}
}

func TestProcessMarksHealedEntriesResolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ref := writeStrayBlob(t, env.files, "stray")
	if _, err := env.srv.reconcileService.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if _, err := env.files.Delete(ctx, ref); err != nil {
		t.Fatalf("delete blob: %v", err)
	}

	result, err := env.srv.reconcileService.Process(ctx, 0)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Succeeded != 1 || result.ReclaimedBytes != 0 {
		t.Fatalf("unexpected result %#v", result)
	}
	resolved := env.orphans(t, boolPtr(true))
	if len(resolved) != 1 || resolved[0].Metadata["resolution"] != resolutionAlreadyResolved {
		t.Fatalf("expected already_resolved entry, got %#v", resolved)
	}
}

func TestProcessFailureIsRecordedOnEntry(t *testing.T) {
	faulty := &faultyBackend{deleteErr: errors.New("disk is read-only")}
	env := newTestEnv(t, withDatabaseBackend(func(b blobstore.Backend) blobstore.Backend {
		faulty.Backend = b
		return faulty
	}))
	ctx := context.Background()
	writeStrayBlob(t, env.db, "stray")
	if _, err := env.srv.reconcileService.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		result, err := env.srv.reconcileService.Process(ctx, 0)
		if err != nil {
			t.Fatalf("process must not raise entry failures: %v", err)
		}
		if result.Processed != 1 || result.Failed != 1 || result.Succeeded != 0 {
			t.Fatalf("unexpected result %#v", result)
		}
		entries := env.orphans(t, boolPtr(false))
		if len(entries) != 1 {
			t.Fatalf("expected entry to stay unresolved, got %d", len(entries))
		}
		if got := metadataInt(entries[0].Metadata["attempts"]); got != attempt {
			t.Fatalf("expected attempts %d, got %d", attempt, got)
		}
		if msg, _ := entries[0].Metadata["last_error"].(string); !strings.Contains(msg, "read-only") {
			t.Fatalf("expected last_error to be recorded, got %v", entries[0].Metadata["last_error"])
		}
	}
}

func TestProcessReachesHealableEntriesPastRepeatedFailures(t *testing.T) {
	faulty := &faultyBackend{deleteErr: errors.New("disk is read-only")}
	env := newTestEnv(t, withDatabaseBackend(func(b blobstore.Backend) blobstore.Backend {
		faulty.Backend = b
		return faulty
	}))
	ctx := context.Background()
	writeStrayBlob(t, env.db, "stuck")
	healable := writeStrayBlob(t, env.files, "stray")
	if _, err := env.srv.reconcileService.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}

	for round := 0; round < 2; round++ {
		if _, err := env.srv.reconcileService.Process(ctx, 1); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	open := env.orphans(t, boolPtr(false))
	if len(open) != 1 || open[0].StorageType != models.StorageDatabase {
		t.Fatalf("expected only the failing database entry left open, got %#v", open)
	}
	if exists, err := env.files.Exists(ctx, healable); err != nil || exists {
		t.Fatalf("expected filesystem stray deleted, exists=%v err=%v", exists, err)
	}
}

// Test environments run with a zero grace period, so the first scan after the
// failed upload already sees the blob.
func TestUploadMetadataFailureLeavesOneOrphanedBlob(t *testing.T) {
	env := newTestEnv(t, withDeps(func(d Deps) Deps {
		d.Attachments = &failingAttachmentStore{AttachmentStore: d.Attachments, createErr: errors.New("database is locked")}
		return d
	}))
	articleID := env.createArticle(t, "Partial failure")

	w := env.serve(uploadRequest(t, articleID, "receipt.pdf", "application/pdf", []byte("%PDF receipt")))
	errResp := expectError(t, w, http.StatusInternalServerError, ErrCodeUploadFailed)
	if errResp.Error != "internal error" {
		t.Fatalf("expected masked message, got %q", errResp.Error)
	}

	result, err := env.srv.reconcileService.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Found[models.OrphanBlob] != 1 || result.Registered != 1 {
		t.Fatalf("expected exactly one orphaned blob, got %#v", result.Found)
	}
	entries := env.orphans(t, boolPtr(false))
	if len(entries) != 1 || entries[0].StorageType != models.StorageDatabase {
		t.Fatalf("unexpected registry %#v", entries)
	}
}

// The shipped grace period hides a stalled upload's blob from scans until it
// is older than the period; after that the same scan reports it.
func TestStalledUploadBlobReportedAfterGracePeriod(t *testing.T) {
	env := newTestEnv(t, withDeps(func(d Deps) Deps {
		d.Attachments = &failingAttachmentStore{AttachmentStore: d.Attachments, createErr: errors.New("database is locked")}
		return d
	}))
	svc := env.srv.reconcileService
	svc.ConfigurePolicy(defaultBlobGracePeriod, 0)
	articleID := env.createArticle(t, "Grace period")
	expectError(t, env.serve(uploadRequest(t, articleID, "receipt.pdf", "application/pdf", []byte("%PDF receipt"))), http.StatusInternalServerError, ErrCodeUploadFailed)

	ctx := context.Background()
	result, err := svc.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Found[models.OrphanBlob] != 0 {
		t.Fatalf("fresh blob must be inside the grace period, got %#v", result.Found)
	}

	svc.now = func() time.Time { return time.Now().Add(defaultBlobGracePeriod + time.Minute) }
	result, err = svc.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Found[models.OrphanBlob] != 1 || result.Registered != 1 {
		t.Fatalf("expected the blob reported once the grace period passed, got %#v", result.Found)
	}
}

func TestDeleteWithFailingBlobDeleteStillRemovesRecord(t *testing.T) {
	faulty := &faultyBackend{deleteErr: errors.New("connection reset")}
	env := newTestEnv(t, withDatabaseBackend(func(b blobstore.Backend) blobstore.Backend {
		faulty.Backend = b
		return faulty
	}))
	articleID := env.createArticle(t, "Blob delete fails")
	created := env.upload(t, articleID, "a.pdf", "application/pdf", []byte("%PDF a"))

	w := env.do(t, http.MethodDelete, "/v1/articles/"+articleID+"/attachments/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if env.record(t, created.ID) != nil {
		t.Fatal("record must be deleted even when the blob delete fails")
	}

	result, err := env.srv.reconcileService.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Found[models.OrphanBlob] != 1 {
		t.Fatalf("expected the leftover blob to be found, got %#v", result.Found)
	}
}

func TestScanSkipsUnavailableBackend(t *testing.T) {
	faulty := &faultyBackend{}
	env := newTestEnv(t, withDatabaseBackend(func(b blobstore.Backend) blobstore.Backend {
		faulty.Backend = b
		return faulty
	}))
	articleID := env.createArticle(t, "Unavailable")
	env.upload(t, articleID, "a.pdf", "application/pdf", []byte("%PDF a"))

	faulty.unavailable = true
	result, err := env.srv.reconcileService.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result.Errors != 1 || result.Registered != 0 {
		t.Fatalf("expected one probe error and nothing registered, got %#v", result)
	}
	if len(result.SkippedBackends) != 1 || result.SkippedBackends[0] != models.StorageDatabase {
		t.Fatalf("expected database backend skipped, got %v", result.SkippedBackends)
	}
}

func TestScanIsSingleFlight(t *testing.T) {
	env := newTestEnv(t)
	env.srv.reconcileService.scanMu.Lock()
	defer env.srv.reconcileService.scanMu.Unlock()

	if _, err := env.srv.reconcileService.Scan(context.Background()); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
	w := env.do(t, http.MethodPost, "/v1/admin/cleanup/scan", nil)
	expectError(t, w, http.StatusConflict, ErrCodeScanInProgress)
}

func TestSetResolvedRecordsPrincipal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	writeStrayBlob(t, env.files, "stray")
	if _, err := env.srv.reconcileService.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	entry := env.orphans(t, nil)[0]

	updated, err := env.srv.reconcileService.SetResolved(ctx, entry.ID, true, "kept for audit", "ana")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !updated.Resolved || updated.Metadata["resolution"] != "kept for audit" || updated.Metadata["resolved_by"] != "ana" {
		t.Fatalf("unexpected resolved entry %#v", updated)
	}

	reopened, err := env.srv.reconcileService.SetResolved(ctx, entry.ID, false, "", "ben")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Resolved || reopened.ResolvedAt != nil || reopened.Metadata["reopened_by"] != "ben" {
		t.Fatalf("unexpected reopened entry %#v", reopened)
	}

	_, err = env.srv.reconcileService.SetResolved(ctx, "of-zzzzzz", true, "", "ana")
	var apiErr apiError
	if !asAPIError(err, &apiErr) || apiErr.errCode != ErrCodeOrphanNotFound {
		t.Fatalf("expected orphan not found, got %v", err)
	}
}

func TestDeleteOrphanKeepsBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ref := writeStrayBlob(t, env.files, "stray")
	if _, err := env.srv.reconcileService.Scan(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	entry := env.orphans(t, nil)[0]

	if err := env.srv.reconcileService.DeleteOrphan(ctx, entry.ID); err != nil {
		t.Fatalf("delete orphan: %v", err)
	}
	if exists, _ := env.files.Exists(ctx, ref); !exists {
		t.Fatal("deleting a tracking entry must not touch the blob")
	}
	var apiErr apiError
	if err := env.srv.reconcileService.DeleteOrphan(ctx, entry.ID); !asAPIError(err, &apiErr) || apiErr.status != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %v", err)
	}
}
