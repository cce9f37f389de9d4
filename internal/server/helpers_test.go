package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/blobstore"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

type testEnv struct {
	srv   *Server
	store *store.Store
	files *blobstore.Filesystem
	db    *blobstore.SQLiteBlobs
	blobs *blobstore.Set
	cfg   *config.Config
}

type testEnvOption func(*testEnvSetup)

type testEnvSetup struct {
	prefer      models.StorageBackend
	wrapDeps    func(Deps) Deps
	wrapBackend func(blobstore.Backend) blobstore.Backend
	configure   func(*config.Config)
}

func withPrefer(kind models.StorageBackend) testEnvOption {
	return func(s *testEnvSetup) { s.prefer = kind }
}

func withDeps(fn func(Deps) Deps) testEnvOption {
	return func(s *testEnvSetup) { s.wrapDeps = fn }
}

// withDatabaseBackend wraps the database backend, e.g. to inject faults.
func withDatabaseBackend(fn func(blobstore.Backend) blobstore.Backend) testEnvOption {
	return func(s *testEnvSetup) { s.wrapBackend = fn }
}

func withConfig(fn func(*config.Config)) testEnvOption {
	return func(s *testEnvSetup) { s.configure = fn }
}

func newTestEnv(t *testing.T, opts ...testEnvOption) *testEnv {
	t.Helper()
	setup := testEnvSetup{prefer: models.StorageDatabase}
	for _, opt := range opts {
		opt(&setup)
	}

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "charity_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	files, err := blobstore.NewFilesystem(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("open uploads dir: %v", err)
	}
	db, err := blobstore.OpenSQLiteBlobs(filepath.Join(dir, "charity_blobs_test.db"), 16)
	if err != nil {
		t.Fatalf("open blob db: %v", err)
	}

	var database blobstore.Backend = db
	if setup.wrapBackend != nil {
		database = setup.wrapBackend(db)
	}
	var set *blobstore.Set
	if setup.prefer == models.StorageFilesystem {
		set, err = blobstore.NewSet(nil, files, database)
	} else {
		set, err = blobstore.NewSet(nil, database, files)
	}
	if err != nil {
		t.Fatalf("new blob set: %v", err)
	}
	t.Cleanup(func() { _ = set.Close() })

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "charity_test.db")
	cfg.Storage.UploadsDir = files.Root()
	cfg.Reconcile.BlobGracePeriod = 0
	if setup.configure != nil {
		setup.configure(&cfg)
	}

	deps := StoreDeps(st, set)
	if setup.wrapDeps != nil {
		deps = setup.wrapDeps(deps)
	}

	return &testEnv{
		srv:   New("127.0.0.1:0", deps, &cfg, nil),
		store: st,
		files: files,
		db:    db,
		blobs: set,
		cfg:   &cfg,
	}
}

func (e *testEnv) createArticle(t *testing.T, title string) string {
	t.Helper()
	article := models.Article{Title: title}
	if err := e.store.CreateArticle(context.Background(), &article); err != nil {
		t.Fatalf("create article: %v", err)
	}
	return article.ID
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.srv.routes().ServeHTTP(w, req)
	return w
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req)
}

func uploadRequest(t *testing.T, articleID, filename, mimeType string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if mimeType != "" {
		header.Set("Content-Type", mimeType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create form part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/articles/"+articleID+"/attachments", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (e *testEnv) upload(t *testing.T, articleID, filename, mimeType string, content []byte) models.Attachment {
	t.Helper()
	w := e.serve(uploadRequest(t, articleID, filename, mimeType, content))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload %s: expected 201, got %d (%s)", filename, w.Code, w.Body.String())
	}
	var created models.Attachment
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode attachment: %v", err)
	}
	return created
}

// record loads the stored attachment, including its internal blob ref.
func (e *testEnv) record(t *testing.T, id string) *models.Attachment {
	t.Helper()
	attachment, err := e.store.GetAttachment(context.Background(), id)
	if err != nil {
		t.Fatalf("get attachment %s: %v", id, err)
	}
	return attachment
}

func (e *testEnv) orphans(t *testing.T, resolved *bool) []models.OrphanedFile {
	t.Helper()
	items, _, err := e.store.ListOrphans(context.Background(), store.OrphanFilter{Resolved: resolved, Limit: 1000})
	if err != nil {
		t.Fatalf("list orphans: %v", err)
	}
	return items
}

func decodeErrorResponse(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var errResp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, w.Body.String())
	}
	return errResp
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status, errorCode int) api.ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	errResp := decodeErrorResponse(t, w)
	if errResp.ErrorCode != errorCode {
		t.Fatalf("expected error_code %d, got %d (%s)", errorCode, errResp.ErrorCode, w.Body.String())
	}
	return errResp
}

func boolPtr(v bool) *bool {
	return &v
}

func asAPIError(err error, out *apiError) bool {
	if err == nil || out == nil {
		return false
	}
	v, ok := err.(apiError)
	if !ok {
		return false
	}
	*out = v
	return true
}

func jsonBody(t *testing.T, body any) io.Reader {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(payload)
}
