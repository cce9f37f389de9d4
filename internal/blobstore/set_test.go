package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

// stubBackend wraps a real backend and injects availability and write faults.
type stubBackend struct {
	Backend
	kind        models.StorageBackend
	unavailable bool
	writeErr    error
	truncate    bool
	writes      int
}

func (s *stubBackend) Kind() models.StorageBackend {
	if s.kind != "" {
		return s.kind
	}
	return s.Backend.Kind()
}

func (s *stubBackend) Available() bool {
	return !s.unavailable
}

func (s *stubBackend) Write(ctx context.Context, content io.Reader, suggestedName string) (WriteResult, error) {
	s.writes++
	if s.writeErr != nil {
		// Consume some input so the fallback has to rewind.
		_, _ = io.CopyN(io.Discard, content, 2)
		return WriteResult{}, s.writeErr
	}
	if s.truncate {
		return s.Backend.Write(ctx, io.LimitReader(content, 1), suggestedName)
	}
	return s.Backend.Write(ctx, content, suggestedName)
}

func newTestSet(t *testing.T) (*Set, *stubBackend, *stubBackend) {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	db := &stubBackend{Backend: testSQLiteBlobs(t, 8)}
	files := &stubBackend{Backend: fs}
	set, err := NewSet(nil, db, files)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	return set, db, files
}

func TestSetPrefersFirstBackend(t *testing.T) {
	set, db, files := newTestSet(t)

	kind, res, err := set.Write(context.Background(), bytes.NewReader([]byte("hello")), "hello.txt", 5)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if kind != models.StorageDatabase {
		t.Fatalf("expected database backend, got %q", kind)
	}
	if res.Size != 5 || db.writes != 1 || files.writes != 0 {
		t.Fatalf("unexpected result %#v (db writes %d, fs writes %d)", res, db.writes, files.writes)
	}
}

func TestSetFallsBackWhenUnavailable(t *testing.T) {
	set, db, files := newTestSet(t)
	db.unavailable = true

	kind, res, err := set.Write(context.Background(), bytes.NewReader([]byte("hello")), "hello.txt", 5)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if kind != models.StorageFilesystem {
		t.Fatalf("expected filesystem backend, got %q", kind)
	}
	if db.writes != 0 || files.writes != 1 {
		t.Fatalf("expected only filesystem write, got db=%d fs=%d", db.writes, files.writes)
	}

	backend, ok := set.Backend(kind)
	if !ok {
		t.Fatal("expected filesystem backend in set")
	}
	data, err := backend.ReadAll(context.Background(), res.Ref)
	if err != nil || string(data) != "hello" {
		t.Fatalf("expected hello, got %q, %v", data, err)
	}
}

func TestSetFallsBackOnStorageFailureAndRewinds(t *testing.T) {
	set, db, _ := newTestSet(t)
	db.writeErr = &StorageError{Backend: models.StorageDatabase, Op: "write", Err: errors.New("disk full")}

	kind, res, err := set.Write(context.Background(), bytes.NewReader([]byte("hello")), "hello.txt", 5)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if kind != models.StorageFilesystem {
		t.Fatalf("expected filesystem backend, got %q", kind)
	}
	backend, _ := set.Backend(kind)
	data, err := backend.ReadAll(context.Background(), res.Ref)
	if err != nil || string(data) != "hello" {
		t.Fatalf("expected full payload after rewind, got %q, %v", data, err)
	}
}

func TestSetDoesNotFallBackOnCallerErrors(t *testing.T) {
	set, db, files := newTestSet(t)
	db.writeErr = context.Canceled

	_, _, err := set.Write(context.Background(), bytes.NewReader([]byte("hello")), "hello.txt", 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if files.writes != 0 {
		t.Fatal("expected no fallback write")
	}
}

func TestSetRejectsShortWrite(t *testing.T) {
	set, db, files := newTestSet(t)
	db.truncate = true
	files.truncate = true

	_, _, err := set.Write(context.Background(), bytes.NewReader([]byte("hello")), "hello.txt", 5)
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
	if !IsStorageFailure(err) {
		t.Fatalf("expected wrapped storage failure, got %v", err)
	}

	var leftovers int
	for _, b := range set.Backends() {
		lister := b.(*stubBackend).Backend.(Lister)
		_ = lister.List(context.Background(), func(BlobInfo) error {
			leftovers++
			return nil
		})
	}
	if leftovers != 0 {
		t.Fatalf("expected short blobs to be removed, found %d", leftovers)
	}
}

func TestSetAllUnavailable(t *testing.T) {
	set, db, files := newTestSet(t)
	db.unavailable = true
	files.unavailable = true

	_, _, err := set.Write(context.Background(), bytes.NewReader([]byte("x")), "x", -1)
	if !errors.Is(err, ErrNoBackend) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable failure, got %v", err)
	}
}

func TestNewSetRejectsDuplicates(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	if _, err := NewSet(nil, fs, fs); err == nil {
		t.Fatal("expected duplicate backend error")
	}
	if _, err := NewSet(nil, nil); err == nil {
		t.Fatal("expected empty set error")
	}
}
