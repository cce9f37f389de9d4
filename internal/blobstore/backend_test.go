package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// exerciseBackend runs the round trip every backend must satisfy.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 40)
	res, err := b.Write(ctx, bytes.NewReader(payload), "report.PDF")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Ref == "" {
		t.Fatal("expected a blob ref")
	}
	if res.Size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), res.Size)
	}

	exists, err := b.Exists(ctx, res.Ref)
	if err != nil || !exists {
		t.Fatalf("expected blob to exist, got %v, %v", exists, err)
	}

	data, err := b.ReadAll(ctx, res.Ref)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("read all returned %d bytes, want identical payload", len(data))
	}

	rc, err := b.OpenStream(ctx, res.Ref)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	streamed, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !bytes.Equal(streamed, payload) {
		t.Fatalf("stream returned %d bytes, want identical payload", len(streamed))
	}

	if lister, ok := b.(Lister); ok {
		found := false
		err := lister.List(ctx, func(info BlobInfo) error {
			if info.Ref == res.Ref {
				found = true
				if info.Size != res.Size {
					t.Fatalf("listed size %d, want %d", info.Size, res.Size)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !found {
			t.Fatalf("expected %s in listing", res.Ref)
		}
	}

	deleted, err := b.Delete(ctx, res.Ref)
	if err != nil || !deleted {
		t.Fatalf("expected first delete to report true, got %v, %v", deleted, err)
	}
	deleted, err = b.Delete(ctx, res.Ref)
	if err != nil {
		t.Fatalf("second delete should not fail: %v", err)
	}
	if deleted {
		t.Fatal("expected second delete to report false")
	}

	if _, err := b.ReadAll(ctx, res.Ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := b.OpenStream(ctx, res.Ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound stream after delete, got %v", err)
	}
	exists, err = b.Exists(ctx, res.Ref)
	if err != nil || exists {
		t.Fatalf("expected blob to be gone, got %v, %v", exists, err)
	}
}

func exerciseEmptyBlob(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	res, err := b.Write(ctx, bytes.NewReader(nil), "empty.txt")
	if err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if res.Size != 0 {
		t.Fatalf("expected size 0, got %d", res.Size)
	}
	data, err := b.ReadAll(ctx, res.Ref)
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty payload, got %q", data)
	}
}
