package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

var (
	// ErrNotFound reports that a blob reference does not resolve.
	ErrNotFound = errors.New("blob not found")
	// ErrUnavailable reports that a backend has not finished initializing.
	ErrUnavailable = errors.New("blob backend unavailable")
	// ErrNoBackend reports that no backend accepted a write.
	ErrNoBackend = errors.New("no blob backend accepted the write")
)

// WriteResult describes one persisted blob.
type WriteResult struct {
	Ref  string
	Size int64
}

// BlobInfo describes one blob found while listing a backend.
type BlobInfo struct {
	Ref       string
	Size      int64
	CreatedAt time.Time
}

// Backend is the byte-storage contract shared by every storage mechanism.
//
// Delete reports false with a nil error when the blob is already absent so
// callers can treat "already gone" as a loggable condition.
type Backend interface {
	Kind() models.StorageBackend
	Available() bool
	Write(ctx context.Context, content io.Reader, suggestedName string) (WriteResult, error)
	ReadAll(ctx context.Context, ref string) ([]byte, error)
	OpenStream(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) (bool, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Close() error
}

// Lister is implemented by backends that can enumerate their blobs.
type Lister interface {
	List(ctx context.Context, fn func(BlobInfo) error) error
}

// StorageError wraps an I/O or driver failure inside a backend.
type StorageError struct {
	Backend models.StorageBackend
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s backend %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageFailure reports whether err is a backend I/O or driver failure.
func IsStorageFailure(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr)
}

func storageFailure(kind models.StorageBackend, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StorageError{Backend: kind, Op: op, Err: err}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
