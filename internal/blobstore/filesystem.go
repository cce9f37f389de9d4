package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const (
	filesystemTmpDir   = "tmp"
	maxStoredExtension = 16
)

// Filesystem stores blob bytes as flat files named <uuid><ext> under root.
type Filesystem struct {
	root string
}

// NewFilesystem creates a filesystem backend rooted at root.
func NewFilesystem(root string) (*Filesystem, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("uploads directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, filesystemTmpDir), 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: abs}, nil
}

// Root returns the absolute uploads directory.
func (f *Filesystem) Root() string {
	return f.root
}

func (f *Filesystem) Kind() models.StorageBackend {
	return models.StorageFilesystem
}

// Available is always true once the directory exists.
func (f *Filesystem) Available() bool {
	return f != nil
}

// Write streams content to a temp file and renames it to a generated name.
// The name keeps the extension of suggestedName only.
func (f *Filesystem) Write(ctx context.Context, content io.Reader, suggestedName string) (WriteResult, error) {
	var zero WriteResult
	if f == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if content == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(f.root, filesystemTmpDir), "put-*")
	if err != nil {
		return zero, storageFailure(f.Kind(), "write", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, content)
	if err != nil {
		cleanup()
		return zero, storageFailure(f.Kind(), "write", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, storageFailure(f.Kind(), "write", err)
	}

	name := uuid.NewString() + storedExtension(suggestedName)
	if err := os.Rename(tmpPath, filepath.Join(f.root, name)); err != nil {
		cleanup()
		return zero, storageFailure(f.Kind(), "write", err)
	}
	return WriteResult{Ref: name, Size: n}, nil
}

func (f *Filesystem) ReadAll(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.pathFromRef(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, f.mapError("read", err)
	}
	return data, nil
}

func (f *Filesystem) OpenStream(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.pathFromRef(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, f.mapError("open", err)
	}
	return file, nil
}

// Delete removes a blob file. A missing file reports false.
func (f *Filesystem) Delete(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := f.pathFromRef(ref)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, storageFailure(f.Kind(), "delete", err)
	}
	return true, nil
}

func (f *Filesystem) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := f.pathFromRef(ref)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, storageFailure(f.Kind(), "stat", err)
	}
	return info.Mode().IsRegular(), nil
}

// List walks the top level of the uploads directory, reporting only
// generated blob names.
func (f *Filesystem) List(ctx context.Context, fn func(BlobInfo) error) error {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return storageFailure(f.Kind(), "list", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() || !isGeneratedName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return storageFailure(f.Kind(), "list", err)
		}
		if err := fn(BlobInfo{Ref: entry.Name(), Size: info.Size(), CreatedAt: info.ModTime().UTC()}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filesystem) Close() error {
	return nil
}

func (f *Filesystem) mapError(op string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return storageFailure(f.Kind(), op, err)
}

func (f *Filesystem) pathFromRef(ref string) (string, error) {
	if f == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("blob ref is required")
	}
	if ref != filepath.Base(ref) || strings.ContainsAny(ref, `/\`) || ref == "." || ref == ".." || ref == filesystemTmpDir {
		return "", fmt.Errorf("invalid blob ref")
	}
	return filepath.Join(f.root, ref), nil
}

// storedExtension keeps a short lowercase alphanumeric extension.
// isGeneratedName reports whether name has the "<uuid><ext>" shape Write
// produces. Files placed in the uploads dir by hand are not blobs.
func isGeneratedName(name string) bool {
	const uuidLen = 36
	if len(name) < uuidLen {
		return false
	}
	id, err := uuid.Parse(name[:uuidLen])
	if err != nil || id.String() != name[:uuidLen] {
		return false
	}
	return storedExtension(name[uuidLen:]) == name[uuidLen:]
}

func storedExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if len(ext) < 2 || len(ext) > maxStoredExtension {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
