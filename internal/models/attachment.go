package models

import (
	"fmt"
	"strings"
	"time"
)

// StorageBackend names the mechanism holding an attachment's bytes.
type StorageBackend string

const (
	StorageDatabase   StorageBackend = "database"
	StorageFilesystem StorageBackend = "filesystem"
)

var validStorageBackends = map[StorageBackend]struct{}{
	StorageDatabase:   {},
	StorageFilesystem: {},
}

// Attachment is one stored file owned by exactly one article.
//
// BlobRef is interpreted according to Backend: an opaque object id for the
// database backend, a generated filename for the filesystem backend. It is an
// internal detail and never leaves the server.
type Attachment struct {
	ID        string         `json:"id"`
	ArticleID string         `json:"article_id"`
	Backend   StorageBackend `json:"backend"`
	BlobRef   string         `json:"-"`
	Filename  string         `json:"filename"`
	MimeType  string         `json:"mime_type"`
	Size      int64          `json:"size"`
	CreatedAt time.Time      `json:"created_at"`
}

// ParseStorageBackend validates a backend name.
func ParseStorageBackend(raw string) (StorageBackend, error) {
	value := StorageBackend(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("storage backend is required")
	}
	if _, ok := validStorageBackends[value]; !ok {
		return "", fmt.Errorf("invalid storage backend: %s", value)
	}
	return value, nil
}
