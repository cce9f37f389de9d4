package models

import (
	"fmt"
	"strings"
	"time"
)

// OrphanKind classifies one detected storage/metadata inconsistency.
type OrphanKind string

const (
	// OrphanRecord is an attachment record whose blob cannot be found.
	OrphanRecord OrphanKind = "orphaned_record"
	// OrphanBlob is a stored blob that no attachment record references.
	OrphanBlob OrphanKind = "orphaned_blob"
	// OrphanDanglingReference is an article list entry with no attachment record.
	OrphanDanglingReference OrphanKind = "dangling_reference"
	// OrphanUnlinkedRecord is an attachment record missing from its article list.
	OrphanUnlinkedRecord OrphanKind = "unlinked_record"
)

const EntityTypeArticle = "article"

var validOrphanKinds = map[OrphanKind]struct{}{
	OrphanRecord:            {},
	OrphanBlob:              {},
	OrphanDanglingReference: {},
	OrphanUnlinkedRecord:    {},
}

// OrphanedFile tracks one detected inconsistency through its resolution.
type OrphanedFile struct {
	ID          string         `json:"id"`
	Kind        OrphanKind     `json:"kind"`
	FileID      string         `json:"file_id"`
	StorageType StorageBackend `json:"storage_type,omitempty"`
	EntityType  string         `json:"entity_type,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	Resolved    bool           `json:"resolved"`
	ResolvedAt  *time.Time     `json:"resolved_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func ParseOrphanKind(raw string) (OrphanKind, error) {
	value := OrphanKind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("orphan kind is required")
	}
	if _, ok := validOrphanKinds[value]; !ok {
		return "", fmt.Errorf("invalid orphan kind: %s", value)
	}
	return value, nil
}
