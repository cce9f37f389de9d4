package api

import "github.com/EhsanAmini770/charity-info-sub000/internal/models"

// OrphanListResponse is one page of the orphaned file registry.
type OrphanListResponse struct {
	Items []models.OrphanedFile `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Pages int                   `json:"pages"`
}

// OrphanResolveRequest marks an entry resolved or reopens it.
type OrphanResolveRequest struct {
	Resolved   *bool  `json:"resolved"`
	Resolution string `json:"resolution,omitempty"`
}

// ScanResponse is the response from POST /v1/admin/cleanup/scan.
type ScanResponse struct {
	RecordsChecked     int            `json:"records_checked"`
	BlobsChecked       int            `json:"blobs_checked"`
	ListEntriesChecked int            `json:"list_entries_checked"`
	Found              map[string]int `json:"found"`
	Registered         int            `json:"registered"`
	Errors             int            `json:"errors"`
	SkippedBackends    []string       `json:"skipped_backends,omitempty"`
	DurationMS         int64          `json:"duration_ms"`
}

// ProcessRequest bounds one processing batch. Zero uses the server default.
type ProcessRequest struct {
	Limit int `json:"limit"`
}

// ProcessResponse is the response from POST /v1/admin/cleanup/process-orphaned.
type ProcessResponse struct {
	Processed      int   `json:"processed"`
	Succeeded      int   `json:"succeeded"`
	Failed         int   `json:"failed"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
}
