package api

import "github.com/EhsanAmini770/charity-info-sub000/internal/models"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is the response from GET /health.
type HealthResponse struct {
	Status   string          `json:"status"`
	Backends []BackendStatus `json:"backends"`
}

// BackendStatus reports one configured blob backend.
type BackendStatus struct {
	Kind      models.StorageBackend `json:"kind"`
	Available bool                  `json:"available"`
	Preferred bool                  `json:"preferred"`
}

// InfoResponse is the response from GET /v1/admin/info.
type InfoResponse struct {
	DBPath               string         `json:"db_path,omitempty"`
	SchemaVersion        int            `json:"schema_version"`
	Articles             int            `json:"articles"`
	Attachments          int            `json:"attachments"`
	AttachmentBytes      int64          `json:"attachment_bytes"`
	AttachmentsByBackend map[string]int `json:"attachments_by_backend"`
	UnresolvedOrphans    int            `json:"unresolved_orphans"`
}
