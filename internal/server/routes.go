package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Articles (provisioning stand-in for the article collaborator).
	mux.HandleFunc("POST /v1/articles", s.handleCreateArticle)
	mux.HandleFunc("GET /v1/articles/{id}", s.handleGetArticle)

	// Article attachments.
	mux.HandleFunc("POST /v1/articles/{id}/attachments", s.handleUploadAttachment)
	mux.HandleFunc("GET /v1/articles/{id}/attachments", s.handleListArticleAttachments)
	mux.HandleFunc("DELETE /v1/articles/{id}/attachments/{attachment_id}", s.handleDeleteAttachment)

	// Single attachment.
	mux.HandleFunc("GET /v1/attachments/{attachment_id}", s.handleGetAttachment)
	mux.HandleFunc("GET /v1/attachments/{attachment_id}/content", s.handleAttachmentContent)
	mux.HandleFunc("GET /v1/attachments/{attachment_id}/download", s.handleDownloadAttachment)
	mux.HandleFunc("GET /v1/attachments/{attachment_id}/view", s.handleViewAttachment)

	// Admin.
	mux.HandleFunc("GET /v1/admin/info", s.handleInfo)
	mux.HandleFunc("GET /v1/admin/cleanup/orphaned-files", s.handleListOrphans)
	mux.HandleFunc("PUT /v1/admin/cleanup/orphaned-files/{id}", s.handleResolveOrphan)
	mux.HandleFunc("DELETE /v1/admin/cleanup/orphaned-files/{id}", s.handleDeleteOrphan)
	mux.HandleFunc("POST /v1/admin/cleanup/scan", s.handleScan)
	mux.HandleFunc("POST /v1/admin/cleanup/process-orphaned", s.handleProcessOrphans)

	return mux
}
