package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

const uploadFormField = "file"

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	articleID, err := requireArticleID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.multipartMaxMemory); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("%s is required", uploadFormField), ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	attachment, err := s.attachmentService.Upload(r.Context(), UploadInput{
		ArticleID: articleID,
		Filename:  firstNonEmpty(r.FormValue("filename"), header.Filename),
		MimeType:  firstNonEmpty(r.FormValue("mime_type"), header.Header.Get("Content-Type")),
		Size:      header.Size,
		Content:   file,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, attachment)
}

func (s *Server) handleListArticleAttachments(w http.ResponseWriter, r *http.Request) {
	articleID, err := requireArticleID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	attachments, err := s.attachmentService.ListArticleAttachments(r.Context(), articleID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if attachments == nil {
		attachments = []models.Attachment{}
	}

	s.writeJSON(w, http.StatusOK, attachments)
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	attachment, ok := s.attachmentOrError(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, attachment)
}

func (s *Server) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	attachment, ok := s.attachmentOrError(w, r)
	if !ok {
		return
	}
	s.streamAttachment(w, r, attachment, "attachment")
}

// handleViewAttachment renders images inline and text as JSON. Other types
// are refused so clients fall back to download.
func (s *Server) handleViewAttachment(w http.ResponseWriter, r *http.Request) {
	attachment, ok := s.attachmentOrError(w, r)
	if !ok {
		return
	}
	switch viewKindOf(attachment) {
	case viewImage:
		s.streamImageInline(w, r, attachment)
	case viewText:
		s.writeTextView(w, r, attachment)
	default:
		s.writeServiceError(w, r, unsupportedView(fmt.Errorf("%s cannot be viewed inline; use download", attachment.MimeType)))
	}
}

func (s *Server) handleAttachmentContent(w http.ResponseWriter, r *http.Request) {
	attachment, ok := s.attachmentOrError(w, r)
	if !ok {
		return
	}
	switch viewKindOf(attachment) {
	case viewImage:
		s.streamImageInline(w, r, attachment)
	case viewText:
		if attachment.Size <= s.attachmentService.maxInlineTextBytes {
			s.writeTextView(w, r, attachment)
			return
		}
		s.streamAttachment(w, r, attachment, "attachment")
	default:
		s.streamAttachment(w, r, attachment, "attachment")
	}
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	articleID, err := requireArticleID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	attachmentID, err := requireAttachmentID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := s.attachmentService.DeleteAttachment(r.Context(), articleID, attachmentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.AttachmentDeleteResponse{
		ID:            result.ID,
		FileDeleted:   result.FileDeleted,
		RecordDeleted: result.RecordDeleted,
	})
}

func (s *Server) attachmentOrError(w http.ResponseWriter, r *http.Request) (models.Attachment, bool) {
	attachmentID, err := requireAttachmentID(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return models.Attachment{}, false
	}
	attachment, err := s.attachmentService.GetAttachment(r.Context(), attachmentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return models.Attachment{}, false
	}
	return attachment, true
}

func (s *Server) writeTextView(w http.ResponseWriter, r *http.Request, attachment models.Attachment) {
	content, err := s.attachmentService.ReadText(r.Context(), attachment)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AttachmentTextResponse{Content: content, Filename: attachment.Filename})
}

func (s *Server) streamImageInline(w http.ResponseWriter, r *http.Request, attachment models.Attachment) {
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	s.streamAttachment(w, r, attachment, "inline")
}

// streamAttachment copies the blob to the client without buffering it.
// Headers are only written once the blob has been opened, so a missing blob
// still produces a JSON error.
func (s *Server) streamAttachment(w http.ResponseWriter, r *http.Request, attachment models.Attachment, disposition string) {
	content, err := s.attachmentService.OpenContent(r.Context(), attachment)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	mediaType := attachment.MimeType
	if mediaType == "" {
		mediaType = fallbackAttachmentContentMediaType
	}
	header := w.Header()
	header.Set("Content-Type", mediaType)
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Content-Disposition", contentDisposition(disposition, attachment.Filename))
	if attachment.Size >= 0 {
		header.Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	written, err := io.Copy(w, content.Reader)
	if err != nil && !errors.Is(err, r.Context().Err()) {
		s.log().Warn("attachment stream interrupted",
			"attachment_id", attachment.ID,
			"backend", attachment.Backend,
			"written", written,
			"error", err,
		)
	}
}

func contentDisposition(disposition, filename string) string {
	if filename == "" {
		return disposition
	}
	if value := mime.FormatMediaType(disposition, map[string]string{"filename": filename}); value != "" {
		return value
	}
	return disposition
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
