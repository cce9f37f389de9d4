package api

// AttachmentTextResponse is the inline view of a text attachment.
type AttachmentTextResponse struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// AttachmentDeleteResponse reports the outcome of a delete. FileDeleted is
// false when the blob was already gone or could not be removed.
type AttachmentDeleteResponse struct {
	ID            string `json:"id"`
	FileDeleted   bool   `json:"file_deleted"`
	RecordDeleted bool   `json:"record_deleted"`
}

// ArticleCreateRequest creates an article stub. Article content lives in the
// content service; this exists for provisioning and tests.
type ArticleCreateRequest struct {
	Title string `json:"title"`
}
