package models

import "time"

// Article is the minimal view of the article entity needed by attachment
// storage. Article text and publishing state belong to the content service.
type Article struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	AttachmentIDs []string  `json:"attachment_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
