package domain

import "time"

type DocumentID string

// Document is owned by the durable store; the core references it for
// ownership checks and never mutates its content fields.
type Document struct {
	ID          DocumentID
	OwnerID     UserID
	Title       string
	Icon        string
	CoverImage  string
	ParentID    DocumentID
	IsArchived  bool
	IsPublished bool
	CreatedAt   time.Time
}
