package model

import "time"

// Document ingestion states. Transitions are terminal: a failed document
// is only re-ingested through a new explicit upload.
const (
	DocumentStatusPending = "pending"
	DocumentStatusIndexed = "indexed"
	DocumentStatusFailed  = "failed"
)

type Document struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Filename    string    `gorm:"size:256;not null" json:"filename"`
	ContentType string    `gorm:"size:128;not null" json:"content_type"`
	Status      string    `gorm:"size:16;not null;index" json:"status"`
	FailReason  string    `gorm:"size:512" json:"fail_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
