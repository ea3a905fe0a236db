package model

import (
	"encoding/json"
	"time"
)

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// Turn is one message inside a session. Append-only: history is never
// edited, only appended or discarded with the whole session.
// Citations holds the chunk ids that grounded an assistant answer,
// stored as a JSON array of uint.
type Turn struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Ordinal   int       `gorm:"not null" json:"ordinal"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Citations string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// CitationIDs returns the parsed cited chunk ids; empty on parse error.
func (t *Turn) CitationIDs() []uint {
	if t.Citations == "" {
		return nil
	}
	var ids []uint
	_ = json.Unmarshal([]byte(t.Citations), &ids)
	return ids
}

// SetCitationIDs stores the cited chunk ids as JSON.
func (t *Turn) SetCitationIDs(ids []uint) {
	if len(ids) == 0 {
		t.Citations = ""
		return
	}
	b, _ := json.Marshal(ids)
	t.Citations = string(b)
}
