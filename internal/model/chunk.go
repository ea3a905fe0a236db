package model

import (
	"encoding/json"
	"time"
)

// Chunk is one retrieval unit cut from a document. Immutable once created;
// deleted only together with its parent document.
// Embedding is stored as a JSON array of float32 for portability.
type Chunk struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	DocumentID     uint      `gorm:"not null;index" json:"document_id"`
	Ordinal        int       `gorm:"not null" json:"ordinal"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	StartOffset    int       `gorm:"not null" json:"start_offset"`
	EndOffset      int       `gorm:"not null" json:"end_offset"`
	Embedding      string    `gorm:"type:mediumtext" json:"-"`
	EmbeddingModel string    `gorm:"size:128" json:"embedding_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *Chunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *Chunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
