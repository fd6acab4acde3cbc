package model

import (
	"encoding/json"
	"time"
)

// StoredDocument marks a document URL as fully ingested into the SQL store.
type StoredDocument struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	URLHash     string    `gorm:"size:64;not null;uniqueIndex" json:"url_hash"`
	URL         string    `gorm:"type:text;not null" json:"url"`
	TotalChunks int       `gorm:"not null" json:"total_chunks"`
	// Notes is a JSON array of caveats recorded at ingestion.
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}

func (StoredDocument) TableName() string {
	return "pdf_documents"
}

// StoredChunk stores a text chunk and its embedding for retrieval.
// Embedding is stored as JSON array of float32 for portability.
// RecordID is derived from URLHash so its length does not grow with the URL.
type StoredChunk struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RecordID    string    `gorm:"size:191;not null" json:"record_id"`
	URLHash     string    `gorm:"size:64;not null;uniqueIndex:idx_pdf_chunks_doc_index,priority:1" json:"url_hash"`
	PDFURL      string    `gorm:"type:text;not null" json:"pdf_url"`
	ChunkIndex  int       `gorm:"not null;uniqueIndex:idx_pdf_chunks_doc_index,priority:2" json:"chunk_index"`
	TotalChunks int       `gorm:"not null" json:"total_chunks"`
	Content     string    `gorm:"type:mediumtext;not null" json:"content"`
	Embedding   string    `gorm:"type:mediumtext" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (StoredChunk) TableName() string {
	return "pdf_chunks"
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *StoredChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *StoredChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
