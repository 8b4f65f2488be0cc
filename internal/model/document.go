// Package model provides data models for ragserver.
package model

import (
	"time"
)

// Document status values. A document is visible to normal reads only once
// it reaches StatusCompleted; failed documents keep their row for diagnostics
// but are excluded from listings.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Document represents an ingested document in the knowledge base.
type Document struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Filename    string    `json:"filename" gorm:"type:varchar(255);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(128)"`
	ByteSize    int64     `json:"byte_size" gorm:"default:0"`
	Hash        string    `json:"hash" gorm:"type:varchar(64);index"` // Content hash for deduplication
	ChunkCount  int       `json:"chunk_count" gorm:"default:0"`
	Status      string    `json:"status" gorm:"type:varchar(32);default:'pending'"`
	FailReason  string    `json:"fail_reason,omitempty" gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "rag_documents"
}

// QueryResult represents a RAG query result.
type QueryResult struct {
	Answer string `json:"answer"`
	// Sources lists exactly the chunks whose text was included in the
	// generation prompt, in rank order.
	Sources []ChunkSource `json:"sources"`
	// InsufficientContext is true when retrieval produced nothing and the
	// canned answer was returned without calling the generation backend.
	InsufficientContext bool `json:"insufficient_context,omitempty"`
	// Cached is true when the result was served from the query cache.
	Cached bool `json:"cached,omitempty"`
}

// ChunkSource represents source information for a retrieved chunk.
type ChunkSource struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Source     string  `json:"source"`
	Section    string  `json:"section,omitempty"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// KnowledgeBaseStats summarizes the state of both stores.
type KnowledgeBaseStats struct {
	DocumentCount int64  `json:"document_count"`
	ChunkCount    int64  `json:"chunk_count"`
	Collection    string `json:"collection"`
	Embedding     string `json:"embedding_provider"`
	Dimension     int    `json:"dimension"`
}
