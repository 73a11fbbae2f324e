package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	DisplayName    *string   `db:"display_name"` // Nullable
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// KnowledgeDocument is an indexed document. StoreName groups documents into
// embedding stores; "base" documents are searched for every query.
type KnowledgeDocument struct {
	ID             uuid.UUID `db:"id"`
	StoreName      string    `db:"store_name"`
	Key            string    `db:"key"`
	Title          string    `db:"title"`
	Source         string    `db:"source"`
	Description    *string   `db:"description"`
	SampleQuestion *string   `db:"sample_question"`
	Provider       *string   `db:"provider"` // Embedding model that produced the chunks
	ChunkCount     int       `db:"chunk_count"`
	CreatedAt      time.Time `db:"created_at"`
}

// ChunkMatch is a knowledge chunk returned by a vector search.
type ChunkMatch struct {
	ChunkID  uuid.UUID `db:"id"`
	Content  string    `db:"content"`
	Distance float64   `db:"distance"` // Cosine distance, lower is closer
}
