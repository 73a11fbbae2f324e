package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"assistant-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when a unique constraint rejects an insert.
var ErrAlreadyExists = errors.New("record already exists")

// ChunkSearchParams describes a nearest-neighbour search within one document.
type ChunkSearchParams struct {
	DocumentID  uuid.UUID
	Embedding   pgvector.Vector
	Limit       int
	MaxDistance *float64 // nil disables the distance filter
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
type Store interface {
	// User operations
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// Knowledge operations
	ListKnowledgeDocuments(ctx context.Context) ([]models.KnowledgeDocument, error)
	SearchDocumentChunks(ctx context.Context, arg ChunkSearchParams) ([]models.ChunkMatch, error)
}
