package postgres

import (
	"context"
	"fmt"
	"log"

	"assistant-backend/internal/models"
	"assistant-backend/internal/store"
)

// --- Knowledge Methods ---

// ListKnowledgeDocuments returns every indexed document ordered by store and key.
func (s *PostgresStore) ListKnowledgeDocuments(ctx context.Context) ([]models.KnowledgeDocument, error) {
	query := `
		SELECT d.id, d.store_name, d.key, d.title, d.source, d.description, d.sample_question, d.provider,
		       COUNT(c.id) AS chunk_count, d.created_at
		FROM knowledge_documents d
		LEFT JOIN knowledge_chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.store_name, d.key`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		log.Printf("ERROR [PostgresStore] ListKnowledgeDocuments: Failed to query documents: %v", err)
		return nil, fmt.Errorf("database error listing knowledge documents: %w", err)
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		var doc models.KnowledgeDocument
		if err := rows.Scan(
			&doc.ID,
			&doc.StoreName,
			&doc.Key,
			&doc.Title,
			&doc.Source,
			&doc.Description,
			&doc.SampleQuestion,
			&doc.Provider,
			&doc.ChunkCount,
			&doc.CreatedAt,
		); err != nil {
			log.Printf("ERROR [PostgresStore] ListKnowledgeDocuments: Failed to scan row: %v", err)
			return nil, fmt.Errorf("database error scanning knowledge document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating knowledge documents: %w", err)
	}

	log.Printf("[PostgresStore] ListKnowledgeDocuments: Found %d documents", len(docs))
	return docs, nil
}

// SearchDocumentChunks returns the chunks of one document closest to the
// embedding, ordered by ascending cosine distance.
func (s *PostgresStore) SearchDocumentChunks(ctx context.Context, arg store.ChunkSearchParams) ([]models.ChunkMatch, error) {
	query := `
		SELECT id, content, embedding <=> $1 AS distance
		FROM knowledge_chunks
		WHERE document_id = $2
		  AND embedding IS NOT NULL
		  AND ($3::float8 IS NULL OR (embedding <=> $1) <= $3)
		ORDER BY embedding <=> $1, chunk_index
		LIMIT $4`

	rows, err := s.db.Query(ctx, query, arg.Embedding, arg.DocumentID, arg.MaxDistance, arg.Limit)
	if err != nil {
		log.Printf("ERROR [PostgresStore] SearchDocumentChunks: Failed to search document %s: %v", arg.DocumentID, err)
		return nil, fmt.Errorf("database error searching chunks: %w", err)
	}
	defer rows.Close()

	var matches []models.ChunkMatch
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.Content, &m.Distance); err != nil {
			return nil, fmt.Errorf("database error scanning chunk: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
