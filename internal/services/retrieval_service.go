package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/singleflight"

	"assistant-backend/internal/models"
	"assistant-backend/internal/retrieval"
	"assistant-backend/internal/store"
)

// ErrRetrievalDisabled is returned when no knowledge index was loaded.
var ErrRetrievalDisabled = errors.New("retrieval is not configured")

// Embedder turns a query into a vector in the same space as the indexed chunks.
type Embedder interface {
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
}

// sharedEmbedTimeout bounds a shared embedding call, which no single caller can cancel.
const sharedEmbedTimeout = 30 * time.Second

// sharedEmbedder collapses concurrent embeddings of the same text into one call.
// A merged search asks every document retriever for the same query at once, and
// concurrent requests may ask the same question. Each caller waits on its own
// context; the shared call only stops at sharedEmbedTimeout.
type sharedEmbedder struct {
	embedder Embedder
	group    singleflight.Group
	timeout  time.Duration
}

func newSharedEmbedder(embedder Embedder) *sharedEmbedder {
	return &sharedEmbedder{embedder: embedder, timeout: sharedEmbedTimeout}
}

func (e *sharedEmbedder) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	ch := e.group.DoChan(text, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		return e.embedder.Embed(callCtx, text)
	})
	select {
	case <-ctx.Done():
		return pgvector.Vector{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return pgvector.Vector{}, res.Err
		}
		return res.Val.(pgvector.Vector), nil
	}
}

// chunkRetriever searches the stored chunks of one document.
type chunkRetriever struct {
	store      store.Store
	embedder   Embedder
	documentID uuid.UUID
}

func (r *chunkRetriever) SimilaritySearch(ctx context.Context, query string, k int, scoreThreshold *float64) ([]retrieval.ScoredChunk, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches, err := r.store.SearchDocumentChunks(ctx, store.ChunkSearchParams{
		DocumentID:  r.documentID,
		Embedding:   embedding,
		Limit:       k,
		MaxDistance: scoreThreshold,
	})
	if err != nil {
		return nil, err
	}
	chunks := make([]retrieval.ScoredChunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, retrieval.ScoredChunk{Content: m.Content, Score: m.Distance})
	}
	return chunks, nil
}

// LoadEmbeddingStores groups the indexed documents into embedding stores.
// The base store is always present, empty when no documents belong to it.
func LoadEmbeddingStores(ctx context.Context, s store.Store, embedder Embedder) (map[string]*retrieval.EmbeddingStore, error) {
	docs, err := s.ListKnowledgeDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge documents: %w", err)
	}

	shared := newSharedEmbedder(embedder)
	stores := map[string]*retrieval.EmbeddingStore{
		retrieval.BaseStoreName: retrieval.NewEmbeddingStore(retrieval.BaseStoreName),
	}
	for _, doc := range docs {
		name := strings.TrimSpace(doc.StoreName)
		if name == "" {
			name = retrieval.BaseStoreName
		}
		es, ok := stores[name]
		if !ok {
			es = retrieval.NewEmbeddingStore(name)
			stores[name] = es
		}
		es.Add(&retrieval.DocumentEmbedding{
			Key:            doc.Key,
			Title:          doc.Title,
			Source:         doc.Source,
			Description:    deref(doc.Description),
			SampleQuestion: deref(doc.SampleQuestion),
			Provider:       deref(doc.Provider),
			Retriever:      &chunkRetriever{store: s, embedder: shared, documentID: doc.ID},
		})
	}

	for name, es := range stores {
		log.Printf("[RetrievalService] Loaded embedding store '%s' with %d document(s)", name, len(es.Documents))
	}
	return stores, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RetrievalService exposes merged knowledge search.
type RetrievalService struct {
	merger *retrieval.Merger
	topK   int
}

// NewRetrievalService creates a RetrievalService. A nil merger disables search.
func NewRetrievalService(merger *retrieval.Merger, topK int) *RetrievalService {
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	return &RetrievalService{merger: merger, topK: topK}
}

// Merger returns the underlying merger, or nil when retrieval is disabled.
func (s *RetrievalService) Merger() *retrieval.Merger {
	return s.merger
}

// TopK returns the default number of chunks per search.
func (s *RetrievalService) TopK() int {
	return s.topK
}

// Search runs a merged search over the base store and the optional context store.
func (s *RetrievalService) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	if s.merger == nil {
		return nil, ErrRetrievalDisabled
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrValidation)
	}
	k := s.topK
	if req.K != nil && *req.K > 0 {
		k = *req.K
	}

	result, err := s.merger.SimilaritySearch(ctx, query, req.Context, k, req.ScoreThreshold)
	if err != nil {
		if errors.Is(err, retrieval.ErrRetrievalConfiguration) {
			log.Printf("ERROR [RetrievalService] Search: %v", err)
		}
		return nil, err
	}

	resp := &models.SearchResponse{
		Chunks:  make([]models.SearchChunk, 0, len(result.Chunks)),
		Sources: make([]models.DocumentResponse, 0, len(result.Sources)),
	}
	for _, c := range result.Chunks {
		chunk := models.SearchChunk{Content: c.Content, Score: c.Score}
		if c.Document != nil {
			chunk.DocumentKey = c.Document.Key
		}
		resp.Chunks = append(resp.Chunks, chunk)
	}
	for _, doc := range result.Sources {
		resp.Sources = append(resp.Sources, documentResponse(doc))
	}
	return resp, nil
}

// Stores lists the loaded embedding stores and their documents, base first.
func (s *RetrievalService) Stores() ([]models.StoreResponse, error) {
	if s.merger == nil {
		return nil, ErrRetrievalDisabled
	}
	var out []models.StoreResponse
	for _, es := range s.merger.Stores() {
		sr := models.StoreResponse{Name: es.Name, Documents: []models.DocumentResponse{}}
		for _, doc := range es.SortedDocuments() {
			sr.Documents = append(sr.Documents, documentResponse(doc))
		}
		out = append(out, sr)
	}
	return out, nil
}

func documentResponse(doc *retrieval.DocumentEmbedding) models.DocumentResponse {
	return models.DocumentResponse{
		Key:            doc.Key,
		Title:          doc.Title,
		Source:         doc.Source,
		Description:    doc.Description,
		SampleQuestion: doc.SampleQuestion,
	}
}
