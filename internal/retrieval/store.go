package retrieval

import (
	"context"
	"errors"
	"sort"
)

// BaseStoreName is the store every search includes.
const BaseStoreName = "base"

var (
	ErrBaseStoreMissing       = errors.New("retrieval: base embedding store is not loaded")
	ErrRetrievalConfiguration = errors.New("retrieval: no embedding store for requested context")
	ErrUnknownDocument        = errors.New("retrieval: unknown document key")
)

// ScoredChunk is one ranked text chunk. Score uses distance semantics.
type ScoredChunk struct {
	Content  string             `json:"content"`
	Score    float64            `json:"score"`
	Document *DocumentEmbedding `json:"-"`
}

// Retriever ranks text chunks of a single document by relevance to a query.
//
// Contract: results are ordered ascending by Score, where a lower score means a
// more relevant chunk. A nil scoreThreshold disables filtering; otherwise only
// chunks with Score <= *scoreThreshold are returned.
type Retriever interface {
	SimilaritySearch(ctx context.Context, query string, k int, scoreThreshold *float64) ([]ScoredChunk, error)
}

// DocumentEmbedding describes an indexed document and the retriever backing it.
type DocumentEmbedding struct {
	Key            string    `json:"key"`
	Title          string    `json:"title"`
	Source         string    `json:"source"`
	Description    string    `json:"description,omitempty"`
	SampleQuestion string    `json:"sample_question,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Retriever      Retriever `json:"-"`
}

// EmbeddingStore is a named collection of indexed documents keyed by document key.
type EmbeddingStore struct {
	Name      string
	Documents map[string]*DocumentEmbedding
}

// NewEmbeddingStore creates an empty store.
func NewEmbeddingStore(name string) *EmbeddingStore {
	return &EmbeddingStore{Name: name, Documents: make(map[string]*DocumentEmbedding)}
}

// Add registers a document, replacing any document with the same key.
func (s *EmbeddingStore) Add(doc *DocumentEmbedding) {
	s.Documents[doc.Key] = doc
}

// SortedDocuments returns the documents ordered by key.
func (s *EmbeddingStore) SortedDocuments() []*DocumentEmbedding {
	docs := make([]*DocumentEmbedding, 0, len(s.Documents))
	for _, doc := range s.Documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs
}
