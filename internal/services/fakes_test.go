package services

import (
	"context"
	"iter"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"assistant-backend/internal/models"
	"assistant-backend/internal/providers"
	"assistant-backend/internal/store"
)

// memStore is an in-memory store.Store.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	docs     []models.KnowledgeDocument
	chunks   map[uuid.UUID][]models.ChunkMatch
	searches []store.ChunkSearchParams
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*models.User{}, chunks: map[uuid.UUID][]models.ChunkMatch{}}
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (s *memStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return store.ErrAlreadyExists
	}
	s.users[user.Email] = user
	return nil
}

func (s *memStore) ListKnowledgeDocuments(_ context.Context) ([]models.KnowledgeDocument, error) {
	return s.docs, nil
}

func (s *memStore) SearchDocumentChunks(_ context.Context, arg store.ChunkSearchParams) ([]models.ChunkMatch, error) {
	s.mu.Lock()
	s.searches = append(s.searches, arg)
	s.mu.Unlock()

	var out []models.ChunkMatch
	for _, m := range s.chunks[arg.DocumentID] {
		if arg.MaxDistance != nil && m.Distance > *arg.MaxDistance {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

// addDocument indexes a document with chunks at the given distances.
func (s *memStore) addDocument(storeName, key string, distances ...float64) uuid.UUID {
	id := uuid.New()
	s.docs = append(s.docs, models.KnowledgeDocument{
		ID: id, StoreName: storeName, Key: key, Title: "Doc " + key, Source: key + ".pdf",
	})
	for i, d := range distances {
		s.chunks[id] = append(s.chunks[id], models.ChunkMatch{ChunkID: uuid.New(), Content: key + " chunk " + string(rune('a'+i)), Distance: d})
	}
	return id
}

type countingEmbedder struct {
	calls atomic.Int32
}

func (e *countingEmbedder) Embed(_ context.Context, _ string) (pgvector.Vector, error) {
	e.calls.Add(1)
	return pgvector.NewVector([]float32{0.1, 0.2, 0.3}), nil
}

// replyClient answers every call with the same text units.
type replyClient struct {
	mu      sync.Mutex
	replies [][]string
	prompts [][]models.Message
}

func (c *replyClient) Stream(_ context.Context, messages []models.Message) iter.Seq2[providers.RawUnit, error] {
	c.mu.Lock()
	c.prompts = append(c.prompts, messages)
	var reply []string
	if len(c.replies) > 0 {
		reply, c.replies = c.replies[0], c.replies[1:]
	}
	c.mu.Unlock()
	return func(yield func(providers.RawUnit, error) bool) {
		for _, r := range reply {
			if !yield(providers.TextUnit(r), nil) {
				return
			}
		}
	}
}
