package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultTopK is used when a search does not ask for a positive k.
const DefaultTopK = 5

// Result is the merged outcome of a search.
type Result struct {
	// Chunks are globally ordered ascending by score, at most k long.
	// Several chunks may come from the same document.
	Chunks []ScoredChunk
	// Sources lists the documents behind Chunks, deduplicated by Source, in rank order.
	Sources []*DocumentEmbedding
}

// Merger runs similarity search across embedding stores.
type Merger struct {
	stores    map[string]*EmbeddingStore
	documents map[string]*DocumentEmbedding
}

// NewMerger builds a merger over the given stores. The base store must be present.
func NewMerger(stores map[string]*EmbeddingStore) (*Merger, error) {
	if _, ok := stores[BaseStoreName]; !ok {
		return nil, ErrBaseStoreMissing
	}

	m := &Merger{
		stores:    stores,
		documents: make(map[string]*DocumentEmbedding),
	}

	// Index documents by key for explicit-document searches; base wins on collisions.
	for _, name := range m.storeNames() {
		for _, doc := range stores[name].SortedDocuments() {
			if existing, dup := m.documents[doc.Key]; dup {
				log.Printf("WARN [RetrievalMerger] Document key '%s' in store '%s' is already loaded from %s; keeping the first", doc.Key, name, existing.Source)
				continue
			}
			m.documents[doc.Key] = doc
		}
	}
	return m, nil
}

// storeNames returns base first, then the remaining stores alphabetically.
func (m *Merger) storeNames() []string {
	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		if name != BaseStoreName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{BaseStoreName}, names...)
}

// Stores returns the loaded stores, base first.
func (m *Merger) Stores() []*EmbeddingStore {
	out := make([]*EmbeddingStore, 0, len(m.stores))
	for _, name := range m.storeNames() {
		out = append(out, m.stores[name])
	}
	return out
}

// Document looks up a document by key.
func (m *Merger) Document(key string) (*DocumentEmbedding, bool) {
	doc, ok := m.documents[key]
	return doc, ok
}

// SimilaritySearch searches every document of the base store and, when
// contextName is non-empty, of that context's store.
func (m *Merger) SimilaritySearch(ctx context.Context, query, contextName string, k int, scoreThreshold *float64) (*Result, error) {
	base, ok := m.stores[BaseStoreName]
	if !ok {
		return nil, ErrBaseStoreMissing
	}
	docs := base.SortedDocuments()

	if contextName != "" && contextName != BaseStoreName {
		store, ok := m.stores[contextName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRetrievalConfiguration, contextName)
		}
		docs = append(docs, store.SortedDocuments()...)
	}

	return m.search(ctx, query, docs, k, scoreThreshold)
}

// SimilaritySearchOnDocuments searches only the named documents.
func (m *Merger) SimilaritySearchOnDocuments(ctx context.Context, query string, keys []string, k int, scoreThreshold *float64) (*Result, error) {
	docs := make([]*DocumentEmbedding, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		doc, ok := m.documents[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, key)
		}
		docs = append(docs, doc)
	}
	return m.search(ctx, query, docs, k, scoreThreshold)
}

func (m *Merger) search(ctx context.Context, query string, docs []*DocumentEmbedding, k int, scoreThreshold *float64) (*Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	// Retrievers run concurrently; results are concatenated in document order
	// so equal scores keep a deterministic order.
	perDoc := make([][]ScoredChunk, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		if doc.Retriever == nil {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("similarity search on document %s panicked: %v", doc.Key, r)
				}
			}()
			chunks, err := doc.Retriever.SimilaritySearch(gctx, query, k, scoreThreshold)
			if err != nil {
				return fmt.Errorf("similarity search on document %s failed: %w", doc.Key, err)
			}
			for j := range chunks {
				chunks[j].Document = doc
			}
			perDoc[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []ScoredChunk
	for _, chunks := range perDoc {
		candidates = append(candidates, chunks...)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score < candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	return &Result{Chunks: candidates, Sources: dedupeSources(candidates)}, nil
}

// dedupeSources returns each contributing document once per distinct Source.
func dedupeSources(chunks []ScoredChunk) []*DocumentEmbedding {
	var sources []*DocumentEmbedding
	seen := make(map[string]bool)
	for _, c := range chunks {
		if c.Document == nil || seen[c.Document.Source] {
			continue
		}
		seen[c.Document.Source] = true
		sources = append(sources, c.Document)
	}
	return sources
}

// CitationFooter renders the sources block appended after a grounded answer.
// It returns an empty string when there are no sources.
func CitationFooter(sources []*DocumentEmbedding) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nSources:\n")
	for _, doc := range sources {
		title := doc.Title
		if title == "" {
			title = doc.Key
		}
		fmt.Fprintf(&b, "- %s (%s)\n", title, doc.Source)
	}
	return b.String()
}

// BuildContext formats ranked chunks as prompt context.
func BuildContext(chunks []ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	parts := []string{"## Relevant Excerpts:"}
	for i, c := range chunks {
		header := fmt.Sprintf("\n### Excerpt %d", i+1)
		if c.Document != nil && c.Document.Title != "" {
			header += " (" + c.Document.Title + ")"
		}
		parts = append(parts, header+":", c.Content)
	}
	return strings.Join(parts, "\n")
}
