package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRetriever returns fixed scores, honouring k and the threshold.
type fakeRetriever struct {
	scores []float64
	err    error
	calls  int
}

func (f *fakeRetriever) SimilaritySearch(_ context.Context, query string, k int, threshold *float64) ([]ScoredChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []ScoredChunk
	for i, s := range f.scores {
		if threshold != nil && s > *threshold {
			continue
		}
		out = append(out, ScoredChunk{Content: fmt.Sprintf("%s#%d", query, i), Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func doc(key, source string, scores ...float64) *DocumentEmbedding {
	return &DocumentEmbedding{Key: key, Title: "Title " + key, Source: source, Retriever: &fakeRetriever{scores: scores}}
}

func storeOf(name string, docs ...*DocumentEmbedding) *EmbeddingStore {
	s := NewEmbeddingStore(name)
	for _, d := range docs {
		s.Add(d)
	}
	return s
}

func assertAscending(t *testing.T, chunks []ScoredChunk) {
	t.Helper()
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i-1].Score, chunks[i].Score, "chunks out of order at %d", i)
	}
}

func TestNewMerger_RequiresBase(t *testing.T) {
	_, err := NewMerger(map[string]*EmbeddingStore{"ctx1": storeOf("ctx1")})
	assert.ErrorIs(t, err, ErrBaseStoreMissing)
}

func TestSimilaritySearch_MergesStoresByRelevance(t *testing.T) {
	m, err := NewMerger(map[string]*EmbeddingStore{
		"base": storeOf("base",
			doc("b1", "handbook.md", 0.40, 0.90),
			doc("b2", "policies.md", 0.10),
			doc("b3", "faq.md", 0.70),
		),
		"ctx1": storeOf("ctx1",
			doc("c1", "ctx-guide.md", 0.05, 0.50),
			doc("c2", "ctx-notes.md", 0.30),
		),
	})
	require.NoError(t, err)

	res, err := m.SimilaritySearch(context.Background(), "q", "ctx1", 4, nil)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 4)
	assertAscending(t, res.Chunks)

	var got []float64
	var keys []string
	for _, c := range res.Chunks {
		got = append(got, c.Score)
		keys = append(keys, c.Document.Key)
	}
	assert.Equal(t, []float64{0.05, 0.10, 0.30, 0.40}, got)
	assert.Equal(t, []string{"c1", "b2", "c2", "b1"}, keys)
}

func TestSimilaritySearch_BaseOnlyWithoutContext(t *testing.T) {
	ctxDoc := doc("c1", "ctx.md", 0.01)
	m, err := NewMerger(map[string]*EmbeddingStore{
		"base": storeOf("base", doc("b1", "a.md", 0.2, 0.3)),
		"ctx1": storeOf("ctx1", ctxDoc),
	})
	require.NoError(t, err)

	res, err := m.SimilaritySearch(context.Background(), "q", "", 0, nil)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 2)
	assert.Equal(t, 0, ctxDoc.Retriever.(*fakeRetriever).calls)
}

func TestSimilaritySearch_UnknownContextIsConfigurationError(t *testing.T) {
	m, err := NewMerger(map[string]*EmbeddingStore{"base": storeOf("base")})
	require.NoError(t, err)

	_, err = m.SimilaritySearch(context.Background(), "q", "missing", 5, nil)
	assert.ErrorIs(t, err, ErrRetrievalConfiguration)
}

func TestSimilaritySearch_ThresholdAndRetrieverErrors(t *testing.T) {
	m, err := NewMerger(map[string]*EmbeddingStore{
		"base": storeOf("base", doc("b1", "a.md", 0.2, 0.6, 0.8)),
	})
	require.NoError(t, err)

	threshold := 0.5
	res, err := m.SimilaritySearch(context.Background(), "q", "", 5, &threshold)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, 0.2, res.Chunks[0].Score)

	boom := errors.New("index unavailable")
	broken, err := NewMerger(map[string]*EmbeddingStore{
		"base": storeOf("base", &DocumentEmbedding{Key: "x", Retriever: &fakeRetriever{err: boom}}),
	})
	require.NoError(t, err)
	_, err = broken.SimilaritySearch(context.Background(), "q", "", 5, nil)
	assert.ErrorIs(t, err, boom)
}

type panickingRetriever struct{}

func (panickingRetriever) SimilaritySearch(context.Context, string, int, *float64) ([]ScoredChunk, error) {
	panic("index corrupted")
}

func TestSimilaritySearch_RetrieverPanicBecomesError(t *testing.T) {
	m, err := NewMerger(map[string]*EmbeddingStore{
		"base": storeOf("base",
			doc("b1", "a.md", 0.2),
			&DocumentEmbedding{Key: "bad", Source: "bad.md", Retriever: panickingRetriever{}},
		),
	})
	require.NoError(t, err)

	var res *Result
	require.NotPanics(t, func() {
		res, err = m.SimilaritySearch(context.Background(), "q", "", 5, nil)
	})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity search on document bad panicked: index corrupted")
}

func TestSimilaritySearch_PropertyOverManyStores(t *testing.T) {
	for n := 1; n <= 4; n++ {
		stores := map[string]*EmbeddingStore{}
		for s := 0; s < n; s++ {
			name := fmt.Sprintf("ctx%d", s)
			if s == 0 {
				name = BaseStoreName
			}
			stores[name] = storeOf(name,
				doc(fmt.Sprintf("%s-a", name), name+"-a.md", float64(s)*0.1+0.05, 0.95),
				doc(fmt.Sprintf("%s-b", name), name+"-b.md", 0.5-float64(s)*0.1),
			)
		}
		m, err := NewMerger(stores)
		require.NoError(t, err)

		for k := 1; k <= 6; k++ {
			res, err := m.SimilaritySearch(context.Background(), "q", "ctx1", k, nil)
			if n == 1 {
				assert.ErrorIs(t, err, ErrRetrievalConfiguration)
				continue
			}
			require.NoError(t, err)
			assert.LessOrEqual(t, len(res.Chunks), k)
			assertAscending(t, res.Chunks)
		}
	}
}

func TestSimilaritySearchOnDocuments(t *testing.T) {
	b1 := doc("b1", "a.md", 0.3)
	c1 := doc("c1", "c.md", 0.1)
	m, err := NewMerger(map[string]*EmbeddingStore{
		"base": storeOf("base", b1, doc("b2", "b.md", 0.0)),
		"ctx1": storeOf("ctx1", c1),
	})
	require.NoError(t, err)

	res, err := m.SimilaritySearchOnDocuments(context.Background(), "q", []string{"b1", "c1", "b1"}, 5, nil)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, "c1", res.Chunks[0].Document.Key)
	assert.Equal(t, "b1", res.Chunks[1].Document.Key)

	_, err = m.SimilaritySearchOnDocuments(context.Background(), "q", []string{"nope"}, 5, nil)
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestCitationFooter_DedupesBySource(t *testing.T) {
	shared1 := doc("d1", "guide.md", 0.1, 0.2)
	shared2 := doc("d2", "guide.md", 0.15)
	m, err := NewMerger(map[string]*EmbeddingStore{
		"base": storeOf("base", shared1, shared2, doc("d3", "other.md", 0.3)),
	})
	require.NoError(t, err)

	res, err := m.SimilaritySearch(context.Background(), "q", "", 5, nil)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 4)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "guide.md", res.Sources[0].Source)
	assert.Equal(t, "other.md", res.Sources[1].Source)

	footer := CitationFooter(res.Sources)
	assert.Equal(t, "\n\nSources:\n- Title d1 (guide.md)\n- Title d3 (other.md)\n", footer)
	assert.Empty(t, CitationFooter(nil))
}

// similarityFake ranks by similarity (higher is better).
type similarityFake struct{ sims []float64 }

func (s similarityFake) SimilaritySearch(_ context.Context, _ string, k int, minSim *float64) ([]ScoredChunk, error) {
	var out []ScoredChunk
	for i, v := range s.sims {
		if minSim != nil && v < *minSim {
			continue
		}
		out = append(out, ScoredChunk{Content: fmt.Sprint(i), Score: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func TestFromSimilarity_NormalizesToDistance(t *testing.T) {
	r := FromSimilarity(similarityFake{sims: []float64{0.5, 0.9, 0.25}})

	chunks, err := r.SimilaritySearch(context.Background(), "q", 5, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assertAscending(t, chunks)
	assert.Equal(t, "1", chunks[0].Content)
	assert.InDelta(t, 0.1, chunks[0].Score, 1e-9)

	threshold := 0.6 // distance 0.6 == similarity 0.4
	chunks, err = r.SimilaritySearch(context.Background(), "q", 5, &threshold)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestBuildContext(t *testing.T) {
	assert.Empty(t, BuildContext(nil))

	out := BuildContext([]ScoredChunk{{Content: "alpha", Document: &DocumentEmbedding{Title: "Guide"}}})
	assert.Contains(t, out, "### Excerpt 1 (Guide):")
	assert.Contains(t, out, "alpha")
}
