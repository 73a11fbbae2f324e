package retrieval

import (
	"context"
	"sort"
)

// SimilaritySearcher ranks chunks by similarity, where higher is more relevant.
type SimilaritySearcher interface {
	SimilaritySearch(ctx context.Context, query string, k int, minSimilarity *float64) ([]ScoredChunk, error)
}

// FromSimilarity adapts a similarity-ranked searcher to the Retriever contract.
// It is meant for indexes that report cosine similarity or certainty, such as
// hosted vector databases, rather than the pgvector distance retriever.
// Scores are converted with distance = 1 - similarity and re-sorted ascending;
// the distance threshold is translated back into a minimum similarity.
func FromSimilarity(s SimilaritySearcher) Retriever {
	return similarityRetriever{inner: s}
}

type similarityRetriever struct {
	inner SimilaritySearcher
}

func (r similarityRetriever) SimilaritySearch(ctx context.Context, query string, k int, scoreThreshold *float64) ([]ScoredChunk, error) {
	var minSimilarity *float64
	if scoreThreshold != nil {
		v := 1 - *scoreThreshold
		minSimilarity = &v
	}

	chunks, err := r.inner.SimilaritySearch(ctx, query, k, minSimilarity)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		c.Score = 1 - c.Score
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out, nil
}
