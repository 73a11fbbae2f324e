package chat

import (
	"context"
	"iter"
	"time"

	"assistant-backend/internal/models"
	"assistant-backend/internal/providers"
	"assistant-backend/internal/retrieval"
)

// script describes one provider call made by a fakeClient.
type script struct {
	units    []providers.RawUnit
	err      error
	panicMsg string
}

// fakeClient replays scripts in order, one per Stream call.
type fakeClient struct {
	scripts []script
	prompts [][]models.Message
	pulls   int
}

func newFakeClient(scripts ...script) *fakeClient {
	return &fakeClient{scripts: scripts}
}

func (f *fakeClient) Stream(_ context.Context, messages []models.Message) iter.Seq2[providers.RawUnit, error] {
	prompt := make([]models.Message, len(messages))
	copy(prompt, messages)
	f.prompts = append(f.prompts, prompt)

	var sc script
	if len(f.scripts) > 0 {
		sc, f.scripts = f.scripts[0], f.scripts[1:]
	}
	return func(yield func(providers.RawUnit, error) bool) {
		for _, u := range sc.units {
			f.pulls++
			if !yield(u, nil) {
				return
			}
		}
		if sc.panicMsg != "" {
			panic(sc.panicMsg)
		}
		if sc.err != nil {
			yield(providers.RawUnit{}, sc.err)
		}
	}
}

func texts(parts ...string) []providers.RawUnit {
	units := make([]providers.RawUnit, 0, len(parts))
	for _, p := range parts {
		units = append(units, providers.TextUnit(p))
	}
	return units
}

// drain ranges over seq and returns every fragment.
func drain(seq iter.Seq[string]) []string {
	var out []string
	for frag := range seq {
		out = append(out, frag)
	}
	return out
}

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// chunkRetriever returns fixed chunks and counts queries.
type chunkRetriever struct {
	chunks  []retrieval.ScoredChunk
	queries []string
}

func (r *chunkRetriever) SimilaritySearch(_ context.Context, query string, k int, _ *float64) ([]retrieval.ScoredChunk, error) {
	r.queries = append(r.queries, query)
	if len(r.chunks) > k {
		return r.chunks[:k], nil
	}
	return r.chunks, nil
}
