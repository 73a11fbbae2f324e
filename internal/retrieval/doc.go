// Package retrieval merges semantic-search results across knowledge stores.
//
// A store is a named set of indexed documents; every document carries its own
// Retriever. The Merger fans a query out to the documents of the "base" store
// (always) and optionally one named context store, concatenates the candidate
// chunks, sorts them ascending by score and truncates to k.
//
// Scores follow distance semantics: lower is more relevant. Retrievers that
// rank by similarity must be wrapped with FromSimilarity before merging.
package retrieval
