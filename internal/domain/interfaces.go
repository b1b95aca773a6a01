package domain

import "context"

// Embedder converts free text into a numeric vector representation.
// Embed must be deterministic for a fixed implementation and model: identical
// text yields an identical vector. Implementations may require a preparation
// phase over the corpus before Dimension and Embed are usable.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists (id, vector, metadata) entries and answers
// nearest-neighbor lookups. All backends score with cosine similarity over
// L2-normalized vectors, matching how corpus vectors were produced.
type VectorStore interface {
	// Init prepares the store for vectors of the given dimension.
	Init(ctx context.Context, dimension int) error
	// Upsert inserts entries, replacing any existing entry with the same ID.
	Upsert(ctx context.Context, entries []IndexEntry) error
	// Search returns up to topK hits ordered by non-increasing similarity.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchHit, error)
	// Replace atomically swaps the full contents of the store. A concurrent
	// Search observes either the previous contents or the new ones, never a mix.
	Replace(ctx context.Context, dimension int, entries []IndexEntry) error
	// Count reports how many entries the store currently holds.
	Count(ctx context.Context) (int, error)
}

// MessageSource provides read-only access to the message corpus.
type MessageSource interface {
	// Messages returns the corpus, refetching from the upstream API when
	// forceRefresh is set.
	Messages(ctx context.Context, forceRefresh bool) ([]Message, error)
}

// Generator sends a question plus its retrieved context to a generative model
// and returns the model's answer text verbatim.
type Generator interface {
	Synthesize(ctx context.Context, question, contextBlock string) (string, error)
}
