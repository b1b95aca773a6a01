// Package retriever answers "which corpus messages are closest to this
// question" by encoding the question and searching the vector store.
package retriever

import (
	"context"
	"fmt"

	"memberqa/internal/domain"
)

const (
	// DefaultTopK is the fixed retrieval depth; the corpus is small and
	// synthesis cost grows with every retrieved message.
	DefaultTopK = 15
	// MaxTopK caps caller-supplied depths so retrieval cost stays bounded.
	MaxTopK = 50
)

// StateSource reports the index lifecycle state, usually the index builder.
type StateSource interface {
	State() domain.IndexState
}

// Retriever encodes questions and resolves nearest-neighbor hits back to
// scored messages.
type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	states   StateSource
	defaultK int
	maxK     int
}

func New(embedder domain.Embedder, store domain.VectorStore, states StateSource, defaultK, maxK int) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultTopK
	}
	if maxK <= 0 {
		maxK = MaxTopK
	}
	return &Retriever{embedder: embedder, store: store, states: states, defaultK: defaultK, maxK: maxK}
}

// Retrieve returns up to k messages ranked by similarity to the question.
// It fails fast with ErrIndexNotReady unless the index state is Ready, so a
// partial index is never searched.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]domain.ScoredMessage, error) {
	if st := r.states.State(); st != domain.IndexReady {
		return nil, fmt.Errorf("%w (state %s)", domain.ErrIndexNotReady, st)
	}
	if k <= 0 {
		k = r.defaultK
	}
	if k > r.maxK {
		k = r.maxK
	}
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, &domain.EncodingError{Err: err}
	}
	hits, err := r.store.Search(ctx, vec, k)
	if err != nil {
		// A rebuild may have swapped the encoder model between the state
		// check and the search. Re-check so the transient failure reports
		// as not-ready rather than an internal error.
		if st := r.states.State(); st != domain.IndexReady {
			return nil, fmt.Errorf("%w (state %s)", domain.ErrIndexNotReady, st)
		}
		return nil, fmt.Errorf("search index: %w", err)
	}
	results := make([]domain.ScoredMessage, len(hits))
	for i, h := range hits {
		results[i] = domain.ScoredMessage{Message: h.Message(), Score: h.Score}
	}
	return results, nil
}
