package messages

import (
	"context"
	"sync"

	"memberqa/internal/domain"
)

// Fetcher is the corpus-fetching subset of Client.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]domain.Message, error)
}

// CachedSource keeps the fetched corpus in memory. The corpus is assumed
// static for the lifetime of one index build; a forced refresh refetches.
type CachedSource struct {
	fetcher Fetcher

	mu     sync.Mutex
	corpus []domain.Message
}

func NewCachedSource(fetcher Fetcher) *CachedSource {
	return &CachedSource{fetcher: fetcher}
}

// Messages returns the cached corpus, fetching it on first use or when
// forceRefresh is set.
func (s *CachedSource) Messages(ctx context.Context, forceRefresh bool) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corpus == nil || forceRefresh {
		corpus, err := s.fetcher.FetchAll(ctx)
		if err != nil {
			return nil, err
		}
		s.corpus = corpus
	}
	return s.corpus, nil
}

// CachedCount reports how many messages are cached, without fetching.
func (s *CachedSource) CachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.corpus)
}
