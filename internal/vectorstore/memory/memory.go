package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"memberqa/internal/domain"
)

// snapshot is one immutable generation of the index. Search works against a
// single snapshot pointer, so a concurrent Replace can never expose a mix of
// two corpus generations within one search call.
type snapshot struct {
	dimension int
	entries   []domain.IndexEntry
	byID      map[string]int
}

// Store is an in-memory vector store using brute-force cosine similarity
// over L2-normalized vectors.
type Store struct {
	mu   sync.RWMutex
	snap *snapshot
}

func NewStore() *Store { return &Store{} }

// Init prepares the store for vectors of the given dimension, dropping any
// previous contents.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snapshot{dimension: dimension, byID: make(map[string]int)}
	return nil
}

// Upsert inserts entries into a fresh copy of the current snapshot and swaps
// it in. Re-upserting an existing ID replaces its vector and metadata.
func (s *Store) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return errors.New("store not initialized")
	}
	next := &snapshot{
		dimension: s.snap.dimension,
		entries:   append([]domain.IndexEntry(nil), s.snap.entries...),
		byID:      make(map[string]int, len(s.snap.byID)+len(entries)),
	}
	for id, i := range s.snap.byID {
		next.byID[id] = i
	}
	if err := next.add(entries); err != nil {
		return err
	}
	s.snap = next
	return nil
}

// Search returns up to topK hits ordered by non-increasing similarity, ties
// broken by insertion order.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap == nil {
		return nil, errors.New("store not initialized")
	}
	if len(vector) != snap.dimension {
		return nil, fmt.Errorf("query dimension mismatch: want %d, got %d", snap.dimension, len(vector))
	}
	if topK <= 0 {
		return nil, nil
	}
	q := normalized(vector)
	type scored struct {
		idx   int
		score float32
	}
	scores := make([]scored, len(snap.entries))
	for i := range snap.entries {
		scores[i] = scored{idx: i, score: dot(snap.entries[i].Vector, q)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK > len(scores) {
		topK = len(scores)
	}
	hits := make([]domain.SearchHit, 0, topK)
	for _, sc := range scores[:topK] {
		e := snap.entries[sc.idx]
		hits = append(hits, domain.SearchHit{ID: e.ID, Score: sc.score, Meta: e.Meta})
	}
	return hits, nil
}

// Replace atomically swaps the full contents of the store.
func (s *Store) Replace(ctx context.Context, dimension int, entries []domain.IndexEntry) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	next := &snapshot{dimension: dimension, byID: make(map[string]int, len(entries))}
	if err := next.add(entries); err != nil {
		return err
	}
	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()
	return nil
}

// Count reports how many entries the store currently holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return 0, nil
	}
	return len(s.snap.entries), nil
}

func (sn *snapshot) add(entries []domain.IndexEntry) error {
	for _, e := range entries {
		if len(e.Vector) != sn.dimension {
			return fmt.Errorf("vector dimension mismatch for %s: want %d, got %d", e.ID, sn.dimension, len(e.Vector))
		}
		stored := e
		stored.Vector = normalized(e.Vector)
		if i, ok := sn.byID[e.ID]; ok {
			sn.entries[i] = stored
			continue
		}
		sn.byID[e.ID] = len(sn.entries)
		sn.entries = append(sn.entries, stored)
	}
	return nil
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var norm float64
	for _, x := range out {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range out {
			out[i] *= inv
		}
	}
	return out
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
