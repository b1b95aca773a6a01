package hnsw

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"memberqa/internal/domain"
)

// Config tunes the HNSW graph.
type Config struct {
	M        int
	EfSearch int
}

// graphState is one generation of the index: the graph plus the string ID
// mappings and the metadata copies. Replace builds a whole new state and
// swaps the pointer, which gives atomic full-contents replacement.
type graphState struct {
	graph     *hnsw.Graph[uint64]
	dimension int
	idMap     map[string]uint64
	keyMap    map[uint64]string
	meta      map[string]domain.EntryMeta
	nextKey   uint64
}

// Store is a vector store backed by the coder/hnsw approximate
// nearest-neighbor graph. Vectors are L2-normalized on write and on query so
// cosine similarity is a dot product, the same metric the brute-force store
// uses.
type Store struct {
	mu    sync.RWMutex
	cfg   Config
	state *graphState
}

func NewStore(cfg Config) *Store {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &Store{cfg: cfg}
}

func (s *Store) newState(dimension int) *graphState {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.cfg.M
	g.EfSearch = s.cfg.EfSearch
	g.Ml = 0.25
	return &graphState{
		graph:     g,
		dimension: dimension,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		meta:      make(map[string]domain.EntryMeta),
	}
}

// Init prepares the store for vectors of the given dimension, dropping any
// previous contents.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.newState(dimension)
	return nil
}

// Upsert inserts entries. Existing IDs are lazily deleted: the old node stays
// in the graph but is dropped from the ID mappings, so it never reaches a
// search result. This avoids graph corruption when removing nodes.
func (s *Store) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return errors.New("store not initialized")
	}
	return s.state.add(entries)
}

// Search returns up to topK hits ordered by non-increasing similarity.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, errors.New("store not initialized")
	}
	st := s.state
	if len(vector) != st.dimension {
		return nil, fmt.Errorf("query dimension mismatch: want %d, got %d", st.dimension, len(vector))
	}
	if topK <= 0 || st.graph.Len() == 0 {
		return nil, nil
	}
	q := make([]float32, len(vector))
	copy(q, vector)
	normalizeInPlace(q)

	// Over-fetch to compensate for lazily deleted nodes still in the graph.
	nodes := st.graph.Search(q, topK+st.graph.Len()-len(st.keyMap))
	hits := make([]domain.SearchHit, 0, topK)
	for _, node := range nodes {
		id, ok := st.keyMap[node.Key]
		if !ok {
			continue
		}
		hits = append(hits, domain.SearchHit{ID: id, Score: dot(node.Value, q), Meta: st.meta[id]})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// Replace atomically swaps the full contents of the store.
func (s *Store) Replace(ctx context.Context, dimension int, entries []domain.IndexEntry) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	next := s.newState(dimension)
	if err := next.add(entries); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

// Count reports how many entries the store currently holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return 0, nil
	}
	return len(s.state.idMap), nil
}

func (st *graphState) add(entries []domain.IndexEntry) error {
	for _, e := range entries {
		if len(e.Vector) != st.dimension {
			return fmt.Errorf("vector dimension mismatch for %s: want %d, got %d", e.ID, st.dimension, len(e.Vector))
		}
		if oldKey, exists := st.idMap[e.ID]; exists {
			delete(st.keyMap, oldKey)
			delete(st.idMap, e.ID)
		}
		key := st.nextKey
		st.nextKey++

		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		normalizeInPlace(vec)

		st.graph.Add(hnsw.MakeNode(key, vec))
		st.idMap[e.ID] = key
		st.keyMap[key] = e.ID
		st.meta[e.ID] = e.Meta
	}
	return nil
}

func normalizeInPlace(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= inv
		}
	}
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
