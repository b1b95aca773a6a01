package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberqa/internal/domain"
)

// fakeQdrant records collection and alias operations well enough to observe
// the replace sequence: create collection, upsert points, swap alias.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
	aliases     map[string]string
	aliasSwaps  int
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		collections: map[string][]map[string]any{},
		aliases:     map[string]string{},
	}
}

func (f *fakeQdrant) resolve(name string) (string, bool) {
	if target, ok := f.aliases[name]; ok {
		name = target
	}
	_, ok := f.collections[name]
	return name, ok
}

func (f *fakeQdrant) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.URL.Path == "/collection_aliases" && r.Method == http.MethodPost:
			var body struct {
				Actions []map[string]map[string]string `json:"actions"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, action := range body.Actions {
				if del, ok := action["delete_alias"]; ok {
					if _, exists := f.aliases[del["alias_name"]]; !exists {
						w.WriteHeader(http.StatusBadRequest)
						return
					}
					delete(f.aliases, del["alias_name"])
				}
				if create, ok := action["create_alias"]; ok {
					f.aliases[create["alias_name"]] = create["collection_name"]
					f.aliasSwaps++
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})

		case r.URL.Path == "/collections" && r.Method == http.MethodGet:
			names := []map[string]string{}
			for name := range f.collections {
				names = append(names, map[string]string{"name": name})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{"collections": names},
			})

		case strings.HasSuffix(r.URL.Path, "/points/search") && r.Method == http.MethodPost:
			name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/collections/"), "/points/search")
			real, ok := f.resolve(name)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			results := []map[string]any{}
			for _, p := range f.collections[real] {
				results = append(results, map[string]any{
					"id":      p["id"],
					"score":   0.9,
					"payload": p["payload"],
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": results})

		case strings.HasSuffix(r.URL.Path, "/points") && r.Method == http.MethodPut:
			name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/collections/"), "/points")
			real, ok := f.resolve(name)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var body struct {
				Points []map[string]any `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.collections[real] = append(f.collections[real], body.Points...)
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})

		case strings.HasPrefix(r.URL.Path, "/collections/") && r.Method == http.MethodPut:
			name := strings.TrimPrefix(r.URL.Path, "/collections/")
			f.collections[name] = []map[string]any{}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})

		case strings.HasPrefix(r.URL.Path, "/collections/") && r.Method == http.MethodGet:
			name := strings.TrimPrefix(r.URL.Path, "/collections/")
			real, ok := f.resolve(name)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": map[string]any{"points_count": len(f.collections[real])},
			})

		case strings.HasPrefix(r.URL.Path, "/collections/") && r.Method == http.MethodDelete:
			name := strings.TrimPrefix(r.URL.Path, "/collections/")
			delete(f.collections, name)
			_ = json.NewEncoder(w).Encode(map[string]any{"result": true})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestStore(t *testing.T) (*Store, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return NewStore(Config{URL: srv.URL, Alias: "messages"}), fake
}

func TestStore_InitCreatesAliasedCollection(t *testing.T) {
	s, fake := newTestStore(t)
	require.NoError(t, s.Init(context.Background(), 3))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Len(t, fake.collections, 1)
	assert.Contains(t, fake.aliases, "messages")
}

func TestStore_UpsertAndSearchRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.IndexEntry{{
		ID:     "m1",
		Vector: []float32{1, 0},
		Meta: domain.EntryMeta{
			SenderID:      "u1",
			Sender:        "Vikram",
			Text:          "I own two cars",
			Timestamp:     "2024-01-01T00:00:00Z",
			CorpusVersion: 3,
		},
	}}))

	hits, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].ID)
	assert.Equal(t, "Vikram", hits[0].Meta.Sender)
	assert.Equal(t, "I own two cars", hits[0].Meta.Text)
	assert.Equal(t, uint64(3), hits[0].Meta.CorpusVersion)
}

func TestStore_ReplaceSwapsAliasToFreshCollection(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.IndexEntry{
		{ID: "old", Vector: []float32{1, 0}},
	}))

	require.NoError(t, s.Replace(ctx, 2, []domain.IndexEntry{
		{ID: "new1", Vector: []float32{1, 0}},
		{ID: "new2", Vector: []float32{0, 1}},
	}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.GreaterOrEqual(t, fake.aliasSwaps, 2)
	assert.Len(t, fake.collections, 1, "superseded collections are dropped")
}

func TestStore_ReplaceBatchesLargeUploads(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))

	entries := make([]domain.IndexEntry, 250)
	for i := range entries {
		entries[i] = domain.IndexEntry{ID: string(rune('a' + i%26)) + string(rune('0' + i/26)), Vector: []float32{1, 0}}
	}
	require.NoError(t, s.Replace(ctx, 2, entries))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250, count)
}

func TestStore_UnreachableBackendIsUnavailable(t *testing.T) {
	s := NewStore(Config{URL: "http://127.0.0.1:1", Alias: "messages"})
	_, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIndexUnavailable))
}
