package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"memberqa/internal/domain"
)

const upsertBatchSize = 100

// Store is a minimal REST client to Qdrant. It keeps a stable alias pointing
// at a versioned collection; Replace uploads into a fresh collection and
// re-points the alias in one request, so a concurrent Search sees either the
// old collection or the new one, never a half-filled mix.
type Store struct {
	url       string
	apiKey    string
	alias     string
	dimension int
	client    *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Alias   string
	Timeout time.Duration
}

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		alias:  cfg.Alias,
		client: &http.Client{Timeout: timeout},
	}
}

// Init records the dimension and makes sure the alias resolves, creating an
// empty initial collection when it does not.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	exists, err := s.collectionExists(ctx, s.alias)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	name := s.versionedName()
	if err := s.createCollection(ctx, name, dimension); err != nil {
		return err
	}
	return s.swapAlias(ctx, name)
}

// Upsert writes entries through the alias. Qdrant replaces points that share
// an ID, which gives the idempotency contract for free.
func (s *Store) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	return s.upsertInto(ctx, s.alias, entries)
}

// Search returns up to topK hits ranked by cosine similarity.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.alias), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, domain.SearchHit{ID: r.ID, Score: r.Score, Meta: metaFromPayload(r.Payload)})
	}
	return hits, nil
}

// Replace uploads entries into a fresh versioned collection and atomically
// re-points the alias at it. Superseded collections are dropped best-effort.
func (s *Store) Replace(ctx context.Context, dimension int, entries []domain.IndexEntry) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	name := s.versionedName()
	if err := s.createCollection(ctx, name, dimension); err != nil {
		return err
	}
	if err := s.upsertInto(ctx, name, entries); err != nil {
		return err
	}
	if err := s.swapAlias(ctx, name); err != nil {
		return err
	}
	s.dropSuperseded(ctx, name)
	return nil
}

// Count reports how many points the aliased collection holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.alias), &resp); err != nil {
		return 0, err
	}
	return resp.Result.PointsCount, nil
}

func (s *Store) versionedName() string {
	return fmt.Sprintf("%s_v%d", s.alias, time.Now().UnixNano())
}

func (s *Store) createCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, name), body)
}

func (s *Store) upsertInto(ctx context.Context, collection string, entries []domain.IndexEntry) error {
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]
		points := make([]map[string]any, len(batch))
		for i, e := range batch {
			points[i] = map[string]any{
				"id":     e.ID,
				"vector": e.Vector,
				"payload": map[string]any{
					"user_id":        e.Meta.SenderID,
					"user_name":      e.Meta.Sender,
					"message":        e.Meta.Text,
					"timestamp":      e.Meta.Timestamp,
					"corpus_version": e.Meta.CorpusVersion,
				},
			}
		}
		body := map[string]any{"points": points}
		if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, collection), body); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) swapAlias(ctx context.Context, collection string) error {
	body := map[string]any{
		"actions": []map[string]any{
			{"delete_alias": map[string]any{"alias_name": s.alias}},
			{"create_alias": map[string]any{"collection_name": collection, "alias_name": s.alias}},
		},
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collection_aliases", s.url), body, nil); err == nil {
		return nil
	}
	// First swap has no alias to delete; retry with the create action alone.
	body = map[string]any{
		"actions": []map[string]any{
			{"create_alias": map[string]any{"collection_name": collection, "alias_name": s.alias}},
		},
	}
	return s.postJSON(ctx, fmt.Sprintf("%s/collection_aliases", s.url), body, nil)
}

// dropSuperseded deletes older versioned collections. Best-effort: leftovers
// only cost disk space and get cleaned on the next replace.
func (s *Store) dropSuperseded(ctx context.Context, keep string) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("%s/collections", s.url), &resp); err != nil {
		return
	}
	for _, c := range resp.Result.Collections {
		if c.Name == keep || !strings.HasPrefix(c.Name, s.alias+"_v") {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, c.Name), nil)
		if err != nil {
			continue
		}
		s.setHeaders(req)
		if resp, err := s.client.Do(req); err == nil {
			_ = resp.Body.Close()
		}
	}
}

func (s *Store) collectionExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, name), nil)
	if err != nil {
		return false, err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300, nil
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

func (s *Store) putJSON(ctx context.Context, url string, body any) error {
	return s.doJSON(ctx, http.MethodPut, url, body, nil)
}

func (s *Store) postJSON(ctx context.Context, url string, body any, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Store) getJSON(ctx context.Context, url string, out any) error {
	return s.doJSON(ctx, http.MethodGet, url, nil, out)
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func metaFromPayload(payload map[string]any) domain.EntryMeta {
	meta := domain.EntryMeta{}
	if v, ok := payload["user_id"].(string); ok {
		meta.SenderID = v
	}
	if v, ok := payload["user_name"].(string); ok {
		meta.Sender = v
	}
	if v, ok := payload["message"].(string); ok {
		meta.Text = v
	}
	if v, ok := payload["timestamp"].(string); ok {
		meta.Timestamp = v
	}
	if v, ok := payload["corpus_version"].(float64); ok {
		meta.CorpusVersion = uint64(v)
	}
	return meta
}
