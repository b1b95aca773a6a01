package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, maxRunes int) *Client {
	t.Helper()
	t.Setenv("TEST_EMBED_KEY", "secret")
	c, err := NewClient(Config{
		BaseURL:       url,
		APIKeyEnv:     "TEST_EMBED_KEY",
		Model:         "test-model",
		Timeout:       2 * time.Second,
		MaxInputRunes: maxRunes,
	})
	require.NoError(t, err)
	return c
}

func TestClient_Embed(t *testing.T) {
	var gotInput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInput = req.Input
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	vec, err := c.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "hello world", gotInput)
	assert.Equal(t, 3, c.Dimension())
}

func TestClient_EmbedTruncatesLongInput(t *testing.T) {
	var gotInput string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInput = req.Input
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	_, err := c.Embed(context.Background(), "abcdefghij")
	require.NoError(t, err)
	assert.Equal(t, "abcde", gotInput, "input must be cut at the rune budget")

	// Truncation point is fixed: same long text, same request body.
	_, err = c.Embed(context.Background(), "abcdeXYZ")
	require.NoError(t, err)
	assert.Equal(t, "abcde", gotInput)
}

func TestClient_EmbedRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	vec, err := c.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_EmbedFailsOnClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Embed(context.Background(), "nope")
	assert.Error(t, err)
}

func TestClient_CanceledContextCutsBackoffShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Embed(ctx, "slow down")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second, "backoff must not outlive the context")
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_EMBED_KEY"})
	assert.Error(t, err)
}

func TestClient_PrepareProbesDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0, 0, 0, 0}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	require.NoError(t, c.Prepare(context.Background(), nil))
	assert.Equal(t, 4, c.Dimension())
}
