package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, 15, cfg.Retrieval.TopK)
	assert.Equal(t, 100000, cfg.Retrieval.ContextMaxChars)
	assert.Equal(t, 500, cfg.Generator.MaxTokens)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg := defaultConfig()
	cfg.Messages.BaseURL = "http://messages.local"
	cfg.Embedder.Type = "openai"
	cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{Model: "text-embedding-3-large"}
	cfg.VectorStore.Type = "hnsw"
	cfg.Retrieval.TopK = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://messages.local", loaded.Messages.BaseURL)
	assert.Equal(t, "openai", loaded.Embedder.Type)
	assert.Equal(t, "hnsw", loaded.VectorStore.Type)
	assert.Equal(t, 7, loaded.Retrieval.TopK)

	require.NotNil(t, loaded.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-large", loaded.Embedder.OpenAI.Model)
	assert.Equal(t, "https://api.openai.com/v1", loaded.Embedder.OpenAI.BaseURL, "defaults fill in missing openai fields")
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("messages:\n  base_url: http://api.local\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.local", cfg.Messages.BaseURL)
	assert.Equal(t, 500, cfg.Messages.PageLimit)
	assert.Equal(t, 90, cfg.Server.AskTimeoutSecs)
	assert.Equal(t, 8, cfg.Index.Concurrency)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
