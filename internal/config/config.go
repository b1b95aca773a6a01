package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	AskTimeoutSecs int    `yaml:"ask_timeout_secs"`
}

// MessagesConfig configures the upstream member-messages API client.
type MessagesConfig struct {
	BaseURL     string `yaml:"base_url"`
	PageLimit   int    `yaml:"page_limit"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	Model         string `yaml:"model"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	MaxInputRunes int    `yaml:"max_input_runes"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	CacheSize int                   `yaml:"cache_size"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// HNSWConfig tunes the in-process approximate nearest-neighbor store.
type HNSWConfig struct {
	M        int `yaml:"m"`
	EfSearch int `yaml:"ef_search"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Alias       string `yaml:"alias"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	HNSW   *HNSWConfig   `yaml:"hnsw,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig bounds retrieval depth and context size.
type RetrievalConfig struct {
	TopK            int `yaml:"top_k"`
	MaxTopK         int `yaml:"max_top_k"`
	ContextMaxChars int `yaml:"context_max_chars"`
}

// GeneratorConfig configures the chat-completions answer synthesizer.
type GeneratorConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	MaxTokens      int    `yaml:"max_tokens"`
	RetryOnTimeout bool   `yaml:"retry_on_timeout"`
}

// IndexConfig tunes the corpus build.
type IndexConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Messages    MessagesConfig    `yaml:"messages"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Index       IndexConfig       `yaml:"index"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/memberqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/memberqa/config.yaml and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "memberqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server:      ServerConfig{Addr: ":8000"},
		Messages:    MessagesConfig{},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Generator: GeneratorConfig{
			BaseURL:   "https://integrate.api.nvidia.com/v1",
			APIKeyEnv: "NVIDIA_API_KEY",
			Model:     "qwen/qwen3-next-80b-a3b-instruct",
		},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.AskTimeoutSecs == 0 {
		cfg.Server.AskTimeoutSecs = 90
	}
	if cfg.Messages.PageLimit == 0 {
		cfg.Messages.PageLimit = 500
	}
	if cfg.Messages.TimeoutSecs == 0 {
		cfg.Messages.TimeoutSecs = 60
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 1000
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 15
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 50
	}
	if cfg.Retrieval.ContextMaxChars == 0 {
		cfg.Retrieval.ContextMaxChars = 100000
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 500
	}
	if cfg.Index.Concurrency == 0 {
		cfg.Index.Concurrency = 8
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
