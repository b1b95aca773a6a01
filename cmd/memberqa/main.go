package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"memberqa/internal/assembler"
	"memberqa/internal/config"
	"memberqa/internal/domain"
	"memberqa/internal/embedding"
	embopenai "memberqa/internal/embedding/openai"
	"memberqa/internal/embedding/tfidf"
	genopenai "memberqa/internal/generator/openai"
	"memberqa/internal/index"
	"memberqa/internal/logging"
	"memberqa/internal/messages"
	"memberqa/internal/retriever"
	"memberqa/internal/server"
	"memberqa/internal/service"
	"memberqa/internal/vectorstore/hnsw"
	"memberqa/internal/vectorstore/memory"
	"memberqa/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/memberqa/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging.Level, os.Stderr)

	if cfg.Messages.BaseURL == "" {
		logger.Error("messages.base_url is required")
		os.Exit(1)
	}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		logger.Error("embedder init failed", "err", err)
		os.Exit(1)
	}
	store, err := buildStore(cfg)
	if err != nil {
		logger.Error("vector store init failed", "err", err)
		os.Exit(1)
	}
	gen, err := genopenai.NewClient(genopenai.Config{
		BaseURL:        cfg.Generator.BaseURL,
		APIKeyEnv:      cfg.Generator.APIKeyEnv,
		Model:          cfg.Generator.Model,
		Timeout:        time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
		MaxTokens:      cfg.Generator.MaxTokens,
		RetryOnTimeout: cfg.Generator.RetryOnTimeout,
	})
	if err != nil {
		logger.Error("generator init failed", "err", err)
		os.Exit(1)
	}

	source := messages.NewCachedSource(messages.NewClient(messages.Config{
		BaseURL:   cfg.Messages.BaseURL,
		PageLimit: cfg.Messages.PageLimit,
		Timeout:   time.Duration(cfg.Messages.TimeoutSecs) * time.Second,
	}))
	builder := index.NewBuilder(source, emb, store, logger, cfg.Index.Concurrency)
	ret := retriever.New(emb, store, builder, cfg.Retrieval.TopK, cfg.Retrieval.MaxTopK)
	asm := assembler.New(cfg.Retrieval.ContextMaxChars)
	svc := service.New(ret, asm, gen, builder, source, cfg.Retrieval.TopK, logger)

	// Questions arriving before the build completes get a 503 until the
	// index reaches Ready.
	go func() {
		if summary, err := builder.Build(context.Background(), false); err != nil {
			logger.Error("initial index build failed", "err", err)
		} else if len(summary.Skipped) > 0 {
			logger.Warn("initial index build completed with skips", "skipped", len(summary.Skipped))
		}
	}()

	srv := server.New(svc, store, time.Duration(cfg.Server.AskTimeoutSecs)*time.Second, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("listening", "addr", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		ocfg := cfg.Embedder.OpenAI
		if ocfg == nil {
			ocfg = &config.OpenAIEmbedderConfig{APIKeyEnv: "OPENAI_API_KEY"}
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:       ocfg.BaseURL,
			APIKeyEnv:     ocfg.APIKeyEnv,
			Model:         ocfg.Model,
			Timeout:       time.Duration(ocfg.TimeoutSecs) * time.Second,
			MaxInputRunes: ocfg.MaxInputRunes,
		})
		if err != nil {
			return nil, err
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	return embedding.NewCachedEmbedder(emb, cfg.Embedder.CacheSize), nil
}

func buildStore(cfg *config.AppConfig) (domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewStore(), nil
	case "hnsw":
		hcfg := hnsw.Config{}
		if cfg.VectorStore.HNSW != nil {
			hcfg.M = cfg.VectorStore.HNSW.M
			hcfg.EfSearch = cfg.VectorStore.HNSW.EfSearch
		}
		return hnsw.NewStore(hcfg), nil
	case "qdrant":
		qcfg := cfg.VectorStore.Qdrant
		if qcfg == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStore(qdrant.Config{
			URL:     qcfg.URL,
			APIKey:  qcfg.APIKey,
			Alias:   qcfg.Alias,
			Timeout: time.Duration(qcfg.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}
