// Package service orchestrates the per-question pipeline: retrieve, assemble,
// synthesize. Each question runs the pipeline exactly once with no state
// shared between questions.
package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"memberqa/internal/domain"
)

// Retriever is the retrieval step of the pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]domain.ScoredMessage, error)
}

// ContextAssembler turns ranked results into a bounded context block.
type ContextAssembler interface {
	Assemble(results []domain.ScoredMessage) string
}

// IndexManager is the index lifecycle surface the service depends on.
type IndexManager interface {
	Build(ctx context.Context, forceRefresh bool) (domain.BuildSummary, error)
	State() domain.IndexState
	Summary() (domain.BuildSummary, bool)
}

// SenderCount is one row of the per-sender statistics.
type SenderCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats describes the corpus and index for the stats endpoint.
type Stats struct {
	TotalMessages int
	UniqueSenders int
	TopSenders    []SenderCount
	IndexState    domain.IndexState
	Build         *domain.BuildSummary
}

// Service implements the answering pipeline plus refresh and stats.
type Service struct {
	retriever Retriever
	assembler ContextAssembler
	generator domain.Generator
	indexes   IndexManager
	source    domain.MessageSource
	topK      int
	logger    *slog.Logger
}

func New(retriever Retriever, assembler ContextAssembler, generator domain.Generator, indexes IndexManager, source domain.MessageSource, topK int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		indexes:   indexes,
		source:    source,
		topK:      topK,
		logger:    logger,
	}
}

// Answer runs one question through the pipeline. Typed failures from the
// stages propagate unchanged so the caller can tell "index warming up" from
// "model failed". An answer expressing uncertainty is a success: whether the
// context actually answers the question is the model's call, not ours.
func (s *Service) Answer(ctx context.Context, question string) (domain.Answer, error) {
	started := time.Now()

	results, err := s.retriever.Retrieve(ctx, question, s.topK)
	if err != nil {
		return domain.Answer{}, err
	}
	contextBlock := s.assembler.Assemble(results)
	text, err := s.generator.Synthesize(ctx, question, contextBlock)
	if err != nil {
		return domain.Answer{}, err
	}

	s.logger.Info("question answered",
		"retrieved", len(results),
		"context_chars", len(contextBlock),
		"duration", time.Since(started),
	)
	return domain.Answer{Text: text, Sources: results}, nil
}

// Refresh refetches the corpus and fully rebuilds the index.
func (s *Service) Refresh(ctx context.Context) (domain.BuildSummary, error) {
	return s.indexes.Build(ctx, true)
}

// Stats aggregates corpus and index statistics.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	msgs, err := s.source.Messages(ctx, false)
	if err != nil {
		return Stats{}, err
	}
	counts := make(map[string]int)
	for _, m := range msgs {
		counts[m.Sender]++
	}
	top := make([]SenderCount, 0, len(counts))
	for name, count := range counts {
		top = append(top, SenderCount{Name: name, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > 10 {
		top = top[:10]
	}
	stats := Stats{
		TotalMessages: len(msgs),
		UniqueSenders: len(counts),
		TopSenders:    top,
		IndexState:    s.indexes.State(),
	}
	if summary, ok := s.indexes.Summary(); ok {
		stats.Build = &summary
	}
	return stats, nil
}
