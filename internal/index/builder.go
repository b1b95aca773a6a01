// Package index drives the corpus through the embedding encoder into the
// vector store and owns the index lifecycle state.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"memberqa/internal/domain"
)

// DefaultConcurrency bounds how many messages are encoded at once.
const DefaultConcurrency = 8

// Builder performs full corpus builds. Builds are exclusive: at most one runs
// at a time, and the vector store contents are swapped atomically at the end,
// so concurrent searches never observe a half-built index.
type Builder struct {
	source      domain.MessageSource
	embedder    domain.Embedder
	store       domain.VectorStore
	logger      *slog.Logger
	concurrency int

	buildMu sync.Mutex
	state   atomic.Int32
	version atomic.Uint64

	summaryMu sync.RWMutex
	summary   *domain.BuildSummary
}

func NewBuilder(source domain.MessageSource, embedder domain.Embedder, store domain.VectorStore, logger *slog.Logger, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		source:      source,
		embedder:    embedder,
		store:       store,
		logger:      logger,
		concurrency: concurrency,
	}
}

// State reports the current index lifecycle state. Safe for concurrent use.
func (b *Builder) State() domain.IndexState {
	return domain.IndexState(b.state.Load())
}

// Summary returns the outcome of the last completed build.
func (b *Builder) Summary() (domain.BuildSummary, bool) {
	b.summaryMu.RLock()
	defer b.summaryMu.RUnlock()
	if b.summary == nil {
		return domain.BuildSummary{}, false
	}
	return *b.summary, true
}

// Build runs a full corpus build: fetch every message, encode it, and replace
// the vector store contents in one swap. A single message's encode failure is
// logged and skipped rather than aborting the build; skips are reported in
// the returned summary. Running Build again with forceRefresh refetches the
// corpus and fully replaces the index.
func (b *Builder) Build(ctx context.Context, forceRefresh bool) (domain.BuildSummary, error) {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	prev := b.State()
	b.state.Store(int32(domain.IndexBuilding))
	started := time.Now()

	summary, err := b.build(ctx, forceRefresh, started)
	if err != nil {
		b.state.Store(int32(prev))
		return domain.BuildSummary{}, err
	}

	b.version.Store(summary.Version)
	b.summaryMu.Lock()
	b.summary = &summary
	b.summaryMu.Unlock()
	b.state.Store(int32(domain.IndexReady))

	b.logger.Info("index build complete",
		"version", summary.Version,
		"total", summary.Total,
		"indexed", summary.Indexed,
		"skipped", len(summary.Skipped),
		"duration", summary.Duration,
	)
	return summary, nil
}

func (b *Builder) build(ctx context.Context, forceRefresh bool, started time.Time) (domain.BuildSummary, error) {
	msgs, err := b.source.Messages(ctx, forceRefresh)
	if err != nil {
		return domain.BuildSummary{}, fmt.Errorf("fetch corpus: %w", err)
	}

	corpus := make([]string, len(msgs))
	for i, m := range msgs {
		corpus[i] = m.Document()
	}
	if err := b.embedder.Prepare(ctx, corpus); err != nil {
		return domain.BuildSummary{}, fmt.Errorf("prepare embedder: %w", err)
	}
	dim := b.embedder.Dimension()
	version := b.version.Load() + 1

	// First build bootstraps the store (the qdrant backend creates its
	// aliased collection here) so Count works while the build runs. Init
	// drops contents, so it must not run once an index is serving.
	if version == 1 {
		if err := b.store.Init(ctx, dim); err != nil {
			return domain.BuildSummary{}, fmt.Errorf("init index: %w", err)
		}
	}

	encoded := make([]*domain.IndexEntry, len(msgs))
	var skipMu sync.Mutex
	var skipped []domain.SkippedMessage

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range msgs {
		g.Go(func() error {
			m := msgs[i]
			vec, err := b.embedder.Embed(gctx, m.Document())
			if err != nil {
				// Context errors abort the whole build; anything else is a
				// per-message problem that must not block the rest.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				b.logger.Warn("skipping message", "id", m.ID, "err", err)
				skipMu.Lock()
				skipped = append(skipped, domain.SkippedMessage{ID: m.ID, Reason: err.Error()})
				skipMu.Unlock()
				return nil
			}
			encoded[i] = &domain.IndexEntry{
				ID:     m.ID,
				Vector: vec,
				Meta: domain.EntryMeta{
					SenderID:      m.SenderID,
					Sender:        m.Sender,
					Text:          m.Text,
					Timestamp:     m.Timestamp,
					CorpusVersion: version,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.BuildSummary{}, fmt.Errorf("encode corpus: %w", err)
	}

	entries := make([]domain.IndexEntry, 0, len(msgs))
	for _, e := range encoded {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	if err := b.store.Replace(ctx, dim, entries); err != nil {
		return domain.BuildSummary{}, fmt.Errorf("replace index: %w", err)
	}

	return domain.BuildSummary{
		Version:     version,
		Total:       len(msgs),
		Indexed:     len(entries),
		Skipped:     skipped,
		Duration:    time.Since(started),
		CompletedAt: time.Now(),
	}, nil
}
