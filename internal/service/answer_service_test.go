package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberqa/internal/assembler"
	"memberqa/internal/domain"
	"memberqa/internal/embedding/tfidf"
	"memberqa/internal/index"
	"memberqa/internal/retriever"
	"memberqa/internal/vectorstore/memory"
)

type staticSource struct {
	corpus []domain.Message
}

func (s *staticSource) Messages(ctx context.Context, forceRefresh bool) ([]domain.Message, error) {
	return s.corpus, nil
}

// recordingGenerator captures the prompt and returns a canned answer, standing
// in for the model so the retrieve and assemble stages can be observed
// end to end.
type recordingGenerator struct {
	gotQuestion string
	gotContext  string
	answer      string
	err         error
}

func (g *recordingGenerator) Synthesize(ctx context.Context, question, contextBlock string) (string, error) {
	g.gotQuestion = question
	g.gotContext = contextBlock
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func sampleCorpus() []domain.Message {
	return []domain.Message{
		{ID: "1", SenderID: "u1", Sender: "Vikram", Text: "I finally bought my second car, a blue sedan", Timestamp: "2024-03-01T10:00:00Z"},
		{ID: "2", SenderID: "u2", Sender: "Layla", Text: "Planning my trip to London next month", Timestamp: "2024-03-02T11:00:00Z"},
		{ID: "3", SenderID: "u3", Sender: "Amira", Text: "The new sushi restaurant downtown is amazing", Timestamp: "2024-03-03T12:00:00Z"},
		{ID: "4", SenderID: "u1", Sender: "Vikram", Text: "My first car is getting old, time for a service", Timestamp: "2024-02-01T09:00:00Z"},
	}
}

// newPipeline wires the real encoder, store, builder, retriever, and assembler
// around a fake generator and builds the index.
func newPipeline(t *testing.T, gen *recordingGenerator) *Service {
	t.Helper()
	source := &staticSource{corpus: sampleCorpus()}
	embedder := tfidf.NewEmbedder()
	store := memory.NewStore()
	builder := index.NewBuilder(source, embedder, store, nil, 2)

	_, err := builder.Build(context.Background(), false)
	require.NoError(t, err)

	ret := retriever.New(embedder, store, builder, 3, 10)
	return New(ret, assembler.New(0), gen, builder, source, 3, nil)
}

func TestService_AnswerRunsFullPipeline(t *testing.T) {
	gen := &recordingGenerator{answer: "Vikram owns two cars."}
	svc := newPipeline(t, gen)

	answer, err := svc.Answer(context.Background(), "car sedan service")
	require.NoError(t, err)
	assert.Equal(t, "Vikram owns two cars.", answer.Text)
	assert.NotEmpty(t, answer.Sources)

	assert.Equal(t, "car sedan service", gen.gotQuestion)
	assert.Contains(t, gen.gotContext, "User: Vikram")
	assert.Contains(t, gen.gotContext, "blue sedan")
}

func TestService_UncertainAnswerIsSuccess(t *testing.T) {
	gen := &recordingGenerator{answer: "I don't have that information"}
	svc := newPipeline(t, gen)

	answer, err := svc.Answer(context.Background(), "sushi restaurant downtown")
	require.NoError(t, err)
	assert.Equal(t, "I don't have that information", answer.Text)
}

func TestService_NotReadyPropagates(t *testing.T) {
	source := &staticSource{corpus: sampleCorpus()}
	embedder := tfidf.NewEmbedder()
	store := memory.NewStore()
	builder := index.NewBuilder(source, embedder, store, nil, 2)
	ret := retriever.New(embedder, store, builder, 3, 10)
	svc := New(ret, assembler.New(0), &recordingGenerator{answer: "x"}, builder, source, 3, nil)

	_, err := svc.Answer(context.Background(), "anything at all")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIndexNotReady))
}

func TestService_SynthesisErrorPropagatesTyped(t *testing.T) {
	gen := &recordingGenerator{err: &domain.SynthesisError{Kind: domain.SynthesisQuota, Err: errors.New("out of credits")}}
	svc := newPipeline(t, gen)

	_, err := svc.Answer(context.Background(), "car sedan service")
	require.Error(t, err)
	var synErr *domain.SynthesisError
	require.True(t, errors.As(err, &synErr))
	assert.Equal(t, domain.SynthesisQuota, synErr.Kind)
}

func TestService_RefreshRebuildsIndex(t *testing.T) {
	gen := &recordingGenerator{answer: "x"}
	svc := newPipeline(t, gen)

	summary, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), summary.Version)
	assert.Equal(t, len(sampleCorpus()), summary.Indexed)
}

func TestService_Stats(t *testing.T) {
	svc := newPipeline(t, &recordingGenerator{answer: "x"})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalMessages)
	assert.Equal(t, 3, stats.UniqueSenders)
	assert.Equal(t, domain.IndexReady, stats.IndexState)
	require.NotNil(t, stats.Build)
	assert.Equal(t, uint64(1), stats.Build.Version)

	require.NotEmpty(t, stats.TopSenders)
	assert.Equal(t, SenderCount{Name: "Vikram", Count: 2}, stats.TopSenders[0])
	for i := 1; i < len(stats.TopSenders); i++ {
		assert.GreaterOrEqual(t, stats.TopSenders[i-1].Count, stats.TopSenders[i].Count)
	}
}

func TestService_StatsCapsTopSendersAtTen(t *testing.T) {
	corpus := make([]domain.Message, 15)
	for i := range corpus {
		corpus[i] = domain.Message{
			ID:     strconv.Itoa(i),
			Sender: "member-" + strconv.Itoa(i),
			Text:   "hello from " + strconv.Itoa(i),
		}
	}
	source := &staticSource{corpus: corpus}
	embedder := tfidf.NewEmbedder()
	store := memory.NewStore()
	builder := index.NewBuilder(source, embedder, store, nil, 2)
	_, err := builder.Build(context.Background(), false)
	require.NoError(t, err)

	ret := retriever.New(embedder, store, builder, 3, 10)
	svc := New(ret, assembler.New(0), &recordingGenerator{answer: "x"}, builder, source, 3, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, stats.UniqueSenders)
	assert.Len(t, stats.TopSenders, 10)
}
