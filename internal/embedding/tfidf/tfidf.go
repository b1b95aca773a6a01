package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
)

// model is one immutable preparation of the vectorizer: the vocabulary, the
// IDF weights, and the resulting dimension. Prepare publishes a fresh model
// and Embed reads exactly one for its whole run, so a re-preparation racing
// an in-flight question never tears a vector or a map.
type model struct {
	vocabulary map[string]int
	idf        []float32
	dimension  int
}

// Embedder is a local TF-IDF vectorizer. It builds a vocabulary from the
// corpus during Prepare and produces L2-normalized vectors, so cosine
// similarity reduces to a dot product. Embed is a pure function of the text
// and the prepared vocabulary: identical text always yields the same vector.
type Embedder struct {
	model        atomic.Pointer[model]
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Prepare builds the vocabulary and IDF values from the provided corpus.
// Calling Prepare again replaces the vocabulary, so vectors from different
// preparations are not comparable with each other.
func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	for _, text := range corpus {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	// Stable vocabulary ordering keeps vectors reproducible across builds
	// over the same corpus.
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus; ensure tokenizer supports your language")
	}
	m := &model{
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float32, len(terms)),
		dimension:  len(terms),
	}
	n := float64(len(corpus))
	for i, term := range terms {
		m.vocabulary[term] = i
		// Smoothed IDF
		m.idf[i] = float32(math.Log((1+n)/(1+float64(df[term]))) + 1.0)
	}
	e.model.Store(m)
	return nil
}

// Dimension returns the dimensionality of the produced embedding vectors.
// Valid only after Prepare.
func (e *Embedder) Dimension() int {
	m := e.model.Load()
	if m == nil {
		return 0
	}
	return m.dimension
}

// Embed computes the TF-IDF embedding for the given text. Unknown tokens are
// ignored; a text with no known tokens maps to the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m := e.model.Load()
	if m == nil {
		return nil, errors.New("tfidf embedder not prepared")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, m.dimension)
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := m.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec, nil
	}
	for idx, count := range tf {
		tfv := float32(count) / float32(total)
		vec[idx] = tfv * m.idf[idx]
	}
	// L2 normalize
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
