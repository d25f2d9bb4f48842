package tfidf

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// vocabularyPreview is how many fitted terms the debug log shows.
const vocabularyPreview = 20

// Config controls vocabulary construction.
type Config struct {
	// MaxFeatures caps the vocabulary, keeping the terms with the highest corpus counts.
	MaxFeatures int
	// MinDF drops terms that appear in fewer documents.
	MinDF int
	// NgramMax is the longest word n-gram; 1 means unigrams only.
	NgramMax int
	// StopWords are removed before n-grams are built.
	StopWords []string
	Logger    *zap.SugaredLogger
}

// Embedder implements a corpus-fitted TF-IDF vectorizer.
// Embed fits the vocabulary on the texts it is given and returns their dense vectors.
type Embedder struct {
	cfg          Config
	vocabulary   map[string]int
	idf          []float64
	dimension    int
	prepared     bool
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates an unprepared TF-IDF embedder.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = 8000
	}
	if cfg.MinDF <= 0 {
		cfg.MinDF = 2
	}
	if cfg.NgramMax <= 0 {
		cfg.NgramMax = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Embedder{
		cfg:          cfg,
		vocabulary:   make(map[string]int),
		tokenPattern: regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`),
		stopwords:    stop,
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "tfidf" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Vocabulary returns the fitted terms in column order.
func (e *Embedder) Vocabulary() []string {
	terms := make([]string, len(e.vocabulary))
	for term, i := range e.vocabulary {
		terms[i] = term
	}
	return terms
}

// Embed fits the vocabulary on texts and returns one L2-normalized row per text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.Prepare(texts); err != nil {
		return nil, err
	}
	terms := e.Vocabulary()
	e.cfg.Logger.Debugw("vocabulary fitted",
		"terms", len(terms),
		"dim", e.dimension,
		"preview", terms[:min(len(terms), vocabularyPreview)])
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = e.Transform(text)
	}
	return out, nil
}

// Prepare builds the vocabulary and IDF values from the provided corpus.
// A corpus where no term survives MinDF yields a single all-zero column.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for TF-IDF prepare")
	}
	df := make(map[string]int)
	tf := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, term := range e.analyze(text) {
			tf[term]++
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	terms := make([]string, 0, len(df))
	for term, n := range df {
		if n >= e.cfg.MinDF {
			terms = append(terms, term)
		}
	}
	if len(terms) > e.cfg.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] != tf[terms[j]] {
				return tf[terms[i]] > tf[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:e.cfg.MaxFeatures]
	}
	// Create stable ordering for vocabulary
	sort.Strings(terms)

	e.vocabulary = make(map[string]int, len(terms))
	e.idf = make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		e.vocabulary[term] = i
		// Smoothed IDF
		e.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.dimension = max(len(terms), 1)
	e.prepared = true
	return nil
}

// Transform computes the TF-IDF vector of text against the fitted vocabulary.
// Texts with no known terms map to the zero vector.
func (e *Embedder) Transform(text string) []float32 {
	out := make([]float32, e.dimension)
	if !e.prepared || len(e.vocabulary) == 0 {
		return out
	}
	counts := make(map[int]int)
	for _, term := range e.analyze(text) {
		if idx, ok := e.vocabulary[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return out
	}
	vec := make([]float64, e.dimension)
	norm := 0.0
	for idx, c := range counts {
		v := float64(c) * e.idf[idx]
		vec[idx] = v
		norm += v * v
	}
	// L2 normalize
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// analyze lowercases, tokenizes, removes stop words and expands word n-grams.
func (e *Embedder) analyze(text string) []string {
	tokens := e.tokenize(text)
	if e.cfg.NgramMax == 1 || len(tokens) < 2 {
		return tokens
	}
	out := make([]string, 0, len(tokens)*e.cfg.NgramMax)
	out = append(out, tokens...)
	for n := 2; n <= e.cfg.NgramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	if len(e.stopwords) == 0 {
		return raw
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

// EnglishStopwords returns a short list of English function words.
func EnglishStopwords() []string {
	return []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
}
