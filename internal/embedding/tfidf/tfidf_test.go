package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func norm(v []float32) float64 {
	s := 0.0
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbedShapeAndNormalization(t *testing.T) {
	texts := []string{
		"great product fast delivery",
		"great product but slow delivery",
		"terrible support",
		"terrible support and slow delivery",
		"",
	}
	e := NewEmbedder(Config{})
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, v := range vecs {
		require.Len(t, v, e.Dimension(), "row %d", i)
	}
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, norm(vecs[i]), 1e-5, "row %d", i)
	}
	assert.Zero(t, norm(vecs[4]), "empty text maps to the zero vector")
}

func TestVocabularyMinDFAndBigrams(t *testing.T) {
	texts := []string{
		"great product",
		"great product again",
		"lonely word",
	}
	e := NewEmbedder(Config{MinDF: 2, NgramMax: 2})
	require.NoError(t, e.Prepare(texts))
	assert.Equal(t, []string{"great", "great product", "product"}, e.Vocabulary())
}

func TestMaxFeaturesKeepsMostFrequent(t *testing.T) {
	texts := []string{
		"apple apple apple banana cherry",
		"apple banana banana cherry",
		"apple banana",
	}
	e := NewEmbedder(Config{MaxFeatures: 2, MinDF: 1, NgramMax: 1})
	require.NoError(t, e.Prepare(texts))
	assert.Equal(t, []string{"apple", "banana"}, e.Vocabulary())
	assert.Equal(t, 2, e.Dimension())
}

func TestIDFWeighting(t *testing.T) {
	// "common" is in every document, "rare" in two of three.
	texts := []string{"common rare", "common rare", "common"}
	e := NewEmbedder(Config{MinDF: 1, NgramMax: 1})
	vecs, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)

	idxCommon := e.vocabulary["common"]
	idxRare := e.vocabulary["rare"]
	assert.Greater(t, vecs[0][idxRare], vecs[0][idxCommon])
	assert.InDelta(t, 1.0, vecs[2][idxCommon], 1e-6)
}

func TestStopwords(t *testing.T) {
	e := NewEmbedder(Config{MinDF: 1, NgramMax: 1, StopWords: EnglishStopwords()})
	require.NoError(t, e.Prepare([]string{"the product is great"}))
	assert.Equal(t, []string{"great", "product"}, e.Vocabulary())
}

func TestEmptyVocabularyYieldsZeroColumn(t *testing.T) {
	e := NewEmbedder(Config{})
	vecs, err := e.Embed(context.Background(), []string{"great product"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, []float32{0}, vecs[0])
}

func TestDeterministic(t *testing.T) {
	texts := []string{"alpha beta", "beta gamma", "gamma alpha", "alpha beta gamma", "delta"}
	a, err := NewEmbedder(Config{MinDF: 1}).Embed(context.Background(), texts)
	require.NoError(t, err)
	b, err := NewEmbedder(Config{MinDF: 1}).Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnicodeTokens(t *testing.T) {
	e := NewEmbedder(Config{MinDF: 1, NgramMax: 1})
	require.NoError(t, e.Prepare([]string{"Über café x 東京"}))
	assert.Equal(t, []string{"café", "über", "東京"}, e.Vocabulary())
}

func TestPrepareEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder(Config{}).Prepare(nil))
}

func TestEmbedLogsVocabularyPreview(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := NewEmbedder(Config{MinDF: 1, NgramMax: 1, Logger: zap.New(core).Sugar()})
	_, err := e.Embed(context.Background(), []string{"zeta alpha", "beta alpha"})
	require.NoError(t, err)

	entries := logs.FilterMessage("vocabulary fitted").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 3, fields["terms"])
	assert.Equal(t, []any{"alpha", "beta", "zeta"}, fields["preview"])
}
