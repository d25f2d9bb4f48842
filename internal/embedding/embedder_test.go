package embedding

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commentmap/internal/config"
)

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default().Embedder

	e, err := New(cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "tfidf", e.Name())
	assert.Equal(t, "comments_map_tfidf.json", MapFileName(e.Name()))

	cfg.Type = config.EmbedderOpenAI
	cfg.OpenAI.APIKeyEnv = "COMMENTMAP_TEST_OPENAI_KEY"
	t.Setenv("COMMENTMAP_TEST_OPENAI_KEY", "sk-test")
	e, err = New(cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "openai", e.Name())
	assert.Equal(t, "comments_map_openai.json", MapFileName(e.Name()))
}

func TestNewOpenAIWithoutCredentialFails(t *testing.T) {
	cfg := config.Default().Embedder
	cfg.Type = config.EmbedderOpenAI
	cfg.OpenAI.APIKeyEnv = "COMMENTMAP_TEST_OPENAI_KEY"
	t.Setenv("COMMENTMAP_TEST_OPENAI_KEY", "")

	_, err := New(cfg, Deps{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingCredential))
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := config.Default().Embedder
	cfg.Type = "word2vec"
	_, err := New(cfg, Deps{})
	assert.Error(t, err)
}
