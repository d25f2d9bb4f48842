package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, EmbedderTFIDF, cfg.Embedder.Type)
	assert.Equal(t, 64, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, 6, cfg.Clusterer.MinClusterSize)
	assert.Equal(t, 15, cfg.Reducer.NNeighbors)
	assert.InDelta(t, 0.05, cfg.Reducer.MinDist, 1e-12)
	assert.Equal(t, int64(42), cfg.Reducer.Seed)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAMLOverridesAndDefaults(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
paths:
  root: /srv/maps
embedder:
  type: openai
  openai:
    batch_size: 16
clusterer:
  min_cluster_size: 10
reducer:
  min_dist: 0
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, EmbedderOpenAI, cfg.Embedder.Type)
	assert.Equal(t, 16, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 10, cfg.Clusterer.MinClusterSize)
	assert.Zero(t, cfg.Reducer.MinDist)
	assert.Equal(t, filepath.Join("/srv/maps", "data", "datasets", "x", "processed"), cfg.ProcessedDir("x"))
	assert.Equal(t, filepath.Join("/srv/maps", "web", "public", "datasets"), cfg.PublishDir())
}

func TestEmbeddingModelFromEnv(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
}

func TestAPIKey(t *testing.T) {
	c := OpenAIEmbedderConfig{APIKeyEnv: "COMMENTMAP_TEST_KEY"}

	t.Setenv("COMMENTMAP_TEST_KEY", "")
	_, err := c.APIKey()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, errors.FlattenHints(err), "COMMENTMAP_TEST_KEY")

	t.Setenv("COMMENTMAP_TEST_KEY", "sk-test")
	key, err := c.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }},
		{"zero batch", func(c *AppConfig) { c.Embedder.OpenAI.BatchSize = 0 }},
		{"tiny cluster size", func(c *AppConfig) { c.Clusterer.MinClusterSize = 1 }},
		{"one neighbor", func(c *AppConfig) { c.Reducer.NNeighbors = 1 }},
		{"min dist above spread", func(c *AppConfig) { c.Reducer.MinDist = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(path, Default(), false))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	err := Save(path, Default(), false)
	require.ErrorIs(t, err, ErrConfigExists)
	assert.Contains(t, errors.FlattenHints(err), "--force")

	require.NoError(t, Save(path, Default(), true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "level: info")
}
