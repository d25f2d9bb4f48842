package publish

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func put(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newBuilder(t *testing.T, root string) *Builder {
	return NewBuilder(filepath.Join(root, "datasets"), filepath.Join(root, "web"), zaptest.NewLogger(t).Sugar())
}

func TestBuildPublishesCompleteDatasetsOnly(t *testing.T) {
	root := t.TempDir()
	ds := filepath.Join(root, "datasets")

	put(t, filepath.Join(ds, "beta", "processed", MetadataFile), `{"id":"beta","title":"B"}`)
	put(t, filepath.Join(ds, "beta", "processed", "comments_map_tfidf.json"), `["tfidf"]`)
	put(t, filepath.Join(ds, "beta", "processed", "comments_map_openai.json"), `["openai"]`)

	put(t, filepath.Join(ds, "alpha", "processed", MetadataFile), `{"id":"alpha","title":"A"}`)
	put(t, filepath.Join(ds, "alpha", "processed", "comments_map_tfidf.json"), `["tfidf-a"]`)

	// metadata without any map
	put(t, filepath.Join(ds, "gamma", "processed", MetadataFile), `{"id":"gamma"}`)
	// maps without metadata
	put(t, filepath.Join(ds, "delta", "processed", "comments_map_tfidf.json"), `[]`)
	put(t, filepath.Join(ds, "README.txt"), "not a dataset")

	res, err := newBuilder(t, root).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, res.Datasets)

	web := filepath.Join(root, "web")
	data, err := os.ReadFile(filepath.Join(web, IndexFile))
	require.NoError(t, err)
	var index []map[string]string
	require.NoError(t, json.Unmarshal(data, &index))
	assert.Equal(t, []map[string]string{{"id": "alpha", "title": "A"}, {"id": "beta", "title": "B"}}, index)

	def, err := os.ReadFile(filepath.Join(web, "beta", DefaultMap))
	require.NoError(t, err)
	assert.Equal(t, `["openai"]`, string(def), "openai map is preferred")
	def, err = os.ReadFile(filepath.Join(web, "alpha", DefaultMap))
	require.NoError(t, err)
	assert.Equal(t, `["tfidf-a"]`, string(def))

	assert.FileExists(t, filepath.Join(web, "beta", "comments_map_tfidf.json"))
	assert.FileExists(t, filepath.Join(web, "beta", MetadataFile))
	assert.NoDirExists(t, filepath.Join(web, "gamma"))
	assert.NoDirExists(t, filepath.Join(web, "delta"))
}

func TestBuildSemanticBeatsTFIDF(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "datasets", "one", "processed")
	put(t, filepath.Join(p, MetadataFile), `{"id":"one"}`)
	put(t, filepath.Join(p, "comments_map_tfidf.json"), `["t"]`)
	put(t, filepath.Join(p, "comments_map_semantic.json"), `["s"]`)

	_, err := newBuilder(t, root).Build(context.Background())
	require.NoError(t, err)
	def, err := os.ReadFile(filepath.Join(root, "web", "one", DefaultMap))
	require.NoError(t, err)
	assert.Equal(t, `["s"]`, string(def))
}

func TestBuildEmptyIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "datasets"), 0o755))

	res, err := newBuilder(t, root).Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Datasets)
	data, err := os.ReadFile(res.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestBuildInvalidMetadata(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "datasets", "bad", "processed")
	put(t, filepath.Join(p, MetadataFile), `{"id":`)
	put(t, filepath.Join(p, "comments_map_tfidf.json"), `[]`)

	_, err := newBuilder(t, root).Build(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMetadata))
}

func TestBuildMissingDatasetsDir(t *testing.T) {
	_, err := newBuilder(t, t.TempDir()).Build(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, errors.FlattenHints(err))
}
