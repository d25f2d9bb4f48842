// Package publish copies finished dataset maps into the web tree and writes its index.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"commentmap/internal/logger"
	"commentmap/internal/mapwriter"
)

const (
	MetadataFile = "dataset.json"
	IndexFile    = "index.json"
	DefaultMap   = "comments_map.json"
	mapPattern   = "comments_map_*.json"
)

// DefaultMapPreference lists the map files copied to DefaultMap, most preferred first.
var DefaultMapPreference = []string{
	"comments_map_openai.json",
	"comments_map_semantic.json",
	"comments_map_tfidf.json",
}

// ErrInvalidMetadata is returned when a dataset.json is not valid JSON.
var ErrInvalidMetadata = errors.New("invalid dataset metadata")

// Result lists what Build published.
type Result struct {
	IndexPath string
	Datasets  []string
}

// Builder publishes every dataset under DatasetsDir into PublishDir.
type Builder struct {
	datasetsDir string
	publishDir  string
	logger      *zap.SugaredLogger
}

// NewBuilder returns a Builder; a nil logger discards output.
func NewBuilder(datasetsDir, publishDir string, log *zap.SugaredLogger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{datasetsDir: datasetsDir, publishDir: publishDir, logger: log}
}

// Build publishes datasets in name order. A dataset needs processed/dataset.json and at least
// one map file; anything else is skipped.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	entries, err := os.ReadDir(b.datasetsDir)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "list datasets in %s", b.datasetsDir),
			"pass --root pointing at the project directory")
	}
	if err := os.MkdirAll(b.publishDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", b.publishDir)
	}

	res := &Result{IndexPath: filepath.Join(b.publishDir, IndexFile)}
	index := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		meta, ok, err := b.publishDataset(e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "publish dataset %s", e.Name())
		}
		if !ok {
			continue
		}
		index = append(index, meta)
		res.Datasets = append(res.Datasets, e.Name())
	}

	data, err := encodeIndex(index)
	if err != nil {
		return nil, err
	}
	if err := mapwriter.WriteFileAtomic(res.IndexPath, data); err != nil {
		return nil, err
	}
	b.logger.Infow("dataset index written", logger.FieldPath, res.IndexPath, logger.FieldCount, len(index))
	return res, nil
}

func (b *Builder) publishDataset(name string) (json.RawMessage, bool, error) {
	log := b.logger.With(logger.FieldDataset, name)
	processed := filepath.Join(b.datasetsDir, name, "processed")
	metaPath := filepath.Join(processed, MetadataFile)

	maps, err := filepath.Glob(filepath.Join(processed, mapPattern))
	if err != nil {
		return nil, false, err
	}
	sort.Strings(maps)
	if !isFile(metaPath) || len(maps) == 0 {
		log.Debugw("skipping dataset", "has_metadata", isFile(metaPath), "maps", len(maps))
		return nil, false, nil
	}

	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, false, err
	}
	if !json.Valid(meta) {
		return nil, false, errors.WithHintf(errors.Wrap(ErrInvalidMetadata, metaPath), "fix or remove %s", metaPath)
	}

	outDir := filepath.Join(b.publishDir, name)
	if err := copyFile(metaPath, filepath.Join(outDir, MetadataFile)); err != nil {
		return nil, false, err
	}
	for _, m := range maps {
		if err := copyFile(m, filepath.Join(outDir, filepath.Base(m))); err != nil {
			return nil, false, err
		}
	}
	for _, cand := range DefaultMapPreference {
		src := filepath.Join(processed, cand)
		if isFile(src) {
			if err := copyFile(src, filepath.Join(outDir, DefaultMap)); err != nil {
				return nil, false, err
			}
			break
		}
	}
	log.Debugw("published dataset", logger.FieldCount, len(maps))
	return json.RawMessage(bytes.TrimSpace(meta)), true, nil
}

func encodeIndex(index []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(index); err != nil {
		return nil, errors.Wrap(err, "encode dataset index")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// copyFile replaces dst with the contents of src and keeps the source modification time.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "read %s", src)
	}
	if err := mapwriter.WriteFileAtomic(dst, data); err != nil {
		return err
	}
	if st, err := os.Stat(src); err == nil {
		_ = os.Chtimes(dst, st.ModTime(), st.ModTime())
	}
	return nil
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
