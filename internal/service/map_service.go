// Package service runs the comment map pipeline for one dataset.
package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"commentmap/internal/dataset"
	"commentmap/internal/domain"
	"commentmap/internal/embedding"
	"commentmap/internal/logger"
	"commentmap/internal/mapwriter"
	"commentmap/internal/record"
)

// ErrEmptyDataset is returned when the comments table has a header but no rows.
var ErrEmptyDataset = errors.New("dataset has no comments")

// CommentLoader reads the cleaned comments of a processed directory.
type CommentLoader interface {
	Load(dir string) (*dataset.Result, error)
}

// MapService wires loading, embedding, reduction, clustering and writing.
type MapService struct {
	loader    CommentLoader
	embedder  domain.Embedder
	reducer   domain.Reducer
	clusterer domain.Clusterer
	logger    *zap.SugaredLogger
}

// NewMapService assembles the pipeline from its stages.
func NewMapService(loader CommentLoader, embedder domain.Embedder, reducer domain.Reducer, clusterer domain.Clusterer, log *zap.SugaredLogger) *MapService {
	if log == nil {
		log = logger.Nop()
	}
	return &MapService{loader: loader, embedder: embedder, reducer: reducer, clusterer: clusterer, logger: log}
}

// OutputPath is where BuildMap writes the map for processedDir.
func (s *MapService) OutputPath(processedDir string) string {
	return filepath.Join(processedDir, embedding.MapFileName(s.embedder.Name()))
}

// BuildMap recomputes the whole map of one dataset and writes it next to its input.
func (s *MapService) BuildMap(ctx context.Context, processedDir string) (mapwriter.Summary, error) {
	log := s.logger.With(logger.FieldBackend, s.embedder.Name())

	loaded, err := s.loader.Load(processedDir)
	if err != nil {
		return mapwriter.Summary{}, err
	}
	comments := loaded.Comments
	if len(comments) == 0 {
		return mapwriter.Summary{}, errors.WithHintf(
			errors.Wrapf(ErrEmptyDataset, "%s", loaded.Source),
			"the cleaned table must contain at least one row")
	}

	texts := make([]string, len(comments))
	for i, c := range comments {
		texts[i] = c.Text
	}

	began := time.Now()
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return mapwriter.Summary{}, errors.Wrap(err, "embed comments")
	}
	if len(vectors) != len(comments) {
		return mapwriter.Summary{}, errors.AssertionFailedf("embedder returned %d vectors for %d comments", len(vectors), len(comments))
	}
	log.Infow("embedded comments", logger.FieldCount, len(vectors), "dim", width(vectors),
		logger.FieldDurationMS, time.Since(began).Milliseconds())

	began = time.Now()
	points, err := s.reducer.Reduce(ctx, vectors)
	if err != nil {
		return mapwriter.Summary{}, errors.Wrap(err, "reduce embeddings")
	}
	log.Infow("projected to 2D", logger.FieldCount, len(points), logger.FieldDurationMS, time.Since(began).Milliseconds())

	began = time.Now()
	labels, err := s.clusterer.Cluster(ctx, points)
	if err != nil {
		return mapwriter.Summary{}, errors.Wrap(err, "cluster points")
	}
	log.Infow("clustered points", logger.FieldCount, len(labels), logger.FieldDurationMS, time.Since(began).Milliseconds())

	records, err := record.Build(comments, points, labels)
	if err != nil {
		return mapwriter.Summary{}, err
	}
	out := s.OutputPath(processedDir)
	summary, err := mapwriter.Write(out, records)
	if err != nil {
		return mapwriter.Summary{}, errors.Wrapf(err, "write %s", out)
	}
	log.Infow("map written", logger.FieldPath, out, logger.FieldCount, summary.Records,
		"clusters", summary.Clusters, "noise", summary.Noise)
	return summary, nil
}

func width(vectors [][]float32) int {
	if len(vectors) == 0 {
		return 0
	}
	return len(vectors[0])
}
