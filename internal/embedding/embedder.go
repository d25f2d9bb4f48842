// Package embedding selects the embedding backend for a run.
package embedding

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"commentmap/internal/config"
	"commentmap/internal/domain"
	"commentmap/internal/embedding/openai"
	"commentmap/internal/embedding/tfidf"
)

// Embedder converts an ordered batch of texts into one vector per text.
type Embedder = domain.Embedder

// Deps carries the runtime collaborators a backend may use.
type Deps struct {
	Logger   *zap.SugaredLogger
	Progress func(done, total int)
}

// New builds the backend named by cfg.Type.
func New(cfg config.EmbedderConfig, deps Deps) (Embedder, error) {
	switch cfg.Type {
	case config.EmbedderTFIDF, "":
		tc := tfidf.Config{
			MaxFeatures: cfg.TFIDF.MaxFeatures,
			MinDF:       cfg.TFIDF.MinDF,
			NgramMax:    cfg.TFIDF.NgramMax,
		}
		if cfg.TFIDF.StopWords == "english" {
			tc.StopWords = tfidf.EnglishStopwords()
		}
		if deps.Logger != nil {
			tc.Logger = deps.Logger.Named("embedding.tfidf")
		}
		return tfidf.NewEmbedder(tc), nil
	case config.EmbedderOpenAI:
		key, err := cfg.OpenAI.APIKey()
		if err != nil {
			return nil, err
		}
		opts := []openai.Option{}
		if deps.Logger != nil {
			opts = append(opts, openai.WithLogger(deps.Logger.Named("embedding.openai")))
		}
		if deps.Progress != nil {
			opts = append(opts, openai.WithProgress(deps.Progress))
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKey:            key,
			Model:             cfg.OpenAI.Model,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:         cfg.OpenAI.BatchSize,
			RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
		}, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "openai embedder init failed")
		}
		return client, nil
	default:
		return nil, errors.Newf("unknown embedder: %s", cfg.Type)
	}
}

// MapFileName is the artifact name for maps produced by the named backend.
func MapFileName(backend string) string {
	return "comments_map_" + backend + ".json"
}
