package main

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"commentmap/internal/cluster"
	"commentmap/internal/config"
	"commentmap/internal/dataset"
	"commentmap/internal/embedding"
	"commentmap/internal/logger"
	"commentmap/internal/reduce"
	"commentmap/internal/service"
)

type mapFlags struct {
	dataset        string
	mode           string
	openAIModel    string
	minClusterSize int
}

func newMapCmd(a *app) *cobra.Command {
	var f mapFlags
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Embed, project and cluster one dataset into comments_map_<mode>.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runMap(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "Dataset name under data/datasets")
	cmd.Flags().StringVar(&f.mode, "mode", config.EmbedderTFIDF, "Embedding backend: tfidf or openai")
	cmd.Flags().StringVar(&f.openAIModel, "openai-model", "", "Embedding model for --mode openai (default $EMBEDDING_MODEL or text-embedding-3-small)")
	cmd.Flags().IntVar(&f.minClusterSize, "min-cluster-size", 6, "Smallest group of points reported as a cluster")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func (a *app) runMap(cmd *cobra.Command, f mapFlags) error {
	if err := validateDatasetName(f.dataset); err != nil {
		return err
	}
	cfg := a.cfg
	if cmd.Flags().Changed("mode") {
		cfg.Embedder.Type = strings.ToLower(f.mode)
	}
	if f.openAIModel != "" {
		cfg.Embedder.OpenAI.Model = f.openAIModel
	}
	if cmd.Flags().Changed("min-cluster-size") {
		cfg.Clusterer.MinClusterSize = f.minClusterSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := a.log.With(logger.FieldDataset, f.dataset)
	emb, err := embedding.New(cfg.Embedder, embedding.Deps{Logger: log, Progress: a.console.Progress})
	if err != nil {
		return err
	}
	reducer := reduce.New(reduce.Config{
		NNeighbors: cfg.Reducer.NNeighbors,
		MinDist:    cfg.Reducer.MinDist,
		Spread:     cfg.Reducer.Spread,
		Seed:       cfg.Reducer.Seed,
		Epochs:     cfg.Reducer.Epochs,
	}, log.Named("reduce"))
	clusterer, err := cluster.New(cluster.Config{
		MinClusterSize: cfg.Clusterer.MinClusterSize,
		MinSamples:     cfg.Clusterer.MinSamples,
	}, log.Named("cluster"))
	if err != nil {
		return err
	}

	svc := service.NewMapService(dataset.NewLoader(log.Named("dataset")), emb, reducer, clusterer, log.Named("service"))
	summary, err := svc.BuildMap(cmd.Context(), cfg.ProcessedDir(f.dataset))
	if err != nil {
		return err
	}
	a.console.MapWritten(summary)
	return nil
}

func validateDatasetName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
		return errors.WithHint(
			errors.Newf("invalid dataset name %q", name),
			"pass the directory name under data/datasets, e.g. --dataset reviews")
	}
	return nil
}
