package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EmbedderTFIDF  = "tfidf"
	EmbedderOpenAI = "openai"
)

// ErrMissingCredential is returned when the remote embedder has no API key in its env var.
var ErrMissingCredential = errors.New("missing embedding API credential")

// TFIDFConfig configures the corpus-fitted TF-IDF embedder.
type TFIDFConfig struct {
	MaxFeatures int `yaml:"max_features"`
	MinDF       int `yaml:"min_df"`
	NgramMax    int `yaml:"ngram_max"`
	// StopWords is "" for none or "english" for the built-in list.
	StopWords string `yaml:"stop_words"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	TimeoutSecs       int    `yaml:"timeout_secs"`
	BatchSize         int    `yaml:"batch_size"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// APIKey reads the credential from the configured environment variable.
func (c OpenAIEmbedderConfig) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	if key == "" {
		return "", errors.WithHintf(ErrMissingCredential, "set %s in the environment or in .env", c.APIKeyEnv)
	}
	return key, nil
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `yaml:"type"`
	TFIDF  TFIDFConfig          `yaml:"tfidf"`
	OpenAI OpenAIEmbedderConfig `yaml:"openai"`
}

// ReducerConfig configures the 2D projection.
type ReducerConfig struct {
	NNeighbors int     `yaml:"n_neighbors"`
	MinDist    float64 `yaml:"min_dist"`
	Spread     float64 `yaml:"spread"`
	Seed       int64   `yaml:"seed"`
	// Epochs of 0 picks a size-dependent default.
	Epochs int `yaml:"epochs"`
}

// ClustererConfig configures density clustering of the 2D points.
type ClustererConfig struct {
	MinClusterSize int `yaml:"min_cluster_size"`
	// MinSamples of 0 means MinClusterSize.
	MinSamples int `yaml:"min_samples"`
}

// PathsConfig locates datasets and the publish tree. Relative paths resolve against Root.
type PathsConfig struct {
	Root     string `yaml:"root"`
	Datasets string `yaml:"datasets"`
	Publish  string `yaml:"publish"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Paths     PathsConfig     `yaml:"paths"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Reducer   ReducerConfig   `yaml:"reducer"`
	Clusterer ClustererConfig `yaml:"clusterer"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. An empty path or a missing file yields defaults.
// Environment overrides are applied after the file.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, errors.Wrapf(err, "read config %s", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadEnv loads a .env file from the working directory if one exists.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "load .env")
	}
	return nil
}

// ErrConfigExists is returned by Save when the target exists and overwrite is false.
var ErrConfigExists = errors.New("config file already exists")

// Save writes cfg as YAML to path, creating directories as needed.
func Save(path string, cfg *AppConfig, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.WithHint(errors.Wrapf(ErrConfigExists, "save %s", path), "pass --force to overwrite it")
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create config dir for %s", path)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write config %s", path)
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case EmbedderTFIDF, EmbedderOpenAI:
	default:
		return errors.WithHint(
			errors.Newf("unknown embedder type %q", c.Embedder.Type),
			"use tfidf or openai")
	}
	if c.Embedder.OpenAI.BatchSize <= 0 {
		return errors.Newf("embedder.openai.batch_size must be positive, got %d", c.Embedder.OpenAI.BatchSize)
	}
	if c.Embedder.TFIDF.MaxFeatures <= 0 || c.Embedder.TFIDF.MinDF <= 0 || c.Embedder.TFIDF.NgramMax <= 0 {
		return errors.New("embedder.tfidf settings must be positive")
	}
	switch c.Embedder.TFIDF.StopWords {
	case "", "english":
	default:
		return errors.Newf("unknown embedder.tfidf.stop_words %q", c.Embedder.TFIDF.StopWords)
	}
	if c.Reducer.NNeighbors < 2 {
		return errors.Newf("reducer.n_neighbors must be at least 2, got %d", c.Reducer.NNeighbors)
	}
	if c.Reducer.MinDist < 0 || c.Reducer.MinDist > c.Reducer.Spread {
		return errors.Newf("reducer.min_dist must be within [0, spread], got %g", c.Reducer.MinDist)
	}
	if c.Clusterer.MinClusterSize < 2 {
		return errors.WithHint(
			errors.Newf("clusterer.min_cluster_size must be at least 2, got %d", c.Clusterer.MinClusterSize),
			"the default is 6")
	}
	return nil
}

// DatasetsDir returns the directory holding one subdirectory per dataset.
func (c *AppConfig) DatasetsDir() string { return c.resolve(c.Paths.Datasets) }

// PublishDir returns the web-servable output directory.
func (c *AppConfig) PublishDir() string { return c.resolve(c.Paths.Publish) }

// ProcessedDir returns the processed-output directory of one dataset.
func (c *AppConfig) ProcessedDir(dataset string) string {
	return filepath.Join(c.DatasetsDir(), dataset, "processed")
}

func (c *AppConfig) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	return &AppConfig{
		Paths: PathsConfig{Root: ".", Datasets: filepath.Join("data", "datasets"), Publish: filepath.Join("web", "public", "datasets")},
		Embedder: EmbedderConfig{
			Type:  EmbedderTFIDF,
			TFIDF: TFIDFConfig{MaxFeatures: 8000, MinDF: 2, NgramMax: 2},
			OpenAI: OpenAIEmbedderConfig{
				BaseURL:     "https://api.openai.com/v1",
				APIKeyEnv:   "OPENAI_API_KEY",
				Model:       "text-embedding-3-small",
				TimeoutSecs: 60,
				BatchSize:   64,
			},
		},
		Reducer:   ReducerConfig{NNeighbors: 15, MinDist: 0.05, Spread: 1.0, Seed: 42},
		Clusterer: ClustererConfig{MinClusterSize: 6},
		Log:       LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *AppConfig) {
	if m := os.Getenv("EMBEDDING_MODEL"); m != "" {
		cfg.Embedder.OpenAI.Model = m
	}
	if lvl := os.Getenv("COMMENTMAP_LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Paths.Root == "" {
		cfg.Paths.Root = def.Paths.Root
	}
	if cfg.Paths.Datasets == "" {
		cfg.Paths.Datasets = def.Paths.Datasets
	}
	if cfg.Paths.Publish == "" {
		cfg.Paths.Publish = def.Paths.Publish
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.TFIDF.MaxFeatures == 0 {
		cfg.Embedder.TFIDF.MaxFeatures = def.Embedder.TFIDF.MaxFeatures
	}
	if cfg.Embedder.TFIDF.MinDF == 0 {
		cfg.Embedder.TFIDF.MinDF = def.Embedder.TFIDF.MinDF
	}
	if cfg.Embedder.TFIDF.NgramMax == 0 {
		cfg.Embedder.TFIDF.NgramMax = def.Embedder.TFIDF.NgramMax
	}
	oa := &cfg.Embedder.OpenAI
	if oa.BaseURL == "" {
		oa.BaseURL = def.Embedder.OpenAI.BaseURL
	}
	if oa.APIKeyEnv == "" {
		oa.APIKeyEnv = def.Embedder.OpenAI.APIKeyEnv
	}
	if oa.Model == "" {
		oa.Model = def.Embedder.OpenAI.Model
	}
	if oa.TimeoutSecs == 0 {
		oa.TimeoutSecs = def.Embedder.OpenAI.TimeoutSecs
	}
	if oa.BatchSize == 0 {
		oa.BatchSize = def.Embedder.OpenAI.BatchSize
	}
	if cfg.Reducer.NNeighbors == 0 {
		cfg.Reducer.NNeighbors = def.Reducer.NNeighbors
	}
	if cfg.Reducer.Spread == 0 {
		cfg.Reducer.Spread = def.Reducer.Spread
	}
	if cfg.Clusterer.MinClusterSize == 0 {
		cfg.Clusterer.MinClusterSize = def.Clusterer.MinClusterSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}
