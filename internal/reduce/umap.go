// Package reduce projects embedding matrices onto the plane while preserving local
// neighbourhoods. The method follows UMAP: a fuzzy k-nearest-neighbour graph is laid out by
// stochastic gradient descent against a low-dimensional membership curve.
package reduce

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"commentmap/internal/domain"
	"commentmap/internal/logger"
	"commentmap/internal/vectorstore"
	"commentmap/internal/vectorstore/memory"
)

// Config holds the projection parameters.
type Config struct {
	NNeighbors int
	MinDist    float64
	Spread     float64
	Seed       int64
	// Epochs of 0 means 500 for up to 10000 points and 200 above.
	Epochs             int
	NegativeSampleRate int
	LearningRate       float64
	Metric             vectorstore.Metric
}

// DefaultConfig mirrors the parameters the map has always been built with.
func DefaultConfig() Config {
	return Config{
		NNeighbors:         15,
		MinDist:            0.05,
		Spread:             1.0,
		Seed:               42,
		NegativeSampleRate: 5,
		LearningRate:       1.0,
		Metric:             vectorstore.Cosine,
	}
}

// UMAP reduces vectors to 2D points.
type UMAP struct {
	cfg    Config
	logger *zap.SugaredLogger
}

var _ domain.Reducer = (*UMAP)(nil)

// New returns a reducer; zero fields of cfg take their defaults.
func New(cfg Config, log *zap.SugaredLogger) *UMAP {
	def := DefaultConfig()
	if cfg.NNeighbors < 2 {
		cfg.NNeighbors = def.NNeighbors
	}
	if cfg.Spread <= 0 {
		cfg.Spread = def.Spread
	}
	if cfg.MinDist < 0 {
		cfg.MinDist = def.MinDist
	}
	if cfg.NegativeSampleRate <= 0 {
		cfg.NegativeSampleRate = def.NegativeSampleRate
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UMAP{cfg: cfg, logger: log}
}

// Reduce returns one finite point per input row, in input order.
func (u *UMAP) Reduce(ctx context.Context, vectors [][]float32) ([]domain.Point, error) {
	n := len(vectors)
	switch n {
	case 0:
		return []domain.Point{}, nil
	case 1:
		return []domain.Point{{X: 0, Y: 0}}, nil
	case 2:
		return []domain.Point{{X: -1, Y: 0}, {X: 1, Y: 0}}, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("reduce: vectors have zero width")
	}

	began := time.Now()
	var store vectorstore.Storage = memory.NewStorage(u.cfg.Metric)
	if err := store.Init(dim); err != nil {
		return nil, errors.Wrap(err, "reduce: init neighbour index")
	}
	if err := store.Upsert(vectors); err != nil {
		return nil, errors.Wrap(err, "reduce: index vectors")
	}
	k := min(u.cfg.NNeighbors, n)
	knn, err := store.KNN(ctx, k)
	if err != nil {
		return nil, err
	}

	g := fuzzySimplicialSet(knn, n)
	a, b := fitAB(u.cfg.Spread, u.cfg.MinDist)
	rng := rand.New(rand.NewPCG(uint64(u.cfg.Seed), uint64(u.cfg.Seed)^0x9e3779b97f4a7c15))

	epochs := u.cfg.Epochs
	if epochs <= 0 {
		epochs = 500
		if n > 10000 {
			epochs = 200
		}
	}

	emb := initialLayout(g, n, rng)
	if err := optimize(ctx, emb, g, layoutParams{
		a:            a,
		b:            b,
		epochs:       epochs,
		negativeRate: u.cfg.NegativeSampleRate,
		initialAlpha: u.cfg.LearningRate,
	}, rng); err != nil {
		return nil, err
	}

	out := make([]domain.Point, n)
	for i, p := range emb {
		out[i] = domain.Point{X: finite(p[0]), Y: finite(p[1])}
	}
	u.logger.Debugw("projection complete",
		logger.FieldCount, n,
		"n_neighbors", k,
		"edges", len(g.edges),
		"epochs", epochs,
		"a", a, "b", b,
		logger.FieldDurationMS, time.Since(began).Milliseconds())
	return out, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
