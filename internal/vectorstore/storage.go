package vectorstore

import "context"

// Metric selects the distance used by a Storage.
type Metric int

const (
	// Cosine distance is 1 - cos(a, b); two zero vectors are at distance 0, one zero vector at 1.
	Cosine Metric = iota
	// Euclidean is the L2 distance.
	Euclidean
)

func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	default:
		return "unknown"
	}
}

// Neighbor is a search hit: the row index of a stored vector and its distance to the query.
type Neighbor struct {
	Index    int
	Distance float64
}

// Storage holds vectors and answers nearest-neighbour queries over them.
// Rows are addressed by insertion order. Init resets the store.
type Storage interface {
	Init(dimension int) error
	Upsert(vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]Neighbor, error)
	// KNN returns, for every stored row, its k nearest rows with the row itself at distance 0.
	KNN(ctx context.Context, k int) ([][]Neighbor, error)
	Distance(i, j int) float64
	Len() int
}
