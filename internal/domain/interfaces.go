package domain

import "context"

// NoiseLabel is the cluster assignment for points that belong to no cluster.
const NoiseLabel = -1

// Comment is one input row loaded from the cleaned comments table.
type Comment struct {
	ID       int64
	Text     string
	Likes    Optional[int64]
	Time     Optional[string]
	Location Optional[string]
	User     Optional[string]
}

// Point is a 2D map coordinate.
type Point struct {
	X float64
	Y float64
}

// Record is the externally visible unit of the map artifact.
// Field order and JSON names are consumed by the web front end.
type Record struct {
	ID        int64            `json:"id"`
	Text      string           `json:"text"`
	Likes     Optional[int64]  `json:"likes"`
	Time      Optional[string] `json:"time"`
	Location  Optional[string] `json:"location"`
	User      Optional[string] `json:"user"`
	X         float64          `json:"x"`
	Y         float64          `json:"y"`
	ClusterID int              `json:"cluster_id"`
}

// Embedder converts an ordered batch of texts into one vector per text.
// Implementations must preserve row order and never drop or merge rows.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Reducer projects high-dimensional vectors onto the plane.
type Reducer interface {
	Reduce(ctx context.Context, vectors [][]float32) ([]Point, error)
}

// Clusterer assigns a cluster label, or NoiseLabel, to every point.
type Clusterer interface {
	Cluster(ctx context.Context, points []Point) ([]int, error)
}
