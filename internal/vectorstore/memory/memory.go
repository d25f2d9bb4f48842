package memory

import (
	"container/heap"
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"commentmap/internal/vectorstore"
)

// knnChunk is the number of rows one KNN worker handles per task.
const knnChunk = 64

// Storage is an in-memory vector store using brute-force distance scans.
// Under the cosine metric, mostly-zero rows (TF-IDF) are kept sparse so a
// comparison costs their non-zero count rather than the full width.
type Storage struct {
	mu        sync.RWMutex
	metric    vectorstore.Metric
	dimension int
	rows      []entry
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage(metric vectorstore.Metric) *Storage { return &Storage{metric: metric} }

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.rows = nil
	return nil
}

// Upsert appends vectors; their row indices continue from the current length.
func (s *Storage) Upsert(vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if len(v) != s.dimension {
			return errors.Newf("vector %d dimension mismatch: got %d, want %d", i, len(v), s.dimension)
		}
	}
	for _, v := range vectors {
		s.rows = append(s.rows, s.newEntry(v))
	}
	return nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Search returns the topK stored vectors closest to vector, nearest first.
// Ties are broken by row index.
func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]vectorstore.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(vector) != s.dimension {
		return nil, errors.Newf("query dimension mismatch: got %d, want %d", len(vector), s.dimension)
	}
	q := s.newEntry(vector)
	return s.topK(topK, func(j int) float64 { return s.distance(&q, j) }), nil
}

// KNN searches every stored row against the store in parallel.
func (s *Storage) KNN(ctx context.Context, k int) ([][]vectorstore.Neighbor, error) {
	s.mu.RLock()
	vectors := make([][]float32, len(s.rows))
	for i := range s.rows {
		vectors[i] = s.rows[i].vector
	}
	s.mu.RUnlock()

	out := make([][]vectorstore.Neighbor, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(vectors); start += knnChunk {
		end := min(start+knnChunk, len(vectors))
		g.Go(func() error {
			for i := start; i < end; i++ {
				res, err := s.Search(gctx, vectors[i], k)
				if err != nil {
					return err
				}
				out[i] = withSelf(res, i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Distance returns the metric distance between stored rows i and j.
func (s *Storage) Distance(i, j int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i == j {
		return 0
	}
	return s.distance(&s.rows[i], j)
}

// withSelf pins row i at distance 0, absorbing rounding in its self-comparison.
func withSelf(res []vectorstore.Neighbor, i int) []vectorstore.Neighbor {
	for n := range res {
		if res[n].Index == i {
			res[n].Distance = 0
			sort.Slice(res, func(a, b int) bool { return less(res[a], res[b]) })
			break
		}
	}
	return res
}

// entry is a stored or query vector. idx and val hold the non-zero coordinates when sparse.
type entry struct {
	vector []float32
	sparse bool
	idx    []int32
	val    []float32
	norm   float64
}

func (s *Storage) newEntry(v []float32) entry {
	e := entry{vector: v}
	nnz := 0
	for _, x := range v {
		if x != 0 {
			nnz++
		}
	}
	if s.metric == vectorstore.Cosine && nnz*4 < len(v) {
		e.sparse = true
		e.idx = make([]int32, 0, nnz)
		e.val = make([]float32, 0, nnz)
		for d, x := range v {
			if x != 0 {
				e.idx = append(e.idx, int32(d))
				e.val = append(e.val, x)
			}
		}
		e.norm = math.Sqrt(dotSparse(e.idx, e.val, e.idx, e.val))
		return e
	}
	e.norm = math.Sqrt(dot(v, v))
	return e
}

func (s *Storage) distance(q *entry, j int) float64 {
	r := &s.rows[j]
	switch s.metric {
	case vectorstore.Euclidean:
		sum := 0.0
		for d, v := range r.vector {
			diff := float64(q.vector[d]) - float64(v)
			sum += diff * diff
		}
		return math.Sqrt(sum)
	default:
		if q.norm == 0 && r.norm == 0 {
			return 0
		}
		if q.norm == 0 || r.norm == 0 {
			return 1
		}
		d := 1 - dotEntries(q, r)/(q.norm*r.norm)
		if d < 0 {
			return 0
		}
		return d
	}
}

func dotEntries(a, b *entry) float64 {
	switch {
	case a.sparse && b.sparse:
		return dotSparse(a.idx, a.val, b.idx, b.val)
	case a.sparse:
		return gather(a.idx, a.val, b.vector)
	case b.sparse:
		return gather(b.idx, b.val, a.vector)
	default:
		return dot(a.vector, b.vector)
	}
}

// topK keeps the k smallest distances in a bounded max-heap.
func (s *Storage) topK(k int, dist func(j int) float64) []vectorstore.Neighbor {
	if k <= 0 {
		k = 5
	}
	if k > len(s.rows) {
		k = len(s.rows)
	}
	h := make(neighborHeap, 0, k+1)
	for j := range s.rows {
		n := vectorstore.Neighbor{Index: j, Distance: dist(j)}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if less(n, h[0]) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}
	out := []vectorstore.Neighbor(h)
	sort.Slice(out, func(a, b int) bool { return less(out[a], out[b]) })
	return out
}

func less(a, b vectorstore.Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Index < b.Index
}

// neighborHeap is a max-heap on (distance, index).
type neighborHeap []vectorstore.Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(vectorstore.Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// dotSparse merges two index-sorted coordinate lists.
func dotSparse(ai []int32, av []float32, bi []int32, bv []float32) float64 {
	sum := 0.0
	for x, y := 0, 0; x < len(ai) && y < len(bi); {
		switch {
		case ai[x] < bi[y]:
			x++
		case ai[x] > bi[y]:
			y++
		default:
			sum += float64(av[x]) * float64(bv[y])
			x++
			y++
		}
	}
	return sum
}

func gather(idx []int32, val []float32, dense []float32) float64 {
	sum := 0.0
	for n, d := range idx {
		sum += float64(val[n]) * float64(dense[d])
	}
	return sum
}
