// Package cluster groups 2D map points by density. Points outside every dense region are
// labelled domain.NoiseLabel.
package cluster

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"commentmap/internal/domain"
	"commentmap/internal/logger"
	"commentmap/internal/vectorstore"
	"commentmap/internal/vectorstore/memory"
)

const minDistance = 1e-10

// Config holds HDBSCAN parameters.
type Config struct {
	MinClusterSize int
	// MinSamples of 0 means MinClusterSize.
	MinSamples int
}

// HDBSCAN clusters points with hierarchical density estimates and excess-of-mass selection.
type HDBSCAN struct {
	minClusterSize int
	minSamples     int
	logger         *zap.SugaredLogger
}

var _ domain.Clusterer = (*HDBSCAN)(nil)

// New validates cfg and returns a clusterer.
func New(cfg Config, log *zap.SugaredLogger) (*HDBSCAN, error) {
	if cfg.MinClusterSize < 2 {
		return nil, errors.Newf("cluster: min cluster size must be at least 2, got %d", cfg.MinClusterSize)
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = cfg.MinClusterSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HDBSCAN{minClusterSize: cfg.MinClusterSize, minSamples: cfg.MinSamples, logger: log}, nil
}

// Cluster returns one label per point: 0..k-1 for cluster members and -1 for noise.
func (h *HDBSCAN) Cluster(ctx context.Context, points []domain.Point) ([]int, error) {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = domain.NoiseLabel
	}
	if n < h.minClusterSize || n < 2 {
		h.logger.Debugw("too few points to cluster", logger.FieldCount, n, "min_cluster_size", h.minClusterSize)
		return labels, nil
	}

	began := time.Now()
	var store vectorstore.Storage = memory.NewStorage(vectorstore.Euclidean)
	if err := store.Init(2); err != nil {
		return nil, errors.Wrap(err, "cluster: init neighbour index")
	}
	rows := make([][]float32, n)
	for i, p := range points {
		rows[i] = []float32{float32(p.X), float32(p.Y)}
	}
	if err := store.Upsert(rows); err != nil {
		return nil, errors.Wrap(err, "cluster: index points")
	}

	core, err := coreDistances(ctx, store, min(h.minSamples, n-1)+1)
	if err != nil {
		return nil, err
	}
	mst, err := mutualReachabilityMST(ctx, store, core)
	if err != nil {
		return nil, err
	}
	links := singleLinkage(mst, n)
	tree := condense(links, n, h.minClusterSize)
	selected := selectClusters(tree, n)
	assign(tree, selected, n, labels)

	h.logger.Debugw("clustering complete",
		logger.FieldCount, n,
		"clusters", len(selected),
		logger.FieldDurationMS, time.Since(began).Milliseconds())
	return labels, nil
}

// coreDistances returns the distance from each point to its k-th nearest point, itself included,
// so k = min_samples+1 measures the min_samples-th other point.
func coreDistances(ctx context.Context, store vectorstore.Storage, k int) ([]float64, error) {
	knn, err := store.KNN(ctx, k)
	if err != nil {
		return nil, err
	}
	core := make([]float64, len(knn))
	for i, row := range knn {
		core[i] = row[len(row)-1].Distance
	}
	return core, nil
}

type mstEdge struct {
	a, b   int
	weight float64
}

// mutualReachabilityMST runs Prim's algorithm over the dense mutual reachability graph.
func mutualReachabilityMST(ctx context.Context, store vectorstore.Storage, core []float64) ([]mstEdge, error) {
	n := store.Len()
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	current := 0
	for step := 0; step < n-1; step++ {
		if step%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		inTree[current] = true
		next, nextD := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			d := math.Max(store.Distance(current, j), math.Max(core[current], core[j]))
			if d < best[j] {
				best[j] = d
				from[j] = current
			}
			if best[j] < nextD {
				next, nextD = j, best[j]
			}
		}
		edges = append(edges, mstEdge{a: from[next], b: next, weight: nextD})
		current = next
	}
	return edges, nil
}

// linkage is one merge of the single-linkage dendrogram. Nodes below n are points; merge i
// creates node n+i.
type linkage struct {
	left, right int
	distance    float64
	size        int
}

func singleLinkage(mst []mstEdge, n int) []linkage {
	sort.SliceStable(mst, func(i, j int) bool { return mst[i].weight < mst[j].weight })

	parent := make([]int, n)
	node := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = i
		node[i] = i
		size[i] = 1
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	links := make([]linkage, 0, len(mst))
	for i, e := range mst {
		ra, rb := find(e.a), find(e.b)
		links = append(links, linkage{left: node[ra], right: node[rb], distance: e.weight, size: size[ra] + size[rb]})
		if size[ra] < size[rb] {
			ra, rb = rb, ra
		}
		parent[rb] = ra
		size[ra] += size[rb]
		node[ra] = n + i
	}
	return links
}

// condensedRow records a point or cluster leaving its parent cluster at lambda = 1/distance.
type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

// condensedTree labels clusters from n upwards; n is the root.
type condensedTree struct {
	rows     []condensedRow
	clusters int
}

func condense(links []linkage, n, minClusterSize int) condensedTree {
	root := 2*n - 2
	relabel := make([]int, 2*n-1)
	relabel[root] = n
	next := n + 1

	sizeOf := func(x int) int {
		if x < n {
			return 1
		}
		return links[x-n].size
	}
	var rows []condensedRow
	fallOut := func(cluster, sub int, lambda float64) {
		stack := []int{sub}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if x < n {
				rows = append(rows, condensedRow{parent: cluster, child: x, lambda: lambda, size: 1})
				continue
			}
			stack = append(stack, links[x-n].right, links[x-n].left)
		}
	}

	queue := []int{root}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		l := links[x-n]
		lambda := 1 / math.Max(l.distance, minDistance)
		lc, rc := sizeOf(l.left), sizeOf(l.right)
		cluster := relabel[x]

		switch {
		case lc >= minClusterSize && rc >= minClusterSize:
			for _, c := range []int{l.left, l.right} {
				relabel[c] = next
				next++
				rows = append(rows, condensedRow{parent: cluster, child: relabel[c], lambda: lambda, size: sizeOf(c)})
				queue = append(queue, c)
			}
		case lc < minClusterSize && rc < minClusterSize:
			fallOut(cluster, l.left, lambda)
			fallOut(cluster, l.right, lambda)
		case lc < minClusterSize:
			relabel[l.right] = cluster
			fallOut(cluster, l.left, lambda)
			queue = append(queue, l.right)
		default:
			relabel[l.left] = cluster
			fallOut(cluster, l.right, lambda)
			queue = append(queue, l.left)
		}
	}
	return condensedTree{rows: rows, clusters: next - n}
}

// selectClusters applies excess-of-mass selection and returns the chosen cluster ids in
// ascending order. The root is never selected.
func selectClusters(tree condensedTree, n int) []int {
	k := tree.clusters
	birth := make([]float64, k)
	stability := make([]float64, k)
	children := make([][]int, k)
	for _, r := range tree.rows {
		if r.child >= n {
			birth[r.child-n] = r.lambda
			children[r.parent-n] = append(children[r.parent-n], r.child-n)
		}
	}
	for _, r := range tree.rows {
		stability[r.parent-n] += (r.lambda - birth[r.parent-n]) * float64(r.size)
	}

	selected := make([]bool, k)
	for c := 1; c < k; c++ {
		selected[c] = true
	}
	// children always carry larger ids than their parent
	for c := k - 1; c > 0; c-- {
		sub := 0.0
		for _, ch := range children[c] {
			sub += stability[ch]
		}
		if sub > stability[c] {
			selected[c] = false
			stability[c] = sub
			continue
		}
		stack := append([]int(nil), children[c]...)
		for len(stack) > 0 {
			d := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			selected[d] = false
			stack = append(stack, children[d]...)
		}
	}

	var out []int
	for c := 1; c < k; c++ {
		if selected[c] {
			out = append(out, c+n)
		}
	}
	return out
}

// assign labels every point with the selected cluster it falls out of, directly or through
// an unselected descendant.
func assign(tree condensedTree, selected []int, n int, labels []int) {
	if len(selected) == 0 {
		return
	}
	label := make(map[int]int, len(selected))
	for i, c := range selected {
		label[c] = i
	}
	parent := make(map[int]int, tree.clusters)
	for _, r := range tree.rows {
		if r.child >= n {
			parent[r.child] = r.parent
		}
	}
	for _, r := range tree.rows {
		if r.child >= n {
			continue
		}
		c := r.parent
		for c != n {
			if l, ok := label[c]; ok {
				labels[r.child] = l
				break
			}
			c = parent[c]
		}
	}
}
