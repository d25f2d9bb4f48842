package reduce

import (
	"math"
	"sort"

	"commentmap/internal/vectorstore"
)

const (
	smoothKTolerance = 1e-5
	minKDistScale    = 1e-3
	sigmaIterations  = 64
)

type edge struct {
	head, tail int
	weight     float64
}

// graph is the symmetric fuzzy neighbour graph; every undirected edge appears in both directions.
type graph struct {
	edges  []edge
	degree []float64
}

// smoothKNNDist finds, per point, the distance to its nearest distinct neighbour (rho) and
// the bandwidth (sigma) at which the neighbour memberships sum to log2(k).
func smoothKNNDist(knn [][]vectorstore.Neighbor) (rho, sigma []float64) {
	n := len(knn)
	rho = make([]float64, n)
	sigma = make([]float64, n)

	total, count := 0.0, 0
	for _, row := range knn {
		for _, nb := range row {
			total += nb.Distance
			count++
		}
	}
	meanAll := 0.0
	if count > 0 {
		meanAll = total / float64(count)
	}

	for i, row := range knn {
		k := len(row)
		target := math.Log2(float64(k))
		for _, nb := range row {
			if nb.Index != i && nb.Distance > 0 {
				rho[i] = nb.Distance
				break
			}
		}

		lo, hi, mid := 0.0, math.Inf(1), 1.0
		for it := 0; it < sigmaIterations; it++ {
			psum := 0.0
			for _, nb := range row {
				if nb.Index == i {
					continue
				}
				d := nb.Distance - rho[i]
				if d > 0 {
					psum += math.Exp(-d / mid)
				} else {
					psum += 1
				}
			}
			if math.Abs(psum-target) < smoothKTolerance {
				break
			}
			if psum > target {
				hi = mid
				mid = (lo + hi) / 2
			} else {
				lo = mid
				if math.IsInf(hi, 1) {
					mid *= 2
				} else {
					mid = (lo + hi) / 2
				}
			}
		}

		meanRow := 0.0
		for _, nb := range row {
			meanRow += nb.Distance
		}
		if k > 0 {
			meanRow /= float64(k)
		}
		if rho[i] > 0 {
			mid = math.Max(mid, minKDistScale*meanRow)
		} else {
			mid = math.Max(mid, minKDistScale*meanAll)
		}
		sigma[i] = mid
	}
	return rho, sigma
}

// fuzzySimplicialSet builds the membership graph and combines both directions by fuzzy union.
func fuzzySimplicialSet(knn [][]vectorstore.Neighbor, n int) graph {
	rho, sigma := smoothKNNDist(knn)

	type key struct{ i, j int }
	directed := make(map[key]float64, n*len(knn[0]))
	for i, row := range knn {
		for _, nb := range row {
			if nb.Index == i {
				continue
			}
			w := 1.0
			if d := nb.Distance - rho[i]; d > 0 && sigma[i] > 0 {
				w = math.Exp(-d / sigma[i])
			}
			directed[key{i, nb.Index}] = w
		}
	}

	combined := make(map[key]float64, len(directed))
	for kk := range directed {
		lo, hi := kk.i, kk.j
		if lo > hi {
			lo, hi = hi, lo
		}
		pair := key{lo, hi}
		if _, done := combined[pair]; done {
			continue
		}
		fwd := directed[key{lo, hi}]
		back := directed[key{hi, lo}]
		combined[pair] = fwd + back - fwd*back
	}

	g := graph{degree: make([]float64, n)}
	g.edges = make([]edge, 0, 2*len(combined))
	for pair, w := range combined {
		if w <= 0 {
			continue
		}
		g.edges = append(g.edges, edge{head: pair.i, tail: pair.j, weight: w}, edge{head: pair.j, tail: pair.i, weight: w})
	}
	// map iteration order is random; the layout must not depend on it
	sort.Slice(g.edges, func(a, b int) bool {
		if g.edges[a].head != g.edges[b].head {
			return g.edges[a].head < g.edges[b].head
		}
		return g.edges[a].tail < g.edges[b].tail
	})
	for _, e := range g.edges {
		g.degree[e.head] += e.weight
	}
	return g
}
