package reduce

import (
	"context"
	"math"
	"math/rand/v2"
)

const (
	spectralIterations = 500
	spectralTolerance  = 1e-10
	gradientClip       = 4.0
	initNoise          = 1e-4
)

// initialLayout places points on the two leading non-trivial eigenvectors of the normalised
// graph adjacency, falling back to a uniform random layout when the graph gives no signal.
// Coordinates are rescaled to [0, 10] per axis.
func initialLayout(g graph, n int, rng *rand.Rand) [][2]float64 {
	emb, ok := spectralLayout(g, n, rng)
	if !ok {
		emb = make([][2]float64, n)
		for i := range emb {
			emb[i] = [2]float64{rng.Float64()*20 - 10, rng.Float64()*20 - 10}
		}
	} else {
		maxAbs := 0.0
		for _, p := range emb {
			maxAbs = math.Max(maxAbs, math.Max(math.Abs(p[0]), math.Abs(p[1])))
		}
		expansion := 10 / maxAbs
		for i := range emb {
			for d := 0; d < 2; d++ {
				emb[i][d] = emb[i][d]*expansion + rng.NormFloat64()*initNoise
			}
		}
	}

	for d := 0; d < 2; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, p := range emb {
			lo = math.Min(lo, p[d])
			hi = math.Max(hi, p[d])
		}
		span := hi - lo
		for i := range emb {
			if span > 0 {
				emb[i][d] = 10 * (emb[i][d] - lo) / span
			} else {
				emb[i][d] = 5
			}
		}
	}
	return emb
}

// spectralLayout runs block power iteration on (I + D^-1/2 W D^-1/2)/2 with the trivial
// eigenvector sqrt(degree) projected out.
func spectralLayout(g graph, n int, rng *rand.Rand) ([][2]float64, bool) {
	invSqrt := make([]float64, n)
	trivial := make([]float64, n)
	for i, d := range g.degree {
		if d > 0 {
			invSqrt[i] = 1 / math.Sqrt(d)
			trivial[i] = math.Sqrt(d)
		}
	}
	if normalize(trivial) == 0 {
		return nil, false
	}

	apply := func(x, out []float64) {
		for i := range out {
			out[i] = 0
		}
		for _, e := range g.edges {
			out[e.head] += e.weight * invSqrt[e.head] * invSqrt[e.tail] * x[e.tail]
		}
		for i := range out {
			out[i] = 0.5 * (x[i] + out[i])
		}
	}

	vecs := [2][]float64{make([]float64, n), make([]float64, n)}
	for _, v := range vecs {
		for i := range v {
			v[i] = rng.NormFloat64()
		}
	}
	orthonormalize(vecs[:], trivial)

	next := [2][]float64{make([]float64, n), make([]float64, n)}
	for it := 0; it < spectralIterations; it++ {
		for c := range vecs {
			apply(vecs[c], next[c])
		}
		if !orthonormalize(next[:], trivial) {
			return nil, false
		}
		delta := 0.0
		for c := range vecs {
			delta = math.Max(delta, 1-math.Abs(dotF(vecs[c], next[c])))
		}
		vecs, next = next, vecs
		if delta < spectralTolerance {
			break
		}
	}

	emb := make([][2]float64, n)
	for i := range emb {
		emb[i] = [2]float64{vecs[0][i], vecs[1][i]}
		if math.IsNaN(emb[i][0]) || math.IsNaN(emb[i][1]) {
			return nil, false
		}
	}
	return emb, true
}

// orthonormalize makes vs orthonormal and orthogonal to the unit vector base (Gram-Schmidt).
func orthonormalize(vs [][]float64, base []float64) bool {
	for c, v := range vs {
		axpy(v, base, -dotF(v, base))
		for p := 0; p < c; p++ {
			axpy(v, vs[p], -dotF(v, vs[p]))
		}
		if normalize(v) == 0 {
			return false
		}
	}
	return true
}

type layoutParams struct {
	a, b         float64
	epochs       int
	negativeRate int
	initialAlpha float64
}

// optimize runs the UMAP stochastic gradient descent, moving both ends of sampled edges and
// pushing the head away from random negative samples.
func optimize(ctx context.Context, emb [][2]float64, g graph, p layoutParams, rng *rand.Rand) error {
	maxW := 0.0
	for _, e := range g.edges {
		maxW = math.Max(maxW, e.weight)
	}
	if maxW == 0 {
		return nil
	}
	threshold := maxW / float64(p.epochs)

	type sampled struct {
		edge
		perSample, perNegative float64
		nextSample, nextNeg    float64
	}
	edges := make([]sampled, 0, len(g.edges))
	for _, e := range g.edges {
		if e.weight < threshold {
			continue
		}
		per := maxW / e.weight
		neg := per / float64(p.negativeRate)
		edges = append(edges, sampled{edge: e, perSample: per, perNegative: neg, nextSample: per, nextNeg: neg})
	}

	n := len(emb)
	a, b := p.a, p.b
	for epoch := 0; epoch < p.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		alpha := p.initialAlpha * (1 - float64(epoch)/float64(p.epochs))
		ep := float64(epoch)
		for i := range edges {
			s := &edges[i]
			if s.nextSample > ep {
				continue
			}
			cur := &emb[s.head]
			other := &emb[s.tail]

			distSq := rdist(*cur, *other)
			coeff := 0.0
			if distSq > 0 {
				coeff = -2 * a * b * math.Pow(distSq, b-1) / (a*math.Pow(distSq, b) + 1)
			}
			for d := 0; d < 2; d++ {
				grad := clip(coeff * (cur[d] - other[d]))
				cur[d] += grad * alpha
				other[d] -= grad * alpha
			}
			s.nextSample += s.perSample

			negatives := int((ep - s.nextNeg) / s.perNegative)
			for k := 0; k < negatives; k++ {
				j := rng.IntN(n)
				if j == s.head {
					continue
				}
				neg := emb[j]
				distSq := rdist(*cur, neg)
				if distSq <= 0 {
					continue
				}
				coeff := 2 * b / ((0.001 + distSq) * (a*math.Pow(distSq, b) + 1))
				for d := 0; d < 2; d++ {
					cur[d] += clip(coeff*(cur[d]-neg[d])) * alpha
				}
			}
			if negatives > 0 {
				s.nextNeg += float64(negatives) * s.perNegative
			}
		}
	}
	return nil
}

func rdist(a, b [2]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}

func clip(v float64) float64 {
	if v > gradientClip {
		return gradientClip
	}
	if v < -gradientClip {
		return -gradientClip
	}
	return v
}

func dotF(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func axpy(dst, x []float64, alpha float64) {
	for i := range dst {
		dst[i] += alpha * x[i]
	}
}

func normalize(v []float64) float64 {
	n := math.Sqrt(dotF(v, v))
	if n == 0 || math.IsNaN(n) {
		return 0
	}
	for i := range v {
		v[i] /= n
	}
	return n
}
