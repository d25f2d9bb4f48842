package reduce

import "math"

const curveSamples = 300

// fitAB fits 1/(1+a*x^(2b)) to the target membership curve that is 1 below minDist and
// decays as exp(-(x-minDist)/spread) above it. Levenberg-Marquardt least squares.
func fitAB(spread, minDist float64) (a, b float64) {
	xs := make([]float64, curveSamples)
	ys := make([]float64, curveSamples)
	for i := range xs {
		x := spread * 3 * float64(i) / float64(curveSamples-1)
		xs[i] = x
		if x < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(x - minDist) / spread)
		}
	}

	cost := func(a, b float64) float64 {
		s := 0.0
		for i, x := range xs {
			r := curve(x, a, b) - ys[i]
			s += r * r
		}
		return s
	}

	a, b = 1.0, 1.0
	lambda := 1e-3
	current := cost(a, b)
	for it := 0; it < 500; it++ {
		// normal equations J^T J and J^T r for the two parameters
		var jaa, jab, jbb, ga, gb float64
		for i, x := range xs {
			da, db := curveGrad(x, a, b)
			r := curve(x, a, b) - ys[i]
			jaa += da * da
			jab += da * db
			jbb += db * db
			ga += da * r
			gb += db * r
		}
		improved := false
		for try := 0; try < 20; try++ {
			m00 := jaa * (1 + lambda)
			m11 := jbb * (1 + lambda)
			det := m00*m11 - jab*jab
			if det == 0 || math.IsNaN(det) {
				lambda *= 10
				continue
			}
			stepA := -(m11*ga - jab*gb) / det
			stepB := -(m00*gb - jab*ga) / det
			na, nb := a+stepA, b+stepB
			if na <= 0 || nb <= 0 {
				lambda *= 10
				continue
			}
			if c := cost(na, nb); c < current {
				converged := current-c < 1e-14
				a, b, current = na, nb, c
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				if converged {
					return a, b
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}
	return a, b
}

func curve(x, a, b float64) float64 {
	return 1 / (1 + a*math.Pow(x, 2*b))
}

// curveGrad returns the partial derivatives of curve with respect to a and b.
func curveGrad(x, a, b float64) (da, db float64) {
	if x <= 0 {
		return 0, 0
	}
	u := math.Pow(x, 2*b)
	den := (1 + a*u) * (1 + a*u)
	da = -u / den
	db = -a * u * 2 * math.Log(x) / den
	return da, db
}
