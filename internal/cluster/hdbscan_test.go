package cluster

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"commentmap/internal/domain"
	"commentmap/internal/vectorstore"
	"commentmap/internal/vectorstore/memory"
)

func newTestClusterer(t *testing.T, mcs int) *HDBSCAN {
	t.Helper()
	h, err := New(Config{MinClusterSize: mcs}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return h
}

func repeat(p domain.Point, n int) []domain.Point {
	out := make([]domain.Point, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func gaussian(rng *rand.Rand, cx, cy, sd float64, n int) []domain.Point {
	out := make([]domain.Point, n)
	for i := range out {
		out[i] = domain.Point{X: cx + rng.NormFloat64()*sd, Y: cy + rng.NormFloat64()*sd}
	}
	return out
}

func TestNewRejectsTinyClusterSize(t *testing.T) {
	_, err := New(Config{MinClusterSize: 1}, nil)
	assert.Error(t, err)
}

func TestTooFewPointsAreNoise(t *testing.T) {
	pts := repeat(domain.Point{X: 1, Y: 1}, 5)
	labels, err := newTestClusterer(t, 6).Cluster(context.Background(), pts)
	require.NoError(t, err)
	assert.Equal(t, []int{-1, -1, -1, -1, -1}, labels)

	labels, err = newTestClusterer(t, 6).Cluster(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestDenseGroupsGetDistinctLabels(t *testing.T) {
	var pts []domain.Point
	pts = append(pts, repeat(domain.Point{X: 0, Y: 0}, 6)...)
	pts = append(pts, repeat(domain.Point{X: 10, Y: 0}, 6)...)
	pts = append(pts, repeat(domain.Point{X: 0, Y: 30}, 6)...)
	pts = append(pts, domain.Point{X: 100, Y: 100})

	labels, err := newTestClusterer(t, 5).Cluster(context.Background(), pts)
	require.NoError(t, err)
	require.Len(t, labels, len(pts))

	groups := [][]int{labels[0:6], labels[6:12], labels[12:18]}
	seen := map[int]bool{}
	for g, ls := range groups {
		for _, l := range ls {
			assert.Equal(t, ls[0], l, "group %d is not uniform", g)
		}
		assert.GreaterOrEqual(t, ls[0], 0)
		assert.False(t, seen[ls[0]], "label %d reused", ls[0])
		seen[ls[0]] = true
	}
	assert.Equal(t, domain.NoiseLabel, labels[18], "outlier should be noise")
	assert.ElementsMatch(t, []int{0, 1, 2}, []int{groups[0][0], groups[1][0], groups[2][0]})
}

func TestSeparatedBlobsNeverShareLabels(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var pts []domain.Point
	pts = append(pts, gaussian(rng, 0, 0, 0.3, 30)...)
	pts = append(pts, gaussian(rng, 20, 20, 0.3, 30)...)

	labels, err := newTestClusterer(t, 6).Cluster(context.Background(), pts)
	require.NoError(t, err)

	a, b := map[int]bool{}, map[int]bool{}
	for i, l := range labels {
		if l == domain.NoiseLabel {
			continue
		}
		if i < 30 {
			a[l] = true
		} else {
			b[l] = true
		}
	}
	assert.NotEmpty(t, a)
	assert.NotEmpty(t, b)
	for l := range a {
		assert.False(t, b[l], "label %d spans both blobs", l)
	}
}

func TestLabelsAreContiguous(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	var pts []domain.Point
	for c := 0; c < 4; c++ {
		pts = append(pts, gaussian(rng, float64(c)*15, float64(c%2)*15, 0.5, 20)...)
	}
	for i := 0; i < 10; i++ {
		pts = append(pts, domain.Point{X: rng.Float64() * 60, Y: rng.Float64() * 60})
	}

	labels, err := newTestClusterer(t, 6).Cluster(context.Background(), pts)
	require.NoError(t, err)

	used := map[int]bool{}
	maxLabel := -1
	for _, l := range labels {
		require.GreaterOrEqual(t, l, -1)
		if l >= 0 {
			used[l] = true
			maxLabel = max(maxLabel, l)
		}
	}
	assert.Len(t, used, maxLabel+1)
	assert.GreaterOrEqual(t, len(used), 2)
}

func TestClusterDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	pts := append(gaussian(rng, 0, 0, 1, 25), gaussian(rng, 8, 8, 1, 25)...)
	h := newTestClusterer(t, 6)
	a, err := h.Cluster(context.Background(), pts)
	require.NoError(t, err)
	b, err := h.Cluster(context.Background(), pts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestClusterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClusterer(t, 2).Cluster(ctx, repeat(domain.Point{}, 4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoreDistanceSkipsThePointItself(t *testing.T) {
	store := memory.NewStorage(vectorstore.Euclidean)
	require.NoError(t, store.Init(2))
	require.NoError(t, store.Upsert([][]float32{{0, 0}, {1, 0}, {3, 0}, {10, 0}}))

	// min_samples = 1 is the nearest other point
	core, err := coreDistances(context.Background(), store, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2, 7}, core)

	core, err = coreDistances(context.Background(), store, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 3, 9}, core)
}
