package record

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commentmap/internal/domain"
)

func TestBuildAlignsAndCoerces(t *testing.T) {
	comments := []domain.Comment{
		{ID: 5, Text: "great product", Likes: domain.Some[int64](2), User: domain.Some("ann")},
		{ID: 6, Text: ""},
		{ID: 9, Text: "meh", Time: domain.Some("today"), Location: domain.Some("Oslo")},
	}
	points := []domain.Point{{X: 1, Y: 2}, {X: math.NaN(), Y: math.Inf(1)}, {X: math.Inf(-1), Y: 3}}
	labels := []int{0, -1, -7}

	recs, err := Build(comments, points, labels)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, domain.Record{
		ID: 5, Text: "great product", Likes: domain.Some[int64](2), User: domain.Some("ann"),
		X: 1, Y: 2, ClusterID: 0,
	}, recs[0])
	assert.Equal(t, 0.0, recs[1].X)
	assert.Equal(t, 0.0, recs[1].Y)
	assert.Equal(t, domain.NoiseLabel, recs[1].ClusterID)
	assert.False(t, recs[1].Likes.Present())
	assert.Equal(t, 0.0, recs[2].X)
	assert.Equal(t, 3.0, recs[2].Y)
	assert.Equal(t, domain.NoiseLabel, recs[2].ClusterID)
	assert.Equal(t, domain.Some("Oslo"), recs[2].Location)

	for i, r := range recs {
		assert.Equal(t, comments[i].ID, r.ID, "ids keep input order")
	}
}

func TestBuildEmpty(t *testing.T) {
	recs, err := Build(nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBuildLengthMismatch(t *testing.T) {
	_, err := Build([]domain.Comment{{ID: 1}}, nil, []int{0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}
