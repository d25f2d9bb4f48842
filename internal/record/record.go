// Package record joins comments, map coordinates and cluster labels into output records.
package record

import (
	"math"

	"github.com/cockroachdb/errors"

	"commentmap/internal/domain"
)

// ErrLengthMismatch means the pipeline produced stages of different lengths.
var ErrLengthMismatch = errors.New("record: input lengths differ")

// Build aligns the three inputs by row index. Non-finite coordinates become 0 and any
// negative label becomes domain.NoiseLabel.
func Build(comments []domain.Comment, points []domain.Point, labels []int) ([]domain.Record, error) {
	if len(points) != len(comments) || len(labels) != len(comments) {
		return nil, errors.Wrapf(ErrLengthMismatch, "comments=%d points=%d labels=%d",
			len(comments), len(points), len(labels))
	}
	out := make([]domain.Record, len(comments))
	for i, c := range comments {
		label := labels[i]
		if label < 0 {
			label = domain.NoiseLabel
		}
		out[i] = domain.Record{
			ID:        c.ID,
			Text:      c.Text,
			Likes:     c.Likes,
			Time:      c.Time,
			Location:  c.Location,
			User:      c.User,
			X:         finite(points[i].X),
			Y:         finite(points[i].Y),
			ClusterID: label,
		}
	}
	return out, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
