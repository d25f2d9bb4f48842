package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptional(t *testing.T) {
	t.Run("zero value is absent", func(t *testing.T) {
		var o Optional[int64]
		v, ok := o.Get()
		assert.False(t, ok)
		assert.Zero(t, v)
	})

	t.Run("some is present", func(t *testing.T) {
		o := Some("tokyo")
		v, ok := o.Get()
		assert.True(t, ok)
		assert.Equal(t, "tokyo", v)
	})
}

func TestRecordJSONShape(t *testing.T) {
	rec := Record{
		ID:        3,
		Text:      "hi",
		Likes:     Some[int64](12),
		Time:      None[string](),
		Location:  Some("Berlin"),
		X:         1.5,
		Y:         -2,
		ClusterID: NoiseLabel,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":3,"text":"hi","likes":12,"time":null,"location":"Berlin","user":null,"x":1.5,"y":-2,"cluster_id":-1}`,
		string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}
