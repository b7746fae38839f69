package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 14},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Dot(tt.a, tt.b), 1e-6)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	assert.InDelta(t, 0.0, SquaredL2([]float32{1, 2}, []float32{1, 2}), 1e-6)
	assert.InDelta(t, 8.0, SquaredL2([]float32{0, 0}, []float32{2, 2}), 1e-6)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{3, 0}, []float32{7, 0}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 5}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-2, 0}), 1e-6)

	// Zero vector never divides by zero.
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), 1e-6)
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	ok := NormalizeL2InPlace(v)
	require.True(t, ok)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, Dot(v, v), 1e-6)

	_, ok = NormalizeL2Copy([]float32{0, 0, 0})
	assert.False(t, ok)

	src := []float32{1, 1}
	cp, ok := NormalizeL2Copy(src)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 1}, src, "source must not be mutated")
	assert.InDelta(t, 1.0, Dot(cp, cp), 1e-6)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	m, err = ParseMetric("euclidean")
	require.NoError(t, err)
	assert.Equal(t, MetricEuclidean, m)

	_, err = ParseMetric("manhattan")
	assert.Error(t, err)
}

func TestProviderEquivalentOrdering(t *testing.T) {
	// On normalized vectors both metrics must rank candidates identically.
	q, _ := NormalizeL2Copy([]float32{1, 0.2, 0})
	a, _ := NormalizeL2Copy([]float32{1, 0.1, 0})
	b, _ := NormalizeL2Copy([]float32{0, 1, 0.5})

	for _, m := range []Metric{MetricCosine, MetricEuclidean} {
		f, err := Provider(m)
		require.NoError(t, err)
		assert.Greater(t, f(q, a), f(q, b), "metric %v", m)
		assert.LessOrEqual(t, f(q, a), float32(1))
		assert.GreaterOrEqual(t, f(q, b), float32(-1))
	}
}
