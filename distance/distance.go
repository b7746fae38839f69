// Package distance provides the vector similarity primitives used by the
// halo indexes. All stored vectors are L2-normalized at the boundary, so
// cosine similarity reduces to a dot product on the hot path.
package distance

import (
	"fmt"
	"math"
	"slices"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// CosineSimilarity calculates the cosine similarity of two vectors without
// assuming either is normalized. The result is clamped to [-1, 1] to absorb
// floating-point drift.
func CosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
	return Clamp(sim)
}

// Clamp bounds a similarity score to [-1, 1].
func Clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricEuclidean:
		return "Euclidean"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric parses a configuration metric name.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "cosine", "Cosine", "":
		return MetricCosine, nil
	case "euclidean", "Euclidean", "l2", "L2":
		return MetricEuclidean, nil
	default:
		return 0, fmt.Errorf("unsupported metric: %q", name)
	}
}

// Func is a function type for similarity calculation. Higher is more similar.
type Func func(a, b []float32) float32

// Provider returns the similarity function for the given metric, operating on
// L2-normalized vectors. For normalized vectors cosine similarity and
// (negated, shifted) Euclidean distance produce the same ordering, so both
// metrics share the dot-product kernel and score in [-1, 1].
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine, MetricEuclidean:
		return func(a, b []float32) float32 { return Clamp(Dot(a, b)) }, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
