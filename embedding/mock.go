package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// Mock is a deterministic provider for tests. It derives a unit-length
// vector from a hash of the image bytes, so identical bytes always map to
// the identical embedding, and counts Embed calls so tests can assert the
// cache short-circuits the provider.
type Mock struct {
	dimension int
	calls     atomic.Int64

	// Err, when set, is returned by every Embed call.
	Err error
}

var _ Provider = (*Mock)(nil)

// NewMock returns a mock provider producing vectors of the given dimension.
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = 512
	}
	return &Mock{dimension: dimension}
}

// Embed returns a deterministic embedding derived from the image hash.
func (m *Mock) Embed(_ context.Context, image []byte) ([]float32, error) {
	m.calls.Add(1)

	if m.Err != nil {
		return nil, m.Err
	}

	h := fnv.New64a()
	_, _ = h.Write(image)
	seed := h.Sum64()

	v := make([]float32, m.dimension)
	for i := range v {
		v[i] = float32(math.Sin(float64(seed%1000)*float64(i+1)) * 0.1)
	}

	// Normalize to unit length for cosine similarity.
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range v {
			v[i] *= float32(norm)
		}
	} else {
		v[0] = 1
	}

	return v, nil
}

// Dimension returns the embedding dimension.
func (m *Mock) Dimension() int {
	return m.dimension
}

// Calls returns how many times Embed has been invoked.
func (m *Mock) Calls() int64 {
	return m.calls.Load()
}
