// Package flat implements the exact brute-force vector index.
//
// Every search scans all live vectors, so results are exact: this index is
// both the minimum viable implementation and the correctness oracle the
// approximate index is tested against. Suitable for collections up to a few
// hundred thousand vectors.
package flat

import (
	"bytes"
	"encoding/gob"
	"slices"
	"sort"
	"sync"

	"github.com/rutmehta/halo/distance"
	"github.com/rutmehta/halo/index"
)

// Options represents the options for configuring the flat index.
type Options struct {
	// Dimension is the fixed vector dimension.
	Dimension int

	// Metric selects the similarity metric. Vectors are expected to be
	// L2-normalized, so cosine and euclidean produce the same ordering.
	Metric distance.Metric
}

// DefaultOptions are sized for ArcFace embeddings.
var DefaultOptions = Options{
	Dimension: 512,
	Metric:    distance.MetricCosine,
}

// Flat is an exact vector index backed by a linear scan.
type Flat struct {
	mu      sync.RWMutex
	opts    Options
	simFn   distance.Func
	ids     []uint64 // insertion order
	vectors map[uint64][]float32
}

// New creates a new flat index.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: opts.Dimension}
	}

	simFn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &Flat{
		opts:    opts,
		simFn:   simFn,
		vectors: make(map[uint64][]float32),
	}, nil
}

// Insert adds a vector under the given ID.
func (f *Flat) Insert(id uint64, vector []float32) error {
	if len(vector) != f.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(vector)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.vectors[id]; ok {
		return &index.ErrDuplicateID{ID: id}
	}

	f.vectors[id] = slices.Clone(vector)
	f.ids = append(f.ids, id)
	return nil
}

// Delete removes the vector stored under id.
func (f *Flat) Delete(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.vectors[id]; !ok {
		return &index.ErrIDNotFound{ID: id}
	}

	delete(f.vectors, id)
	if i := slices.Index(f.ids, id); i >= 0 {
		f.ids = slices.Delete(f.ids, i, i+1)
	}
	return nil
}

// Search returns the k most similar live vectors, ordered by descending
// score with ties broken by insertion order. Breadth is ignored: the scan
// is always exact.
func (f *Flat) Search(query []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	if len(query) != f.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(query)}
	}

	var filter func(id uint64) bool
	if opts != nil {
		filter = opts.Filter
	}

	f.mu.RLock()
	candidates := make([]index.SearchResult, 0, len(f.ids))
	for _, id := range f.ids {
		if filter != nil && !filter(id) {
			continue
		}
		candidates = append(candidates, index.SearchResult{
			ID:    id,
			Score: f.simFn(query, f.vectors[id]),
		})
	}
	f.mu.RUnlock()

	// Stable sort keeps insertion order within equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Size returns the number of live entries.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dimension returns the fixed vector dimension.
func (f *Flat) Dimension() int {
	return f.opts.Dimension
}

// flatState is the gob wire representation of a flat index.
type flatState struct {
	Dimension int
	Metric    distance.Metric
	IDs       []uint64
	Vectors   map[uint64][]float32
}

// GobEncode serializes the index.
func (f *Flat) GobEncode() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state := flatState{
		Dimension: f.opts.Dimension,
		Metric:    f.opts.Metric,
		IDs:       f.ids,
		Vectors:   f.vectors,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode restores the index from a snapshot produced by GobEncode.
func (f *Flat) GobDecode(data []byte) error {
	var state flatState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}

	simFn, err := distance.Provider(state.Metric)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.opts = Options{Dimension: state.Dimension, Metric: state.Metric}
	f.simFn = simFn
	f.ids = state.IDs
	f.vectors = state.Vectors
	if f.vectors == nil {
		f.vectors = make(map[uint64][]float32)
	}
	return nil
}
