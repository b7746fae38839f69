// Package index defines the vector index contract shared by the exact (flat)
// and approximate (hnsw) implementations.
package index

import (
	"encoding/gob"
	"errors"
	"fmt"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// ErrDimensionMismatch indicates a vector whose length differs from the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrDuplicateID indicates an insert for an ID that is already present.
type ErrDuplicateID struct {
	ID uint64
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

// ErrIDNotFound indicates a delete for an ID that is not present.
type ErrIDNotFound struct {
	ID uint64
}

func (e *ErrIDNotFound) Error() string {
	return fmt.Sprintf("id not found: %d", e.ID)
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// ID is the identifier the vector was inserted under.
	ID uint64

	// Score is the cosine similarity between the query and the stored
	// vector, in [-1, 1]. Results are ordered by descending score; equal
	// scores break by ascending ID (IDs are allocated monotonically, so
	// this is insertion order).
	Score float32
}

// SearchOptions tunes a single search call.
type SearchOptions struct {
	// Breadth is the size of the candidate list explored by approximate
	// indexes (HNSW efSearch). Larger values trade latency for recall.
	// Zero means the index default. Exact indexes ignore it.
	Breadth int

	// Filter, when non-nil, restricts results to IDs it accepts.
	Filter func(id uint64) bool
}

// Index stores L2-normalized embeddings keyed by caller-assigned IDs and
// answers top-k cosine similarity queries.
//
// Implementations must be safe for concurrent use: searches may run in
// parallel with each other and are blocked by at most one in-flight mutation.
//
// Gob encoding must round-trip exactly: a decoded index answers every query
// identically to the index it was encoded from.
type Index interface {
	gob.GobEncoder
	gob.GobDecoder

	// Insert adds a vector under the given ID.
	// Fails with *ErrDuplicateID if the ID is live and *ErrDimensionMismatch
	// if the vector length differs from the index dimension. On error the
	// index is unchanged.
	Insert(id uint64, vector []float32) error

	// Delete removes the vector stored under id.
	// Fails with *ErrIDNotFound if absent. Deleted IDs never reappear in
	// search results.
	Delete(id uint64) error

	// Search returns up to k results ordered by descending score.
	// An under-populated index returns fewer than k results, never an error.
	Search(query []float32, k int, opts *SearchOptions) ([]SearchResult, error)

	// Size returns the number of live entries.
	Size() int

	// Dimension returns the fixed vector dimension.
	Dimension() int
}
