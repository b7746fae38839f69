package halo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rutmehta/halo/embedding"
	"github.com/rutmehta/halo/engine"
	"github.com/rutmehta/halo/index"
	"github.com/rutmehta/halo/metadata"
)

var (
	// ErrNoFaceDetected is returned when an image contains no detectable face.
	// This is a normal outcome, not a transient failure; retrying the same
	// image will not help.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrMultipleFaces is returned when an image contains more than one face
	// and largest-face selection is not enabled.
	ErrMultipleFaces = errors.New("multiple faces detected")

	// ErrNotFound is returned when the requested face ID does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is returned when an operation exceeds the request timeout.
	// No partial mutation is left behind.
	ErrTimeout = errors.New("operation timed out")

	// ErrProvider is returned on transient embedding-provider failures.
	// Unlike detection outcomes, these may succeed on retry.
	ErrProvider = errors.New("embedding provider failure")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInternalInconsistency is returned when the index and the metadata
	// store disagree about a face. It indicates a bug, not bad input.
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrDuplicateID indicates an insert with an ID that is already present.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDuplicateID struct {
	ID    uint64
	cause error
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

func (e *ErrDuplicateID) Unwrap() error { return e.cause }

// translateError unifies package-level errors into the public taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Lifecycle and timeouts.
	if errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	// Detection outcomes.
	var nf *embedding.NoFaceError
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", ErrNoFaceDetected, err)
	}
	var mf *embedding.MultipleFacesError
	if errors.As(err, &mf) {
		return fmt.Errorf("%w: %w", ErrMultipleFaces, err)
	}
	var pe *embedding.ProviderError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: %w", ErrProvider, err)
	}

	// Not found unification.
	var inf *index.ErrIDNotFound
	if errors.As(err, &inf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, metadata.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Dimension and argument normalization.
	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var dup *index.ErrDuplicateID
	if errors.As(err, &dup) {
		return &ErrDuplicateID{ID: dup.ID, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	// Consistency violations.
	var inc *engine.ErrInconsistency
	if errors.As(err, &inc) {
		return fmt.Errorf("%w: %w", ErrInternalInconsistency, err)
	}

	return err
}
