// Package metadata stores the descriptive record attached to each indexed
// face. The engine keeps it in lockstep with the vector index: every ID
// visible in the index has a record here, and vice versa.
package metadata

import (
	"errors"

	"github.com/rutmehta/halo/model"
)

// ErrNotFound is returned when no record exists for the requested ID.
var ErrNotFound = errors.New("metadata: not found")

// Store persists face metadata keyed by face ID.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the record for the given ID.
	// Returns the record and true if found, or zero value and false if not.
	Get(id model.FaceID) (model.Metadata, bool)

	// Set stores a record for the given ID, overwriting any existing one.
	Set(id model.FaceID, md model.Metadata) error

	// Delete removes the record for the given ID.
	// Returns ErrNotFound if no record exists.
	Delete(id model.FaceID) error

	// BatchGet retrieves records for multiple IDs in a single operation.
	// IDs without a record are absent from the result map.
	BatchGet(ids []model.FaceID) (map[model.FaceID]model.Metadata, error)

	// Len returns the number of records currently stored.
	Len() int

	// Clear removes all records.
	Clear() error

	// ToMap returns a copy of all records as a map (for serialization).
	ToMap() map[model.FaceID]model.Metadata
}
