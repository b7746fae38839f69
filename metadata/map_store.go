package metadata

import (
	"maps"
	"sync"

	"github.com/rutmehta/halo/model"
)

// MapStore is an in-memory implementation of Store using a Go map.
// It is the default backend and provides fast O(1) access.
type MapStore struct {
	mu   sync.RWMutex
	data map[model.FaceID]model.Metadata
}

// NewMapStore creates a new in-memory map-based store.
func NewMapStore() *MapStore {
	return &MapStore{
		data: make(map[model.FaceID]model.Metadata),
	}
}

// Get retrieves the record for the given ID.
func (m *MapStore) Get(id model.FaceID) (model.Metadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	md, ok := m.data[id]
	return md, ok
}

// Set stores a record for the given ID.
func (m *MapStore) Set(id model.FaceID, md model.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[id] = md
	return nil
}

// Delete removes the record for the given ID.
func (m *MapStore) Delete(id model.FaceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}

	delete(m.data, id)
	return nil
}

// BatchGet retrieves records for multiple IDs in a single operation.
func (m *MapStore) BatchGet(ids []model.FaceID) (map[model.FaceID]model.Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[model.FaceID]model.Metadata, len(ids))
	for _, id := range ids {
		if md, ok := m.data[id]; ok {
			result[id] = md
		}
	}

	return result, nil
}

// Len returns the number of records currently stored.
func (m *MapStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Clear removes all records.
func (m *MapStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[model.FaceID]model.Metadata)
	return nil
}

// ToMap returns a copy of all records as a map.
func (m *MapStore) ToMap() map[model.FaceID]model.Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.data)
}
