package metadata

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/rutmehta/halo/model"
)

var bucketFaces = []byte("faces")

// BoltStore is a disk-backed implementation of Store on top of bbolt.
// Records survive process restarts without a snapshot export.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) a bolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFaces)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func faceKey(id model.FaceID) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(id))
	return key[:]
}

// Get retrieves the record for the given ID.
func (s *BoltStore) Get(id model.FaceID) (model.Metadata, bool) {
	var md model.Metadata
	found := false

	_ = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFaces).Get(faceKey(id))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &md); err != nil {
			return err
		}
		found = true
		return nil
	})

	return md, found
}

// Set stores a record for the given ID.
func (s *BoltStore) Set(id model.FaceID, md model.Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFaces).Put(faceKey(id), data)
	})
}

// Delete removes the record for the given ID.
func (s *BoltStore) Delete(id model.FaceID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFaces)
		key := faceKey(id)
		if b.Get(key) == nil {
			return ErrNotFound
		}
		return b.Delete(key)
	})
}

// BatchGet retrieves records for multiple IDs in a single read transaction.
func (s *BoltStore) BatchGet(ids []model.FaceID) (map[model.FaceID]model.Metadata, error) {
	result := make(map[model.FaceID]model.Metadata, len(ids))

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFaces)
		for _, id := range ids {
			data := b.Get(faceKey(id))
			if data == nil {
				continue
			}
			var md model.Metadata
			if err := json.Unmarshal(data, &md); err != nil {
				return err
			}
			result[id] = md
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Len returns the number of records currently stored.
func (s *BoltStore) Len() int {
	var n int
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketFaces).Stats().KeyN
		return nil
	})
	return n
}

// Clear removes all records.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketFaces); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketFaces)
		return err
	})
}

// ToMap returns a copy of all records as a map.
func (s *BoltStore) ToMap() map[model.FaceID]model.Metadata {
	result := make(map[model.FaceID]model.Metadata)

	_ = s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFaces).ForEach(func(k, v []byte) error {
			var md model.Metadata
			if err := json.Unmarshal(v, &md); err != nil {
				return err
			}
			result[model.FaceID(binary.BigEndian.Uint64(k))] = md
			return nil
		})
	})

	return result
}
