package hnsw

import (
	"bytes"
	"encoding/gob"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/rutmehta/halo/distance"
)

// Compile time checks to ensure HNSW satisfies the gob interfaces.
var (
	_ gob.GobEncoder = (*HNSW)(nil)
	_ gob.GobDecoder = (*HNSW)(nil)
)

// hnswState is the gob wire representation of the graph.
type hnswState struct {
	Opts     Options
	EP       uint32
	MaxLevel int
	Nodes    []*node
	ExtIDs   []uint64
	ByID     map[uint64]uint32
	Deleted  []byte // roaring-serialized tombstone set
}

// GobEncode serializes the full graph so a decode reproduces identical
// query behavior.
func (h *HNSW) GobEncode() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deleted, err := h.deleted.ToBytes()
	if err != nil {
		return nil, err
	}

	state := hnswState{
		Opts:     h.opts,
		EP:       h.ep,
		MaxLevel: h.maxLevel,
		Nodes:    h.nodes,
		ExtIDs:   h.extIDs,
		ByID:     h.byID,
		Deleted:  deleted,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode restores the graph from a snapshot produced by GobEncode.
func (h *HNSW) GobDecode(data []byte) error {
	var state hnswState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}

	deleted := roaring.New()
	if len(state.Deleted) > 0 {
		if err := deleted.UnmarshalBinary(state.Deleted); err != nil {
			return err
		}
	}

	simFn, err := distance.Provider(state.Opts.Metric)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.opts = state.Opts
	h.simFn = simFn
	h.mmax = state.Opts.M
	h.mmax0 = 2 * state.Opts.M
	h.ml = 1 / logM(state.Opts.M)
	h.ep = state.EP
	h.maxLevel = state.MaxLevel
	h.nodes = state.Nodes
	h.extIDs = state.ExtIDs
	h.byID = state.ByID
	if h.byID == nil {
		h.byID = make(map[uint64]uint32)
	}
	h.deleted = deleted
	h.rng = rand.New(rand.NewSource(state.Opts.Seed)) //nolint:gosec // level generation, not crypto
	return nil
}
