package vp

import (
	"fmt"

	"spikekernel/internal/model"
)

// Map is the deterministic assignment of nodes to virtual processes. A VP is
// one (rank, thread) pair; nodes are distributed round-robin over VP indices
// so that every rank can compute ownership of any node without
// communication.
type Map struct {
	numRanks       int
	threadsPerRank int
	numNodes       int64
}

func NewMap(numRanks, threadsPerRank int) (*Map, error) {
	if numRanks < 1 {
		return nil, fmt.Errorf("num ranks must be positive: %d", numRanks)
	}
	if threadsPerRank < 1 {
		return nil, fmt.Errorf("threads per rank must be positive: %d", threadsPerRank)
	}
	return &Map{numRanks: numRanks, threadsPerRank: threadsPerRank}, nil
}

func (m *Map) NumRanks() int       { return m.numRanks }
func (m *Map) ThreadsPerRank() int { return m.threadsPerRank }
func (m *Map) NumVPs() int         { return m.numRanks * m.threadsPerRank }

// NumNodes reports how many nodes have been created so far.
func (m *Map) NumNodes() int64 { return m.numNodes }

// Grow registers n newly created nodes and returns the first assigned id.
// Ids are dense, so the new nodes occupy [first, first+n).
func (m *Map) Grow(n int64) (model.NodeID, error) {
	if n < 1 {
		return 0, fmt.Errorf("node count must be positive: %d", n)
	}
	first := model.NodeID(m.numNodes)
	m.numNodes += n
	return first, nil
}

// VPOf maps a node id to its owning virtual process. Asking for a node that
// has not been created is a programming error and is reported as such.
func (m *Map) VPOf(id model.NodeID) (model.VPID, error) {
	if id < 0 || int64(id) >= m.numNodes {
		return 0, fmt.Errorf("node %d outside created range [0, %d)", id, m.numNodes)
	}
	return model.VPID(int64(id) % int64(m.NumVPs())), nil
}

// RankOf returns the MPI rank a VP lives on.
func (m *Map) RankOf(vp model.VPID) int { return int(vp) % m.numRanks }

// ThreadOf returns the thread index of a VP within its rank.
func (m *Map) ThreadOf(vp model.VPID) int { return int(vp) / m.numRanks }

// VPFor is the inverse of (RankOf, ThreadOf).
func (m *Map) VPFor(rank, thread int) model.VPID {
	return model.VPID(thread*m.numRanks + rank)
}

// OwnerOf resolves a node id straight to its (rank, thread) owner.
func (m *Map) OwnerOf(id model.NodeID) (rank, thread int, err error) {
	v, err := m.VPOf(id)
	if err != nil {
		return 0, 0, err
	}
	return m.RankOf(v), m.ThreadOf(v), nil
}

// LocalNodes returns the ids of all created nodes owned by vp, in ascending
// order.
func (m *Map) LocalNodes(vp model.VPID) []model.NodeID {
	stride := int64(m.NumVPs())
	ids := make([]model.NodeID, 0, (m.numNodes+stride-1)/stride)
	for id := int64(vp); id < m.numNodes; id += stride {
		ids = append(ids, model.NodeID(id))
	}
	return ids
}
