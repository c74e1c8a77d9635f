package delivery

import (
	"fmt"

	"spikekernel/internal/model"
)

// Kind discriminates exchange payload entries. Corrections travel the same
// path as ordinary spikes.
type Kind uint8

const (
	KindSpike Kind = iota
	KindCorrection
)

// Packet is one wire entry of the window exchange. Spikes carry their
// emission tick relative to the window start plus an optional off-grid
// offset; the receiving rank fans them out over its local connection table.
// Corrections are point-to-point: they name their target node and bucket
// and carry the signed weight delta, and Offset holds the absolute delivery
// tick of the original spike they amend.
type Packet struct {
	Kind         Kind         `json:"kind"`
	Origin       model.NodeID `json:"origin"`
	Offset       model.Tick   `json:"offset"`
	SubMS        float64      `json:"sub_ms,omitempty"`
	Multiplicity int          `json:"multiplicity,omitempty"`

	Target model.NodeID `json:"target,omitempty"`
	Bucket int          `json:"bucket,omitempty"`
	Delta  float64      `json:"delta,omitempty"`
}

// Register is a rank's outgoing window buffer. Each thread appends to its
// own slot during the update phase, so no locking is needed; Drain merges
// the slots in deterministic thread order at the window boundary.
type Register struct {
	perThread [][]Packet
}

func NewRegister(threads int) (*Register, error) {
	if threads < 1 {
		return nil, fmt.Errorf("thread count must be positive: %d", threads)
	}
	return &Register{perThread: make([][]Packet, threads)}, nil
}

func (r *Register) Add(thread int, p Packet) error {
	if thread < 0 || thread >= len(r.perThread) {
		return fmt.Errorf("thread %d outside [0, %d)", thread, len(r.perThread))
	}
	r.perThread[thread] = append(r.perThread[thread], p)
	return nil
}

// Drain returns all buffered packets in thread order and clears the
// register for the next window.
func (r *Register) Drain() []Packet {
	var n int
	for _, s := range r.perThread {
		n += len(s)
	}
	out := make([]Packet, 0, n)
	for i, s := range r.perThread {
		out = append(out, s...)
		r.perThread[i] = s[:0]
	}
	return out
}
