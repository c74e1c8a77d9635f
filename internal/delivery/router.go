package delivery

import (
	"fmt"

	"spikekernel/internal/conn"
	"spikekernel/internal/model"
	"spikekernel/internal/vp"
)

// DeliveredFunc observes each spike as it is fanned out over one
// connection, before the ring-buffer write. It may adjust the effective
// weight (plasticity runs here); returning the record's weight unchanged is
// the static-synapse behavior.
type DeliveredFunc func(h conn.Handle, c model.Connection, emit model.Tick) (float64, error)

// Router redistributes exchanged packets into the per-target ring buffers
// of one rank. The source fan-out index is built once per construction
// round, so delivery is a map lookup plus the per-connection writes.
type Router struct {
	rank     int
	table    *conn.Table
	bySource map[model.NodeID][]conn.Handle
	ownsNode func(model.NodeID) bool
}

func NewRouter(vps *vp.Map, table *conn.Table, rank int) (*Router, error) {
	if vps == nil || table == nil {
		return nil, fmt.Errorf("vp map and connection table are required")
	}
	if rank < 0 || rank >= vps.NumRanks() {
		return nil, fmt.Errorf("rank %d outside [0, %d)", rank, vps.NumRanks())
	}
	r := &Router{
		rank:     rank,
		table:    table,
		bySource: make(map[model.NodeID][]conn.Handle),
		ownsNode: func(id model.NodeID) bool {
			owner, _, err := vps.OwnerOf(id)
			return err == nil && owner == rank
		},
	}
	for t := 0; t < vps.ThreadsPerRank(); t++ {
		v := vps.VPFor(rank, t)
		for i, c := range table.Arena(v) {
			r.bySource[c.Source] = append(r.bySource[c.Source], conn.Handle{VP: v, Index: i})
		}
	}
	return r, nil
}

// Deliver fans the merged window packets out into the rank's per-node
// buffers. windowStart is the first tick of the window the packets were
// generated in; nextTick is the first tick the receiving buffers have not
// consumed yet, where corrections land. Returns the number of ring-buffer
// writes performed.
func (r *Router) Deliver(windowStart, nextTick model.Tick, packets []Packet, buffers map[model.NodeID]*Buffers, onDelivered DeliveredFunc) (int, error) {
	writes := 0
	for _, p := range packets {
		switch p.Kind {
		case KindCorrection:
			if !r.ownsNode(p.Target) {
				continue
			}
			b, ok := buffers[p.Target]
			if !ok {
				return writes, fmt.Errorf("no buffers for correction target %d", p.Target)
			}
			// Patch the original slot while it is still pending; once it
			// has been consumed the delta lands at the next unconsumed
			// tick instead.
			slot := p.Offset
			if slot < nextTick {
				slot = nextTick
			}
			if err := b.AddToBucket(p.Bucket, slot, 0, p.Delta); err != nil {
				return writes, fmt.Errorf("correction for node %d: %w", p.Target, err)
			}
			writes++

		case KindSpike:
			emit := windowStart + p.Offset
			mult := p.Multiplicity
			if mult < 1 {
				mult = 1
			}
			for _, h := range r.bySource[p.Origin] {
				c, err := r.table.At(h)
				if err != nil {
					return writes, err
				}
				weight := c.Weight
				if onDelivered != nil {
					weight, err = onDelivered(h, c, emit)
					if err != nil {
						return writes, err
					}
				}
				b, ok := buffers[c.Target]
				if !ok {
					return writes, fmt.Errorf("no buffers for node %d", c.Target)
				}
				total := weight * float64(mult)
				if err := b.Add(emit+c.TotalDelay(), p.SubMS, total); err != nil {
					return writes, fmt.Errorf("spike %d -> %d: %w", p.Origin, c.Target, err)
				}
				writes++
			}

		default:
			return writes, fmt.Errorf("unknown packet kind %d", p.Kind)
		}
	}
	return writes, nil
}
