package conn

import (
	"fmt"

	"spikekernel/internal/model"
)

// Handle addresses one connection record inside a Table: the owning VP's
// arena plus the record's index within it.
type Handle struct {
	VP    model.VPID
	Index int
}

// Table holds the realized connection records, one arena per virtual
// process. A record lives in the arena of the VP owning its target node, so
// during simulation each thread iterates only its own arena and no locking
// is needed. Appends from other threads happen during network construction
// only, under the builder's barrier.
type Table struct {
	arenas [][]model.Connection
}

func NewTable(numVPs int) (*Table, error) {
	if numVPs < 1 {
		return nil, fmt.Errorf("num VPs must be positive: %d", numVPs)
	}
	return &Table{
		arenas: make([][]model.Connection, numVPs),
	}, nil
}

// Append stores a record in vp's arena and returns its handle.
func (t *Table) Append(v model.VPID, c model.Connection) (Handle, error) {
	if int(v) < 0 || int(v) >= len(t.arenas) {
		return Handle{}, fmt.Errorf("vp %d outside [0, %d)", v, len(t.arenas))
	}
	h := Handle{VP: v, Index: len(t.arenas[v])}
	t.arenas[v] = append(t.arenas[v], c)
	return h, nil
}

// At resolves a handle to its record.
func (t *Table) At(h Handle) (model.Connection, error) {
	if int(h.VP) < 0 || int(h.VP) >= len(t.arenas) || h.Index < 0 || h.Index >= len(t.arenas[h.VP]) {
		return model.Connection{}, fmt.Errorf("invalid connection handle vp=%d index=%d", h.VP, h.Index)
	}
	return t.arenas[h.VP][h.Index], nil
}

// Arena returns vp's records for lock-free iteration by the owning thread.
func (t *Table) Arena(v model.VPID) []model.Connection {
	if int(v) < 0 || int(v) >= len(t.arenas) {
		return nil
	}
	return t.arenas[v]
}

// Len counts all records across arenas.
func (t *Table) Len() int {
	n := 0
	for _, a := range t.arenas {
		n += len(a)
	}
	return n
}

// All flattens every arena in deterministic (vp, index) order.
func (t *Table) All() []model.Connection {
	out := make([]model.Connection, 0, t.Len())
	for _, a := range t.arenas {
		out = append(out, a...)
	}
	return out
}

// MinDelay returns the smallest total delay over all records in ticks, or
// fallback when the table is empty. It sets the cross-rank exchange cadence.
func (t *Table) MinDelay(fallback model.Tick) model.Tick {
	min := model.Tick(-1)
	for _, a := range t.arenas {
		for _, c := range a {
			if d := c.TotalDelay(); min < 0 || d < min {
				min = d
			}
		}
	}
	if min < 0 {
		return fallback
	}
	return min
}

// MaxDelay returns the largest total delay over all records in ticks, or
// fallback when the table is empty. Ring buffers must be sized from it.
func (t *Table) MaxDelay(fallback model.Tick) model.Tick {
	max := model.Tick(-1)
	for _, a := range t.arenas {
		for _, c := range a {
			if d := c.TotalDelay(); d > max {
				max = d
			}
		}
	}
	if max < 0 {
		return fallback
	}
	return max
}
