package delivery

import (
	"fmt"

	"spikekernel/internal/model"
)

// Mode tags a ring buffer as grid-aligned or precise. Grid and off-grid
// spikes never share a buffer: precise entries carry a sub-step offset the
// grid accumulator cannot represent.
type Mode int

const (
	Grid Mode = iota
	Precise
)

// Accumulator buckets. Excitatory and inhibitory contributions accumulate
// separately so a node model can scale them independently; correction
// events bypass the sign rule and name their bucket explicitly.
const (
	BucketExcitatory = 0
	BucketInhibitory = 1
	NumBuckets       = 2
)

// BucketFor picks the accumulator bucket for an ordinary weight.
func BucketFor(weight float64) int {
	if weight < 0 {
		return BucketInhibitory
	}
	return BucketExcitatory
}

// PreciseEntry is one off-grid contribution within a slot: the sub-step
// emission offset in ms plus the weight.
type PreciseEntry struct {
	Offset float64
	Weight float64
}

// RingBuffer accumulates spike contributions per delivery tick, indexed
// modulo its depth. Entries add up until the update step targeting their
// tick consumes the slot. Depth must cover the largest total delay in the
// network; writes beyond that window are capacity errors.
type RingBuffer struct {
	mode    Mode
	depth   int64
	grid    []float64
	precise [][]PreciseEntry
	// read is the next tick to be consumed; writes must land in
	// [read, read+depth).
	read model.Tick
}

// NewRingBuffer sizes a buffer from the largest total delay it must hold.
func NewRingBuffer(mode Mode, maxDelay model.Tick) (*RingBuffer, error) {
	if maxDelay < 1 {
		return nil, fmt.Errorf("max delay must be at least one tick: %d", maxDelay)
	}
	rb := &RingBuffer{mode: mode, depth: int64(maxDelay) + 1}
	if mode == Precise {
		rb.precise = make([][]PreciseEntry, rb.depth)
	} else {
		rb.grid = make([]float64, rb.depth)
	}
	return rb, nil
}

func (rb *RingBuffer) Mode() Mode { return rb.mode }

// Add accumulates weight into the slot for delivery. offset must be zero
// for a grid buffer and non-zero only for a precise one.
func (rb *RingBuffer) Add(delivery model.Tick, offset, weight float64) error {
	if rb.mode == Grid && offset != 0 {
		return fmt.Errorf("off-grid spike (offset %g ms) written to a grid ring buffer", offset)
	}
	if delivery < rb.read {
		return fmt.Errorf("delivery tick %d already consumed (read cursor at %d)", delivery, rb.read)
	}
	if int64(delivery-rb.read) >= rb.depth {
		return fmt.Errorf("delivery tick %d overflows ring buffer of depth %d (read cursor at %d); max_delay undersized", delivery, rb.depth, rb.read)
	}
	idx := int64(delivery) % rb.depth
	if rb.mode == Precise {
		rb.precise[idx] = append(rb.precise[idx], PreciseEntry{Offset: offset, Weight: weight})
		return nil
	}
	rb.grid[idx] += weight
	return nil
}

// Seek advances the read cursor to tick now, discarding anything pending in
// the skipped slots. Buffers built for nodes created mid-run start at the
// kernel clock instead of tick zero.
func (rb *RingBuffer) Seek(now model.Tick) error {
	if now < rb.read {
		return fmt.Errorf("cannot seek backwards: tick %d, read cursor at %d", now, rb.read)
	}
	limit := rb.read + model.Tick(rb.depth)
	if limit > now {
		limit = now
	}
	for t := rb.read; t < limit; t++ {
		idx := int64(t) % rb.depth
		if rb.mode == Precise {
			rb.precise[idx] = nil
		} else {
			rb.grid[idx] = 0
		}
	}
	rb.read = now
	return nil
}

// Consume returns and clears the slot for tick now, advancing the read
// cursor. Ticks must be consumed in order.
func (rb *RingBuffer) Consume(now model.Tick) (float64, []PreciseEntry, error) {
	if now != rb.read {
		return 0, nil, fmt.Errorf("out-of-order consume: tick %d, read cursor at %d", now, rb.read)
	}
	idx := int64(now) % rb.depth
	rb.read++
	if rb.mode == Precise {
		entries := rb.precise[idx]
		rb.precise[idx] = nil
		var total float64
		for _, e := range entries {
			total += e.Weight
		}
		return total, entries, nil
	}
	v := rb.grid[idx]
	rb.grid[idx] = 0
	return v, nil, nil
}

// Buffers is the per-node input state: one ring buffer per accumulator
// bucket, all in the same precision mode.
type Buffers struct {
	buckets [NumBuckets]*RingBuffer
}

func NewBuffers(mode Mode, maxDelay model.Tick) (*Buffers, error) {
	var b Buffers
	for i := range b.buckets {
		rb, err := NewRingBuffer(mode, maxDelay)
		if err != nil {
			return nil, err
		}
		b.buckets[i] = rb
	}
	return &b, nil
}

// Add routes an ordinary contribution to its sign bucket.
func (b *Buffers) Add(delivery model.Tick, offset, weight float64) error {
	return b.buckets[BucketFor(weight)].Add(delivery, offset, weight)
}

// AddToBucket writes to an explicit bucket; correction deltas use it to hit
// the slot the original spike was accumulated into.
func (b *Buffers) AddToBucket(bucket int, delivery model.Tick, offset, weight float64) error {
	if bucket < 0 || bucket >= NumBuckets {
		return fmt.Errorf("bucket %d outside [0, %d)", bucket, NumBuckets)
	}
	return b.buckets[bucket].Add(delivery, offset, weight)
}

// Seek advances the read cursor of every bucket to tick now.
func (b *Buffers) Seek(now model.Tick) error {
	for _, rb := range b.buckets {
		if err := rb.Seek(now); err != nil {
			return err
		}
	}
	return nil
}

// Consume drains all buckets for tick now, returning per-bucket totals.
func (b *Buffers) Consume(now model.Tick) ([NumBuckets]float64, error) {
	var totals [NumBuckets]float64
	for i, rb := range b.buckets {
		v, _, err := rb.Consume(now)
		if err != nil {
			return totals, err
		}
		totals[i] = v
	}
	return totals, nil
}
