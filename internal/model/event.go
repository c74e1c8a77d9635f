package model

// Event is the closed set of messages a node receives through its Handle
// entry point. Receivers dispatch with a type switch; no other event kinds
// exist in the kernel.
type Event interface {
	Sender() NodeID
	Stamp() Tick
}

// SpikeEvent is one spike emitted by Origin at tick Time. Offset carries the
// sub-step emission offset in milliseconds for precise-mode nodes and is
// zero for grid-aligned spikes.
type SpikeEvent struct {
	Origin       NodeID
	Time         Tick
	Offset       float64
	Weight       float64
	Multiplicity int
}

func (e SpikeEvent) Sender() NodeID { return e.Origin }
func (e SpikeEvent) Stamp() Tick    { return e.Time }

// Precise reports whether the spike carries an off-grid emission offset.
func (e SpikeEvent) Precise() bool { return e.Offset != 0 }

// CorrectionSpikeEvent retroactively adjusts the effect of an already
// delivered SpikeEvent whose STDP weight turned out stale once a later
// post-synaptic spike became known. Delta is the signed weight difference,
// Bucket the accumulator slot the original spike was added to; the receiver
// must apply Delta to exactly that slot rather than re-running its normal
// sign-based bucketing.
type CorrectionSpikeEvent struct {
	Origin NodeID
	Time   Tick
	Delta  float64
	Bucket int
}

func (e CorrectionSpikeEvent) Sender() NodeID { return e.Origin }
func (e CorrectionSpikeEvent) Stamp() Tick    { return e.Time }
