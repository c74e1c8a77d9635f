package kernel

import (
	"spikekernel/internal/delivery"
	"spikekernel/internal/model"
)

// Node is the collaborator interface to the neuron dynamics, which live
// outside the kernel. The kernel owns node placement, input buffering and
// spike transport; a Node owns nothing but its own state.
type Node interface {
	ID() model.NodeID

	// Update advances the node across [from, to), consuming its input
	// buffers once per tick, and returns the spikes it emitted inside the
	// range stamped with their emission tick. The kernel calls Update from
	// the owning VP's thread only.
	Update(from, to model.Tick, in *delivery.Buffers) ([]model.SpikeEvent, error)

	// Handle receives events addressed to the node directly, outside the
	// connection fan-out: injected stimuli and any event kind the node
	// model recognizes. Implementations dispatch on the concrete type.
	Handle(ev model.Event) error
}

// PreciseNode marks node models whose spikes carry sub-step offsets. The
// kernel gives such nodes precise-mode input buffers; grid and off-grid
// contributions never mix in one buffer class.
type PreciseNode interface {
	Node
	Precise()
}
