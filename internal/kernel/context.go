package kernel

import (
	"fmt"

	"spikekernel/internal/conn"
	"spikekernel/internal/delivery"
	"spikekernel/internal/model"
	"spikekernel/internal/rng"
	"spikekernel/internal/stdp"
	"spikekernel/internal/telemetry"
	"spikekernel/internal/vp"
)

// SimulationContext wires the kernel components together. Construction is
// explicit and topological: config, then the VP map, then random streams,
// then the connection table and builder, then the per-VP correctors and
// the exchanger. There is no global state; two contexts in one process are
// fully independent apart from the shared metrics registry.
type SimulationContext struct {
	cfg     Config
	vps     *vp.Map
	streams *rng.Provider
	table   *conn.Table
	builder *conn.Builder

	// one corrector per VP: archives are keyed by post node and every node
	// belongs to exactly one VP, so update threads never share a corrector.
	correctors []*stdp.Corrector

	exchanger     delivery.Exchanger
	stopExchanger func()

	nodes   map[model.NodeID]Node
	byVP    [][]model.NodeID
	buffers map[model.NodeID]*delivery.Buffers
	precise map[model.NodeID]bool

	// ring capacity in ticks, fixed at construction from the configured
	// max_delay; the builder rejects connections that would exceed it.
	capacity model.Tick

	minDelay model.Tick
	maxDelay model.Tick
	clock    model.Tick
	prepared bool

	stats Stats
}

// Stats aggregates the counters of a simulation interval.
type Stats struct {
	Steps             int64
	ExchangeRounds    int64
	SpikesEmitted     int64
	SpikesDelivered   int64
	CorrectionsIssued int64
}

func NewContext(cfg Config) (*SimulationContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vps, err := vp.NewMap(cfg.NumRanks, cfg.ThreadsPerRank)
	if err != nil {
		return nil, err
	}
	streams, err := rng.NewProvider(cfg.BaseSeed, cfg.NumRanks, cfg.TotalVPs())
	if err != nil {
		return nil, err
	}
	if cfg.GRNGSeed != 0 {
		streams.SetGlobalSeed(cfg.GRNGSeed)
	}
	if len(cfg.RNGSeeds) > 0 {
		if err := streams.SetVPSeeds(cfg.RNGSeeds); err != nil {
			return nil, err
		}
	}

	table, err := conn.NewTable(cfg.TotalVPs())
	if err != nil {
		return nil, err
	}
	capacity := model.Tick(cfg.Ticks(cfg.DefaultMaxDelayMS))
	builder, err := conn.NewBuilder(vps, streams, table, cfg.ResolutionMS, capacity)
	if err != nil {
		return nil, err
	}

	correctors := make([]*stdp.Corrector, cfg.TotalVPs())
	for i := range correctors {
		c, err := stdp.NewCorrector(stdp.DefaultRule(), cfg.ResolutionMS)
		if err != nil {
			return nil, err
		}
		correctors[i] = c
	}

	ex, err := delivery.NewLocalExchanger(cfg.NumRanks)
	if err != nil {
		return nil, err
	}

	return &SimulationContext{
		cfg:           cfg,
		vps:           vps,
		streams:       streams,
		table:         table,
		builder:       builder,
		correctors:    correctors,
		exchanger:     ex,
		stopExchanger: ex.Stop,
		nodes:         make(map[model.NodeID]Node),
		byVP:          make([][]model.NodeID, cfg.TotalVPs()),
		buffers:       make(map[model.NodeID]*delivery.Buffers),
		precise:       make(map[model.NodeID]bool),
		capacity:      capacity,
	}, nil
}

// SetExchanger swaps the collective transport, for embedding behind a real
// MPI binding. Must be called before the first Simulate.
func (k *SimulationContext) SetExchanger(ex delivery.Exchanger, stop func()) {
	k.exchanger = ex
	k.stopExchanger = stop
}

// SetSTDPRule replaces the depression rule of every corrector. Must be
// called before any connection is delivered.
func (k *SimulationContext) SetSTDPRule(rule stdp.Rule) error {
	for i := range k.correctors {
		c, err := stdp.NewCorrector(rule, k.cfg.ResolutionMS)
		if err != nil {
			return err
		}
		k.correctors[i] = c
	}
	return nil
}

func (k *SimulationContext) Config() Config        { return k.cfg }
func (k *SimulationContext) VPs() *vp.Map          { return k.vps }
func (k *SimulationContext) Streams() *rng.Provider { return k.streams }
func (k *SimulationContext) Table() *conn.Table    { return k.table }
func (k *SimulationContext) Clock() model.Tick     { return k.clock }
func (k *SimulationContext) Stats() Stats          { return k.stats }

// MinDelayMS is the derived cross-rank exchange cadence, valid after
// Prepare.
func (k *SimulationContext) MinDelayMS() float64 {
	return float64(k.minDelay) * k.cfg.ResolutionMS
}

// MaxDelayMS is the derived largest total delay, valid after Prepare.
func (k *SimulationContext) MaxDelayMS() float64 {
	return float64(k.maxDelay) * k.cfg.ResolutionMS
}

// CreateNodes builds n nodes via the factory, assigns them dense global ids
// and registers them with their owning VP. Nodes implementing PreciseNode
// get precise-mode input buffers.
func (k *SimulationContext) CreateNodes(n int64, build func(model.NodeID) (Node, error)) ([]model.NodeID, error) {
	first, err := k.vps.Grow(n)
	if err != nil {
		return nil, err
	}
	ids := make([]model.NodeID, 0, n)
	for id := first; id < first+model.NodeID(n); id++ {
		node, err := build(id)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", id, err)
		}
		if node.ID() != id {
			return nil, fmt.Errorf("factory returned node with id %d, want %d", node.ID(), id)
		}
		owner, err := k.vps.VPOf(id)
		if err != nil {
			return nil, err
		}
		k.nodes[id] = node
		k.byVP[owner] = append(k.byVP[owner], id)
		if _, ok := node.(PreciseNode); ok {
			k.precise[id] = true
		}
		ids = append(ids, id)
	}
	k.prepared = false
	return ids, nil
}

// Connect realizes a declarative connection spec; see the conn package for
// the rule semantics. Any error is a configuration error and aborts
// construction.
func (k *SimulationContext) Connect(sources, targets []model.NodeID, cs model.ConnSpec, ss model.SynSpec) error {
	if err := k.builder.Connect(sources, targets, cs, ss); err != nil {
		return err
	}
	k.prepared = false
	return nil
}

// Inject dispatches an event straight to its target node's Handle entry
// point, bypassing the connection fan-out. Stimulus generators use it.
func (k *SimulationContext) Inject(target model.NodeID, ev model.Event) error {
	node, ok := k.nodes[target]
	if !ok {
		return fmt.Errorf("no node with id %d", target)
	}
	return node.Handle(ev)
}

// Prepare derives min_delay and max_delay from the realized network, sizes
// input buffers for every node and verifies stream synchrony. It must run
// between the last construction call and Simulate; Simulate calls it
// implicitly when needed.
func (k *SimulationContext) Prepare() error {
	fallbackMin := model.Tick(k.cfg.Ticks(k.cfg.DefaultMinDelayMS))
	k.minDelay = k.table.MinDelay(fallbackMin)
	k.maxDelay = k.table.MaxDelay(k.capacity)
	if k.minDelay < 1 {
		return fmt.Errorf("derived min_delay %d ticks below one step", k.minDelay)
	}
	if k.maxDelay > k.capacity {
		return fmt.Errorf("derived max_delay %d ticks exceeds ring capacity %d ticks", k.maxDelay, k.capacity)
	}

	for id := range k.nodes {
		if _, ok := k.buffers[id]; ok {
			continue
		}
		mode := delivery.Grid
		if k.precise[id] {
			mode = delivery.Precise
		}
		b, err := delivery.NewBuffers(mode, k.capacity)
		if err != nil {
			return err
		}
		// nodes created after a prior Simulate join at the current clock
		if err := b.Seek(k.clock); err != nil {
			return err
		}
		k.buffers[id] = b
	}

	if err := k.streams.CheckSynchrony(); err != nil {
		return err
	}

	telemetry.SetMinDelayTicks(int64(k.minDelay))
	telemetry.SetConnectionCount(k.table.Len())

	k.prepared = true
	return nil
}
