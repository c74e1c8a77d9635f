package kernel

import (
	"context"
	"errors"
	"testing"

	"spikekernel/internal/delivery"
	"spikekernel/internal/model"
	"spikekernel/internal/neuron"
)

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero resolution", func(c *Config) { c.ResolutionMS = 0 }},
		{"no ranks", func(c *Config) { c.NumRanks = 0 }},
		{"no threads", func(c *Config) { c.ThreadsPerRank = 0 }},
		{"min delay below resolution", func(c *Config) { c.DefaultMinDelayMS = 0.05 }},
		{"max delay below min delay", func(c *Config) { c.DefaultMaxDelayMS = 0.5 }},
		{"seed count mismatch", func(c *Config) { c.RNGSeeds = []int64{1, 2, 3} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func sourceFactory(times []model.Tick) func(model.NodeID) (Node, error) {
	return func(id model.NodeID) (Node, error) {
		return neuron.NewSource(id, times), nil
	}
}

func accumulatorFactory(id model.NodeID) (Node, error) {
	return neuron.NewAccumulator(id), nil
}

func TestDerivedDelaysFromRealizedNetwork(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	srcs, err := k.CreateNodes(3, sourceFactory(nil))
	if err != nil {
		t.Fatalf("create sources: %v", err)
	}
	tgts, err := k.CreateNodes(3, accumulatorFactory)
	if err != nil {
		t.Fatalf("create accumulators: %v", err)
	}

	cs := model.DefaultConnSpec(model.RuleOneToOne)
	for i, d := range []float64{2.5, 1.0, 5.0} {
		if err := k.Connect(srcs[i:i+1], tgts[i:i+1], cs, model.SynSpec{Weight: 1, DelayMS: d}); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}
	if err := k.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got := k.MinDelayMS(); got != 1.0 {
		t.Fatalf("derived min_delay %g ms, want 1.0", got)
	}
	if got := k.MaxDelayMS(); got != 5.0 {
		t.Fatalf("derived max_delay %g ms, want 5.0", got)
	}
}

func TestDerivedDelaysFallBackToDefaults(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	if _, err := k.CreateNodes(1, accumulatorFactory); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got := k.MinDelayMS(); got != 1.0 {
		t.Fatalf("fallback min_delay %g ms, want configured default 1.0", got)
	}
	if got := k.MaxDelayMS(); got != 10.0 {
		t.Fatalf("fallback max_delay %g ms, want configured default 10.0", got)
	}
}

func TestSingleRankDelivery(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	// spikes at 0.0 ms and 1.0 ms
	srcs, err := k.CreateNodes(1, sourceFactory([]model.Tick{0, 10}))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	tgts, err := k.CreateNodes(1, accumulatorFactory)
	if err != nil {
		t.Fatalf("create accumulator: %v", err)
	}
	cs := model.DefaultConnSpec(model.RuleOneToOne)
	if err := k.Connect(srcs, tgts, cs, model.SynSpec{Weight: 0.75, DelayMS: 1.0}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	stats, err := k.Simulate(context.Background(), 3.0)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if stats.SpikesEmitted != 2 {
		t.Fatalf("emitted %d spikes, want 2", stats.SpikesEmitted)
	}
	if stats.SpikesDelivered != 2 {
		t.Fatalf("delivered %d spikes, want 2", stats.SpikesDelivered)
	}
	if stats.Steps != 30 {
		t.Fatalf("ran %d steps, want 30", stats.Steps)
	}

	acc := k.nodes[tgts[0]].(*neuron.Accumulator)
	if got := acc.Total(); got != 1.5 {
		t.Fatalf("accumulated %g, want 2 spikes * 0.75", got)
	}
	if k.Clock() != 30 {
		t.Fatalf("clock at %d, want 30", k.Clock())
	}
}

func TestMultiRankMultiThreadDelivery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumRanks = 2
	cfg.ThreadsPerRank = 2
	k, err := NewContext(cfg)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}

	// four sources and four accumulators, spread round-robin over the VPs
	srcs, err := k.CreateNodes(4, sourceFactory([]model.Tick{0}))
	if err != nil {
		t.Fatalf("create sources: %v", err)
	}
	tgts, err := k.CreateNodes(4, accumulatorFactory)
	if err != nil {
		t.Fatalf("create accumulators: %v", err)
	}
	cs := model.DefaultConnSpec(model.RuleAllToAll)
	if err := k.Connect(srcs, tgts, cs, model.SynSpec{Weight: 0.5, DelayMS: 1.0}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	stats, err := k.Simulate(context.Background(), 2.5)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if stats.SpikesEmitted != 4 {
		t.Fatalf("emitted %d spikes, want 4", stats.SpikesEmitted)
	}
	if stats.SpikesDelivered != 16 {
		t.Fatalf("delivered over %d connections, want 16", stats.SpikesDelivered)
	}

	var total float64
	for _, id := range tgts {
		total += k.nodes[id].(*neuron.Accumulator).Total()
	}
	if total != 8.0 {
		t.Fatalf("accumulated %g across targets, want 4*4*0.5", total)
	}
}

func TestSimulationResultIndependentOfTopology(t *testing.T) {
	run := func(ranks, threads int) float64 {
		cfg := DefaultConfig()
		cfg.NumRanks = ranks
		cfg.ThreadsPerRank = threads
		k, err := NewContext(cfg)
		if err != nil {
			t.Fatalf("new context: %v", err)
		}
		srcs, err := k.CreateNodes(6, sourceFactory([]model.Tick{0, 5, 12}))
		if err != nil {
			t.Fatalf("create sources: %v", err)
		}
		tgts, err := k.CreateNodes(6, accumulatorFactory)
		if err != nil {
			t.Fatalf("create accumulators: %v", err)
		}
		cs := model.DefaultConnSpec(model.RuleAllToAll)
		if err := k.Connect(srcs, tgts, cs, model.SynSpec{Weight: 0.25, DelayMS: 1.5}); err != nil {
			t.Fatalf("connect: %v", err)
		}
		if _, err := k.Simulate(context.Background(), 5.0); err != nil {
			t.Fatalf("simulate: %v", err)
		}
		var total float64
		for _, id := range tgts {
			total += k.nodes[id].(*neuron.Accumulator).Total()
		}
		return total
	}

	serial := run(1, 1)
	parallel := run(2, 3)
	if serial != parallel {
		t.Fatalf("totals diverge across topologies: %g vs %g", serial, parallel)
	}
}

func TestAxonalConnectionDeliversBaseWeightWithoutPostSpikes(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	srcs, err := k.CreateNodes(1, sourceFactory([]model.Tick{0}))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	tgts, err := k.CreateNodes(1, accumulatorFactory)
	if err != nil {
		t.Fatalf("create accumulator: %v", err)
	}
	cs := model.DefaultConnSpec(model.RuleOneToOne)
	ss := model.SynSpec{Weight: 1.25, DelayMS: 0.5, AxonalMS: 0.5}
	if err := k.Connect(srcs, tgts, cs, ss); err != nil {
		t.Fatalf("connect: %v", err)
	}

	stats, err := k.Simulate(context.Background(), 3.0)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if stats.CorrectionsIssued != 0 {
		t.Fatalf("%d corrections without post spikes", stats.CorrectionsIssued)
	}
	acc := k.nodes[tgts[0]].(*neuron.Accumulator)
	if got := acc.Total(); got != 1.25 {
		t.Fatalf("accumulated %g, want undepressed 1.25", got)
	}
}

func TestCancelledContextStopsBetweenWindows(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	if _, err := k.CreateNodes(1, accumulatorFactory); err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := k.Simulate(ctx, 10.0); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if k.Clock() != 0 {
		t.Fatalf("clock advanced to %d on a cancelled run", k.Clock())
	}
}

func TestInjectDispatchesToNode(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	ids, err := k.CreateNodes(1, accumulatorFactory)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.Inject(ids[0], model.SpikeEvent{Origin: 99, Time: 0, Weight: -2.0}); err != nil {
		t.Fatalf("inject: %v", err)
	}
	acc := k.nodes[ids[0]].(*neuron.Accumulator)
	if got := acc.Bucket(delivery.BucketInhibitory); got != -2.0 {
		t.Fatalf("injected weight landed as %g, want -2", got)
	}
	if err := k.Inject(42, model.SpikeEvent{}); err == nil {
		t.Fatal("expected error injecting into an unknown node")
	}
}

// misfire emits outside the window it was updated for; the kernel must
// refuse to register the spike.
type misfire struct{ id model.NodeID }

func (m *misfire) ID() model.NodeID { return m.id }

func (m *misfire) Update(from, to model.Tick, in *delivery.Buffers) ([]model.SpikeEvent, error) {
	for now := from; now < to; now++ {
		if _, err := in.Consume(now); err != nil {
			return nil, err
		}
	}
	return []model.SpikeEvent{{Origin: m.id, Time: to + 5}}, nil
}

func (m *misfire) Handle(ev model.Event) error { return nil }

func TestEmissionOutsideWindowFailsTheRun(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	if _, err := k.CreateNodes(1, func(id model.NodeID) (Node, error) {
		return &misfire{id: id}, nil
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := k.Simulate(context.Background(), 2.0); err == nil {
		t.Fatal("expected out-of-window emission error")
	}
}

func TestNodesCreatedBetweenIntervals(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	srcs, err := k.CreateNodes(1, sourceFactory([]model.Tick{0, 60}))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if _, err := k.Simulate(context.Background(), 5.0); err != nil {
		t.Fatalf("first interval: %v", err)
	}

	// the network grows mid-run: the new node joins at the current clock
	tgts, err := k.CreateNodes(1, accumulatorFactory)
	if err != nil {
		t.Fatalf("create accumulator: %v", err)
	}
	cs := model.DefaultConnSpec(model.RuleOneToOne)
	if err := k.Connect(srcs, tgts, cs, model.SynSpec{Weight: 1.0, DelayMS: 1.0}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := k.Simulate(context.Background(), 5.0); err != nil {
		t.Fatalf("resumed interval: %v", err)
	}

	acc := k.nodes[tgts[0]].(*neuron.Accumulator)
	if got := acc.Total(); got != 1.0 {
		t.Fatalf("accumulated %g, want the one spike fired after the node joined", got)
	}
	if k.Clock() != 100 {
		t.Fatalf("clock at %d after both intervals, want 100", k.Clock())
	}
}

func TestSimulateAccumulatesAcrossCalls(t *testing.T) {
	k, err := NewContext(DefaultConfig())
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	srcs, err := k.CreateNodes(1, sourceFactory([]model.Tick{0, 25}))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	tgts, err := k.CreateNodes(1, accumulatorFactory)
	if err != nil {
		t.Fatalf("create accumulator: %v", err)
	}
	cs := model.DefaultConnSpec(model.RuleOneToOne)
	if err := k.Connect(srcs, tgts, cs, model.SynSpec{Weight: 1, DelayMS: 1.0}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// the second spike and its delivery straddle the call boundary
	if _, err := k.Simulate(context.Background(), 2.0); err != nil {
		t.Fatalf("first interval: %v", err)
	}
	if _, err := k.Simulate(context.Background(), 2.0); err != nil {
		t.Fatalf("second interval: %v", err)
	}

	if k.Clock() != 40 {
		t.Fatalf("clock at %d after two intervals, want 40", k.Clock())
	}
	if k.Stats().Steps != 40 {
		t.Fatalf("lifetime steps %d, want 40", k.Stats().Steps)
	}
	acc := k.nodes[tgts[0]].(*neuron.Accumulator)
	if got := acc.Total(); got != 2.0 {
		t.Fatalf("accumulated %g across intervals, want 2", got)
	}
}
