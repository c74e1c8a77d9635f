// Package neuron ships the minimal node models the kernel is exercised
// with: a spike source, a leaky integrator and a recording accumulator.
// Full dynamical models live outside the kernel; these exist so networks
// can be driven and observed without one.
package neuron

import (
	"fmt"
	"math"
	"sort"

	"spikekernel/internal/delivery"
	"spikekernel/internal/model"
)

// Source emits spikes at preset ticks and ignores its inputs.
type Source struct {
	id    model.NodeID
	times []model.Tick
	next  int
}

func NewSource(id model.NodeID, times []model.Tick) *Source {
	ts := append([]model.Tick(nil), times...)
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return &Source{id: id, times: ts}
}

func (s *Source) ID() model.NodeID { return s.id }

func (s *Source) Update(from, to model.Tick, in *delivery.Buffers) ([]model.SpikeEvent, error) {
	var out []model.SpikeEvent
	for now := from; now < to; now++ {
		if _, err := in.Consume(now); err != nil {
			return nil, err
		}
		for s.next < len(s.times) && s.times[s.next] == now {
			out = append(out, model.SpikeEvent{Origin: s.id, Time: now})
			s.next++
		}
		for s.next < len(s.times) && s.times[s.next] < now {
			s.next++
		}
	}
	return out, nil
}

func (s *Source) Handle(ev model.Event) error {
	switch ev.(type) {
	case model.SpikeEvent, model.CorrectionSpikeEvent:
		// a source has no input dynamics
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// PreciseSource emits off-grid spikes given emission times in milliseconds.
// The stamp is the grid point at or before the emission; the remainder
// travels as the sub-step offset.
type PreciseSource struct {
	id     model.NodeID
	resMS  float64
	times  []float64
	next   int
}

func NewPreciseSource(id model.NodeID, resolutionMS float64, timesMS []float64) (*PreciseSource, error) {
	if resolutionMS <= 0 {
		return nil, fmt.Errorf("resolution must be positive: %g", resolutionMS)
	}
	ts := append([]float64(nil), timesMS...)
	sort.Float64s(ts)
	return &PreciseSource{id: id, resMS: resolutionMS, times: ts}, nil
}

func (s *PreciseSource) ID() model.NodeID { return s.id }

// Precise marks the node for precise-mode input buffers.
func (s *PreciseSource) Precise() {}

func (s *PreciseSource) Update(from, to model.Tick, in *delivery.Buffers) ([]model.SpikeEvent, error) {
	var out []model.SpikeEvent
	for now := from; now < to; now++ {
		if _, err := in.Consume(now); err != nil {
			return nil, err
		}
		for s.next < len(s.times) {
			tick := model.Tick(math.Floor(s.times[s.next] / s.resMS))
			if tick > now {
				break
			}
			if tick == now {
				out = append(out, model.SpikeEvent{
					Origin: s.id,
					Time:   now,
					Offset: s.times[s.next] - float64(now)*s.resMS,
				})
			}
			s.next++
		}
	}
	return out, nil
}

func (s *PreciseSource) Handle(ev model.Event) error {
	switch ev.(type) {
	case model.SpikeEvent, model.CorrectionSpikeEvent:
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// Integrator is a leaky threshold unit: membrane decays by Leak per tick,
// accumulates the consumed bucket totals plus injected input, and spikes on
// crossing Threshold, then resets and holds for the refractory period.
type Integrator struct {
	id model.NodeID

	Leak       float64
	Threshold  float64
	ResetV     float64
	Refractory model.Tick

	v          float64
	holdUntil  model.Tick
	pending    float64
}

func NewIntegrator(id model.NodeID, leak, threshold float64, refractory model.Tick) *Integrator {
	return &Integrator{id: id, Leak: leak, Threshold: threshold, Refractory: refractory}
}

func (n *Integrator) ID() model.NodeID { return n.id }

// Membrane exposes the current membrane value, for observation.
func (n *Integrator) Membrane() float64 { return n.v }

func (n *Integrator) Update(from, to model.Tick, in *delivery.Buffers) ([]model.SpikeEvent, error) {
	var out []model.SpikeEvent
	for now := from; now < to; now++ {
		totals, err := in.Consume(now)
		if err != nil {
			return nil, err
		}
		input := n.pending
		n.pending = 0
		for _, t := range totals {
			input += t
		}
		if now < n.holdUntil {
			continue
		}
		n.v = n.v*n.Leak + input
		if n.v >= n.Threshold {
			out = append(out, model.SpikeEvent{Origin: n.id, Time: now})
			n.v = n.ResetV
			n.holdUntil = now + 1 + n.Refractory
		}
	}
	return out, nil
}

func (n *Integrator) Handle(ev model.Event) error {
	switch e := ev.(type) {
	case model.SpikeEvent:
		n.pending += e.Weight * float64(max(e.Multiplicity, 1))
		return nil
	case model.CorrectionSpikeEvent:
		n.pending += e.Delta
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// Accumulator consumes its inputs and keeps running per-bucket totals; it
// never spikes. Tests and recording use it as a passive probe.
type Accumulator struct {
	id     model.NodeID
	totals [delivery.NumBuckets]float64
}

func NewAccumulator(id model.NodeID) *Accumulator {
	return &Accumulator{id: id}
}

func (a *Accumulator) ID() model.NodeID { return a.id }

// Bucket returns the cumulative total of one accumulator bucket.
func (a *Accumulator) Bucket(i int) float64 { return a.totals[i] }

// Total returns the sum over all buckets.
func (a *Accumulator) Total() float64 {
	var t float64
	for _, v := range a.totals {
		t += v
	}
	return t
}

func (a *Accumulator) Update(from, to model.Tick, in *delivery.Buffers) ([]model.SpikeEvent, error) {
	for now := from; now < to; now++ {
		totals, err := in.Consume(now)
		if err != nil {
			return nil, err
		}
		for i, v := range totals {
			a.totals[i] += v
		}
	}
	return nil, nil
}

func (a *Accumulator) Handle(ev model.Event) error {
	switch e := ev.(type) {
	case model.SpikeEvent:
		a.totals[delivery.BucketFor(e.Weight)] += e.Weight
		return nil
	case model.CorrectionSpikeEvent:
		a.totals[e.Bucket] += e.Delta
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}
