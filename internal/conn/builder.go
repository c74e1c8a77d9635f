package conn

import (
	"fmt"
	"math"
	"math/rand"

	"spikekernel/internal/model"
	"spikekernel/internal/rng"
	"spikekernel/internal/vp"
)

// Builder realizes declarative connection specs into Table records. Random
// draws come from the VP-bound streams of the rng provider so a fixed seed
// and process count reproduce the same edge list on every run.
type Builder struct {
	vps          *vp.Map
	streams      *rng.Provider
	table        *Table
	resolutionMS float64
	// maxDelay, when positive, caps the total delay any record may carry;
	// exceeding it would overflow the ring buffers sized from it.
	maxDelay model.Tick
}

func NewBuilder(vps *vp.Map, streams *rng.Provider, table *Table, resolutionMS float64, maxDelay model.Tick) (*Builder, error) {
	if vps == nil || streams == nil || table == nil {
		return nil, fmt.Errorf("vp map, rng provider and table are required")
	}
	if resolutionMS <= 0 {
		return nil, fmt.Errorf("resolution must be positive: %g", resolutionMS)
	}
	return &Builder{
		vps:          vps,
		streams:      streams,
		table:        table,
		resolutionMS: resolutionMS,
		maxDelay:     maxDelay,
	}, nil
}

// Table returns the table records are appended to.
func (b *Builder) Table() *Table { return b.table }

// Connect realizes cs between sources and targets with the synapse
// parameters of ss. Errors are configuration errors: they abort network
// construction before any edge of the failing call is created.
func (b *Builder) Connect(sources, targets []model.NodeID, cs model.ConnSpec, ss model.SynSpec) error {
	if len(sources) == 0 || len(targets) == 0 {
		return fmt.Errorf("source and target sets must be non-empty")
	}
	for _, id := range sources {
		if _, err := b.vps.VPOf(id); err != nil {
			return fmt.Errorf("source set: %w", err)
		}
	}
	for _, id := range targets {
		if _, err := b.vps.VPOf(id); err != nil {
			return fmt.Errorf("target set: %w", err)
		}
	}

	dendritic, err := b.delayTicks(ss.DelayMS)
	if err != nil {
		return err
	}
	axonal, err := b.axonalTicks(ss.AxonalMS)
	if err != nil {
		return err
	}
	if b.maxDelay > 0 && dendritic+axonal > b.maxDelay {
		return fmt.Errorf("total delay %d ticks exceeds max_delay %d ticks", dendritic+axonal, b.maxDelay)
	}

	proto := model.Connection{
		Weight:         ss.Weight,
		DendriticDelay: dendritic,
		AxonalDelay:    axonal,
		SynapseModel:   ss.SynapseModel,
		Receptor:       ss.Receptor,
	}

	switch cs.Rule {
	case model.RuleOneToOne:
		return b.oneToOne(sources, targets, cs, proto)
	case model.RuleAllToAll:
		return b.allToAll(sources, targets, cs, proto)
	case model.RulePairwiseBernoulli:
		return b.pairwiseBernoulli(sources, targets, cs, proto)
	case model.RuleFixedIndegree:
		return b.fixedIndegree(sources, targets, cs, proto)
	case model.RuleFixedOutdegree:
		return b.fixedOutdegree(sources, targets, cs, proto)
	case model.RuleFixedTotalNumber:
		return b.fixedTotalNumber(sources, targets, cs, proto)
	default:
		return fmt.Errorf("unknown connection rule: %q", cs.Rule)
	}
}

// delayTicks converts a dendritic delay in ms to ticks. A delay below the
// resolution or not representable as a whole number of ticks is a
// configuration error.
func (b *Builder) delayTicks(ms float64) (model.Tick, error) {
	if ms < b.resolutionMS {
		return 0, fmt.Errorf("delay %g ms below resolution %g ms", ms, b.resolutionMS)
	}
	return b.ticksOf(ms, "delay")
}

func (b *Builder) axonalTicks(ms float64) (model.Tick, error) {
	if ms == 0 {
		return 0, nil
	}
	if ms < 0 {
		return 0, fmt.Errorf("axonal delay must not be negative: %g ms", ms)
	}
	return b.ticksOf(ms, "axonal delay")
}

func (b *Builder) ticksOf(ms float64, what string) (model.Tick, error) {
	steps := math.Round(ms / b.resolutionMS)
	if math.Abs(steps*b.resolutionMS-ms) > 1e-9*b.resolutionMS {
		return 0, fmt.Errorf("%s %g ms is not a multiple of resolution %g ms", what, ms, b.resolutionMS)
	}
	return model.Tick(steps), nil
}

func (b *Builder) addEdge(source, target model.NodeID, proto model.Connection) error {
	owner, err := b.vps.VPOf(target)
	if err != nil {
		return err
	}
	proto.Source = source
	proto.Target = target
	_, err = b.table.Append(owner, proto)
	return err
}

func (b *Builder) oneToOne(sources, targets []model.NodeID, cs model.ConnSpec, proto model.Connection) error {
	if len(sources) != len(targets) {
		return fmt.Errorf("one_to_one requires equal set sizes: %d sources, %d targets", len(sources), len(targets))
	}
	for i := range sources {
		if sources[i] == targets[i] && !cs.AllowAutapses {
			continue
		}
		if err := b.addEdge(sources[i], targets[i], proto); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) allToAll(sources, targets []model.NodeID, cs model.ConnSpec, proto model.Connection) error {
	for _, t := range targets {
		for _, s := range sources {
			if s == t && !cs.AllowAutapses {
				continue
			}
			if err := b.addEdge(s, t, proto); err != nil {
				return err
			}
		}
	}
	return nil
}

// pairwiseBernoulli includes each ordered pair independently with
// probability p. Draws come from the VP-specific stream of the target's
// owner, so each thread can realize its own targets in parallel.
func (b *Builder) pairwiseBernoulli(sources, targets []model.NodeID, cs model.ConnSpec, proto model.Connection) error {
	if cs.P < 0 || cs.P > 1 {
		return fmt.Errorf("connection probability must lie in [0, 1]: %g", cs.P)
	}
	for _, t := range targets {
		owner, err := b.vps.VPOf(t)
		if err != nil {
			return err
		}
		r, err := b.streams.VPSpecific(owner)
		if err != nil {
			return err
		}
		for _, s := range sources {
			if s == t && !cs.AllowAutapses {
				continue
			}
			if r.Float64() >= cs.P {
				continue
			}
			if err := b.addEdge(s, t, proto); err != nil {
				return err
			}
		}
	}
	return nil
}

// fixedIndegree draws exactly K sources for every target, without
// replacement unless multapses are permitted. Draws come from the target
// owner's VP-specific stream.
func (b *Builder) fixedIndegree(sources, targets []model.NodeID, cs model.ConnSpec, proto model.Connection) error {
	if cs.Indegree < 0 {
		return fmt.Errorf("indegree must not be negative: %d", cs.Indegree)
	}
	for _, t := range targets {
		owner, err := b.vps.VPOf(t)
		if err != nil {
			return err
		}
		r, err := b.streams.VPSpecific(owner)
		if err != nil {
			return err
		}
		candidates := excludeSelf(sources, t, cs.AllowAutapses)
		picked, err := sample(r, candidates, cs.Indegree, cs.AllowMultapses)
		if err != nil {
			return fmt.Errorf("fixed_indegree target %d: %w", t, err)
		}
		for _, s := range picked {
			if err := b.addEdge(s, t, proto); err != nil {
				return err
			}
		}
	}
	return nil
}

// fixedOutdegree draws exactly K targets for every source. The choice must
// be visible identically on every rank, so draws come from the
// rank-synchronized stream.
func (b *Builder) fixedOutdegree(sources, targets []model.NodeID, cs model.ConnSpec, proto model.Connection) error {
	if cs.Outdegree < 0 {
		return fmt.Errorf("outdegree must not be negative: %d", cs.Outdegree)
	}
	r, err := b.rankSyncStream()
	if err != nil {
		return err
	}
	for _, s := range sources {
		candidates := excludeSelf(targets, s, cs.AllowAutapses)
		picked, err := sample(r, candidates, cs.Outdegree, cs.AllowMultapses)
		if err != nil {
			return fmt.Errorf("fixed_outdegree source %d: %w", s, err)
		}
		for _, t := range picked {
			if err := b.addEdge(s, t, proto); err != nil {
				return err
			}
		}
	}
	return nil
}

// fixedTotalNumber draws N edges from the source-target pair universe,
// without replacement unless multapses are permitted. The edge set is a
// global decision, so draws come from the rank-synchronized stream.
func (b *Builder) fixedTotalNumber(sources, targets []model.NodeID, cs model.ConnSpec, proto model.Connection) error {
	if cs.N < 0 {
		return fmt.Errorf("total connection count must not be negative: %d", cs.N)
	}
	universe := int64(len(sources)) * int64(len(targets))
	if !cs.AllowAutapses {
		universe -= int64(overlapCount(sources, targets))
	}
	if !cs.AllowMultapses && int64(cs.N) > universe {
		return fmt.Errorf("cannot draw %d distinct pairs from a universe of %d", cs.N, universe)
	}
	if universe == 0 && cs.N > 0 {
		return fmt.Errorf("empty pair universe")
	}

	r, err := b.rankSyncStream()
	if err != nil {
		return err
	}
	seen := make(map[[2]model.NodeID]struct{}, cs.N)
	drawn := 0
	for drawn < cs.N {
		s := sources[r.Intn(len(sources))]
		t := targets[r.Intn(len(targets))]
		if s == t && !cs.AllowAutapses {
			continue
		}
		if !cs.AllowMultapses {
			key := [2]model.NodeID{s, t}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		if err := b.addEdge(s, t, proto); err != nil {
			return err
		}
		drawn++
	}
	return nil
}

// rankSyncStream yields a stream that advances every rank's synchronized
// replica in lockstep and returns rank 0's draws. Under a real transport
// each rank performs the identical draws locally.
func (b *Builder) rankSyncStream() (drawStream, error) {
	replicas := make([]*rand.Rand, b.vps.NumRanks())
	for rank := range replicas {
		r, err := b.streams.RankSync(rank)
		if err != nil {
			return nil, err
		}
		replicas[rank] = r
	}
	return &syncedStream{replicas: replicas}, nil
}

type drawStream interface {
	Intn(n int) int
	Float64() float64
}

type syncedStream struct {
	replicas []*rand.Rand
}

func (s *syncedStream) Intn(n int) int {
	v := s.replicas[0].Intn(n)
	for _, r := range s.replicas[1:] {
		r.Intn(n)
	}
	return v
}

func (s *syncedStream) Float64() float64 {
	v := s.replicas[0].Float64()
	for _, r := range s.replicas[1:] {
		r.Float64()
	}
	return v
}

func excludeSelf(candidates []model.NodeID, self model.NodeID, allowAutapses bool) []model.NodeID {
	if allowAutapses {
		return candidates
	}
	out := make([]model.NodeID, 0, len(candidates))
	for _, c := range candidates {
		if c != self {
			out = append(out, c)
		}
	}
	return out
}

func overlapCount(a, b []model.NodeID) int {
	set := make(map[model.NodeID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	n := 0
	for _, id := range b {
		if _, ok := set[id]; ok {
			n++
		}
	}
	return n
}

// sample draws k elements from candidates: a partial Fisher-Yates shuffle
// when draws must be distinct, independent draws otherwise.
func sample(r drawStream, candidates []model.NodeID, k int, withReplacement bool) ([]model.NodeID, error) {
	if k == 0 {
		return nil, nil
	}
	if withReplacement {
		out := make([]model.NodeID, k)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no candidates to draw from")
		}
		for i := range out {
			out[i] = candidates[r.Intn(len(candidates))]
		}
		return out, nil
	}
	if k > len(candidates) {
		return nil, fmt.Errorf("cannot draw %d distinct nodes from %d candidates", k, len(candidates))
	}
	pool := append([]model.NodeID(nil), candidates...)
	for i := 0; i < k; i++ {
		j := i + r.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k], nil
}
