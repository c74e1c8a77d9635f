package rng

import (
	"fmt"
	"math/rand"

	"spikekernel/internal/model"
)

// Seeder constants keep the three stream categories in disjoint seed ranges.
// The additive layout means a category occupies [base+seeder, base+seeder+N)
// for N VPs; the constants are spaced so the ranges cannot overlap for any
// realistic VP count, and NewProvider rejects counts that would make them.
const (
	rankSyncSeeder   = int64(0x10000000)
	vpSyncSeeder     = int64(0x20000000)
	vpSpecificSeeder = int64(0x30000000)

	maxVPs = 0x10000000
)

// Provider hands out the three categories of reproducible random streams:
//
//   - rank-synchronized: one logical stream replicated identically on every
//     rank, for decisions all ranks must agree on;
//   - VP-synchronized: one stream per VP index, identical across ranks;
//   - VP-specific: one statistically independent stream per VP, for bulk
//     stochastic work.
//
// All streams derive from a single base seed, so reseeding with the same
// value reproduces every draw in the simulation.
type Provider struct {
	baseSeed int64
	numVPs   int
	numRanks int

	// one rank-synchronized replica per rank; they are seeded identically
	// and must stay in lockstep.
	rankSync   []*rand.Rand
	vpSync     []*rand.Rand
	vpSpecific []*rand.Rand
	vpSeeds    []int64
}

func NewProvider(baseSeed int64, numRanks, numVPs int) (*Provider, error) {
	if numRanks < 1 {
		return nil, fmt.Errorf("num ranks must be positive: %d", numRanks)
	}
	if numVPs < numRanks {
		return nil, fmt.Errorf("num VPs %d below num ranks %d", numVPs, numRanks)
	}
	if numVPs > maxVPs {
		return nil, fmt.Errorf("num VPs %d exceeds seeder range %d, streams would collide", numVPs, maxVPs)
	}
	p := &Provider{numVPs: numVPs, numRanks: numRanks}
	p.Reseed(baseSeed)
	return p, nil
}

// Reseed rebuilds every stream from a new base seed. Existing stream
// references become stale; callers must re-fetch.
func (p *Provider) Reseed(baseSeed int64) {
	p.baseSeed = baseSeed
	p.rankSync = make([]*rand.Rand, p.numRanks)
	for r := range p.rankSync {
		p.rankSync[r] = rand.New(rand.NewSource(baseSeed + rankSyncSeeder))
	}
	p.vpSync = make([]*rand.Rand, p.numVPs)
	p.vpSpecific = make([]*rand.Rand, p.numVPs)
	p.vpSeeds = make([]int64, p.numVPs)
	for v := range p.vpSync {
		p.vpSync[v] = rand.New(rand.NewSource(baseSeed + vpSyncSeeder + int64(v)))
		p.vpSeeds[v] = baseSeed + vpSpecificSeeder + int64(v)
		p.vpSpecific[v] = rand.New(rand.NewSource(p.vpSeeds[v]))
	}
}

// SetVPSeeds overrides the per-VP specific seeds, one per VP. Seeds must be
// pairwise distinct and must not collide with the derived synchronized
// seeds.
func (p *Provider) SetVPSeeds(seeds []int64) error {
	if len(seeds) != p.numVPs {
		return fmt.Errorf("got %d seeds for %d VPs", len(seeds), p.numVPs)
	}
	seen := make(map[int64]int, len(seeds))
	for i, s := range seeds {
		if prev, dup := seen[s]; dup {
			return fmt.Errorf("duplicate rng seed %d for VPs %d and %d", s, prev, i)
		}
		if s == p.baseSeed+rankSyncSeeder {
			return fmt.Errorf("rng seed %d for VP %d collides with the rank-synchronized stream", s, i)
		}
		if s >= p.baseSeed+vpSyncSeeder && s < p.baseSeed+vpSyncSeeder+int64(p.numVPs) {
			return fmt.Errorf("rng seed %d for VP %d collides with a VP-synchronized stream", s, i)
		}
		seen[s] = i
	}
	copy(p.vpSeeds, seeds)
	for i, s := range seeds {
		p.vpSpecific[i] = rand.New(rand.NewSource(s))
	}
	return nil
}

// SetGlobalSeed reseeds only the rank-synchronized replicas.
func (p *Provider) SetGlobalSeed(seed int64) {
	for r := range p.rankSync {
		p.rankSync[r] = rand.New(rand.NewSource(seed))
	}
}

// BaseSeed returns the seed every stream was derived from.
func (p *Provider) BaseSeed() int64 { return p.baseSeed }

// VPSeeds returns a copy of the effective per-VP specific seeds.
func (p *Provider) VPSeeds() []int64 { return append([]int64(nil), p.vpSeeds...) }

// RankSync returns rank's replica of the rank-synchronized stream. Every
// rank must perform the same draws on its replica, in the same order, or
// CheckSynchrony will fail.
func (p *Provider) RankSync(rank int) (*rand.Rand, error) {
	if rank < 0 || rank >= p.numRanks {
		return nil, fmt.Errorf("rank %d outside [0, %d)", rank, p.numRanks)
	}
	return p.rankSync[rank], nil
}

// VPSync returns the VP-synchronized stream for a VP index.
func (p *Provider) VPSync(v model.VPID) (*rand.Rand, error) {
	if int(v) < 0 || int(v) >= p.numVPs {
		return nil, fmt.Errorf("vp %d outside [0, %d)", v, p.numVPs)
	}
	return p.vpSync[v], nil
}

// VPSpecific returns the per-VP independent stream.
func (p *Provider) VPSpecific(v model.VPID) (*rand.Rand, error) {
	if int(v) < 0 || int(v) >= p.numVPs {
		return nil, fmt.Errorf("vp %d outside [0, %d)", v, p.numVPs)
	}
	return p.vpSpecific[v], nil
}

// CheckSynchrony draws one value from every rank's synchronized replica and
// compares them. The draw is symmetric across ranks, so a passing check
// leaves the replicas in lockstep; a failure means some rank consumed a
// different number of draws and the run cannot continue.
func (p *Provider) CheckSynchrony() error {
	want := p.rankSync[0].Int63()
	for r := 1; r < p.numRanks; r++ {
		if got := p.rankSync[r].Int63(); got != want {
			return fmt.Errorf("rank-synchronized rng diverged on rank %d: got %d want %d", r, got, want)
		}
	}
	return nil
}
