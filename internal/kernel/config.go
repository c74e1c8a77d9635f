package kernel

import (
	"fmt"
	"math"
)

// Config is the kernel configuration dictionary. Resolution and the process
// topology are fixed before any node is created; min_delay and max_delay
// are derived from the realized network at Prepare time and exposed
// read-only through the context.
type Config struct {
	// ResolutionMS is the simulation step in milliseconds.
	ResolutionMS float64 `json:"resolution"`
	NumRanks     int     `json:"num_processes"`
	// ThreadsPerRank is the local thread count of every rank.
	ThreadsPerRank int `json:"local_num_threads"`

	// DefaultMinDelayMS and DefaultMaxDelayMS apply when the network has no
	// connections to derive the cadence and buffer depth from.
	DefaultMinDelayMS float64 `json:"min_delay,omitempty"`
	DefaultMaxDelayMS float64 `json:"max_delay,omitempty"`

	// BaseSeed derives every random stream. GRNGSeed, when non-zero,
	// reseeds only the rank-synchronized stream; RNGSeeds, when set,
	// overrides the VP-specific seeds and must hold one distinct seed per
	// VP.
	BaseSeed int64   `json:"base_seed"`
	GRNGSeed int64   `json:"grng_seed,omitempty"`
	RNGSeeds []int64 `json:"rng_seeds,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		ResolutionMS:      0.1,
		NumRanks:          1,
		ThreadsPerRank:    1,
		DefaultMinDelayMS: 1.0,
		DefaultMaxDelayMS: 10.0,
		BaseSeed:          1,
	}
}

func (c Config) TotalVPs() int { return c.NumRanks * c.ThreadsPerRank }

func (c Config) Validate() error {
	if c.ResolutionMS <= 0 {
		return fmt.Errorf("resolution must be positive: %g ms", c.ResolutionMS)
	}
	if c.NumRanks < 1 {
		return fmt.Errorf("num processes must be positive: %d", c.NumRanks)
	}
	if c.ThreadsPerRank < 1 {
		return fmt.Errorf("local thread count must be positive: %d", c.ThreadsPerRank)
	}
	if c.DefaultMinDelayMS < c.ResolutionMS {
		return fmt.Errorf("default min_delay %g ms below resolution %g ms", c.DefaultMinDelayMS, c.ResolutionMS)
	}
	if c.DefaultMaxDelayMS < c.DefaultMinDelayMS {
		return fmt.Errorf("default max_delay %g ms below default min_delay %g ms", c.DefaultMaxDelayMS, c.DefaultMinDelayMS)
	}
	if len(c.RNGSeeds) != 0 && len(c.RNGSeeds) != c.TotalVPs() {
		return fmt.Errorf("got %d rng seeds for %d VPs", len(c.RNGSeeds), c.TotalVPs())
	}
	return nil
}

// Ticks converts a duration in ms to whole ticks, rounding to the grid.
func (c Config) Ticks(ms float64) int64 {
	return int64(math.Round(ms / c.ResolutionMS))
}
