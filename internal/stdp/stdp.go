package stdp

import (
	"fmt"
	"math"
)

// Rule is the pair-based depression rule applied when a pre-synaptic spike
// arrives at a plastic synapse: the delivered contribution is the base
// weight depressed against the most recent post-synaptic spike at or before
// the arrival time. The contribution is a pure function of the arrival time
// and the post-spike history, which is what makes retroactive correction
// exact: recomputing with a completed history yields the same value an
// in-order delivery would have produced.
type Rule struct {
	// AMinus scales the depression as a fraction of the base weight.
	AMinus float64
	// TauMinusMS is the depression time constant in milliseconds.
	TauMinusMS float64
	// WMin clamps the depressed contribution from below.
	WMin float64
}

func DefaultRule() Rule {
	return Rule{AMinus: 0.5, TauMinusMS: 20.0, WMin: 0}
}

func (r Rule) validate() error {
	if r.AMinus < 0 {
		return fmt.Errorf("depression amplitude must not be negative: %g", r.AMinus)
	}
	if r.TauMinusMS <= 0 {
		return fmt.Errorf("depression time constant must be positive: %g ms", r.TauMinusMS)
	}
	return nil
}

// Contribution computes the weight a pre-synaptic spike arriving at
// arrivalMS should deliver, given the latest post-synaptic spike at or
// before arrival (lastPostMS, valid when hasPost).
func (r Rule) Contribution(base, arrivalMS, lastPostMS float64, hasPost bool) float64 {
	if !hasPost {
		return base
	}
	w := base - base*r.AMinus*math.Exp(-(arrivalMS-lastPostMS)/r.TauMinusMS)
	if w < r.WMin {
		return r.WMin
	}
	return w
}
