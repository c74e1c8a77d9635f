package stdp

import (
	"fmt"

	"spikekernel/internal/conn"
	"spikekernel/internal/delivery"
	"spikekernel/internal/model"
)

// archiveEntry records one optimistically delivered pre-synaptic spike at
// its post-synaptic node: what was applied, into which bucket, and against
// which post-spike history. It is retained until the simulation clock
// passes the spike's true arrival tick, after which no later post spike can
// invalidate it.
type archiveEntry struct {
	emit     model.Tick
	arrival  model.Tick
	bucket   int
	base     float64
	applied  float64
	lastPost model.Tick
	hasPost  bool
}

// Corrector implements optimistic delivery with retroactive correction for
// connections whose axonal delay makes causality violations possible. Pre
// spikes are delivered and archived immediately with the post history known
// at processing time; post spikes that land inside an archived entry's
// causality window recompute its contribution and emit the signed delta as
// a CorrectionSpikeEvent through the regular delivery path.
type Corrector struct {
	rule  Rule
	resMS float64

	archives map[model.NodeID][]archiveEntry
	lastPost map[model.NodeID]model.Tick

	corrections int64
}

func NewCorrector(rule Rule, resolutionMS float64) (*Corrector, error) {
	if err := rule.validate(); err != nil {
		return nil, err
	}
	if resolutionMS <= 0 {
		return nil, fmt.Errorf("resolution must be positive: %g", resolutionMS)
	}
	return &Corrector{
		rule:     rule,
		resMS:    resolutionMS,
		archives: make(map[model.NodeID][]archiveEntry),
		lastPost: make(map[model.NodeID]model.Tick),
	}, nil
}

func (c *Corrector) ms(t model.Tick) float64 { return float64(t) * c.resMS }

// Corrections reports how many correction events have been issued.
func (c *Corrector) Corrections() int64 { return c.corrections }

// OnPreDelivery is the router's delivery hook. Connections without axonal
// delay pass through untouched; for axonal connections it computes the
// depressed contribution from the post history known so far and archives
// the spike for the correction window.
func (c *Corrector) OnPreDelivery(h conn.Handle, cn model.Connection, emit model.Tick) (float64, error) {
	if cn.AxonalDelay == 0 {
		return cn.Weight, nil
	}
	// Post spikes recorded so far all precede the arrival tick: delivery
	// runs at the window boundary and arrival lies at least min_delay past
	// the emission, so the known history needs no filtering.
	arrival := emit + cn.TotalDelay()
	lp, has := c.lastPost[cn.Target]
	w := c.rule.Contribution(cn.Weight, c.ms(arrival), c.ms(lp), has)
	// The ring buffer routed the applied contribution by its own sign, so
	// depression flipping the sign moves the spike to the other bucket;
	// corrections must follow it there.
	c.archives[cn.Target] = append(c.archives[cn.Target], archiveEntry{
		emit:     emit,
		arrival:  arrival,
		bucket:   delivery.BucketFor(w),
		base:     cn.Weight,
		applied:  w,
		lastPost: lp,
		hasPost:  has,
	})
	return w, nil
}

// OnPostSpike registers a post-synaptic spike at tick t and returns the
// correction packets for every archived pre spike whose causality window
// covers t. Each packet carries the signed delta between the contribution
// that should have been applied and the one that was, plus the bucket the
// original spike was accumulated into; Offset holds the original delivery
// tick so the receiver can patch the exact slot when it is still pending.
func (c *Corrector) OnPostSpike(node model.NodeID, t model.Tick) ([]delivery.Packet, error) {
	if prev, ok := c.lastPost[node]; !ok || t > prev {
		c.lastPost[node] = t
	}

	var packets []delivery.Packet
	entries := c.archives[node]
	for i := range entries {
		e := &entries[i]
		if t > e.arrival {
			continue
		}
		if e.hasPost && t <= e.lastPost {
			continue
		}
		want := c.rule.Contribution(e.base, c.ms(e.arrival), c.ms(t), true)
		delta := want - e.applied
		e.applied = want
		e.lastPost = t
		e.hasPost = true
		if delta == 0 {
			continue
		}
		packets = append(packets, delivery.Packet{
			Kind:   delivery.KindCorrection,
			Origin: node,
			Target: node,
			Offset: e.arrival,
			Bucket: e.bucket,
			Delta:  delta,
		})
		c.corrections++
	}
	return packets, nil
}

// Purge drops archive entries whose causality window has closed: once the
// clock is past an entry's arrival tick, no future post spike can precede
// it. Called at the end of every step.
func (c *Corrector) Purge(now model.Tick) {
	for node, entries := range c.archives {
		kept := entries[:0]
		for _, e := range entries {
			if e.arrival >= now {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(c.archives, node)
			continue
		}
		c.archives[node] = kept
	}
}

// ArchiveLen reports how many entries are retained for a node.
func (c *Corrector) ArchiveLen(node model.NodeID) int { return len(c.archives[node]) }
