package kernel

import (
	"context"
	"fmt"
	"sync"

	"spikekernel/internal/conn"
	"spikekernel/internal/delivery"
	"spikekernel/internal/model"
	"spikekernel/internal/telemetry"
)

// Simulate advances the network by durationMS. Each rank runs as its own
// worker with ThreadsPerRank update threads; ranks meet at the collective
// exchange every min_delay window. Cancellation is honored between windows
// only, so buffer state is always consistent when Simulate returns.
func (k *SimulationContext) Simulate(ctx context.Context, durationMS float64) (Stats, error) {
	if durationMS < 0 {
		return Stats{}, fmt.Errorf("duration must not be negative: %g ms", durationMS)
	}
	steps := k.cfg.Ticks(durationMS)
	if steps == 0 {
		return Stats{}, nil
	}
	if !k.prepared {
		if err := k.Prepare(); err != nil {
			return Stats{}, err
		}
	}
	end := k.clock + model.Tick(steps)

	routers := make([]*delivery.Router, k.cfg.NumRanks)
	registers := make([]*delivery.Register, k.cfg.NumRanks)
	for rank := range routers {
		r, err := delivery.NewRouter(k.vps, k.table, rank)
		if err != nil {
			return Stats{}, err
		}
		routers[rank] = r
		reg, err := delivery.NewRegister(k.cfg.ThreadsPerRank)
		if err != nil {
			return Stats{}, err
		}
		registers[rank] = reg
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		interval Stats
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			if k.stopExchanger != nil {
				k.stopExchanger()
			}
		}
	}

	for rank := 0; rank < k.cfg.NumRanks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			local, err := k.runRank(ctx, rank, routers[rank], registers[rank], end)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			interval.Steps += local.Steps
			interval.ExchangeRounds += local.ExchangeRounds
			interval.SpikesEmitted += local.SpikesEmitted
			interval.SpikesDelivered += local.SpikesDelivered
			interval.CorrectionsIssued += local.CorrectionsIssued
			mu.Unlock()
		}(rank)
	}
	wg.Wait()

	if firstErr != nil {
		return interval, firstErr
	}
	k.clock = end
	k.stats.Steps += interval.Steps
	k.stats.ExchangeRounds += interval.ExchangeRounds
	k.stats.SpikesEmitted += interval.SpikesEmitted
	k.stats.SpikesDelivered += interval.SpikesDelivered
	k.stats.CorrectionsIssued += interval.CorrectionsIssued

	telemetry.AddSpikesEmitted(int(interval.SpikesEmitted))
	telemetry.AddSpikesDelivered(int(interval.SpikesDelivered))
	telemetry.AddCorrectionsIssued(int(interval.CorrectionsIssued))
	return interval, nil
}

func (k *SimulationContext) runRank(ctx context.Context, rank int, router *delivery.Router, reg *delivery.Register, end model.Tick) (Stats, error) {
	var local Stats
	for windowStart := k.clock; windowStart < end; {
		if err := ctx.Err(); err != nil {
			return local, err
		}
		windowEnd := windowStart + k.minDelay
		if windowEnd > end {
			windowEnd = end
		}

		emitted, corrections, err := k.updateWindow(rank, windowStart, windowEnd, reg)
		if err != nil {
			return local, err
		}
		local.SpikesEmitted += emitted
		local.CorrectionsIssued += corrections

		merged, err := k.exchanger.Exchange(ctx, rank, reg.Drain())
		if err != nil {
			return local, err
		}
		if rank == 0 {
			local.Steps += int64(windowEnd - windowStart)
			local.ExchangeRounds++
			telemetry.IncExchangeRounds()
		}

		writes, err := router.Deliver(windowStart, windowEnd, merged, k.buffers, k.delivered)
		if err != nil {
			return local, err
		}
		local.SpikesDelivered += int64(writes)

		windowStart = windowEnd
	}
	return local, nil
}

// updateWindow runs the update phase of one window: every thread of the
// rank integrates its owned nodes across the window and registers the
// spikes and corrections they produce. Threads touch disjoint node sets and
// disjoint register slots, so the phase needs no locks.
func (k *SimulationContext) updateWindow(rank int, from, to model.Tick, reg *delivery.Register) (emitted, corrections int64, err error) {
	type result struct {
		emitted     int64
		corrections int64
		err         error
	}
	results := make([]result, k.cfg.ThreadsPerRank)

	var wg sync.WaitGroup
	for thread := 0; thread < k.cfg.ThreadsPerRank; thread++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			res := &results[thread]
			res.emitted, res.corrections, res.err = k.updateThread(rank, thread, from, to, reg)
		}(thread)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			return 0, 0, res.err
		}
		emitted += res.emitted
		corrections += res.corrections
	}
	return emitted, corrections, nil
}

func (k *SimulationContext) updateThread(rank, thread int, from, to model.Tick, reg *delivery.Register) (emitted, corrections int64, err error) {
	v := k.vps.VPFor(rank, thread)
	corr := k.correctors[v]

	for _, id := range k.byVP[v] {
		node := k.nodes[id]
		events, err := node.Update(from, to, k.buffers[id])
		if err != nil {
			return emitted, corrections, fmt.Errorf("node %d: %w", id, err)
		}
		for _, ev := range events {
			if ev.Time < from || ev.Time >= to {
				return emitted, corrections, fmt.Errorf("node %d emitted at tick %d outside window [%d, %d)", id, ev.Time, from, to)
			}
			if err := reg.Add(thread, delivery.Packet{
				Kind:         delivery.KindSpike,
				Origin:       id,
				Offset:       ev.Time - from,
				SubMS:        ev.Offset,
				Multiplicity: ev.Multiplicity,
			}); err != nil {
				return emitted, corrections, err
			}
			emitted++

			packets, err := corr.OnPostSpike(id, ev.Time)
			if err != nil {
				return emitted, corrections, err
			}
			for _, p := range packets {
				if err := reg.Add(thread, p); err != nil {
					return emitted, corrections, err
				}
			}
			corrections += int64(len(packets))
		}
	}

	corr.Purge(to)
	return emitted, corrections, nil
}

// delivered is the router hook: axonal-delay connections go through the
// target VP's corrector for optimistic STDP and archiving.
func (k *SimulationContext) delivered(h conn.Handle, c model.Connection, emit model.Tick) (float64, error) {
	if c.AxonalDelay == 0 {
		return c.Weight, nil
	}
	owner, err := k.vps.VPOf(c.Target)
	if err != nil {
		return 0, err
	}
	return k.correctors[owner].OnPreDelivery(h, c, emit)
}
