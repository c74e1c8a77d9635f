package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Exchanger is the collective transport at every min-delay window boundary.
// Each rank contributes its drained register and receives the merged view
// of all ranks' contributions. The call is a synchronization point: it
// returns only once every rank has contributed to the round. A real MPI
// all-to-all plugs in behind this interface; the kernel ships an in-process
// implementation.
type Exchanger interface {
	Exchange(ctx context.Context, rank int, out []Packet) ([]Packet, error)
}

// ErrExchangerStopped is returned to ranks blocked in a round when the
// exchanger shuts down.
var ErrExchangerStopped = errors.New("exchanger stopped")

// LocalExchanger implements the collective for ranks living in one process
// as a condition-variable barrier. Ranks block until all have contributed,
// then each receives the packets merged in ascending rank order, keeping
// the result identical on every rank.
type LocalExchanger struct {
	mu   sync.Mutex
	cond *sync.Cond

	numRanks      int
	round         int
	arrived       int
	contributions [][]Packet
	merged        []Packet
	stopped       bool
}

func NewLocalExchanger(numRanks int) (*LocalExchanger, error) {
	if numRanks < 1 {
		return nil, fmt.Errorf("num ranks must be positive: %d", numRanks)
	}
	e := &LocalExchanger{
		numRanks:      numRanks,
		contributions: make([][]Packet, numRanks),
	}
	e.cond = sync.NewCond(&e.mu)
	return e, nil
}

// Stop aborts any blocked ranks. The simulation may only be halted between
// windows, so Stop is called once all ranks have either finished or are
// parked in Exchange.
func (e *LocalExchanger) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (e *LocalExchanger) Exchange(ctx context.Context, rank int, out []Packet) ([]Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil, ErrExchangerStopped
	}
	if rank < 0 || rank >= e.numRanks {
		return nil, fmt.Errorf("rank %d outside [0, %d)", rank, e.numRanks)
	}
	if e.contributions[rank] != nil {
		return nil, fmt.Errorf("rank %d contributed twice to round %d", rank, e.round)
	}

	e.contributions[rank] = out
	if out == nil {
		// nil marks "not yet contributed" above, so normalize.
		e.contributions[rank] = []Packet{}
	}
	e.arrived++

	round := e.round
	if e.arrived == e.numRanks {
		var n int
		for _, c := range e.contributions {
			n += len(c)
		}
		merged := make([]Packet, 0, n)
		for r, c := range e.contributions {
			merged = append(merged, c...)
			e.contributions[r] = nil
		}
		e.merged = merged
		e.arrived = 0
		e.round++
		e.cond.Broadcast()
		return merged, nil
	}

	for e.round == round && !e.stopped {
		e.cond.Wait()
	}
	if e.stopped && e.round == round {
		return nil, ErrExchangerStopped
	}
	return e.merged, nil
}
