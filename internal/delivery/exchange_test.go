package delivery

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"spikekernel/internal/model"
)

func TestRegisterDrainsInThreadOrder(t *testing.T) {
	r, err := NewRegister(3)
	if err != nil {
		t.Fatalf("new register: %v", err)
	}
	// appends arrive in arbitrary thread order
	if err := r.Add(2, Packet{Origin: 20}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(0, Packet{Origin: 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(1, Packet{Origin: 10}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add(0, Packet{Origin: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}

	got := r.Drain()
	want := []model.NodeID{0, 1, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("drained %d packets, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.Origin != want[i] {
			t.Fatalf("packet %d from node %d, want %d", i, p.Origin, want[i])
		}
	}
	if n := len(r.Drain()); n != 0 {
		t.Fatalf("register not cleared: %d packets remain", n)
	}
}

func TestRegisterRejectsUnknownThread(t *testing.T) {
	r, err := NewRegister(2)
	if err != nil {
		t.Fatalf("new register: %v", err)
	}
	if err := r.Add(2, Packet{}); err == nil {
		t.Fatal("expected thread range error")
	}
}

func TestExchangeMergesInRankOrderOnEveryRank(t *testing.T) {
	const numRanks = 4
	e, err := NewLocalExchanger(numRanks)
	if err != nil {
		t.Fatalf("new exchanger: %v", err)
	}

	results := make([][]Packet, numRanks)
	errs := make([]error, numRanks)
	var wg sync.WaitGroup
	for rank := 0; rank < numRanks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			out := []Packet{{Origin: model.NodeID(rank), Offset: model.Tick(rank)}}
			results[rank], errs[rank] = e.Exchange(context.Background(), rank, out)
		}(rank)
	}
	wg.Wait()

	for rank := 0; rank < numRanks; rank++ {
		if errs[rank] != nil {
			t.Fatalf("rank %d: %v", rank, errs[rank])
		}
	}
	want := []Packet{
		{Origin: 0, Offset: 0},
		{Origin: 1, Offset: 1},
		{Origin: 2, Offset: 2},
		{Origin: 3, Offset: 3},
	}
	for rank := 0; rank < numRanks; rank++ {
		if !reflect.DeepEqual(results[rank], want) {
			t.Fatalf("rank %d merged view %+v, want %+v", rank, results[rank], want)
		}
	}
}

func TestExchangeRunsMultipleRounds(t *testing.T) {
	const numRanks, rounds = 2, 5
	e, err := NewLocalExchanger(numRanks)
	if err != nil {
		t.Fatalf("new exchanger: %v", err)
	}

	var wg sync.WaitGroup
	failures := make(chan error, numRanks*rounds)
	for rank := 0; rank < numRanks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			for round := 0; round < rounds; round++ {
				out := []Packet{{Origin: model.NodeID(rank), Offset: model.Tick(round)}}
				merged, err := e.Exchange(context.Background(), rank, out)
				if err != nil {
					failures <- err
					return
				}
				if len(merged) != numRanks {
					failures <- errors.New("incomplete round")
					return
				}
				for _, p := range merged {
					if p.Offset != model.Tick(round) {
						failures <- errors.New("packet from another round leaked")
						return
					}
				}
			}
		}(rank)
	}
	wg.Wait()
	close(failures)
	for err := range failures {
		t.Fatal(err)
	}
}

func TestStopReleasesBlockedRank(t *testing.T) {
	e, err := NewLocalExchanger(2)
	if err != nil {
		t.Fatalf("new exchanger: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		_, err := e.Exchange(context.Background(), 0, nil)
		got <- err
	}()

	// rank 1 never arrives; Stop must unblock rank 0
	e.Stop()
	if err := <-got; !errors.Is(err, ErrExchangerStopped) {
		t.Fatalf("blocked rank got %v, want ErrExchangerStopped", err)
	}

	if _, err := e.Exchange(context.Background(), 1, nil); !errors.Is(err, ErrExchangerStopped) {
		t.Fatalf("post-stop exchange got %v, want ErrExchangerStopped", err)
	}
}

func TestExchangeHonorsCancelledContext(t *testing.T) {
	e, err := NewLocalExchanger(2)
	if err != nil {
		t.Fatalf("new exchanger: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Exchange(ctx, 0, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
