package vp

import (
	"testing"

	"spikekernel/internal/model"
)

func TestRoundRobinAssignment(t *testing.T) {
	m, err := NewMap(2, 3)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	if m.NumVPs() != 6 {
		t.Fatalf("expected 6 VPs, got %d", m.NumVPs())
	}
	if _, err := m.Grow(12); err != nil {
		t.Fatalf("grow: %v", err)
	}

	for id := model.NodeID(0); id < 12; id++ {
		v, err := m.VPOf(id)
		if err != nil {
			t.Fatalf("vp of %d: %v", id, err)
		}
		if int64(v) != int64(id)%6 {
			t.Fatalf("node %d: got vp %d, want %d", id, v, int64(id)%6)
		}
		if got := m.VPFor(m.RankOf(v), m.ThreadOf(v)); got != v {
			t.Fatalf("vp %d: inverse gave %d", v, got)
		}
	}
}

func TestVPOfOutsideCreatedRangeFails(t *testing.T) {
	m, err := NewMap(1, 2)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	if _, err := m.Grow(4); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if _, err := m.VPOf(4); err == nil {
		t.Fatal("expected error for uncreated node id")
	}
	if _, err := m.VPOf(-1); err == nil {
		t.Fatal("expected error for negative node id")
	}
}

func TestLocalNodesPartitionTheNodeSet(t *testing.T) {
	m, err := NewMap(2, 2)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	if _, err := m.Grow(10); err != nil {
		t.Fatalf("grow: %v", err)
	}

	seen := make(map[model.NodeID]int)
	for v := 0; v < m.NumVPs(); v++ {
		for _, id := range m.LocalNodes(model.VPID(v)) {
			seen[id]++
		}
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 nodes covered, got %d", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("node %d owned by %d VPs", id, n)
		}
	}
}

func TestGrowAssignsDenseIDs(t *testing.T) {
	m, err := NewMap(1, 1)
	if err != nil {
		t.Fatalf("new map: %v", err)
	}
	first, err := m.Grow(3)
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if first != 0 {
		t.Fatalf("first id = %d, want 0", first)
	}
	second, err := m.Grow(2)
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	if second != 3 {
		t.Fatalf("second batch starts at %d, want 3", second)
	}
	if m.NumNodes() != 5 {
		t.Fatalf("num nodes = %d, want 5", m.NumNodes())
	}
}
