package index

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestPathIndexSyncDepth(t *testing.T) {
	pdb := buildDemoPathDB(t)
	bySource := buildRelationBySourceIndex(pdb)
	cfg := DefaultConfig()
	cfg.PathIndexDepth = 2
	pi := buildPathIndex(pdb, bySource, "snap-1", cfg)

	got, ok := pi.Lookup(3, []string{"Parent"})
	if !ok || !reflect.DeepEqual(got, []uint64{1}) {
		t.Fatalf("Lookup(3, [Parent]) = %v, %v", got, ok)
	}

	got, ok = pi.Lookup(3, []string{"Parent", "Parent"})
	if !ok || !reflect.DeepEqual(got, []uint64{2}) {
		t.Fatalf("Lookup(3, [Parent Parent]) = %v, %v, want [2], true", got, ok)
	}

	if _, ok := pi.Lookup(99, []string{"Parent"}); ok {
		t.Fatalf("expected no entry for an unrelated source")
	}
}

func TestWarmupComputesDeepChainsAndCachesIntoLRU(t *testing.T) {
	pdb := buildDemoPathDB(t)
	bySource := buildRelationBySourceIndex(pdb)
	cfg := DefaultConfig()
	cfg.PathIndexDepth = 1
	pi := buildPathIndex(pdb, bySource, "snap-1", cfg)

	if _, ok := pi.Lookup(3, []string{"Parent", "Parent"}); ok {
		t.Fatalf("did not expect chain length 2 to be built synchronously at depth 1")
	}

	w := NewWarmup(pi, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Request(3, []string{"Parent", "Parent"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := pi.Lookup(3, []string{"Parent", "Parent"}); ok {
			if !reflect.DeepEqual(got, []uint64{2}) {
				t.Fatalf("warmed chain = %v, want [2]", got)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("warm-up did not populate the LRU in time")
}

func TestWarmupDropsRequestsPastQueueCapacity(t *testing.T) {
	pdb := buildDemoPathDB(t)
	bySource := buildRelationBySourceIndex(pdb)
	cfg := DefaultConfig()
	pi := buildPathIndex(pdb, bySource, "snap-1", cfg)

	w := NewWarmup(pi, 1)
	before := testCounterValue(t)
	// Fill the queue without a running worker, then overflow it.
	w.Request(1, []string{"Parent"})
	w.Request(1, []string{"Parent"})
	w.Request(1, []string{"Parent"})
	after := testCounterValue(t)
	if after <= before {
		t.Fatalf("expected PathLRUWarmupDroppedTotal to increase, before=%v after=%v", before, after)
	}
}
