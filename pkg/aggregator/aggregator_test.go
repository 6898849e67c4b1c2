package aggregator

import (
	"net"
	"sync"
	"testing"

	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

func TestPushAndDrainAll(t *testing.T) {
	a := New(16)
	for i := 0; i < 10; i++ {
		a.Push(scantypes.NewResult(net.ParseIP("10.0.0.1"), i, scantypes.Open).Build())
	}
	drained := a.DrainAll()
	if len(drained) != 10 {
		t.Fatalf("len(drained) = %d, want 10", len(drained))
	}
	if a.Total() != 10 {
		t.Fatalf("Total() = %d, want 10", a.Total())
	}
	if len(a.DrainAll()) != 0 {
		t.Fatalf("second DrainAll should be empty")
	}
}

func TestOverflowIncrementsDropped(t *testing.T) {
	a := New(4)
	for i := 0; i < 20; i++ {
		a.Push(scantypes.NewResult(net.ParseIP("10.0.0.1"), i, scantypes.Open).Build())
	}
	if a.Dropped() == 0 {
		t.Fatalf("expected some drops when pushing past capacity without draining")
	}
}

func TestConcurrentPushIsRaceFree(t *testing.T) {
	a := New(1024)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				a.Push(scantypes.NewResult(net.ParseIP("10.0.0.1"), base+i, scantypes.Open).Build())
			}
		}(g * 100)
	}
	wg.Wait()
	if a.Total() != 800 {
		t.Fatalf("Total() = %d, want 800", a.Total())
	}
}
