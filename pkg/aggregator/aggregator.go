// Package aggregator is a lock-free, single-consumer result ring
// buffer (spec §4.9): many probe goroutines Push concurrently, one
// consumer periodically DrainAll()s, and a full buffer drops the
// oldest entries rather than blocking producers, counting the drops.
//
// No pack dependency offers a lock-free MPSC queue primitive (grepped
// across every _examples go.mod for "lfqueue"/"ringbuffer"/"lockfree"
// turned up nothing), so this is built on sync/atomic directly: a
// fixed-capacity ring like the events package's history buffer, but
// indexed by an atomic cursor where that buffer takes a lock.
package aggregator

import (
	"sync/atomic"

	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
)

// Aggregator is a bounded MPSC ring buffer of scan results.
type Aggregator struct {
	buf      []atomic.Pointer[scantypes.ScanResult]
	mask     uint64
	writeIdx atomic.Uint64
	dropped  atomic.Uint64
	total    atomic.Uint64
}

// New constructs an Aggregator whose capacity is rounded up to the
// next power of two.
func New(capacity int) *Aggregator {
	n := 1
	for n < capacity {
		n <<= 1
	}
	if n == 0 {
		n = 1
	}
	a := &Aggregator{buf: make([]atomic.Pointer[scantypes.ScanResult], n), mask: uint64(n - 1)}
	return a
}

// Push records a result, overwriting the oldest unread slot and
// incrementing the drop counter if the consumer hasn't kept up.
func (a *Aggregator) Push(r scantypes.ScanResult) {
	idx := a.writeIdx.Add(1) - 1
	slot := &a.buf[idx&a.mask]
	if slot.Swap(&r) != nil {
		a.dropped.Add(1)
	}
	a.total.Add(1)
}

// DrainAll atomically removes and returns every currently buffered
// result, in approximate arrival order. Intended for a single
// consumer; concurrent DrainAll calls may interleave results but never
// corrupt the buffer, since each slot swap is independently atomic.
func (a *Aggregator) DrainAll() []scantypes.ScanResult {
	out := make([]scantypes.ScanResult, 0, len(a.buf))
	for i := range a.buf {
		if p := a.buf[i].Swap(nil); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Dropped returns the number of results overwritten before being read.
func (a *Aggregator) Dropped() uint64 { return a.dropped.Load() }

// Total returns the lifetime count of Push calls.
func (a *Aggregator) Total() uint64 { return a.total.Load() }
