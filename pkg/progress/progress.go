// Package progress aggregates scan progress from the event bus into a
// single read-friendly snapshot (spec §4.11), grounded on the original
// progress/aggregator.rs's RWMutex-guarded state and monotonic stage
// ordering (a scan never reports an earlier stage once it has advanced).
package progress

import (
	"sync"
	"time"

	"github.com/doublegate/prortip-scanner-core/pkg/events"
)

// State is a point-in-time snapshot of a scan's progress.
type State struct {
	Stage      events.ScanStage
	Completed  uint64
	Total      uint64
	Throughput events.Throughput
	StartedAt  time.Time
	UpdatedAt  time.Time
}

// ETA estimates remaining time from the current throughput, returning
// 0 when throughput or remaining work is unknown.
func (s State) ETA() time.Duration {
	if s.Throughput.PacketsPerSecond <= 0 || s.Total <= s.Completed {
		return 0
	}
	remaining := float64(s.Total - s.Completed)
	return time.Duration(remaining/s.Throughput.PacketsPerSecond) * time.Second
}

// Aggregator subscribes to a Bus and keeps one State per scan ID.
type Aggregator struct {
	mu     sync.RWMutex
	states map[string]*State
	unsub  func()
}

// NewAggregator subscribes to bus for every scan-progress-relevant
// event type and begins tracking state immediately.
func NewAggregator(bus *events.Bus) *Aggregator {
	a := &Aggregator{states: make(map[string]*State)}
	ch, unsub := bus.Subscribe(events.Filter{Kind: events.FilterCustom, Custom: isProgressRelevant}, 256)
	a.unsub = unsub
	go a.consume(ch)
	return a
}

func isProgressRelevant(e events.ScanEvent) bool {
	switch e.Type {
	case events.EventScanStarted, events.EventScanProgress, events.EventScanStageChanged,
		events.EventScanCompleted, events.EventScanCancelled, events.EventScanPaused, events.EventScanResumed:
		return true
	default:
		return false
	}
}

func (a *Aggregator) consume(ch <-chan events.ScanEvent) {
	for e := range ch {
		a.apply(e)
	}
}

func (a *Aggregator) apply(e events.ScanEvent) {
	key := e.ScanID.String()
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[key]
	if !ok {
		st = &State{StartedAt: now}
		a.states[key] = st
	}

	switch e.Type {
	case events.EventScanStarted:
		st.Stage = events.StagePending
	case events.EventScanStageChanged:
		if e.Stage >= st.Stage { // monotonic: never regress to an earlier stage
			st.Stage = e.Stage
		}
	case events.EventScanProgress:
		st.Completed = e.Completed
		st.Total = e.Total
		st.Throughput = e.Throughput
	case events.EventScanCompleted:
		st.Stage = events.StageComplete
	case events.EventScanCancelled:
		st.Stage = events.StageCancelled
	}
	st.UpdatedAt = now
}

// Snapshot returns the current State for scanID (the zero value, false
// if unknown).
func (a *Aggregator) Snapshot(scanID string) (State, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.states[scanID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Close unsubscribes from the bus.
func (a *Aggregator) Close() {
	a.unsub()
}
