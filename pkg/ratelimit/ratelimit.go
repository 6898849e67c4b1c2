// Package ratelimit implements the two-tier adaptive rate limiter of
// spec §4.8: a lock-free hot path touched once per probe, backed by a
// background monitor goroutine that measures actual throughput every
// 100ms and adjusts the batch size with a hysteresis band so the
// limiter doesn't thrash around the target packets-per-second rate.
//
// Grounded on the exact constants and convergence algorithm of the
// original adaptive_rate_limiter_v3.rs, re-expressed with sync/atomic
// typed atomics and a time.Ticker in place of that file's std::sync
// primitives — the same "every engine gets a Prometheus collector"
// pattern as pkg/exporter/exporter.go.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/doublegate/prortip-scanner-core/pkg/scanerr"
)

const (
	hysteresisFactor    = 0.05
	batchIncreaseFactor = 1.10
	batchDecreaseFactor = 0.90
	maxBatchSize        = 10000
	minBatchSize        = 10
	initialBatchCap     = 1000
	monitorInterval     = 100 * time.Millisecond
	minMeasureInterval  = 10 * time.Millisecond
)

// Limiter enforces a packets-per-second target with a hot path cheap
// enough to call before every probe: it only decrements an atomic
// counter and, once per batch, sleeps for batch_size/target_rate. All
// rate measurement and batch-size convergence happens in a 10Hz
// background monitor, per spec §9's rationale for keeping per-packet
// overhead under 5%.
type Limiter struct {
	shutdown     atomic.Bool
	target       atomic.Int64 // packets/sec, 0 = unbounded
	batchSize    atomic.Int64 // current_batch_size
	batchCounter atomic.Int64
	packetCount  atomic.Int64

	lastCount int64 // monitor-goroutine-only, no atomic needed

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	adjustments prometheus.Counter
	currentRate prometheus.Gauge
}

// New constructs a Limiter targeting initialTargetRate packets/sec (0
// for unbounded) and immediately launches its monitor goroutine;
// callers must call Stop when done.
func New(initialTargetRate int) *Limiter {
	l := &Limiter{
		stopCh: make(chan struct{}),
		adjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prortip_ratelimit_adjustments_total",
			Help: "Number of times the adaptive rate limiter changed its batch size.",
		}),
		currentRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prortip_ratelimit_batch_size",
			Help: "Current adaptive rate limiter batch size (probes per batch).",
		}),
	}
	l.target.Store(int64(initialTargetRate))

	// Initial sizing per spec §4.8: clamp(target/100, 10, 1000), aiming
	// for ~100 batches/sec at steady state.
	batch := int64(minBatchSize)
	if initialTargetRate > 0 {
		batch = int64(initialTargetRate) / 100
		if batch < minBatchSize {
			batch = minBatchSize
		}
		if batch > initialBatchCap {
			batch = initialBatchCap
		}
	}
	l.batchSize.Store(batch)
	l.batchCounter.Store(batch)
	l.currentRate.Set(float64(batch))

	l.wg.Add(1)
	go l.monitorLoop()
	return l
}

// Describe implements prometheus.Collector.
func (l *Limiter) Describe(ch chan<- *prometheus.Desc) {
	l.adjustments.Describe(ch)
	l.currentRate.Describe(ch)
}

// Collect implements prometheus.Collector.
func (l *Limiter) Collect(ch chan<- prometheus.Metric) {
	l.adjustments.Collect(ch)
	l.currentRate.Collect(ch)
}

// Allow is the hot-path gate called once per probe, per spec §4.8:
//  1. reject if shutting down.
//  2. bump packet_count for the monitor's rate measurement.
//  3. load current_batch_size.
//  4. fetch-sub batch_counter by 1.
//  5. if the batch is exhausted, refill batch_counter and sleep for
//     batch_size·1e6/target_rate microseconds.
//
// All atomic ops use relaxed single-counter semantics; the monitor
// only reads coarse snapshots, so no stronger ordering is needed.
func (l *Limiter) Allow(ctx context.Context) error {
	if l.shutdown.Load() {
		return scanerr.New(scanerr.Shutdown, "rate limiter is shutting down")
	}
	l.packetCount.Add(1)
	batch := l.batchSize.Load()
	if l.batchCounter.Add(-1) > 0 {
		return nil
	}
	l.batchCounter.Store(batch)

	target := l.target.Load()
	if target <= 0 {
		return nil
	}
	sleepMicros := batch * 1_000_000 / target
	if sleepMicros <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return scanerr.New(scanerr.Shutdown, "rate limiter is shutting down")
	case <-time.After(time.Duration(sleepMicros) * time.Microsecond):
	}
	return nil
}

// BatchSize returns the current allowed probes-per-batch.
func (l *Limiter) BatchSize() int {
	return int(l.batchSize.Load())
}

func (l *Limiter) monitorLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-l.stopCh:
			return
		case now := <-ticker.C:
			l.adjust(now.Sub(last))
			last = now
		}
	}
}

// adjust measures actual_rate = (packet_count-last_count)/elapsed and
// compares it against the [target·0.95, target·1.05] hysteresis band,
// per spec §4.8's background monitor algorithm.
func (l *Limiter) adjust(elapsed time.Duration) {
	if elapsed < minMeasureInterval {
		return
	}
	count := l.packetCount.Load()
	delta := count - l.lastCount
	l.lastCount = count

	target := l.target.Load()
	if target <= 0 {
		return
	}

	actualRate := float64(delta) / elapsed.Seconds()
	current := l.batchSize.Load()
	lower := float64(target) * (1 - hysteresisFactor)
	upper := float64(target) * (1 + hysteresisFactor)

	next := current
	switch {
	case actualRate > upper:
		next = int64(float64(current) * batchDecreaseFactor)
	case actualRate < lower:
		next = int64(math.Ceil(float64(current) * batchIncreaseFactor))
	}
	if next < minBatchSize {
		next = minBatchSize
	}
	if next > maxBatchSize {
		next = maxBatchSize
	}
	if next == current {
		return
	}
	l.batchSize.Store(next)
	if next > current {
		// Refill so the just-grown batch doesn't exhaust on the very
		// next Allow() call before the new size takes effect.
		l.batchCounter.Store(next)
	}
	l.currentRate.Set(float64(next))
	l.adjustments.Inc()
}

// Stop halts the monitor goroutine and marks the limiter as shutting
// down so any Allow() call blocked on a batch sleep returns promptly.
// Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		l.shutdown.Store(true)
		close(l.stopCh)
	})
	l.wg.Wait()
}
