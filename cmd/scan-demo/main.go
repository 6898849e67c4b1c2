package main

import (
	"context"
	"flag"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/doublegate/prortip-scanner-core/pkg/aggregator"
	"github.com/doublegate/prortip-scanner-core/pkg/connect"
	"github.com/doublegate/prortip-scanner-core/pkg/events"
	"github.com/doublegate/prortip-scanner-core/pkg/progress"
	"github.com/doublegate/prortip-scanner-core/pkg/ratelimit"
	"github.com/doublegate/prortip-scanner-core/pkg/scanconfig"
	"github.com/doublegate/prortip-scanner-core/pkg/scantypes"
	"github.com/doublegate/prortip-scanner-core/pkg/shuffle"
)

func main() {
	target := flag.String("target", "", "CIDR or IP to scan")
	ports := flag.String("ports", "1-1024", "port range, e.g. 22,80,443 or 1-1024")
	rate := flag.Int("rate", 0, "probes/sec hint, 0 for unbounded")
	maxConcurrentFlag := flag.Int("max-concurrent", 256, "concurrent in-flight probes")
	eventLogDir := flag.String("event-log-dir", "", "directory for JSON-lines event logs, empty disables logging")
	flag.Parse()

	if *target == "" {
		logrus.Fatal("scan-demo: -target is required")
	}

	cfg := scanconfig.Default()
	cfg.Targets = []string{*target}
	cfg.Ports = *ports
	cfg.RateLimitTarget = *rate
	cfg.MaxConcurrent = *maxConcurrentFlag
	cfg.EventLogDir = *eventLogDir
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("scan-demo: invalid config: %v", err)
	}

	hosts, err := scantypes.NewTarget(*target)
	if err != nil {
		logrus.Fatalf("scan-demo: %v", err)
	}
	portRange, err := scantypes.ParsePortRange(cfg.Ports)
	if err != nil {
		logrus.Fatalf("scan-demo: %v", err)
	}

	bus := events.New(4096)
	agg := progress.NewAggregator(bus)
	defer agg.Close()

	scanID := events.NewScanID()
	if err := bus.Publish(events.ScanEvent{Type: events.EventScanStarted, ScanID: scanID}); err != nil {
		logrus.Fatalf("scan-demo: %v", err)
	}

	var logger *events.FileLogger
	if cfg.EventLogDir != "" {
		logger, err = events.NewFileLogger(cfg.EventLogDir, scanID, cfg.EventLogMaxBytes, cfg.EventLogRetention)
		if err != nil {
			logrus.Fatalf("scan-demo: event logger: %v", err)
		}
		defer logger.Close()
		ch, unsub := bus.Subscribe(events.Filter{Kind: events.FilterScanID, ScanID: scanID}, 1024)
		defer unsub()
		go func() {
			for e := range ch {
				if err := logger.Write(e); err != nil {
					logrus.WithError(err).Warn("scan-demo: event log write failed")
				}
			}
		}()
	}

	limiter := ratelimit.New(cfg.RateLimitTarget)
	defer limiter.Stop()

	engine := connect.New(cfg.Timing)
	engine.Diagnostics = cfg.TCPInfoDiagnostics
	ctx := context.Background()

	ips := hosts.ExpandHosts()
	portList := portRange.All()
	if len(ips) == 0 || len(portList) == 0 {
		logrus.Fatal("scan-demo: target/port range expanded to zero probes")
	}
	total := uint64(len(ips)) * uint64(len(portList))
	var completed uint64

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 256
	}

	_ = bus.Publish(events.ScanEvent{Type: events.EventScanStageChanged, ScanID: scanID, Stage: events.StageScanning})

	// BlackRock permutes the flat (ip, port) index space so probes land
	// on targets in non-sequential order per §4.1, instead of walking
	// hosts and ports in the predictable order they were parsed in.
	aggCap := 4096
	if total < uint64(aggCap) {
		aggCap = int(total)
	}
	if aggCap < 1 {
		aggCap = 1
	}
	br := shuffle.New(total, rand.Uint64(), 3)
	resultAgg := aggregator.New(aggCap)
	progressCounters := &connect.ProgressCounters{}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var completedMu sync.Mutex

scanLoop:
	for i := uint64(0); i < br.Range(); i++ {
		idx := br.Shuffle(i)
		ip := ips[idx/uint64(len(portList))]
		port := portList[idx%uint64(len(portList))]

		if err := limiter.Allow(ctx); err != nil {
			logrus.WithError(err).Warn("scan-demo: rate limiter aborted")
			break scanLoop
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break scanLoop
		}
		wg.Add(1)
		go func(ip net.IP, port int) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := engine.ScanPort(ctx, ip, port)
			if err != nil {
				logrus.WithError(err).WithField("port", port).Debug("scan-demo: probe error")
			}
			progressCounters.Record(res.State, err != nil)
			resultAgg.Push(res)

			if res.State == scantypes.Open {
				_ = bus.Publish(events.ScanEvent{
					Type: events.EventPortFound, ScanID: scanID,
					Host: ip.String(), Port: port, State: res.State.String(),
				})
			}
			completedMu.Lock()
			completed++
			n := completed
			completedMu.Unlock()
			_ = bus.Publish(events.ScanEvent{
				Type: events.EventScanProgress, ScanID: scanID,
				Completed: n, Total: total,
			})
		}(ip, port)
	}
	wg.Wait()
	results := resultAgg.DrainAll()

	_ = bus.Publish(events.ScanEvent{Type: events.EventScanCompleted, ScanID: scanID})
	time.Sleep(50 * time.Millisecond) // let the event logger goroutine drain

	if snap, ok := agg.Snapshot(scanID.String()); ok {
		logrus.Infof("scan-demo: completed %d/%d probes, stage=%s", snap.Completed, snap.Total, snap.Stage)
	}
	logrus.Infof("scan-demo: open=%d closed=%d filtered=%d (aggregated %d results, %d dropped)",
		progressCounters.Open.Load(), progressCounters.Closed.Load(), progressCounters.Filtered.Load(),
		len(results), resultAgg.Dropped())
	os.Exit(0)
}
